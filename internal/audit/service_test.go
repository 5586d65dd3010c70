package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

type stubRepo struct {
	rows []TimelineRow
	err  error
	last windowQuery
}

func (s *stubRepo) Window(_ context.Context, q windowQuery) ([]TimelineRow, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	end := q.Offset + q.Limit
	if q.Offset >= len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[q.Offset:end], nil
}

func sampleRows(n int) []TimelineRow {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Hour),
			Actor:    "127.0.0.1",
			Location: string(shared.LocationSede),
			Action:   "stock:adjust",
			Entity:   "product",
			EntityID: "p-1",
			Meta:     map[string]any{"new_stock": float64(i)},
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(5)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Location: shared.LocationSede, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, PagingInfo{Page: 1, PageSize: 2, HasNext: true, NextPage: 2}, result.Paging)
	require.Equal(t, 3, repo.last.Limit)
	require.Equal(t, 0, repo.last.Offset)
	require.Nil(t, repo.last.From)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Location: shared.LocationSede, PageSize: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.Equal(t, 4, repo.last.Offset)
}

func TestTimelineDefaultsAndCaps(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Location: shared.Location506, Actor: "  op  "})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.Equal(t, defaultPageSize, result.Paging.PageSize)
	require.Equal(t, "op", repo.last.Actor)
	require.Equal(t, shared.Location506, repo.last.Location)

	_, err = svc.Timeline(context.Background(), TimelineFilters{Location: shared.Location506, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.last.Limit)
}

func TestTimelineValidation(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.Timeline(context.Background(), TimelineFilters{Location: "annex"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Timeline(context.Background(), TimelineFilters{
		Location: shared.LocationSede,
		From:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewService(nil).Timeline(context.Background(), TimelineFilters{Location: shared.LocationSede})
	require.Error(t, err)

	boom := errors.New("db down")
	_, err = NewService(&stubRepo{err: boom}).Timeline(context.Background(), TimelineFilters{Location: shared.LocationSede})
	require.ErrorIs(t, err, boom)
}

func TestTimelineHandler(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithCapability(req.Context(), shared.Capability{Location: shared.LocationSede})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(nil, NewService(repo)).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?page_size=2&entity=product&from=2024-03-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"has_next":true`)
	require.Contains(t, rec.Body.String(), `"action":"stock:adjust"`)
	require.Equal(t, "product", repo.last.Entity)
	require.NotNil(t, repo.last.From)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?to=yesterday", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTimelineHandlerRequiresCapability(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, NewService(&stubRepo{})).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

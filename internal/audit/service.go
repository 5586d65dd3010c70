// Package audit reads back the audit trail written by stock adjustments and
// batch deletions.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/assefaz/stockledger/internal/platform/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ErrInvalidRange is returned when From is after To.
var ErrInvalidRange = fmt.Errorf("audit: from must not be after to: %w", httpx.ErrValidation)

// Repository pages audit_logs.
type Repository interface {
	Window(ctx context.Context, q windowQuery) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if !filters.Location.Valid() {
		return Result{}, fmt.Errorf("audit: %w", httpx.ErrValidation)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return Result{}, ErrInvalidRange
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, windowQuery{
		Location: filters.Location,
		From:     optionalTime(filters.From),
		To:       optionalTime(filters.To),
		Actor:    strings.TrimSpace(filters.Actor),
		Entity:   strings.TrimSpace(filters.Entity),
		Action:   strings.TrimSpace(filters.Action),
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package reports

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/shared"
)

// LedgerPort reads ledger rows.
type LedgerPort interface {
	ListOutflows(ctx context.Context, location shared.Location) ([]ledger.OutflowEntry, error)
	ListInflows(ctx context.Context, location shared.Location) ([]ledger.InflowEntry, error)
}

// CatalogPort resolves names and low stock.
type CatalogPort interface {
	Directory(ctx context.Context, location shared.Location) (catalog.Directory, error)
	LowStock(ctx context.Context, location shared.Location) ([]catalog.Product, error)
	LowStockThreshold() int
}

// PDFRenderer turns HTML into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ErrPDFUnavailable is returned when no renderer is configured.
var ErrPDFUnavailable = errors.New("reports: pdf renderer not configured")

// Config groups optional settings.
type Config struct {
	Organization string
	TimeZone     *time.Location
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Service builds dashboards and monthly reports.
type Service struct {
	ledger  LedgerPort
	catalog CatalogPort
	cache   *Cache
	pdf     PDFRenderer
	org     string
	tz      *time.Location
	logger  *slog.Logger
	clock   func() time.Time
	group   singleflight.Group
}

// NewService wires the report service. cache and pdf may be nil.
func NewService(ledgerPort LedgerPort, catalogPort CatalogPort, cache *Cache, pdf PDFRenderer, cfg Config) *Service {
	s := &Service{
		ledger:  ledgerPort,
		catalog: catalogPort,
		cache:   cache,
		pdf:     pdf,
		org:     cfg.Organization,
		tz:      cfg.TimeZone,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
	}
	if s.org == "" {
		s.org = "ASSEFAZ LOGÍSTICA"
	}
	if s.tz == nil {
		s.tz = time.UTC
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Dashboard returns the cached dashboard of a location, building it once per
// cache version even under concurrent requests.
func (s *Service) Dashboard(ctx context.Context, location shared.Location) (Dashboard, error) {
	if !location.Valid() {
		return Dashboard{}, shared.ErrUnknownLocation
	}
	key, err := s.cache.Key(ctx, location)
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.buildDashboard(ctx, location)
	}
	result := s.group.DoChan(key, func() (any, error) {
		return s.cache.Dashboard(context.WithoutCancel(ctx), key, func(ctx context.Context) (Dashboard, error) {
			return s.buildDashboard(ctx, location)
		})
	})
	select {
	case <-ctx.Done():
		return Dashboard{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Dashboard{}, res.Err
		}
		return res.Val.(Dashboard), nil
	}
}

// Warmup starts a new cache generation and rebuilds the dashboard of every
// location into it, so writes made outside the API show up too.
func (s *Service) Warmup(ctx context.Context) error {
	if err := s.Invalidate(ctx); err != nil {
		return err
	}
	for _, location := range shared.Locations() {
		if _, err := s.Dashboard(ctx, location); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate bumps the cache version.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) buildDashboard(ctx context.Context, location shared.Location) (Dashboard, error) {
	var (
		outflows []ledger.OutflowEntry
		inflows  []ledger.InflowEntry
		dir      catalog.Directory
		low      []catalog.Product
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outflows, err = s.ledger.ListOutflows(ctx, location)
		return err
	})
	g.Go(func() error {
		var err error
		inflows, err = s.ledger.ListInflows(ctx, location)
		return err
	})
	g.Go(func() error {
		var err error
		dir, err = s.catalog.Directory(ctx, location)
		return err
	})
	g.Go(func() error {
		var err error
		low, err = s.catalog.LowStock(ctx, location)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(DashboardInput{
		Location:  location,
		Outflows:  outflows,
		Inflows:   inflows,
		Directory: dir,
		LowStock:  len(low),
		Threshold: s.catalog.LowStockThreshold(),
		Now:       s.clock(),
	}), nil
}

// CurrentPeriod is the month of now in the configured zone.
func (s *Service) CurrentPeriod() Period {
	now := s.clock().In(s.tz)
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// Monthly builds the withdrawal report of a month.
func (s *Service) Monthly(ctx context.Context, location shared.Location, period Period) (MonthlyReport, error) {
	if !location.Valid() {
		return MonthlyReport{}, shared.ErrUnknownLocation
	}
	if err := period.Validate(); err != nil {
		return MonthlyReport{}, err
	}
	var (
		outflows []ledger.OutflowEntry
		dir      catalog.Directory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outflows, err = s.ledger.ListOutflows(gctx, location)
		return err
	})
	g.Go(func() error {
		var err error
		dir, err = s.catalog.Directory(gctx, location)
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthlyReport{}, err
	}
	return BuildMonthly(MonthlyInput{
		Organization: s.org,
		Location:     location,
		Period:       period,
		Outflows:     outflows,
		Directory:    dir,
		TimeZone:     s.tz,
		Now:          s.clock(),
	}), nil
}

// MonthlyPDF renders the monthly report through the PDF renderer.
func (s *Service) MonthlyPDF(ctx context.Context, report MonthlyReport) ([]byte, error) {
	if s.pdf == nil {
		return nil, ErrPDFUnavailable
	}
	html, err := RenderHTML(report, s.tz)
	if err != nil {
		return nil, err
	}
	return s.pdf.RenderHTML(ctx, html)
}

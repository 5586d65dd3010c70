package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/assefaz/stockledger/internal/shared"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id string, update ProductUpdate) (Product, error)
	SetProductArchived(ctx context.Context, id string, archived bool) error
	Categories(ctx context.Context, location shared.Location) ([]string, error)

	ListSectors(ctx context.Context, includeArchived bool) ([]Sector, error)
	CreateSector(ctx context.Context, input SectorInput) (Sector, error)
	SetSectorArchived(ctx context.Context, id string, archived bool) error

	ListOperators(ctx context.Context, includeArchived bool) ([]Operator, error)
	CreateOperator(ctx context.Context, input OperatorInput) (Operator, error)
	SetOperatorArchived(ctx context.Context, id string, archived bool) error
}

// ChangeNotifier is told after every committed catalog write, since names,
// archive flags and opening stock all feed the dashboard.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int
	Notifier          ChangeNotifier
	Logger            *slog.Logger
}

// Service manages the product, sector and operator registers.
type Service struct {
	repo      RepositoryPort
	validate  *validator.Validate
	threshold int
	notifier  ChangeNotifier
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		validate:  validator.New(),
		threshold: cfg.LowStockThreshold,
		notifier:  cfg.Notifier,
		logger:    logger,
	}
}

// LowStockThreshold exposes the configured threshold.
func (s *Service) LowStockThreshold() int {
	return s.threshold
}

// ListProducts returns products of a location sorted by name.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if !filter.Location.Valid() {
		return nil, fmt.Errorf("%w: location", ErrInvalidInput)
	}
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortByName(products, func(p Product) string { return p.Name })
	return products, nil
}

// LowStock returns active products at or below the threshold.
func (s *Service) LowStock(ctx context.Context, location shared.Location) ([]Product, error) {
	products, err := s.ListProducts(ctx, ProductFilter{Location: location})
	if err != nil {
		return nil, err
	}
	low := products[:0]
	for _, p := range products {
		if p.LowStock(s.threshold) {
			low = append(low, p)
		}
	}
	return low, nil
}

// Categories lists the categories in use at a location.
func (s *Service) Categories(ctx context.Context, location shared.Location) ([]string, error) {
	categories, err := s.repo.Categories(ctx, location)
	if err != nil {
		return nil, err
	}
	SortStrings(categories)
	return categories, nil
}

// RegisterProduct adds a product with its opening stock.
func (s *Service) RegisterProduct(ctx context.Context, input ProductInput) (Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	input.Unit = strings.TrimSpace(input.Unit)
	if !input.Location.Valid() {
		return Product{}, fmt.Errorf("%w: location", ErrInvalidInput)
	}
	if err := s.check(input); err != nil {
		return Product{}, err
	}
	p, err := s.repo.CreateProduct(ctx, input)
	if err != nil {
		return Product{}, err
	}
	s.changed(ctx)
	return p, nil
}

// UpdateProduct edits the descriptive fields of a product in location.
func (s *Service) UpdateProduct(ctx context.Context, location shared.Location, id string, update ProductUpdate) (Product, error) {
	update.Name = strings.TrimSpace(update.Name)
	update.Category = strings.TrimSpace(update.Category)
	update.Unit = strings.TrimSpace(update.Unit)
	if err := s.check(update); err != nil {
		return Product{}, err
	}
	if _, err := s.productIn(ctx, location, id); err != nil {
		return Product{}, err
	}
	p, err := s.repo.UpdateProduct(ctx, id, update)
	if err != nil {
		return Product{}, err
	}
	s.changed(ctx)
	return p, nil
}

// ArchiveProduct soft-deletes a product. History keeps pointing at it.
func (s *Service) ArchiveProduct(ctx context.Context, location shared.Location, id string) error {
	if _, err := s.productIn(ctx, location, id); err != nil {
		return err
	}
	return s.notify(ctx, s.repo.SetProductArchived(ctx, id, true))
}

// RestoreProduct reverses ArchiveProduct.
func (s *Service) RestoreProduct(ctx context.Context, location shared.Location, id string) error {
	if _, err := s.productIn(ctx, location, id); err != nil {
		return err
	}
	return s.notify(ctx, s.repo.SetProductArchived(ctx, id, false))
}

// ListSectors returns sectors sorted by name.
func (s *Service) ListSectors(ctx context.Context, includeArchived bool) ([]Sector, error) {
	sectors, err := s.repo.ListSectors(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	SortByName(sectors, func(sec Sector) string { return sec.Name })
	return sectors, nil
}

// RegisterSector adds a sector.
func (s *Service) RegisterSector(ctx context.Context, input SectorInput) (Sector, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Department = strings.TrimSpace(input.Department)
	if err := s.check(input); err != nil {
		return Sector{}, err
	}
	sec, err := s.repo.CreateSector(ctx, input)
	if err != nil {
		return Sector{}, err
	}
	s.changed(ctx)
	return sec, nil
}

// ArchiveSector soft-deletes a sector.
func (s *Service) ArchiveSector(ctx context.Context, id string) error {
	return s.notify(ctx, s.repo.SetSectorArchived(ctx, id, true))
}

// ListOperators returns operators sorted by name.
func (s *Service) ListOperators(ctx context.Context, includeArchived bool) ([]Operator, error) {
	operators, err := s.repo.ListOperators(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	SortByName(operators, func(o Operator) string { return o.Name })
	return operators, nil
}

// RegisterOperator adds an operator.
func (s *Service) RegisterOperator(ctx context.Context, input OperatorInput) (Operator, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return Operator{}, err
	}
	o, err := s.repo.CreateOperator(ctx, input)
	if err != nil {
		return Operator{}, err
	}
	s.changed(ctx)
	return o, nil
}

// ArchiveOperator soft-deletes an operator.
func (s *Service) ArchiveOperator(ctx context.Context, id string) error {
	return s.notify(ctx, s.repo.SetOperatorArchived(ctx, id, true))
}

// Directory loads every product of location and every sector and operator,
// archived included, for label lookups.
func (s *Service) Directory(ctx context.Context, location shared.Location) (Directory, error) {
	products, err := s.repo.ListProducts(ctx, ProductFilter{Location: location, IncludeArchived: true})
	if err != nil {
		return Directory{}, err
	}
	sectors, err := s.repo.ListSectors(ctx, true)
	if err != nil {
		return Directory{}, err
	}
	operators, err := s.repo.ListOperators(ctx, true)
	if err != nil {
		return Directory{}, err
	}
	return NewDirectory(products, sectors, operators), nil
}

func (s *Service) productIn(ctx context.Context, location shared.Location, id string) (Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if p.Location != location {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// notify bumps after a write that only returns an error.
func (s *Service) notify(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("notify catalog change", slog.Any("error", err))
	}
}

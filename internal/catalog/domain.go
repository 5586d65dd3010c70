package catalog

import (
	"fmt"
	"time"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// Product is a stock item of one location. Stock is only written by the
// ledger reconciler; the catalog owns the descriptive fields.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Stock        int             `json:"stock"`
	InitialStock int             `json:"initial_stock"`
	Location     shared.Location `json:"location"`
	ArchivedAt   *time.Time      `json:"archived_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Archived reports whether the product was soft-deleted.
func (p Product) Archived() bool { return p.ArchivedAt != nil }

// LowStock reports whether stock is at or below threshold.
func (p Product) LowStock(threshold int) bool { return p.Stock <= threshold }

// Sector is a withdrawing team, usually a cleaning crew bound to floors.
type Sector struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Department string     `json:"department"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Operator is a stock room staff member who hands out or receives goods.
type Operator struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ProductInput registers a product.
type ProductInput struct {
	Name         string          `json:"name" validate:"required,max=120"`
	Category     string          `json:"category" validate:"required,max=60"`
	Unit         string          `json:"unit" validate:"required,max=30"`
	InitialStock int             `json:"initial_stock" validate:"gte=0"`
	Location     shared.Location `json:"-"`
}

// ProductUpdate edits descriptive fields only.
type ProductUpdate struct {
	Name     string `json:"name" validate:"required,max=120"`
	Category string `json:"category" validate:"required,max=60"`
	Unit     string `json:"unit" validate:"required,max=30"`
}

// SectorInput registers a sector.
type SectorInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	Department string `json:"department" validate:"required,max=120"`
}

// OperatorInput registers an operator.
type OperatorInput struct {
	Name string `json:"name" validate:"required,max=120"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Location        shared.Location
	Search          string
	Category        string
	IncludeArchived bool
}

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = fmt.Errorf("catalog: product %w", httpx.ErrNotFound)
	// ErrSectorNotFound indicates a missing sector.
	ErrSectorNotFound = fmt.Errorf("catalog: sector %w", httpx.ErrNotFound)
	// ErrOperatorNotFound indicates a missing operator.
	ErrOperatorNotFound = fmt.Errorf("catalog: operator %w", httpx.ErrNotFound)
	// ErrInvalidInput wraps field validation failures.
	ErrInvalidInput = fmt.Errorf("catalog: %w", httpx.ErrValidation)
)

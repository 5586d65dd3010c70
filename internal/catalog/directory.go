package catalog

import "strings"

// UnknownLabel is shown for rows whose product can no longer be resolved.
const UnknownLabel = "DESCONHECIDO"

// Directory resolves ids found on ledger rows into display names. Archived
// entries are kept so history stays readable.
type Directory struct {
	products  map[string]Product
	sectors   map[string]Sector
	operators map[string]Operator
}

// NewDirectory indexes the given catalog snapshot.
func NewDirectory(products []Product, sectors []Sector, operators []Operator) Directory {
	d := Directory{
		products:  make(map[string]Product, len(products)),
		sectors:   make(map[string]Sector, len(sectors)),
		operators: make(map[string]Operator, len(operators)),
	}
	for _, p := range products {
		d.products[p.ID] = p
	}
	for _, s := range sectors {
		d.sectors[s.ID] = s
	}
	for _, o := range operators {
		d.operators[o.ID] = o
	}
	return d
}

// Product returns the product with id, if known.
func (d Directory) Product(id string) (Product, bool) {
	p, ok := d.products[id]
	return p, ok
}

// ProductName returns the product name, or the id itself when unknown.
func (d Directory) ProductName(id string) string {
	if p, ok := d.products[id]; ok {
		return p.Name
	}
	return id
}

// ProductCategory returns the category, or UnknownLabel.
func (d Directory) ProductCategory(id string) string {
	if p, ok := d.products[id]; ok && strings.TrimSpace(p.Category) != "" {
		return p.Category
	}
	return UnknownLabel
}

// SectorName returns the sector name, or the id itself when unknown.
func (d Directory) SectorName(id string) string {
	if s, ok := d.sectors[id]; ok {
		return s.Name
	}
	return id
}

// OperatorName returns the operator name, or the id itself when unknown.
func (d Directory) OperatorName(id string) string {
	if o, ok := d.operators[id]; ok {
		return o.Name
	}
	return id
}

package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/shared"
)

// DashboardInput is the snapshot a dashboard is computed from.
type DashboardInput struct {
	Location  shared.Location
	Outflows  []ledger.OutflowEntry
	Inflows   []ledger.InflowEntry
	Directory catalog.Directory
	LowStock  int
	Threshold int
	Now       time.Time
}

// BuildDashboard aggregates withdrawals into volumes and rankings.
func BuildDashboard(in DashboardInput) Dashboard {
	d := Dashboard{
		Location:          in.Location,
		LowStockCount:     in.LowStock,
		LowStockThreshold: in.Threshold,
		AveragePerRequest: decimal.Zero,
		InflowValue:       decimal.Zero,
		GeneratedAt:       in.Now,
	}

	byProduct := newTally()
	bySector := newTally()
	byCategory := newTally()
	for _, e := range in.Outflows {
		if e.Location != in.Location {
			continue
		}
		d.TotalVolume += e.Quantity
		d.Requests++

		product, ok := in.Directory.Product(e.ProductID)
		label := catalog.UnknownLabel
		category := OtherCategoryLabel
		if ok {
			label = strings.ToUpper(product.Name)
			if strings.TrimSpace(product.Category) != "" {
				category = strings.ToUpper(product.Category)
			}
		}
		byProduct.add(e.ProductID, label, e.Quantity)
		byCategory.add(category, category, e.Quantity)
		bySector.add(e.SectorID, sectorLabel(in.Directory, e.SectorID), e.Quantity)
	}
	if d.Requests > 0 {
		d.AveragePerRequest = decimal.NewFromInt(int64(d.TotalVolume)).
			Div(decimal.NewFromInt(int64(d.Requests))).Round(1)
	}
	d.TopProducts = byProduct.ranked(TopProducts)
	d.TopSectors = bySector.ranked(TopSectors)
	d.Categories = byCategory.ranked(0)
	for i := range d.Categories {
		d.Categories[i].ID = ""
	}

	for _, e := range in.Inflows {
		if e.Location != in.Location {
			continue
		}
		d.InflowValue = d.InflowValue.Add(e.Value())
	}
	return d
}

// sectorLabel uses the first name of the sector, like the withdrawal cards.
func sectorLabel(dir catalog.Directory, id string) string {
	name := dir.SectorName(id)
	if name == id {
		return OtherSectorLabel
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return OtherSectorLabel
	}
	return fields[0]
}

type tally struct {
	order  []string
	labels map[string]string
	totals map[string]int
}

func newTally() *tally {
	return &tally{labels: make(map[string]string), totals: make(map[string]int)}
}

func (t *tally) add(key, label string, qty int) {
	if _, ok := t.totals[key]; !ok {
		t.order = append(t.order, key)
		t.labels[key] = label
	}
	t.totals[key] += qty
}

// ranked sorts by quantity descending, first seen first on ties, and keeps
// at most limit entries when limit > 0.
func (t *tally) ranked(limit int) []Ranked {
	out := make([]Ranked, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, Ranked{ID: key, Label: t.labels[key], Quantity: t.totals[key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

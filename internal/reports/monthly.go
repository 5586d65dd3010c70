package reports

import (
	"sort"
	"time"

	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/shared"
)

// MonthlyInput is the snapshot a monthly report is computed from.
type MonthlyInput struct {
	Organization string
	Location     shared.Location
	Period       Period
	Outflows     []ledger.OutflowEntry
	Directory    catalog.Directory
	TimeZone     *time.Location
	Now          time.Time
}

// BuildMonthly selects the withdrawals of the period and resolves names.
// Rows whose stamp cannot be read are left out.
func BuildMonthly(in MonthlyInput) MonthlyReport {
	type stamped struct {
		at  time.Time
		row ledger.OutflowEntry
	}
	var selected []stamped
	for _, e := range in.Outflows {
		if e.Location != in.Location {
			continue
		}
		at, ok := ledger.ParseStamp(e.Date, e.Time, in.TimeZone)
		if !ok || !in.Period.Contains(at) {
			continue
		}
		selected = append(selected, stamped{at: at, row: e})
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].at.Before(selected[j].at) })

	report := MonthlyReport{
		Organization: in.Organization,
		Location:     in.Location,
		Period:       in.Period,
		PeriodLabel:  in.Period.Label(),
		GeneratedAt:  in.Now,
		Rows:         make([]ReportRow, 0, len(selected)),
	}
	for _, s := range selected {
		report.Rows = append(report.Rows, ReportRow{
			Date:     s.row.Date,
			Time:     s.row.Time,
			Sector:   in.Directory.SectorName(s.row.SectorID),
			Product:  in.Directory.ProductName(s.row.ProductID),
			Quantity: s.row.Quantity,
			Operator: in.Directory.OperatorName(s.row.OperatorID),
		})
		report.TotalVolume += s.row.Quantity
	}
	return report
}

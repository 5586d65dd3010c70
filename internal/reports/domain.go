package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// Ranking sizes shown on the dashboard.
const (
	TopProducts = 8
	TopSectors  = 5
)

// Fallback labels for rows whose sector or category cannot be resolved.
const (
	OtherSectorLabel   = "OUTRO"
	OtherCategoryLabel = "OUTROS"
)

// Ranked is one bar of a ranking.
type Ranked struct {
	ID       string `json:"id,omitempty"`
	Label    string `json:"label"`
	Quantity int    `json:"quantity"`
}

// Dashboard summarises the withdrawals of one location.
type Dashboard struct {
	Location          shared.Location `json:"location"`
	TotalVolume       int             `json:"total_volume"`
	Requests          int             `json:"requests"`
	AveragePerRequest decimal.Decimal `json:"average_per_request"`
	TopProducts       []Ranked        `json:"top_products"`
	TopSectors        []Ranked        `json:"top_sectors"`
	Categories        []Ranked        `json:"categories"`
	LowStockCount     int             `json:"low_stock_count"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	InflowValue       decimal.Decimal `json:"inflow_value"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// MostRequested returns the leading product, if any.
func (d Dashboard) MostRequested() (Ranked, bool) {
	if len(d.TopProducts) == 0 {
		return Ranked{}, false
	}
	return d.TopProducts[0], true
}

// Period is a calendar month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// ErrInvalidPeriod rejects months outside 1..12 and implausible years.
var ErrInvalidPeriod = fmt.Errorf("reports: invalid period: %w", httpx.ErrValidation)

// Validate checks the period bounds.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 || p.Year < 2000 || p.Year > 2100 {
		return ErrInvalidPeriod
	}
	return nil
}

// LastDay is the number of days in the month.
func (p Period) LastDay() int {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Label renders "01/MM/YYYY a DD/MM/YYYY".
func (p Period) Label() string {
	return fmt.Sprintf("01/%02d/%d a %d/%02d/%d", p.Month, p.Year, p.LastDay(), p.Month, p.Year)
}

// Contains reports whether t falls in the month.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

// ReportRow is one withdrawal line with names resolved.
type ReportRow struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Sector   string `json:"sector"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Operator string `json:"operator"`
}

// MonthlyReport lists the withdrawals of a month in chronological order.
type MonthlyReport struct {
	Organization string          `json:"organization"`
	Location     shared.Location `json:"location"`
	Period       Period          `json:"period"`
	PeriodLabel  string          `json:"period_label"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Rows         []ReportRow     `json:"rows"`
	TotalVolume  int             `json:"total_volume"`
}

// Filename builds Relatorio_<UNIT>_<M>_<YYYY>.<ext>.
func (r MonthlyReport) Filename(ext string) string {
	return fmt.Sprintf("Relatorio_%s_%d_%d.%s", r.Location.Label(), r.Period.Month, r.Period.Year, ext)
}

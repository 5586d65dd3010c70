package ledger

import (
	"sort"
	"time"
)

// Row is a ledger line that can be grouped into a batch.
type Row interface {
	RowID() string
	BatchKey() string
	Stamp() (date, clock string)
	Qty() int
}

// Batch is one receipt: every row sharing a batch id, or a single legacy row.
type Batch[R Row] struct {
	Key  string    `json:"key"`
	At   time.Time `json:"at"`
	Rows []R       `json:"rows"`
}

// TotalQuantity sums the quantities of all rows.
func (b Batch[R]) TotalQuantity() int {
	total := 0
	for _, row := range b.Rows {
		total += row.Qty()
	}
	return total
}

var (
	dateLayouts = []string{"02/01/2006", "2/1/2006"}
	timeLayouts = []string{"15:04", "15:04:05"}
)

// ParseStamp parses a "dd/mm/yyyy" date and "HH:MM" time in loc. The boolean
// is false when either part cannot be parsed.
func ParseStamp(date, clock string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, dl := range dateLayouts {
		for _, tl := range timeLayouts {
			t, err := time.ParseInLocation(dl+" "+tl, date+" "+clock, loc)
			if err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// FormatStamp renders t as the date and time strings stored on ledger rows.
func FormatStamp(t time.Time, loc *time.Location) (string, string) {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("02/01/2006"), t.Format("15:04")
}

// GroupByBatch groups rows by batch id, falling back to the row id for rows
// recorded without one. Rows keep their input order inside a group; groups
// are ordered newest first by the first row's timestamp and groups whose
// timestamp cannot be parsed go last. The input slice is not modified.
func GroupByBatch[R Row](rows []R, loc *time.Location) []Batch[R] {
	index := make(map[string]int, len(rows))
	groups := make([]Batch[R], 0)
	for _, row := range rows {
		key := row.BatchKey()
		if key == "" {
			key = row.RowID()
		}
		if i, ok := index[key]; ok {
			groups[i].Rows = append(groups[i].Rows, row)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Batch[R]{Key: key, Rows: []R{row}})
	}

	valid := make(map[string]bool, len(groups))
	for i := range groups {
		date, clock := groups[i].Rows[0].Stamp()
		at, ok := ParseStamp(date, clock, loc)
		groups[i].At = at
		valid[groups[i].Key] = ok
	}

	sort.SliceStable(groups, func(i, j int) bool {
		vi, vj := valid[groups[i].Key], valid[groups[j].Key]
		if vi != vj {
			return vi
		}
		return groups[i].At.After(groups[j].At)
	})
	return groups
}

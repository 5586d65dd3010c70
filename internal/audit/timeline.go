package audit

import (
	"time"

	"github.com/assefaz/stockledger/internal/shared"
)

// TimelineFilters narrows the audit timeline of one location.
type TimelineFilters struct {
	Location shared.Location
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs entry.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Location string         `json:"location"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the page returned.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles a page of rows with its paging data.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// windowQuery is what the repository receives after paging was resolved.
type windowQuery struct {
	Location shared.Location
	From     *time.Time
	To       *time.Time
	Actor    string
	Entity   string
	Action   string
	Offset   int
	Limit    int
}

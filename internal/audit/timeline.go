// Package audit reads the dealer activity trail written to audit_logs.
package audit

import (
	"strconv"
	"time"
)

// TimelineFilters narrows the activity trail for one dealer.
type TimelineFilters struct {
	DealerID int64
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs entry joined with the acting user.
type TimelineRow struct {
	ID       int64
	At       time.Time
	ActorID  int64
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// Summary flattens Meta into "k=v" pairs in key order.
func (r TimelineRow) Summary() string {
	return formatMeta(r.Meta)
}

// PagingInfo carries prev/next links without a total count.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result is a page of timeline rows.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// FiltersViewModel echoes the active filters back to the template.
type FiltersViewModel struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
}

// ViewModel is the data for pages/audit_timeline.html.
type ViewModel struct {
	Filters FiltersViewModel
	Rows    []TimelineRow
	Paging  PagingInfo
	// Query is the encoded filter set without page.
	Query string
}

// ExportHref links to the export in format ("csv" or "xlsx") for the current filters.
func (vm ViewModel) ExportHref(format string) string {
	return "/audit/export." + format + "?" + vm.Query
}

// PageHref links to page n for the current filters.
func (vm ViewModel) PageHref(n int) string {
	return "/audit?page=" + strconv.Itoa(n) + "&" + vm.Query
}

package shared

import (
	"net/url"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := (total + perPage - 1) / perPage
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// HasNext reports whether another page follows.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// PageFromQuery reads page and per_page, clamping per_page to max.
func PageFromQuery(q url.Values, max int) (page, perPage int) {
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > max {
		perPage = max
	}
	return page, perPage
}

// PageView is Pagination plus the extra query string pager links must carry.
type PageView struct {
	Pagination
	Query string
}

// NewPageView drops empty filters from v and encodes the rest as "&k=v".
func NewPageView(p Pagination, v url.Values) PageView {
	kept := url.Values{}
	for k, vals := range v {
		if len(vals) > 0 && vals[0] != "" {
			kept.Set(k, vals[0])
		}
	}
	pv := PageView{Pagination: p}
	if len(kept) > 0 {
		pv.Query = "&" + kept.Encode()
	}
	return pv
}

// PrevHref is the relative link to the previous page.
func (v PageView) PrevHref() string {
	return "?page=" + strconv.Itoa(v.Page-1) + v.Query
}

// NextHref is the relative link to the next page.
func (v PageView) NextHref() string {
	return "?page=" + strconv.Itoa(v.Page+1) + v.Query
}

package audit

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
	// MaxExportRows bounds a single CSV or workbook export.
	MaxExportRows = 5000
)

// ErrExportTooLarge is returned when the filters match more than MaxExportRows.
var ErrExportTooLarge = errors.New("audit: export exceeds row limit, narrow the date range")

// Service pages and exports the activity trail.
type Service struct {
	repo Repository
}

// NewService builds a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of rows, fetching a single extra row to detect a next page.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.DealerID <= 0 {
		return Result{}, fmt.Errorf("audit: dealer required")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every row matching filters, refusing oversized exports.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if filters.DealerID <= 0 {
		return nil, fmt.Errorf("audit: dealer required")
	}
	rows, err := s.repo.Window(ctx, filters, 0, MaxExportRows+1)
	if err != nil {
		return nil, err
	}
	if len(rows) > MaxExportRows {
		return nil, ErrExportTooLarge
	}
	return rows, nil
}

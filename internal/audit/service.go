package audit

import (
	"context"
	"fmt"
)

// PagingInfo describes the paging state of a timeline result.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []ChangeLog `json:"rows"`
	Paging PagingInfo  `json:"paging"`
}

// Service coordinates change-log reporting.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches change-log entries with paging, newest first.
func (s *Service) Timeline(ctx context.Context, kind EntityKind, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Timeline(ctx, kind, filters, pageSize+1, offset)
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

// Latest returns the most recent entry for an entity, nil without history.
func (s *Service) Latest(ctx context.Context, kind EntityKind, entityID string) (*ChangeLog, error) {
	return s.repo.Latest(ctx, kind, entityID)
}

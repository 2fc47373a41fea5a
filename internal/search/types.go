package search

import (
	"slices"

	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// Default query parameters.
const (
	DefaultSortField = "updated_at"
	DefaultPageSize  = 20
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// IsValid reports whether d is asc or desc.
func (d Direction) IsValid() bool {
	return d == Asc || d == Desc
}

// DateRange bounds the tasks' update time. Both ends are optional ISO dates.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r *DateRange) IsZero() bool {
	return r == nil || (r.From == "" && r.To == "")
}

// TaskFilter narrows a search. Empty slices mean "no constraint"; slices are
// never nil on a normalized filter.
type TaskFilter struct {
	Status    []taskstate.State `json:"status"`
	Priority  []string          `json:"priority"`
	Assignee  []string          `json:"assignee"`
	DateRange *DateRange        `json:"date_range,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f TaskFilter) IsEmpty() bool {
	return len(f.Status) == 0 && len(f.Priority) == 0 && len(f.Assignee) == 0 && f.DateRange.IsZero()
}

// Clone returns a normalized deep copy of f.
func (f TaskFilter) Clone() TaskFilter {
	cp := TaskFilter{
		Status:   slices.Clone(f.Status),
		Priority: slices.Clone(f.Priority),
		Assignee: slices.Clone(f.Assignee),
	}
	if cp.Status == nil {
		cp.Status = []taskstate.State{}
	}
	if cp.Priority == nil {
		cp.Priority = []string{}
	}
	if cp.Assignee == nil {
		cp.Assignee = []string{}
	}
	if !f.DateRange.IsZero() {
		dr := *f.DateRange
		cp.DateRange = &dr
	}
	return cp
}

// SortConfig orders search results.
type SortConfig struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// DefaultSort returns the default sort, most recently updated first.
func DefaultSort() SortConfig {
	return SortConfig{Field: DefaultSortField, Direction: Desc}
}

// Pagination selects a page of results. TotalItems and TotalPages are filled
// in from the last response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// DefaultPagination returns page 1 of 20 with no totals.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: DefaultPageSize}
}

// Query is the complete set of search parameters.
type Query struct {
	Text       string     `json:"text"`
	Filter     TaskFilter `json:"filter"`
	Sort       SortConfig `json:"sort"`
	Pagination Pagination `json:"pagination"`
}

// DefaultQuery returns the query a store starts with and resets to.
func DefaultQuery() Query {
	return Query{
		Filter:     TaskFilter{}.Clone(),
		Sort:       DefaultSort(),
		Pagination: DefaultPagination(),
	}
}

// Clone returns a deep copy of q with a normalized filter.
func (q Query) Clone() Query {
	cp := q
	cp.Filter = q.Filter.Clone()
	return cp
}

// Response is one page of search results.
type Response struct {
	Tasks      []task.Task `json:"tasks"`
	TotalItems int         `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

// Clone returns a deep copy of r.
func (r Response) Clone() Response {
	cp := r
	cp.Tasks = make([]task.Task, len(r.Tasks))
	for i, t := range r.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	return cp
}

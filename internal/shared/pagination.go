package shared

import (
	"net/url"
	"strconv"
)

// Pagination bounds list queries.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// NewPagination clamps limit and offset to sane values.
func NewPagination(limit, offset int) Pagination {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset}
}

// PaginationFromQuery reads limit/offset query parameters.
func PaginationFromQuery(q url.Values) Pagination {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return NewPagination(limit, offset)
}

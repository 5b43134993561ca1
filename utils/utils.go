package utils

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination represents the pagination details.
type Pagination struct {
	TotalItems  int `json:"totalItems"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
}

// NormalizePage applies the defaults to a requested page and page size and
// caps the size at MaxPageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Offset is the number of items before the first item of page.
func Offset(page, pageSize int) int {
	page, pageSize = NormalizePage(page, pageSize)
	return (page - 1) * pageSize
}

// CreatePagination creates a Pagination object for one page of totalItems.
func CreatePagination(totalItems, page, pageSize int) *Pagination {
	page, pageSize = NormalizePage(page, pageSize)
	return &Pagination{
		TotalItems:  totalItems,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalPages:  int(math.Ceil(float64(totalItems) / float64(pageSize))),
	}
}

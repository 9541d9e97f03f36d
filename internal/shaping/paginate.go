package shaping

import (
	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
)

// Page is one window over an ordered list of work item ids. It is computed before
// records are fetched so only the page's ids are requested from the backend.
type Page struct {
	IDs         []int `json:"-"`
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int   `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// Paginate slices ids into the 1-based page of pageSize entries. Out-of-range
// parameters are returned as INVALID_INPUT errors rather than clamped. A page past
// the end yields an empty slice.
func Paginate(ids []int, page, pageSize int) (*Page, error) {
	if page < 1 || pageSize <= 0 {
		return nil, mcperrors.NewInvalidPage(page, pageSize)
	}

	total := len(ids)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	// Clamp before multiplying so a huge page cannot overflow the offset.
	start, end := total, total
	if page-1 < totalPages {
		start = (page - 1) * pageSize
		end = start + min(pageSize, total-start)
	}

	slice := make([]int, end-start)
	copy(slice, ids[start:end])

	return &Page{
		IDs:         slice,
		Page:        page,
		PageSize:    pageSize,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     end < total,
		HasPrevious: page > 1,
	}, nil
}

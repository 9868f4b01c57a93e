package common

import (
	"net/http"
	"strconv"
)

// ListMeta holds pagination metadata for list responses.
type ListMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewListMeta derives pagination metadata from the page, limit, and total count.
func NewListMeta(page, limit int, total int64) ListMeta {
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		pages = 1
	}
	return ListMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ParsePagination extracts page and limit query parameters with bounds applied.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return
}

package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parsePagination(c *gin.Context, defaultPerPage, maxPerPage int) (int, int) {
	page := 1
	perPage := defaultPerPage
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			page = value
		}
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			perPage = value
		}
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func buildPagination(page, perPage int, total int64) *pagination {
	if perPage <= 0 {
		perPage = 1
	}
	if page <= 0 {
		page = 1
	}
	return &pagination{
		Page:        page,
		PageSize:    perPage,
		Total:       total,
		HasNext:     int64(page*perPage) < total,
		HasPrevious: page > 1,
	}
}

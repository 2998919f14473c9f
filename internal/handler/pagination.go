package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page is the page/limit pair of a list request, already clamped.
type Page struct {
	Number int
	Size   int
}

// pageParams reads ?page= and ?limit=, falling back to the first page of
// defaultPageSize items on anything unparsable.
func pageParams(c *gin.Context) Page {
	p := Page{Number: 1, Size: defaultPageSize}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		p.Size = min(n, maxPageSize)
	}
	return p
}

// Scope applies the page window to a query.
func (p Page) Scope(db *gorm.DB) *gorm.DB {
	return db.Offset((p.Number - 1) * p.Size).Limit(p.Size)
}

type PaginationMeta struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	HasNext     bool  `json:"has_next"`
}

// PaginatedResponse is one page of a list endpoint. Data is never null.
type PaginatedResponse[T any] struct {
	Data []T            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

func NewPaginatedResponse[T any](data []T, totalItems int64, p Page) PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}
	pages := int((totalItems + int64(p.Size) - 1) / int64(p.Size))
	return PaginatedResponse[T]{
		Data: data,
		Meta: PaginationMeta{
			TotalItems:  totalItems,
			TotalPages:  pages,
			CurrentPage: p.Number,
			PageSize:    p.Size,
			HasNext:     p.Number < pages,
		},
	}
}

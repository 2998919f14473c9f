package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPageParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]Page{
		"":                 {Number: 1, Size: defaultPageSize},
		"?page=3&limit=25": {Number: 3, Size: 25},
		"?page=0&limit=-4": {Number: 1, Size: defaultPageSize},
		"?page=x&limit=y":  {Number: 1, Size: defaultPageSize},
		"?limit=1000":      {Number: 1, Size: maxPageSize},
	}
	for query, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/api/search"+query, nil)
		assert.Equal(t, want, pageParams(c), query)
	}
}

func TestNewPaginatedResponse(t *testing.T) {
	res := NewPaginatedResponse[string](nil, 21, Page{Number: 2, Size: 10})
	assert.NotNil(t, res.Data)
	assert.Equal(t, PaginationMeta{TotalItems: 21, TotalPages: 3, CurrentPage: 2, PageSize: 10, HasNext: true}, res.Meta)

	last := NewPaginatedResponse([]string{"a"}, 21, Page{Number: 3, Size: 10})
	assert.False(t, last.Meta.HasNext)

	empty := NewPaginatedResponse([]string{}, 0, Page{Number: 1, Size: 10})
	assert.Equal(t, 0, empty.Meta.TotalPages)
	assert.False(t, empty.Meta.HasNext)
}

package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPageCount(t *testing.T) {
	assert.Equal(t, int64(0), pageCount(0, 20))
	assert.Equal(t, int64(1), pageCount(1, 20))
	assert.Equal(t, int64(1), pageCount(20, 20))
	assert.Equal(t, int64(2), pageCount(21, 20))
	assert.Equal(t, int64(0), pageCount(100, 0))
}

func TestPaginationParams_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/libraries", nil)

	page, limit := paginationParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)
}

func TestPaginationParams_ClampsOutOfRangeValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/libraries?page=0&limit=999", nil)

	page, limit := paginationParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)
}

func TestPaginationParams_HonorsValidValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/libraries?page=3&limit=50", nil)

	page, limit := paginationParams(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, limit)
}

func TestErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-123")

	body := errorBody(c, "NOT_FOUND", "library not found", gin.H{"field": "id"})
	errField, ok := body["error"].(gin.H)
	assert.True(t, ok)
	assert.Equal(t, "NOT_FOUND", errField["code"])
	assert.Equal(t, "library not found", errField["message"])
	assert.Equal(t, "req-123", errField["trace_id"])
	assert.NotEmpty(t, errField["timestamp"])
	assert.Equal(t, gin.H{"field": "id"}, errField["details"])
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCalendarRejectsInvalidFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/lessons?from=yesterday", nil)

	handler.Calendar(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarRejectsInvalidTo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/lessons?to=2024-13-99", nil)

	handler.Calendar(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPatch, "/lessons/abc", strings.NewReader("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.Update(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookAdHocRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/lessons/ad-hoc", strings.NewReader("[]"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.BookAdHoc(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

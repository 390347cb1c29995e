package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestReceiptRejectsNonNumericTag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/abc/bundles/latest/receipt", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}, {Key: "tag", Value: "latest"}}

	handler.Receipt(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiptRejectsAdHocTag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/abc/bundles/0/receipt", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}, {Key: "tag", Value: "0"}}

	handler.Receipt(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/students", strings.NewReader("{oops"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Enroll(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

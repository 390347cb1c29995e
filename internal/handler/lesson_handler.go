package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	"github.com/jessiekimhj/scheduler-api/internal/service"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
	"github.com/jessiekimhj/scheduler-api/pkg/response"
)

// LessonHandler exposes the calendar feed and single-lesson operations.
type LessonHandler struct {
	lessons    *service.LessonService
	rebalances *service.RebalanceService
	payments   *service.PaymentService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons *service.LessonService, rebalances *service.RebalanceService, payments *service.PaymentService) *LessonHandler {
	return &LessonHandler{lessons: lessons, rebalances: rebalances, payments: payments}
}

// Calendar godoc
// @Summary Lesson calendar feed
// @Tags Lessons
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Param pending query bool false "Filter by pending flag"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) Calendar(c *gin.Context) {
	var filter models.LessonFilter
	filter.StudentID = c.Query("studentId")
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339"))
			return
		}
		filter.To = &ts
	}
	if pending := c.Query("pending"); pending != "" {
		if pending == "true" {
			v := true
			filter.Pending = &v
		} else if pending == "false" {
			v := false
			filter.Pending = &v
		}
	}
	filter.Status = models.LessonStatus(c.Query("status"))

	lessons, err := h.lessons.Calendar(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Get godoc
// @Summary Get lesson detail
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Update godoc
// @Summary Edit a lesson's title, notes or lifecycle status
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.UpdateLessonRequest true "Lesson payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	var req service.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.lessons.UpdateDetails(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Cancel godoc
// @Summary Cancel an occurrence and rebalance its bundles
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Cancel(c *gin.Context) {
	result, err := h.rebalances.CancelOccurrence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BookAdHoc godoc
// @Summary Book a one-off lesson against the student's credit balance
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.BookAdHocRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/ad-hoc [post]
func (h *LessonHandler) BookAdHoc(c *gin.Context) {
	var req service.BookAdHocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.lessons.BookAdHoc(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// ConfirmPayment godoc
// @Summary Confirm payment for a pending bundle via its first occurrence
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/confirm-payment [post]
func (h *LessonHandler) ConfirmPayment(c *gin.Context) {
	result, err := h.payments.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

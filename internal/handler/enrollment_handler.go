package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/universityofengineers/sms-api/internal/service"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
	"github.com/universityofengineers/sms-api/pkg/response"
)

// EnrollmentHandler wires HTTP endpoints to the enrollment engine.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// ListAll godoc
// @Summary List all enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListAll(c *gin.Context) {
	enrollments, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments)
}

// MyEnrollments godoc
// @Summary List own enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) MyEnrollments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.service.MyEnrollments(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments)
}

// EnrollMe godoc
// @Summary Enroll into course
// @Description Enroll the acting student into a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollMeRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/me [post]
func (h *EnrollmentHandler) EnrollMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	enrollment, err := h.service.EnrollMe(c.Request.Context(), claims.AccountID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// TeacherEnroll godoc
// @Summary Enroll student into own course
// @Description Teacher-initiated enrollment into a course the teacher instructs
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.TeacherEnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [post]
func (h *EnrollmentHandler) TeacherEnroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.TeacherEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	enrollment, err := h.service.TeacherEnroll(c.Request.Context(), claims.AccountID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// DropMine godoc
// @Summary Drop own enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/drop [patch]
func (h *EnrollmentHandler) DropMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	enrollment, err := h.service.DropMine(c.Request.Context(), claims.AccountID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// SetGrade godoc
// @Summary Grade enrollment
// @Description Grading an active enrollment completes it
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body service.GradeUpdateRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/grade [patch]
func (h *EnrollmentHandler) SetGrade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.GradeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	enrollment, err := h.service.SetGrade(c.Request.Context(), claims.AccountID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

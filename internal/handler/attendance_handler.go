package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/attendance-engine/internal/models"
	"github.com/campusops/attendance-engine/internal/service"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
	"github.com/campusops/attendance-engine/pkg/response"
)

// AttendanceHandler exposes the ledger endpoints of one session.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark attendance
// @Description Record a student's attendance through one of the session's channels
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.MarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SessionID = c.Param("id")
	if claims := claimsFromContext(c); claims != nil {
		req.MarkedBy = claims.UserID
	}

	// Biometric marks enter only through device sync and the reconciler,
	// never straight off the HTTP surface.
	if req.Method == string(models.MarkMethodBiometric) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "biometric marks are accepted only from device sync"))
		return
	}

	// QR self-marking outside the authenticated surface is still allowed:
	// the rotating token is the proof of presence.
	if req.Method == string(models.MarkMethodAdmin) || req.Method == string(models.MarkMethodManual) {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if req.Method == string(models.MarkMethodAdmin) && claims.Role == models.RoleInstructor {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin channel requires an admin role"))
			return
		}
	}

	result, err := h.service.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List session attendance records
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	records, err := h.service.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Excuse godoc
// @Summary Excuse a student
// @Description Overwrite a student's record with EXCUSED status
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.ExcuseRequest true "Excuse payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/attendance/excuse [post]
func (h *AttendanceHandler) Excuse(c *gin.Context) {
	var req service.ExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SessionID = c.Param("id")
	claims := claimsFromContext(c)

	record, err := h.service.Excuse(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/attendance-engine/internal/service"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
	"github.com/campusops/attendance-engine/pkg/response"
)

// BiometricHandler exposes the device scan ingestion endpoints.
type BiometricHandler struct {
	service *service.ReconcileService
}

// NewBiometricHandler constructs a biometric handler.
func NewBiometricHandler(svc *service.ReconcileService) *BiometricHandler {
	return &BiometricHandler{service: svc}
}

// Sync godoc
// @Summary Ingest a batch of biometric scans
// @Description Accept raw device scans; redelivered scans are deduplicated
// @Tags Biometric
// @Accept json
// @Produce json
// @Param payload body service.IngestRequest true "Scan batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /biometric/sync [post]
func (h *BiometricHandler) Sync(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Process godoc
// @Summary Run one reconciliation pass
// @Description Match pending scans against active sessions immediately
// @Tags Biometric
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /biometric/process [post]
func (h *BiometricHandler) Process(c *gin.Context) {
	result, err := h.service.ProcessPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/scan-service/internal/api/dto"
	"github.com/cuongbtq/scan-service/internal/domain"
)

// Health handles GET /health
func (h *ClientHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Backend is running",
	})
}

// TestConnection handles GET /test-connection
func (h *ClientHandler) TestConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Backend connection successful",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// QueueStatus handles GET /queue-status
func (h *ClientHandler) QueueStatus(c *gin.Context) {
	processing := h.worker.IsProcessing()
	status := "idle"
	if processing {
		status = "processing"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"queue_size":      h.worker.QueueSize(),
		"is_processing":   processing,
		"status":          status,
		"retry_scheduled": h.worker.RetryScheduled(),
	})
}

// SubmitClient handles POST /submit-client
// Validates the registration, downloads the audio and queues the job
func (h *ClientHandler) SubmitClient(c *gin.Context) {
	var req dto.SubmitClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			h.respondError(c, &domain.ValidationError{Fields: fields})
			return
		}

		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	receipt, err := h.gateway.Submit(c.Request.Context(), req.ToSubmission())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Your registration has been received and queued for processing",
		"data": dto.SubmitClientData{
			JobID:         receipt.JobID,
			ClientName:    receipt.ClientName,
			Email:         receipt.Email,
			QueuePosition: receipt.QueuePosition,
			Status:        receipt.Status,
		},
	})
}

func (h *ClientHandler) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   validationErr.Error(),
		})
		return
	}

	if errors.Is(err, domain.ErrQueueClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Service is shutting down",
		})
		return
	}

	h.logger.Error("Failed to submit client", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

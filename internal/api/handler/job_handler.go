package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/scan-service/internal/api/dto"
	"github.com/cuongbtq/scan-service/internal/domain"
)

const maxListLimit = 200

// ListJobs handles GET /jobs
// Lists recorded attempt outcomes, optionally filtered by status
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid query parameters",
		})
		return
	}

	var status domain.AttemptStatus
	if req.Status != "" {
		parsed, ok := domain.ParseStatus(req.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid status: " + req.Status,
			})
			return
		}
		status = parsed
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	recs, err := h.outcomes.List(c.Request.Context(), status, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list jobs",
		})
		return
	}

	jobs := make([]dto.JobDTO, 0, len(recs))
	for _, rec := range recs {
		jobs = append(jobs, dto.NewJobDTO(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(jobs),
		"jobs":    jobs,
	})
}

// Redeliver handles POST /jobs/:job_id/redeliver
// Resends the retained report of a parked job
func (h *JobHandler) Redeliver(c *gin.Context) {
	jobID := c.Param("job_id")

	rec, err := h.recovery.Redeliver(c.Request.Context(), jobID)
	if err != nil {
		var deliveryErr *domain.DeliveryError

		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Job not found",
			})
		case errors.Is(err, domain.ErrNotParked):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		case errors.As(err, &deliveryErr):
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		default:
			h.logger.Error("Failed to redeliver job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Failed to redeliver job",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewJobDTO(rec),
	})
}

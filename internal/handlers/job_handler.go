package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobSvc,
	}
}

// Status reports the background worker counters
// @Summary Get background job status
// @Description Active, completed and failed jobs, queue length and the last failure (Admin only)
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} jobs.WorkerStats
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.GetStatus())
}

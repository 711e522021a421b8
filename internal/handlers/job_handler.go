package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/tesoreria-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobSvc,
	}
}

// Status returns the current worker status
// @Summary Get background job status
// @Description Statistics about ledger snapshots, archives and event publishing (active, finished, failed, queue length)
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.GetStatus())
}

// Archive queues an archive of today's ledger summary
// @Summary Archive ledger summary
// @Description Queue a spreadsheet of the current ledger into report storage
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 202 {object} map[string]string
// @Router /jobs/archive [post]
func (h *JobHandler) Archive(c *gin.Context) {
	h.jobService.QueueArchive()
	c.JSON(http.StatusAccepted, gin.H{"message": "Archivo de reporte en cola"})
}

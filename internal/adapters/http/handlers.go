package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foreman/internal/app"
)

const apiPrefix = "/api/v1"

func serviceLocation(id string) string { return apiPrefix + "/services/" + id }

func jobLocation(id string) string { return apiPrefix + "/jobs/" + id }

func jobSetLocation(id string) string { return apiPrefix + "/job_sets/" + id }

type ServiceHandler struct {
	dispatch app.DispatchService
	now      app.Clock
	logger   *slog.Logger
}

func NewServiceHandler(dispatch app.DispatchService, now app.Clock, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{dispatch: dispatch, now: now, logger: logger}
}

func (h *ServiceHandler) ListServices(c *gin.Context) {
	services, err := h.dispatch.ListServices(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	now := h.now()
	out := make([]ServiceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, NewServiceResponse(s, now))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *ServiceHandler) RegisterService(c *gin.Context) {
	var req RegisterServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	service, err := h.dispatch.RegisterService(c, req.ToDomain())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", serviceLocation(service.ID))
	c.JSON(http.StatusCreated, gin.H{"data": NewServiceResponse(service, h.now())})
}

func (h *ServiceHandler) GetService(c *gin.Context) {
	service, err := h.dispatch.GetService(c, c.Param("service_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewServiceResponse(service, h.now())})
}

func (h *ServiceHandler) Heartbeat(c *gin.Context) {
	availability, err := h.dispatch.Heartbeat(c, c.Param("service_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewAvailabilityResponse(availability)})
}

func (h *ServiceHandler) DeleteService(c *gin.Context) {
	id := c.Param("service_id")
	if err := h.dispatch.DeleteService(c, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "service deleted", "service_id": id}})
}

type JobHandler struct {
	dispatch app.DispatchService
	logger   *slog.Logger
}

func NewJobHandler(dispatch app.DispatchService, logger *slog.Logger) *JobHandler {
	return &JobHandler{dispatch: dispatch, logger: logger}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var q listJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	jobs, err := h.dispatch.ListJobs(c, c.Param("service_id"), q.Limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	service, err := h.dispatch.GetService(c, c.Param("service_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  NewJobResponses(jobs),
		"meta":  JobListMeta{NewJobSchema: NewJobSchema(service.RegistrationSchema)},
		"links": Links{Self: serviceLocation(service.ID) + "/jobs"},
	})
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	job, err := h.dispatch.SubmitJob(c, c.Param("service_id"), req.Parameters, req.JobSetID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", jobLocation(job.ID))
	c.JSON(http.StatusCreated, gin.H{"data": NewJobResponse(job)})
}

// QueueHead shows the job a worker would receive next without claiming it.
func (h *JobHandler) QueueHead(c *gin.Context) {
	job, err := h.dispatch.QueueHead(c, c.Param("service_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewJobResponse(job)})
}

func (h *JobHandler) ClaimNext(c *gin.Context) {
	job, err := h.dispatch.ClaimNext(c, c.Param("service_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewJobResponse(job)})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.dispatch.GetJob(c, c.Param("job_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewJobResponse(job)})
}

func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	job, err := h.dispatch.UpdateJob(c, c.Param("job_id"), req.Status, req.Results)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewJobResponse(job)})
}

// NextJob redirects to the job submitted right after this one in its scope.
func (h *JobHandler) NextJob(c *gin.Context) {
	next, err := h.dispatch.NextInSequence(c, c.Param("job_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if next == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusFound, jobLocation(next.ID))
}

type JobSetHandler struct {
	dispatch app.DispatchService
	logger   *slog.Logger
}

func NewJobSetHandler(dispatch app.DispatchService, logger *slog.Logger) *JobSetHandler {
	return &JobSetHandler{dispatch: dispatch, logger: logger}
}

func (h *JobSetHandler) CreateJobSet(c *gin.Context) {
	var req CreateJobSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	set, err := h.dispatch.CreateJobSet(c, req.Description)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", jobSetLocation(set.ID))
	c.JSON(http.StatusCreated, gin.H{"data": NewJobSetResponse(set)})
}

func (h *JobSetHandler) GetJobSet(c *gin.Context) {
	set, err := h.dispatch.GetJobSet(c, c.Param("job_set_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": NewJobSetResponse(set)})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"audio-isolator/dto"
	"audio-isolator/service"
)

const userCookie = "user_id"

type JobHandler struct {
	jobs    service.JobService
	queries service.QueryService
}

func NewJobHandler(jobs service.JobService, queries service.QueryService) *JobHandler {
	return &JobHandler{jobs: jobs, queries: queries}
}

func (h *JobHandler) Register(r gin.IRouter) {
	r.POST("/upload", h.Upload)
	r.GET("/status/upload/:id", h.UploadStatus)
	r.POST("/process", h.Process)
	r.GET("/status/output/:id", h.OutputStatus)
	r.GET("/library", h.Library)
}

// userID reads the caller from the user_id cookie, falling back to X-User-ID.
func userID(c *gin.Context) string {
	if v, err := c.Cookie(userCookie); err == nil && v != "" {
		return v
	}
	return c.GetHeader("X-User-ID")
}

func (h *JobHandler) Upload(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id cookie required"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	uploadID, err := h.jobs.SubmitIngest(c.Request.Context(), user, header.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UploadResponse{UploadID: uploadID})
}

func (h *JobHandler) UploadStatus(c *gin.Context) {
	status, found, err := h.queries.IngestStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, dto.NotFound{Status: "not_found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *JobHandler) Process(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id cookie required"})
		return
	}

	var req dto.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputID, err := h.jobs.SubmitTransform(c.Request.Context(), user, req.UploadID, req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ProcessResponse{OutputID: outputID})
}

func (h *JobHandler) OutputStatus(c *gin.Context) {
	status, found, err := h.queries.TransformStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, dto.NotFound{Status: "not_found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *JobHandler) Library(c *gin.Context) {
	library, err := h.queries.Library(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, library)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPrecondition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

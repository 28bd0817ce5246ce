// Package httpapi exposes the transcription service over HTTP. Two upload
// routes accept media (a generic file upload and a browser recording blob),
// plus health and model inspection endpoints. Responses use a flat envelope:
// {"success": true, "transcription": ...} or {"success": false, "error": ...}.
package httpapi

import (
	"context"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/speechd/internal/apperrors"
	"github.com/skillsenselab/speechd/internal/engine"
	"github.com/skillsenselab/speechd/internal/logger"
	"github.com/skillsenselab/speechd/internal/orchestrator"
	"github.com/skillsenselab/speechd/internal/tempstore"
	"github.com/skillsenselab/speechd/internal/validation"
)

// Upload sources, recorded on each job for logging and metrics.
const (
	sourceUpload     = "upload"
	sourceMicrophone = "microphone"
)

// Submitter runs transcription jobs. Satisfied by *orchestrator.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*orchestrator.Result, error)
	Stats() orchestrator.Stats
}

// ModelInfo reports engine state. Satisfied by *engine.Manager.
type ModelInfo interface {
	Handle() *engine.Handle
	Ready(ctx context.Context) bool
	AvailableVariants() []string
}

// API holds the route handlers and their dependencies.
type API struct {
	submitter  Submitter
	model      ModelInfo
	store      *tempstore.Store
	maxPayload int64
	log        *logger.Logger
}

// New creates the API. maxPayload mirrors the orchestrator's admission limit
// so oversize uploads are rejected before they are staged to disk.
func New(submitter Submitter, model ModelInfo, store *tempstore.Store, maxPayload int64, log *logger.Logger) *API {
	return &API{
		submitter:  submitter,
		model:      model,
		store:      store,
		maxPayload: maxPayload,
		log:        log.WithComponent("httpapi"),
	}
}

// Register mounts the API routes on the given engine.
func (a *API) Register(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/transcribe", a.transcribe)
	api.POST("/transcribe-blob", a.transcribeBlob)
	api.GET("/health", a.health)
	api.GET("/models", a.models)
}

// transcribe handles generic file uploads (form field "file").
func (a *API) transcribe(c *gin.Context) {
	a.handleUpload(c, "file", sourceUpload)
}

// transcribeBlob handles browser recording blobs (form field "audio").
func (a *API) transcribeBlob(c *gin.Context) {
	a.handleUpload(c, "audio", sourceMicrophone)
}

// uploadOptions are the optional form fields accompanying an upload.
type uploadOptions struct {
	Language string `json:"language" validate:"omitempty,bcp47_language_tag,max=16"`
}

func (a *API) handleUpload(c *gin.Context, field, source string) {
	// Reject on the declared request size before reading the body.
	if cl := c.Request.ContentLength; cl > 0 && cl > a.maxPayload {
		respondError(c, apperrors.PayloadTooLarge(cl, a.maxPayload))
		return
	}

	opts := uploadOptions{Language: c.PostForm("language")}
	if err := validation.Validate(opts); err != nil {
		respondError(c, err)
		return
	}

	fileHeader, err := c.FormFile(field)
	if err != nil {
		respondError(c, apperrors.InvalidInput("missing multipart field "+field))
		return
	}
	if fileHeader.Size == 0 {
		respondError(c, apperrors.CorruptMedia("uploaded file is empty"))
		return
	}
	if fileHeader.Size > a.maxPayload {
		respondError(c, apperrors.PayloadTooLarge(fileHeader.Size, a.maxPayload))
		return
	}

	staged, err := a.stage(fileHeader)
	if err != nil {
		respondError(c, apperrors.Internal(err))
		return
	}
	defer func() {
		if relErr := staged.Release(); relErr != nil {
			a.log.Warn("staged upload release failed", logger.ErrorFields("release", relErr))
		}
	}()

	result, err := a.submitter.Submit(c.Request.Context(), orchestrator.SubmitRequest{
		MediaPath:    staged.Path(),
		DeclaredSize: fileHeader.Size,
		Source:       source,
		Language:     opts.Language,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"transcription": result.Text,
		"details": gin.H{
			"job_id":     result.JobID,
			"language":   result.Language,
			"duration":   result.Duration,
			"elapsed_ms": result.Elapsed.Milliseconds(),
		},
	})
}

// stage copies the upload to the temp store, preserving the extension as a
// hint for logs; content sniffing decides the real format downstream.
func (a *API) stage(fh *multipart.FileHeader) (*tempstore.Resource, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext == "" {
		ext = ".bin"
	}
	return a.store.Save(src, ext)
}

// health reports whether the service can take transcription work.
func (a *API) health(c *gin.Context) {
	handle := a.model.Handle()
	ready := a.model.Ready(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ready {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":       status,
		"model_loaded": handle != nil,
		"queue":        a.submitter.Stats(),
	}
	if handle != nil {
		body["model"] = handle.Variant
		body["device"] = handle.Device
	}
	c.JSON(httpStatus, body)
}

// models reports the active model binding and the variants the service accepts.
func (a *API) models(c *gin.Context) {
	body := gin.H{
		"success":   true,
		"available": a.model.AvailableVariants(),
	}
	if handle := a.model.Handle(); handle != nil {
		body["active"] = gin.H{
			"model":        handle.Variant,
			"device":       handle.Device,
			"compute_type": handle.ComputeType,
		}
	}
	c.JSON(http.StatusOK, body)
}

// respondError renders any error in the failure envelope. AppErrors carry
// their own status and taxonomy code; anything else becomes a 500.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	details := gin.H{
		"code":      appErr.Code,
		"retryable": appErr.Retryable,
	}
	for k, v := range appErr.Details {
		details[k] = v
	}
	c.JSON(appErr.HTTPStatus, gin.H{
		"success": false,
		"error":   appErr.Message,
		"details": details,
	})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"repairscribe/internal/apperr"
	"repairscribe/internal/auth"
	"repairscribe/internal/logging"
	"repairscribe/internal/models"
	"repairscribe/internal/ratelimit"
	"repairscribe/internal/service/extraction"
	"repairscribe/internal/service/transcription"
	"repairscribe/internal/validate"
)

type Transcriber interface {
	CheckUpload(mimeType string, size int64) error
	Transcribe(ctx context.Context, req *models.TranscriptionRequest) (*models.TranscriptionResult, error)
	ProviderName() string
}

type Extractor interface {
	Extract(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error)
}

type BatchExtractor interface {
	ExtractBatch(ctx context.Context, owner string, items []models.BatchItem, typ models.ExtractionType, custom *models.CustomSchema) (*models.BatchResult, error)
}

// Handler wires HTTP routes to the auth, transcription and extraction
// services.
type Handler struct {
	auth        *auth.Service
	limiter     *ratelimit.Limiter
	transcriber Transcriber
	extractor   Extractor
	batch       BatchExtractor
	logger      logging.Logger
	now         func() time.Time
}

func NewHandler(authService *auth.Service, limiter *ratelimit.Limiter, transcriber Transcriber, extractor Extractor, batch BatchExtractor, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		auth:        authService,
		limiter:     limiter,
		transcriber: transcriber,
		extractor:   extractor,
		batch:       batch,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	if h.limiter != nil {
		api.Use(h.limiter.Middleware())
	}
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.GET("/extraction/schemas", h.schemas)

	authMW := h.auth.Middleware()
	api.GET("/auth/me", authMW, h.me)
	api.POST("/transcription/upload", authMW, h.upload)
	api.POST("/extraction/extract", authMW, h.extract)
	api.POST("/extraction/batch", authMW, h.extractBatch)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC().Format(time.RFC3339)})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := validate.BindJSON(c, validate.Register, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	session, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := validate.BindJSON(c, validate.Login, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) me(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		respondError(c, h.logger, auth.ErrMissingToken)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

var errNoAudio = apperr.Validation("No audio file provided", apperr.FieldError{Field: "audio", Message: "an audio file is required"})

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, transcription.ErrFileTooLarge)
			return
		}
		respondError(c, h.logger, errNoAudio)
		return
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	if err := h.transcriber.CheckUpload(mimeType, fileHeader.Size); err != nil {
		respondError(c, h.logger, err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.KindInternal, "open upload", err))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.KindInternal, "read upload", err))
		return
	}

	req := &models.TranscriptionRequest{
		Audio:    audio,
		MimeType: mimeType,
		Filename: fileHeader.Filename,
		Options: models.TranscriptionOptions{
			Model:          strings.TrimSpace(c.PostForm("model")),
			Language:       strings.TrimSpace(c.PostForm("language")),
			WantTimestamps: formBool(c.PostForm("timestamp")),
			Diarization:    formBool(c.PostForm("speakerDiarization")),
		},
	}
	start := h.now()
	result, err := h.transcriber.Transcribe(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transcription": result,
		"metadata": gin.H{
			"filename":       fileHeader.Filename,
			"size":           fileHeader.Size,
			"mimeType":       mimeType,
			"provider":       h.transcriber.ProviderName(),
			"processingTime": h.now().Sub(start).Milliseconds(),
			"timestamp":      h.now().UTC().Format(time.RFC3339),
		},
	})
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

type extractRequest struct {
	Transcription  string                `json:"transcription"`
	ExtractionType models.ExtractionType `json:"extractionType"`
	CustomSchema   *models.CustomSchema  `json:"customSchema"`
}

func (h *Handler) extract(c *gin.Context) {
	var req extractRequest
	if err := validate.BindJSON(c, validate.Extract, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	result, err := h.extractor.Extract(c.Request.Context(), &models.ExtractionRequest{
		Transcript:   req.Transcription,
		Type:         req.ExtractionType,
		CustomSchema: req.CustomSchema,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	metadata := gin.H{
		"extractionType": result.Type,
		"confidence":     result.Confidence,
		"processingTime": result.ProcessingTimeMs,
		"validation":     result.Validation,
		"timestamp":      h.now().UTC().Format(time.RFC3339),
	}
	if result.Usage != nil {
		metadata["tokensUsed"] = result.Usage
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       result.Success,
		"extractedData": result.Data,
		"metadata":      metadata,
	})
}

// itemID accepts a string or numeric id and echoes it back unchanged.
type itemID struct {
	raw json.RawMessage
	key string
}

func (id *itemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		id.raw, id.key = append(json.RawMessage(nil), b...), s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	id.raw, id.key = append(json.RawMessage(nil), b...), n.String()
	return nil
}

func (id itemID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

type batchRequest struct {
	Transcriptions []struct {
		ID   itemID `json:"id"`
		Text string `json:"text"`
	} `json:"transcriptions"`
	ExtractionType models.ExtractionType `json:"extractionType"`
	CustomSchema   *models.CustomSchema  `json:"customSchema"`
}

type batchItemResponse struct {
	ID            itemID         `json:"id"`
	Success       bool           `json:"success"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func (h *Handler) extractBatch(c *gin.Context) {
	var req batchRequest
	if err := validate.BindJSON(c, validate.Batch, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		respondError(c, h.logger, auth.ErrMissingToken)
		return
	}

	items := make([]models.BatchItem, len(req.Transcriptions))
	for i, t := range req.Transcriptions {
		items[i] = models.BatchItem{ID: t.ID.key, Text: t.Text}
	}
	result, err := h.batch.ExtractBatch(c.Request.Context(), identity.UserID, items, req.ExtractionType, req.CustomSchema)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]batchItemResponse, len(result.Items))
	for i, item := range result.Items {
		resp := batchItemResponse{ID: req.Transcriptions[i].ID}
		if item.Result != nil {
			conf := item.Result.Confidence
			resp.Success = true
			resp.ExtractedData = item.Result.Data
			resp.Confidence = &conf
		} else {
			resp.Error = item.Error
		}
		out[i] = resp
	}
	succeeded, failed := result.Counts()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": out,
		"metadata": gin.H{
			"totalItems":     len(items),
			"successful":     succeeded,
			"failed":         failed,
			"extractionType": req.ExtractionType,
			"processingTime": result.ProcessingTimeMs,
		},
	})
}

func (h *Handler) schemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schemas": gin.H{
			"comprehensive": gin.H{
				"categories":  extraction.Categories,
				"totalFields": len(extraction.FieldNames()),
			},
			"extractionTypes": extraction.Types(),
			"custom": gin.H{
				"description": "Provide customSchema with a list of field names and a description of what to extract",
				"example": models.CustomSchema{
					Fields:      []string{"brake_pad_thickness", "rotor_condition", "brake_fluid_level"},
					Description: "Brake system inspection results",
				},
			},
		},
	})
}

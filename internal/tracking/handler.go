package tracking

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	httperr "github.com/beaconhq/beacon-collector/internal/core/errors"
	"github.com/beaconhq/beacon-collector/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgUnknownSite    = "Unknown or inactive site"
	msgEmptyBatch     = "Batch contains no events"
	msgPersistFailed  = "Failed to persist event"

	defaultSessionLimit = 100
	maxSessionLimit     = 1000
)

// trackingError carries the structured HTTP error shape from a helper back to
// the orchestrator. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type trackingError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *trackingError) Error() string {
	return e.message
}

// RegisterRoutes registers the tracking service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/track", s.TrackHandler)
	r.POST("/v1/track/batch", s.TrackBatchHandler)
	r.GET("/v1/sessions/:sessionId/events", s.SessionEventsHandler)
}

// TrackHandler handles HTTP POST requests for single-event collection.
func (s *Service) TrackHandler(c *gin.Context) {
	var req v1.TrackRequest
	if herr := s.parseBody(c, &req); herr != nil {
		writeError(c, herr)
		return
	}

	eventID, err := s.Track(c.Request.Context(), &req, requestMeta(c))
	if err != nil {
		writeError(c, mapPipelineError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "eventId": eventID})
}

// TrackBatchHandler handles HTTP POST requests for batch collection. The
// batch is atomic: a rejected event rejects the whole batch.
func (s *Service) TrackBatchHandler(c *gin.Context) {
	var req v1.BatchRequest
	if herr := s.parseBody(c, &req); herr != nil {
		writeError(c, herr)
		return
	}

	if len(req.Events) == 0 {
		writeError(c, &trackingError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpEmptyBatchError,
			message:    msgEmptyBatch,
		})
		return
	}

	ids, err := s.TrackBatch(c.Request.Context(), req.Events, requestMeta(c))
	if err != nil {
		writeError(c, mapPipelineError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "eventIds": ids, "count": len(ids)})
}

// SessionEventsHandler returns a session's stored events, newest first.
func (s *Service) SessionEventsHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")

	limit := queryInt(c, "limit", defaultSessionLimit)
	if limit <= 0 || limit > maxSessionLimit {
		limit = defaultSessionLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := s.SessionEvents(c.Request.Context(), sessionID, limit, offset)
	if err != nil {
		slog.Error("Failed to list session events", "session_id", sessionID, "error", err)
		writeError(c, &trackingError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to list events",
		})
		return
	}
	if events == nil {
		events = []*v1.Event{}
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "events": events, "count": len(events)})
}

// parseBody reads the size-limited request body and binds it into dst.
func (s *Service) parseBody(c *gin.Context, dst interface{}) *trackingError {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return &trackingError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &trackingError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	if err := json.Unmarshal(bodyBytes, dst); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &trackingError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return nil
}

// mapPipelineError converts a pipeline failure to the HTTP error shape. The
// unknown-site sentinel maps to 404; validation failures to 400; anything
// else is an internal persistence error.
func mapPipelineError(err error) *trackingError {
	if errors.Is(err, storage.ErrUnknownSite) {
		slog.Warn("Event for unknown site rejected", "error", err)
		return &trackingError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpUnknownSiteError,
			message:    msgUnknownSite,
		}
	}

	// Batch normalization wraps per-event validation failures; they are
	// client errors, not persistence errors.
	var verr *v1.ValidationError
	if errors.As(err, &verr) {
		return &trackingError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    err.Error(),
		}
	}

	slog.Error("Failed to persist event", "error", err)
	return &trackingError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    msgPersistFailed,
	}
}

// requestMeta extracts the caller's IP and user agent. Behind a proxy the
// first X-Forwarded-For hop is the real client.
func requestMeta(c *gin.Context) RequestMeta {
	ip := c.ClientIP()
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			ip = strings.TrimSpace(first)
		}
	}
	return RequestMeta{
		ClientIP:  ip,
		UserAgent: c.Request.UserAgent(),
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(c *gin.Context, err *trackingError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}

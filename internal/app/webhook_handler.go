package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/webhook"
	"go.uber.org/zap"
)

// GitHub delivery headers.
const (
	eventHeader    = "X-GitHub-Event"
	deliveryHeader = "X-GitHub-Delivery"
	pushEvent      = "push"
)

// GitHub caps webhook payloads at 25 MB.
const maxPayloadBytes = 25 << 20

type pushProcessor interface {
	ProcessPushEvent(ctx context.Context, payload []byte) (string, error)
}

type deliveryLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type deliveryObserver interface {
	ObserveDelivery(event string, status int)
}

// WebhookHandler accepts GitHub push deliveries and runs them through the processor.
type WebhookHandler struct {
	processor pushProcessor
	locker    deliveryLocker
	lockTTL   time.Duration
	observer  deliveryObserver
	logger    *zap.Logger
	// onOutcome receives the processing error (nil on success) of every push delivery.
	onOutcome func(error)
}

// NewWebhookHandler creates the push delivery handler. locker and observer are optional.
func NewWebhookHandler(processor pushProcessor, locker deliveryLocker, lockTTL time.Duration, observer deliveryObserver, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		processor: processor,
		locker:    locker,
		lockTTL:   lockTTL,
		observer:  observer,
		logger:    logger,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event := strings.TrimSpace(r.Header.Get(eventHeader))
	deliveryID := strings.TrimSpace(r.Header.Get(deliveryHeader))
	logger := h.logger.With(zap.String("event", event), zap.String("delivery", deliveryID))

	if !strings.EqualFold(event, pushEvent) {
		logger.Debug("ignoring non-push delivery")
		h.respond(w, event, http.StatusNoContent, "")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		logger.Warn("failed to read push payload", zap.Error(err))
		h.respondError(w, event, http.StatusBadRequest, errorResponse{Code: "invalid_payload", Message: "request body could not be read"})
		return
	}

	if deliveryID != "" && h.locker != nil {
		acquired, lockErr := h.locker.TryLock(r.Context(), deliveryID, h.lockTTL)
		if lockErr != nil {
			logger.Error("delivery lock unavailable", zap.Error(lockErr))
			h.respondError(w, event, http.StatusServiceUnavailable, errorResponse{Code: "lock_unavailable", Message: "delivery lock unavailable"})
			return
		}
		if !acquired {
			logger.Info("delivery already in flight")
			h.respondError(w, event, http.StatusConflict, errorResponse{Code: "delivery_in_progress", Message: "delivery is already being processed"})
			return
		}
		defer func() {
			if err := h.locker.Unlock(context.WithoutCancel(r.Context()), deliveryID); err != nil {
				logger.Warn("failed to release delivery lock", zap.Error(err))
			}
		}()
	}

	result, err := h.processor.ProcessPushEvent(r.Context(), payload)
	if h.onOutcome != nil {
		h.onOutcome(err)
	}
	if err != nil {
		status := http.StatusInternalServerError
		response := errorResponse{Code: string(webhook.CodeOf(err)), Message: err.Error()}
		var pipelineErr *webhook.Error
		if errors.As(err, &pipelineErr) {
			status = pipelineErr.HTTPStatus()
			response.Message = pipelineErr.Message
		}
		h.respondError(w, event, status, response)
		return
	}

	h.respond(w, event, http.StatusOK, result)
}

func (h *WebhookHandler) respond(w http.ResponseWriter, event string, status int, body string) {
	h.observe(event, status)
	if body == "" {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		return
	}
}

func (h *WebhookHandler) respondError(w http.ResponseWriter, event string, status int, response errorResponse) {
	h.observe(event, status)
	payload, err := json.Marshal(response)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:gosec // Error payload is server-generated JSON.
	if _, err := w.Write(payload); err != nil {
		return
	}
}

func (h *WebhookHandler) observe(event string, status int) {
	if h.observer != nil {
		h.observer.ObserveDelivery(event, status)
	}
}

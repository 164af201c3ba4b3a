package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/base64-type/internal/audit"
	"github.com/kenneth/base64-type/internal/b64"
	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/kenneth/base64-type/internal/crypto"
	"github.com/kenneth/base64-type/internal/metrics"
	"github.com/kenneth/base64-type/internal/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxBodyBytes = 1 << 20
	maxIDLength         = 256
)

// Handler serves the key envelope API.
type Handler struct {
	keys         crypto.KeyManager
	store        store.EnvelopeStore
	storeBackend string
	codec        codecs.Codec
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	audit        audit.Logger
	details      any
	maxBodyBytes int64
}

// Option customizes a Handler.
type Option func(*Handler)

// WithCodec sets the codec used for request and response bodies.
func WithCodec(c codecs.Codec) Option {
	return func(h *Handler) { h.codec = c }
}

// WithStoreBackend names the store backend in metrics labels.
func WithStoreBackend(name string) Option {
	return func(h *Handler) { h.storeBackend = name }
}

// WithAudit records key operations to l.
func WithAudit(l audit.Logger) Option {
	return func(h *Handler) { h.audit = l }
}

// WithHealthDetails adds static details to /health responses.
func WithHealthDetails(details any) Option {
	return func(h *Handler) { h.details = details }
}

// WithMaxBodyBytes limits request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// NewHandler creates a new API handler.
func NewHandler(keys crypto.KeyManager, st store.EnvelopeStore, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		keys:         keys,
		store:        st,
		storeBackend: "memory",
		codec:        codecs.NewJSONIter(),
		logger:       logger,
		metrics:      m,
		audit:        audit.Discard(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", metrics.HealthHandler(h.details)).Methods("GET")
	r.HandleFunc("/ready", metrics.ReadinessHandler(
		metrics.Check{Name: "key_manager", Run: h.keys.HealthCheck},
		metrics.Check{Name: "store", Run: h.store.Ping},
	)).Methods("GET")
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/datakeys", h.handleCreateDataKey).Methods("POST")
	v1.HandleFunc("/datakeys/{id}/decrypt", h.handleDecryptDataKey).Methods("POST")
	v1.HandleFunc("/envelopes/{id}", h.handleGetEnvelope).Methods("GET")
	v1.HandleFunc("/envelopes/{id}", h.handlePutEnvelope).Methods("PUT")
	v1.HandleFunc("/envelopes/{id}", h.handleDeleteEnvelope).Methods("DELETE")
	v1.HandleFunc("/convert", h.handleConvert).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

type createDataKeyRequest struct {
	ID string `json:"id"`
}

type dataKeyResponse struct {
	ID        string              `json:"id"`
	Plaintext b64.Base64          `json:"plaintext"`
	Envelope  *crypto.KeyEnvelope `json:"envelope,omitempty"`
}

// envelopeRequest carries the ciphertext as a plain string so that decode
// failures can be reported per field.
type envelopeRequest struct {
	KeyID      string `json:"key_id"`
	KeyVersion int    `json:"key_version"`
	Provider   string `json:"provider"`
	Ciphertext string `json:"ciphertext"`
}

type convertRequest struct {
	Standard *string `json:"standard"`
	URLSafe  *string `json:"url_safe"`
}

type convertResponse struct {
	Standard b64.Base64    `json:"standard"`
	URLSafe  b64.URLBase64 `json:"url_safe"`
	Length   int           `json:"length"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleCreateDataKey generates a data key, wraps it and stores the envelope.
func (h *Handler) handleCreateDataKey(w http.ResponseWriter, r *http.Request) {
	var req createDataKeyRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if err := validateID(req.ID); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	start := time.Now()
	dk, err := crypto.NewDataKey(ctx, h.keys, keyMetadata(req.ID))
	h.metrics.RecordKeyOperation(ctx, "wrap", h.keys.Provider(), time.Since(start), err)
	if err != nil {
		h.recordAudit(r, audit.OpCreateDataKey, req.ID, nil, start, err)
		h.logger.WithError(err).WithField("id", req.ID).Error("Failed to create data key")
		h.writeError(w, http.StatusInternalServerError, "failed to create data key")
		return
	}

	ok := h.putEnvelope(w, r, req.ID, dk.Envelope)
	h.recordAudit(r, audit.OpCreateDataKey, req.ID, dk.Envelope, start, errIf(!ok, "store failed"))
	if !ok {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"id":          req.ID,
		"key_version": dk.Envelope.KeyVersion,
	}).Debug("Data key created")

	h.writeJSON(w, http.StatusCreated, dataKeyResponse{
		ID:        req.ID,
		Plaintext: dk.Plaintext,
		Envelope:  dk.Envelope,
	})
}

// handleDecryptDataKey unwraps the data key stored under id.
func (h *Handler) handleDecryptDataKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	env, ok := h.getEnvelope(w, r, id)
	if !ok {
		return
	}

	ctx := r.Context()
	start := time.Now()
	key, err := crypto.OpenDataKey(ctx, h.keys, env, keyMetadata(id))
	h.metrics.RecordKeyOperation(ctx, "unwrap", h.keys.Provider(), time.Since(start), err)
	h.recordAudit(r, audit.OpDecryptDataKey, id, env, start, err)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"id":          id,
			"key_version": env.KeyVersion,
		}).Error("Failed to unwrap data key")
		h.writeError(w, http.StatusInternalServerError, "failed to unwrap data key")
		return
	}

	h.writeJSON(w, http.StatusOK, dataKeyResponse{
		ID:        id,
		Plaintext: b64.FromBytes(key[:]),
	})
}

func (h *Handler) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	env, ok := h.getEnvelope(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, env)
}

// handlePutEnvelope stores a caller-supplied envelope. The ciphertext may be
// padded or unpadded standard base64.
func (h *Handler) handlePutEnvelope(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateID(id); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req envelopeRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	ciphertext, ok := h.decodeField(w, "ciphertext", b64.Standard, req.Ciphertext)
	if !ok {
		return
	}

	env := &crypto.KeyEnvelope{
		KeyID:      req.KeyID,
		KeyVersion: req.KeyVersion,
		Provider:   req.Provider,
		Ciphertext: b64.Base64(ciphertext),
	}
	if err := env.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	ok = h.putEnvelope(w, r, id, env)
	h.recordAudit(r, audit.OpPutEnvelope, id, env, start, errIf(!ok, "store failed"))
	if !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateID(id); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	start := time.Now()
	err := h.store.Delete(ctx, id)
	h.metrics.RecordStoreOperation(ctx, "delete", h.storeBackend, time.Since(start))
	h.recordAudit(r, audit.OpDeleteEnvelope, id, nil, start, err)
	if err != nil {
		h.metrics.RecordStoreError(ctx, "delete", h.storeBackend, "internal_error")
		h.logger.WithError(err).WithField("id", id).Error("Failed to delete envelope")
		h.writeError(w, http.StatusInternalServerError, "failed to delete envelope")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConvert re-encodes a value from one alphabet into both.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if (req.Standard == nil) == (req.URLSafe == nil) {
		h.writeError(w, http.StatusBadRequest, "exactly one of standard or url_safe is required")
		return
	}

	var raw []byte
	var ok bool
	if req.Standard != nil {
		raw, ok = h.decodeField(w, "standard", b64.Standard, *req.Standard)
	} else {
		raw, ok = h.decodeField(w, "url_safe", b64.URLSafe, *req.URLSafe)
	}
	if !ok {
		return
	}

	value := b64.Base64(raw)
	h.writeJSON(w, http.StatusOK, convertResponse{
		Standard: value,
		URLSafe:  value.URLSafe(),
		Length:   value.Len(),
	})
}

func (h *Handler) getEnvelope(w http.ResponseWriter, r *http.Request, id string) (*crypto.KeyEnvelope, bool) {
	if err := validateID(id); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	ctx := r.Context()
	start := time.Now()
	env, err := h.store.Get(ctx, id)
	h.metrics.RecordStoreOperation(ctx, "get", h.storeBackend, time.Since(start))

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.metrics.RecordStoreError(ctx, "get", h.storeBackend, "not_found")
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no envelope stored for %q", id))
		return nil, false
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	case err != nil:
		h.metrics.RecordStoreError(ctx, "get", h.storeBackend, "internal_error")
		h.logger.WithError(err).WithField("id", id).Error("Failed to load envelope")
		h.writeError(w, http.StatusInternalServerError, "failed to load envelope")
		return nil, false
	}
	return env, true
}

func (h *Handler) putEnvelope(w http.ResponseWriter, r *http.Request, id string, env *crypto.KeyEnvelope) bool {
	ctx := r.Context()
	start := time.Now()
	err := h.store.Put(ctx, id, env)
	h.metrics.RecordStoreOperation(ctx, "put", h.storeBackend, time.Since(start))
	if err != nil {
		h.metrics.RecordStoreError(ctx, "put", h.storeBackend, "internal_error")
		h.logger.WithError(err).WithField("id", id).Error("Failed to store envelope")
		h.writeError(w, http.StatusInternalServerError, "failed to store envelope")
		return false
	}
	return true
}

// decodeField decodes a base64 request field, answering 400 and counting the
// failure when it is malformed.
func (h *Handler) decodeField(w http.ResponseWriter, field string, alphabet b64.Alphabet, value string) ([]byte, bool) {
	var raw []byte
	var err error
	if alphabet == b64.URLSafe {
		raw, err = b64.DecodeURLBase64(value)
	} else {
		raw, err = b64.DecodeBase64(value)
	}
	if err != nil {
		h.metrics.RecordDecodeFailure(alphabet.String(), field)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", field, err))
		return nil, false
	}
	return raw, true
}

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := h.codec.Unmarshal(body, v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := h.codec.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		status = http.StatusInternalServerError
		data = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// recordAudit logs one audit event for a key operation on id.
func (h *Handler) recordAudit(r *http.Request, op audit.Operation, id string, env *crypto.KeyEnvelope, start time.Time, err error) {
	event := &audit.Event{
		Timestamp:  start.UTC(),
		Operation:  op,
		ID:         id,
		ClientIP:   r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Metadata:   keyMetadata(id),
	}
	if env != nil {
		event.KeyID = env.KeyID
		event.KeyVersion = env.KeyVersion
		event.Provider = env.Provider
	}
	if err != nil {
		event.Error = err.Error()
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
	}
	h.audit.Log(event)
}

func errIf(cond bool, msg string) error {
	if cond {
		return errors.New(msg)
	}
	return nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return store.ErrInvalidID
	case len(id) > maxIDLength:
		return fmt.Errorf("id longer than %d bytes", maxIDLength)
	case strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("id must not contain slashes")
	}
	return nil
}

// keyMetadata binds a wrapped key to the id it is stored under.
func keyMetadata(id string) map[string]string {
	return map[string]string{"id": id}
}

// Package handler provides the HTTP handlers for the record store.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/stevemurr/recordstore/logging"
	"github.com/stevemurr/recordstore/schema"
	"github.com/stevemurr/recordstore/store"
)

// maxBodyBytes bounds a single record payload.
const maxBodyBytes = 1 << 20

// RecordStore is the subset of *store.Store the handlers use.
type RecordStore interface {
	Put(ctx context.Context, collection string, record store.Document) (string, error)
	GetOne(ctx context.Context, collection, id string) (store.Document, string, error)
	ListAll(ctx context.Context, collection string) ([]store.Document, error)
	SeedFromSource(ctx context.Context, src store.Source) (store.SeedResult, error)
}

// Options configures a Handler.
type Options struct {
	// SeedPath is the seed document read by POST /seed.
	SeedPath       string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store    RecordStore
	seedPath string
	logger   *zap.Logger
	mux      *http.ServeMux
	chain    http.Handler
}

// New creates a Handler and wires up all routes.
func New(s RecordStore, opts Options) *Handler {
	h := &Handler{
		store:    s,
		seedPath: opts.SeedPath,
		logger:   opts.Logger,
		mux:      http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h.routes()
	h.chain = requestID(h.logger, accessLog(h.logger, corsMiddleware(h.mux, origins)))
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	// Registry introspection
	h.mux.HandleFunc("GET /schemas", h.listSchemas)
	h.mux.HandleFunc("GET /schemas/{collection}", h.getSchema)

	// Records
	h.mux.HandleFunc("POST /seed", h.seed)
	h.mux.HandleFunc("POST /{collection}", h.putRecord)
	h.mux.HandleFunc("GET /{collection}", h.listRecords)
	h.mux.HandleFunc("GET /{collection}/{id}", h.getRecord)
}

// ---------- helpers ----------

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type savedResponse struct {
	Key   string `json:"key"`
	Saved bool   `json:"saved"`
}

type recordResponse struct {
	Key  string         `json:"key"`
	Data store.Document `json:"data"`
}

type listResponse struct {
	Count int              `json:"count"`
	Data  []store.Document `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// writeStoreError translates a store error into a response. Storage failures
// are logged; client errors are not.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	var uc *store.UnknownCollectionError
	var ve *store.ValidationError
	switch {
	case errors.As(err, &uc):
		writeError(w, http.StatusBadRequest, "invalid collection")
	case errors.As(err, &ve):
		if len(ve.Missing) > 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing fields", Missing: ve.Missing})
			return
		}
		writeError(w, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	default:
		logging.LoggerFromContext(r.Context(), h.logger).Error(prefix, zap.Error(err))
		writeError(w, http.StatusInternalServerError, prefix+": "+err.Error())
	}
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "recordstore",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- registry endpoints ----------

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[string]any, len(schema.Names()))
	for _, name := range schema.Names() {
		out[name], _ = schema.Describe(name)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	d, ok := schema.Describe(r.PathValue("collection"))
	if !ok {
		writeError(w, http.StatusNotFound, "invalid collection")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ---------- records ----------

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.SeedFromSource(r.Context(), store.FileSource(h.seedPath))
	if err != nil {
		h.writeStoreError(w, r, "seed failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) putRecord(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if !schema.IsValidCollection(collection) {
		writeError(w, http.StatusBadRequest, "invalid collection")
		return
	}

	var payload store.Document
	if err := readJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	key, err := h.store.Put(r.Context(), collection, payload)
	if err != nil {
		h.writeStoreError(w, r, "save failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, savedResponse{Key: key, Saved: true})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	doc, key, err := h.store.GetOne(r.Context(), r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, "get failed", err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Key: key, Data: doc})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListAll(r.Context(), r.PathValue("collection"))
	if err != nil {
		h.writeStoreError(w, r, "list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(docs), Data: docs})
}

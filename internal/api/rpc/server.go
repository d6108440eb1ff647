// Package rpc exposes the clone engine's four operations and backup
// management over an HTTP JSON API.
//
// Every request carries the acting user in the X-Actor-ID header;
// mutating routes pass the capability checker before reaching the
// engine. In production mode all routes require a Bearer token.
package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/scrypster/fieldclone/internal/config"
	"github.com/scrypster/fieldclone/internal/engine"
	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// limiterCacheSize bounds the number of per-actor rate limiters held
// in memory; evicted actors simply get a fresh limiter next request.
const limiterCacheSize = 1024

// BackupAPI is the slice of the backup service the API uses.
type BackupAPI interface {
	List(ctx context.Context, targetEntityID int64) ([]*types.BackupRecord, error)
	Restore(ctx context.Context, backupID string, deleteAfter bool) (*types.RestoreResult, error)
	Delete(ctx context.Context, backupID string) (bool, error)
	SweepRetention(ctx context.Context) (int, error)
}

// Server serves the clone API.
type Server struct {
	orchestrator *engine.CloneOrchestrator
	entities     storage.EntityStore
	backups      BackupAPI
	caps         engine.CapabilityChecker
	cfg          *config.Config

	limiters *lru.Cache[int64, *rate.Limiter]
}

// NewServer creates an API server over the given collaborators. The
// backups parameter may be nil when backups are disabled; the backup
// routes then return 404.
func NewServer(orchestrator *engine.CloneOrchestrator, entities storage.EntityStore, backups BackupAPI, caps engine.CapabilityChecker, cfg *config.Config) (*Server, error) {
	if orchestrator == nil || entities == nil || cfg == nil {
		return nil, errors.New("rpc: orchestrator, entity store, and config are required")
	}
	if caps == nil {
		caps = engine.AllowAll{}
	}

	limiters, err := lru.New[int64, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}

	return &Server{
		orchestrator: orchestrator,
		entities:     entities,
		backups:      backups,
		caps:         caps,
		cfg:          cfg,
		limiters:     limiters,
	}, nil
}

// Routes returns the API handler with auth and rate-limit middleware
// applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/clone/sources", s.handleListSources)
	mux.HandleFunc("GET /api/clone/preview", s.handlePreview)
	mux.HandleFunc("GET /api/clone/statistics", s.handleStatistics)
	mux.HandleFunc("POST /api/clone/validate", s.handleValidate)
	mux.HandleFunc("POST /api/clone/execute", s.handleExecute)

	mux.HandleFunc("GET /api/backups", s.handleListBackups)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.handleRestoreBackup)
	mux.HandleFunc("DELETE /api/backups/{id}", s.handleDeleteBackup)
	mux.HandleFunc("POST /api/backups/sweep", s.handleSweep)

	return s.requireAuth(s.rateLimit(mux))
}

// requireAuth enforces Bearer token authentication in production mode.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Security.Mode == "development" {
			next.ServeHTTP(w, r)
			return
		}

		expected := s.cfg.Security.APIToken
		if expected == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no API token configured")
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces a per-actor request rate using one limiter per
// actor ID, held in an LRU cache.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := actorFrom(r)

		limiter, ok := s.limiters.Get(actorID)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(s.cfg.Limits.RequestsPerSec), s.cfg.Limits.Burst)
			s.limiters.Add(actorID, limiter)
		}

		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleListSources returns same-schema entities the actor may edit.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	schemaID := r.URL.Query().Get("schema_id")
	if schemaID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "schema_id is required")
		return
	}
	excludeID := parseID(r.URL.Query().Get("exclude"))
	actorID := actorFrom(r)

	entities, err := s.entities.ListBySchema(r.Context(), schemaID, excludeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	resp := ListSourcesResponse{Candidates: []SourceCandidate{}}
	for _, e := range entities {
		allowed, err := s.caps.CanEdit(r.Context(), actorID, e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		if !allowed {
			continue
		}

		stats, err := s.orchestrator.Walker().Statistics(r.Context(), e.ID)
		if err != nil {
			log.Printf("rpc: failed to compute stats for entity %d: %v", e.ID, err)
		}

		resp.Candidates = append(resp.Candidates, SourceCandidate{
			EntityID: e.ID,
			Title:    e.Title,
			Stats:    stats,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handlePreview combines both entities' reports with per-field
// has-value/will-overwrite flags.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sourceID := parseID(r.URL.Query().Get("source"))
	targetID := parseID(r.URL.Query().Get("target"))
	if sourceID <= 0 || targetID <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "source and target are required")
		return
	}

	walker := s.orchestrator.Walker()

	sourceReport, err := walker.AvailableFields(r.Context(), sourceID)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	targetReport, err := walker.AvailableFields(r.Context(), targetID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	resp := PreviewResponse{Warnings: sourceReport.Warnings}
	for _, group := range sourceReport.Groups {
		preview := GroupPreview{Key: group.Key, Title: group.Title}
		for _, fr := range group.Fields {
			if !fr.Cloneable {
				continue
			}
			willOverwrite := false
			if tf, ok := targetReport.Fields[fr.Descriptor.Key]; ok && tf.HasValue {
				willOverwrite = true
			}
			preview.Fields = append(preview.Fields, FieldPreview{
				Key:           fr.Descriptor.Key,
				Label:         fr.Descriptor.Label,
				Type:          fr.Descriptor.Type,
				HasValue:      fr.HasValue,
				WillOverwrite: willOverwrite,
				Stats:         fr.Stats,
			})
		}
		if len(preview.Fields) > 0 {
			resp.Groups = append(resp.Groups, preview)
		}
	}

	if resp.SourceStats, err = walker.Statistics(r.Context(), sourceID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if resp.TargetStats, err = walker.Statistics(r.Context(), targetID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatistics returns the field statistics for one entity.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	entityID := parseID(r.URL.Query().Get("entity"))
	if entityID <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "entity is required")
		return
	}

	stats, err := s.orchestrator.Walker().Statistics(r.Context(), entityID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleValidate runs conflict analysis without mutating anything.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	analysis, err := s.orchestrator.ValidateSelection(r.Context(), req.SourceEntityID, req.TargetEntityID, req.FieldKeys)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// handleExecute runs the clone. The outcome always comes back with
// per-field accounting, even on request-level failure.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	outcome, err := s.orchestrator.CloneFields(r.Context(), &types.CloneRequest{
		SourceEntityID: req.SourceEntityID,
		TargetEntityID: req.TargetEntityID,
		FieldKeys:      req.FieldKeys,
		Options:        req.Options,
		ActorID:        actorFrom(r),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleListBackups lists backups for a target entity, newest first.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "backups are disabled")
		return
	}

	targetID := parseID(r.URL.Query().Get("target"))
	if targetID <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "target is required")
		return
	}

	records, err := s.backups.List(r.Context(), targetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if records == nil {
		records = []*types.BackupRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// handleRestoreBackup replays a backup onto its target entity.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "backups are disabled")
		return
	}

	var req RestoreRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return
		}
	}

	result, err := s.backups.Restore(r.Context(), r.PathValue("id"), req.DeleteAfter)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteBackup removes a backup record.
func (s *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "backups are disabled")
		return
	}

	deleted, err := s.backups.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "backup not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleSweep runs the retention sweep on demand.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "backups are disabled")
		return
	}

	deleted, err := s.backups.SweepRetention(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// actorFrom reads the acting user from the X-Actor-ID header. Zero
// means anonymous; the capability checker decides what that may do.
func actorFrom(r *http.Request) int64 {
	return parseID(r.Header.Get("X-Actor-ID"))
}

// parseID parses a decimal ID, returning 0 for anything unusable.
func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// writeLookupError maps storage sentinel errors to HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("rpc: failed to encode response: %v", err)
	}
}

// writeError writes a uniform JSON error body.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

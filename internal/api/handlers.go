package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tada-core/internal/models"
	"tada-core/internal/pipeline"
	"tada-core/internal/programs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     s.engine.Stats().Snapshot(),
		"pipelines": len(s.engine.Index().List()),
		"programs":  programs.IDs(),
	})
}

func newPipelineID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "pl_" + hex.EncodeToString(b)
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	var p models.Pipeline
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if p.ID == "" {
		p.ID = newPipelineID()
	}
	if p.Status == "" {
		p.Status = models.StatusActive
	}
	p.APIKey = PrincipalFromContext(r.Context())

	if err := pipeline.Validate(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.UpsertPipeline(r.Context(), &p); err != nil {
			writeError(w, http.StatusInternalServerError, "persist pipeline: "+err.Error())
			return
		}
	}
	if err := s.engine.Index().Upsert(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) handleUpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, ok := s.ownedPipeline(w, r, id)
	if !ok {
		return
	}

	var p models.Pipeline
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	p.ID = id
	p.APIKey = existing.APIKey
	p.CreatedAt = existing.CreatedAt
	if p.Status == "" {
		p.Status = existing.Status
	}

	if err := pipeline.Validate(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.UpsertPipeline(r.Context(), &p); err != nil {
			writeError(w, http.StatusInternalServerError, "persist pipeline: "+err.Error())
			return
		}
	}
	if err := s.engine.Index().Upsert(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.ownedPipeline(w, r, id)
	if !ok {
		return
	}

	var body struct {
		Status models.PipelineStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	switch body.Status {
	case models.StatusActive, models.StatusPaused, models.StatusError:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if s.store != nil {
		if err := s.store.UpdatePipelineStatus(r.Context(), id, body.Status); err != nil {
			writeError(w, http.StatusInternalServerError, "update status: "+err.Error())
			return
		}
	}
	updated := *p
	updated.Status = body.Status
	if err := s.engine.Index().Upsert(&updated); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &updated)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.ownedPipeline(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	var out []*models.Pipeline
	for _, p := range s.engine.Index().List() {
		if p.APIKey == principal {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []*models.Pipeline{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.ownedPipeline(w, r, id); !ok {
		return
	}
	if s.store != nil {
		if err := s.store.DeletePipeline(r.Context(), id, PrincipalFromContext(r.Context())); err != nil {
			writeError(w, http.StatusInternalServerError, "delete pipeline: "+err.Error())
			return
		}
	}
	s.engine.Index().Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.ownedPipeline(w, r, id); !ok {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "delivery logs require a database")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.store.ListDeliveryLogs(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list logs: "+err.Error())
		return
	}
	if logs == nil {
		logs = []models.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ownedPipeline resolves the pipeline and enforces that the caller owns
// it. Unknown and foreign ids are both 404 so ids are not probeable.
func (s *Server) ownedPipeline(w http.ResponseWriter, r *http.Request, id string) (*models.Pipeline, bool) {
	p, ok := s.engine.Index().Get(id)
	if !ok || p.APIKey != PrincipalFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "pipeline not found")
		return nil, false
	}
	return p, true
}

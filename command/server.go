package command

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/ops"
	"github.com/infimount/infimount/registry"
	"github.com/infimount/infimount/schema"
	"github.com/infimount/infimount/transfer"
)

// Server dispatches HTTP requests onto the registry, file operations, and
// transfer engine.
type Server struct {
	registry *registry.Registry
	engine   *transfer.Engine
	log      *zap.Logger
}

// NewServer wires the dispatch boundary. A nil logger is replaced with a
// no-op one.
func NewServer(reg *registry.Registry, engine *transfer.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{registry: reg, engine: engine, log: log}
}

// Router builds the HTTP route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/schemas", s.handleListSchemas)

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleAddSource)
			r.Put("/", s.handleReplaceSources)
			r.Post("/verify", s.handleVerifySource)

			r.Route("/{sourceID}", func(r chi.Router) {
				r.Put("/", s.handleUpdateSource)
				r.Delete("/", s.handleRemoveSource)

				r.Get("/entries", s.handleListEntries)
				r.Get("/stat", s.handleStatEntry)
				r.Get("/file", s.handleReadFile)
				r.Put("/file", s.handleWriteFile)
				r.Delete("/entries", s.handleDeletePath)
				r.Post("/upload", s.handleUpload)
			})
		})

		r.Post("/transfer", s.handleTransfer)
	})

	return r
}

func (s *Server) handleListSchemas(w http.ResponseWriter, _ *http.Request) {
	schemas, err := schema.ListStorageSchemas()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.ListSources())
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var src infimount.Source
	if !s.decode(w, r, &src) {
		return
	}
	if err := s.registry.AddSource(r.Context(), src); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var src infimount.Source
	if !s.decode(w, r, &src) {
		return
	}
	src.ID = chi.URLParam(r, "sourceID")
	if err := s.registry.UpdateSource(r.Context(), src); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveSource(r.Context(), chi.URLParam(r, "sourceID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceSources(w http.ResponseWriter, r *http.Request) {
	var sources []infimount.Source
	if !s.decode(w, r, &sources) {
		return
	}
	if err := s.registry.ReplaceSources(r.Context(), sources); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifySource(w http.ResponseWriter, r *http.Request) {
	var src infimount.Source
	if !s.decode(w, r, &src) {
		return
	}
	if err := s.registry.VerifySource(r.Context(), src); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := ops.ListEntries(r.Context(), h, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatEntry(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := ops.StatEntry(r.Context(), h, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := ops.ReadFull(r.Context(), h, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, errors.New("command.write", errors.ErrUnexpected).WithMessage(err.Error()))
		return
	}
	if err := ops.WriteFull(r.Context(), h, r.URL.Query().Get("path"), data); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePath(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := ops.Delete(r.Context(), h, r.URL.Query().Get("path")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	FromSourceID   string   `json:"from_source_id"`
	ToSourceID     string   `json:"to_source_id"`
	Paths          []string `json:"paths"`
	TargetDir      string   `json:"target_dir"`
	Operation      string   `json:"operation"`
	ConflictPolicy string   `json:"conflict_policy"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}

	op, err := ParseOperation(req.Operation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	policy, err := ParseConflictPolicy(req.ConflictPolicy)
	if err != nil {
		s.writeError(w, err)
		return
	}

	from, err := s.registry.GetOperator(r.Context(), req.FromSourceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := s.registry.GetOperator(r.Context(), req.ToSourceID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	err = s.engine.Transfer(r.Context(), from, to, transfer.Request{
		Paths:      req.Paths,
		TargetDir:  req.TargetDir,
		Operation:  op,
		Policy:     policy,
		SameSource: req.FromSourceID == req.ToSourceID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadRequest struct {
	Paths     []string `json:"paths"`
	TargetDir string   `json:"target_dir"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := s.registry.GetOperator(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Ingest(r.Context(), h, req.Paths, req.TargetDir); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, errors.New("command.decode", errors.ErrConfig).WithMessage("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encoding failed", zap.Error(err))
	}
}

// writeError flattens any error into the wire {code, message} pair with a
// matching HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeAlreadyExists:
		status = http.StatusConflict
	case errors.CodePermissionDenied:
		status = http.StatusForbidden
	case errors.CodeConfig:
		status = http.StatusBadRequest
	}

	s.log.Debug("request failed", zap.Error(err), zap.Int("status", status))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errors.ToWire(err))
}

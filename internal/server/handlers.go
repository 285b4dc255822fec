package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/answer"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/vector"
)

type okResponse struct {
	OK bool `json:"ok"`
}

type statusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Index.RebuildFromStore(r.Context())
	if err != nil {
		s.logger.Error("Rebuild failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, vector.ErrUnavailableDependency) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, "rebuild failed: "+err.Error())
		return
	}
	s.logger.Info("Index rebuilt",
		zap.Int("loaded", stats.Loaded), zap.Int("skipped", stats.Skipped), zap.Int("pages", stats.Pages))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "rebuild finished",
		"size":   s.app.Index.Size(),
		"stats":  stats,
	})
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	path, err := s.app.Persist(r.URL.Query().Get("path"))
	if err != nil {
		s.logger.Error("Persist failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, snapshotErrorStatus(err), "persist failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse{Status: "persisted", Path: absPath(path)})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	path, err := s.app.Load(r.URL.Query().Get("path"))
	if err != nil {
		s.logger.Error("Load failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, snapshotErrorStatus(err), "load failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse{Status: "loaded", Path: absPath(path)})
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Index.Params())
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m, err := requiredInt(q.Get("m"), "m")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	efc, err := requiredInt(q.Get("efConstruction"), "efConstruction")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxItems, err := requiredInt(q.Get("maxItems"), "maxItems")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := s.app.Index.Params()
	p.M, p.EfConstruction, p.MaxItems = m, efc, maxItems
	if err := p.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Index.Reconfigure(r.Context(), p); err != nil {
		s.logger.Error("Reconfigure failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, vector.ErrCapacityExceeded) {
			status = http.StatusConflict
		}
		s.respondError(w, status, "reconfigure failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reconfigured",
		"params": s.app.Index.Params(),
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]int{"size": s.app.Index.Size()})
}

func (s *Server) handleIndexHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.app.Index.Stats(),
	}
	if n, err := s.app.Store.Count(r.Context()); err == nil {
		resp["records"] = n
	}
	if n, err := s.app.DiskUsage(); err == nil {
		resp["disk_usage_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	total, err := s.app.InsertSample(r.Context())
	if err != nil {
		s.logger.Error("Insert sample failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "insert-sample failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "inserted sample",
		"total":  total,
	})
}

func (s *Server) handleJobStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.app.Jobs.Start(r.Context())
	if err != nil {
		s.logger.Error("Scan job failed to start", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (s *Server) handleJobPause(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, okResponse{OK: s.app.Jobs.Pause()})
}

func (s *Server) handleJobResume(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, okResponse{OK: s.app.Jobs.Resume()})
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, okResponse{OK: s.app.Jobs.Cancel()})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Jobs.Status())
}

// handleQueryGet answers from the given paths, or from the top-K chunks when
// no paths are given.
func (s *Server) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	k, err := s.parseK(q.Get("k"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("Received query", zap.String("method", r.Method), zap.String("question", question))

	snippets, err := s.snippets(r, question, splitPaths(q["paths"]), k)
	if err != nil {
		s.logger.Error("Snippet lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.answer(w, r, question, snippets)
}

// handleQueryPost asks the model whether the question is about code first and
// only gathers snippets when it is.
func (s *Server) handleQueryPost(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	k := s.clampK(req.K)
	s.logger.Info("Received query", zap.String("method", r.Method), zap.String("question", req.Question),
		zap.Strings("paths", req.Paths))

	needsCode := true
	if !s.app.Config.LLM.SkipClassify {
		code, err := s.app.Answer.Classify(r.Context(), req.Question)
		switch {
		case errors.Is(err, answer.ErrNoModel):
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			s.logger.Warn("Question classification failed, fetching snippets only for explicit paths", zap.Error(err))
			needsCode = len(req.Paths) > 0
		default:
			needsCode = code
		}
	}

	var snippets []*models.CodeSnippet
	if needsCode {
		var err error
		snippets, err = s.snippets(r, req.Question, req.Paths, k)
		if err != nil {
			s.logger.Error("Snippet lookup failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.answer(w, r, req.Question, snippets)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	k, err := s.parseK(q.Get("k"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.app.Retrieval.Retrieve(r.Context(), s.app.Scanner.ApplicationID(), question, k)
	if err != nil {
		s.logger.Error("Retrieve failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) snippets(r *http.Request, question string, paths []string, k int) ([]*models.CodeSnippet, error) {
	if len(paths) > 0 {
		return s.app.Scanner.FetchSnippets(paths, k)
	}
	return s.app.Retrieval.TopK(r.Context(), s.app.Scanner.ApplicationID(), question, k)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, question string, snippets []*models.CodeSnippet) {
	s.logger.Info("Fetched code snippets", zap.Int("count", len(snippets)))
	text, err := s.app.Answer.Answer(r.Context(), question, snippets)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, answer.ErrNoModel) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("Model query failed", zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.QueryResponse{Answer: text, Snippets: snippets})
}

func (s *Server) parseK(raw string) (int, error) {
	if raw == "" {
		return s.clampK(0), nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid k %q", raw)
	}
	return s.clampK(k), nil
}

func (s *Server) clampK(k int) int {
	rc := s.app.Config.Retrieval
	if k <= 0 {
		k = rc.DefaultK
	}
	if rc.MaxK > 0 && k > rc.MaxK {
		k = rc.MaxK
	}
	return k
}

// splitPaths accepts repeated and comma-separated values.
func splitPaths(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func requiredInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func snapshotErrorStatus(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrMalformedPayload):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

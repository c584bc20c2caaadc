package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"topicflow/internal/config"
	"topicflow/internal/models"
	"topicflow/internal/providers"
	"topicflow/internal/storage"
	"topicflow/internal/vector"
	"topicflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg         config.Config
	db          *storage.DB
	docRepo     *storage.DocumentRepo
	decisionLog *storage.DecisionLogRepo
	searcher    *vector.Searcher
	providers   *providers.Manager
	temporal    tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:         cfg,
		db:          db,
		docRepo:     storage.NewDocumentRepo(db),
		decisionLog: storage.NewDecisionLogRepo(db),
		searcher:    vector.NewSearcher(db.Pool),
		providers:   pm,
		temporal:    tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/runs/", s.handleRunScoped)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/search", s.handleSearch)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Topics      []models.Topic `json:"topics"`
		MaxParallel int            `json:"max_parallel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if len(req.Topics) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("topics are required"))
		return
	}
	for i, t := range req.Topics {
		if strings.TrimSpace(t.Title) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("topic %d: title is required", i))
			return
		}
	}
	maxParallel := req.MaxParallel
	if maxParallel <= 0 {
		maxParallel = s.cfg.IngestMaxParallel
	}

	runID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "ingest-" + runID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.IngestRunWorkflow, workflows.IngestRunInput{
		RunID:       runID,
		Topics:      req.Topics,
		MaxParallel: maxParallel,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      runID,
		"workflow_id": we.GetID(),
		"topics":      len(req.Topics),
	})
}

func (s *Server) handleRunScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	runID := parts[0]

	if len(parts) == 2 && parts[1] == "decisions" {
		recs, err := s.decisionLog.ListByRun(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "decisions": recs})
		return
	}
	if len(parts) != 1 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	var prog workflows.IngestRunProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+runID, "", workflows.QueryGetProgress)
	if err != nil {
		// No live workflow to query; the decision log still shows what the
		// run did.
		recs, dErr := s.decisionLog.ListByRun(r.Context(), runID)
		if dErr != nil {
			writeErr(w, http.StatusInternalServerError, dErr)
			return
		}
		if len(recs) == 0 {
			writeErr(w, http.StatusNotFound, fmt.Errorf("run %s not found", runID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "phase": "finished", "decided": len(recs)})
		return
	}
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := s.docRepo.ListDocuments(r.Context(), storage.DocumentFilters{
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	if docID == "" || strings.Contains(docID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	doc, err := s.docRepo.GetDocument(r.Context(), docID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if doc == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("document %s not found", docID))
		return
	}
	chunks, err := s.docRepo.ListChunksByDocument(r.Context(), docID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "chunks": chunks})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Query    string `json:"query"`
		TopK     int    `json:"top_k"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	vecs, _, err := s.providers.FirstEmbedProvider().Embed(r.Context(), providers.EmbedRequest{
		Operation: providers.OpEmbedQuery,
		Inputs:    []string{req.Query},
		Dimension: s.cfg.EmbedDim,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("embed query: %w", err))
		return
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("embed query: empty vector"))
		return
	}
	results, err := s.searcher.SearchChunks(r.Context(), vecs[0], req.TopK, vector.SearchFilters{Category: req.Category})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string
	Message string
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "TF-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "TF-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "TF-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		if err != nil {
			msg = err.Error()
		}
		return apiError{Code: "TF-API-4001", Message: msg}
	case status == http.StatusNotFound:
		msg := "Not found."
		if err != nil {
			msg = err.Error()
		}
		return apiError{Code: "TF-API-4004", Message: msg}
	case status == http.StatusConflict:
		return apiError{Code: "TF-API-4009", Message: "A run with this id is already in progress."}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "TF-API-4005", Message: "Method not allowed."}
	default:
		return apiError{Code: "TF-API-4000", Message: "Request failed."}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/researchagent/internal/auth"
	"github.com/seanblong/researchagent/internal/search"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	MsgEmptyQuestion = "Please enter a research question first."
	MsgNoSubtasks    = "No subtasks were generated. Try rephrasing your question."
)

// Planner produces subtasks for a research question.
type Planner interface {
	Plan(ctx context.Context, question string) ([]string, error)
}

// Searcher retrieves passages from the ingested collection.
type Searcher interface {
	Query(ctx context.Context, q string, k int) (search.Response, error)
}

type Server struct {
	Planner Planner
	// Searcher is optional; /api/search is only mounted when it is set.
	Searcher Searcher
	// Timeout bounds each planner or search call. Zero leaves the request
	// context as the only limit.
	Timeout time.Duration
}

type pageData struct {
	Question string
	Level    string
	Message  string
	Subtasks []string
}

type subtasksRequest struct {
	Question string `json:"question"`
}

type subtasksResponse struct {
	Subtasks []string `json:"subtasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the routes wrapped in zerolog request and access logging.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("GET /auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": auth.IsAuthEnabled()})
	})
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", auth.OptionalAuthMiddleware(s.handlePlanForm))
	mux.HandleFunc("POST /api/subtasks", auth.OptionalAuthMiddleware(s.handlePlanAPI))
	if s.Searcher != nil {
		mux.HandleFunc("GET /api/search", auth.OptionalAuthMiddleware(s.handleSearch))
	}

	return hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)
}

func (s *Server) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(r.Context(), s.Timeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	render(w, r, pageData{})
}

func (s *Server) handlePlanForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	question := r.PostFormValue("question")
	data := pageData{Question: question}

	if strings.TrimSpace(question) == "" {
		data.Level, data.Message = "warning", MsgEmptyQuestion
		render(w, r, data)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()
	subtasks, err := s.Planner.Plan(ctx, question)
	switch {
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("planning failed")
		data.Level, data.Message = "error", "Error: "+err.Error()
	case len(subtasks) == 0:
		data.Level, data.Message = "warning", MsgNoSubtasks
	default:
		data.Level = "success"
		data.Message = fmt.Sprintf("Generated %d subtasks ✅", len(subtasks))
		data.Subtasks = subtasks
	}
	render(w, r, data)
}

func (s *Server) handlePlanAPI(w http.ResponseWriter, r *http.Request) {
	var req subtasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgEmptyQuestion})
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()
	subtasks, err := s.Planner.Plan(ctx, req.Question)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("planning failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if subtasks == nil {
		subtasks = []string{}
	}
	hlog.FromRequest(r).Info().Int("subtasks", len(subtasks)).Msg("planned")
	writeJSON(w, http.StatusOK, subtasksResponse{Subtasks: subtasks})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query().Get("q")
	k := search.DefaultK
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			k = n
		}
	}
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()
	resp, err := s.Searcher.Query(ctx, q, k)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	for i := range resp.Results {
		if math.IsNaN(resp.Results[i].Score) || math.IsInf(resp.Results[i].Score, 0) {
			resp.Results[i].Score = 0
		}
	}
	writeJSON(w, http.StatusOK, resp)

	hlog.FromRequest(r).Info().Str("q", q).Int("k", k).Bool("found", resp.Found).Dur("dur", time.Since(start)).Msg("served")
}

func render(w http.ResponseWriter, r *http.Request, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"pushflow/internal/channel"
	"pushflow/internal/domain"
	"pushflow/internal/scheduler"
	"pushflow/internal/store"
)

type Server struct {
	r        *chi.Mux
	repo     store.Repository
	registry *channel.Registry
}

// NewServer builds the admin API. staticDir, when non-empty, is served
// under /static/ for the bundled web assets.
func NewServer(repo store.Repository, registry *channel.Registry, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, repo: repo, registry: registry}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Put("/api/tasks/{id}", s.updateTask)
	r.Delete("/api/tasks/{id}", s.deleteTask)
	r.Get("/api/tasks/{id}/logs", s.listLogs)
	r.Get("/api/channels", s.listChannels)

	if staticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pushflow_up 1\n"))
}

type taskReq struct {
	Name          string              `json:"name"`
	Content       string              `json:"content"`
	Channel       string              `json:"channel"`
	ChannelConfig map[string]string   `json:"channel_config"`
	Type          string              `json:"type"`
	CycleConfig   *domain.CycleConfig `json:"cycle_config"`
	ExecuteTime   *time.Time          `json:"execute_time"`
	Status        *bool               `json:"status"`
}

type createTaskResp struct {
	ID string `json:"id"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", 400)
		return
	}
	if req.Type == "" {
		req.Type = domain.TypeSingle
	}

	t := domain.Task{
		Name:          req.Name,
		Content:       req.Content,
		Channel:       req.Channel,
		ChannelConfig: req.ChannelConfig,
		Status:        true,
		Type:          req.Type,
		ExecuteTime:   time.Now(),
	}
	if req.CycleConfig != nil {
		t.CycleConfig = *req.CycleConfig
	}
	if req.ExecuteTime != nil {
		t.ExecuteTime = *req.ExecuteTime
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if err := s.validateTask(t); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	id, err := s.repo.Insert(r.Context(), t)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, createTaskResp{ID: id})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.repo.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.repo.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.repo.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Content != "" {
		t.Content = req.Content
	}
	if req.Channel != "" {
		t.Channel = req.Channel
	}
	if req.ChannelConfig != nil {
		t.ChannelConfig = req.ChannelConfig
	}
	if req.Type != "" {
		t.Type = req.Type
	}
	if req.CycleConfig != nil {
		t.CycleConfig = *req.CycleConfig
	}
	if req.ExecuteTime != nil {
		t.ExecuteTime = *req.ExecuteTime
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if err := s.validateTask(t); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	if err := s.repo.Update(r.Context(), t); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.repo.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	logs, err := s.repo.ListLogs(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if logs == nil {
		logs = []domain.LogRecord{}
	}
	writeJSON(w, 200, logs)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.registry.Names())
}

func (s *Server) validateTask(t domain.Task) error {
	if t.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if _, ok := s.registry.Lookup(t.Channel); !ok {
		return fmt.Errorf("unknown channel %q", t.Channel)
	}
	switch t.Type {
	case domain.TypeSingle:
	case domain.TypeCycle:
		switch t.CycleConfig.Period {
		case domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth:
		case domain.PeriodCron:
			if err := scheduler.ValidateCronExpression(t.CycleConfig.CronExpr); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
		default:
			return fmt.Errorf("unknown cycle period %q", t.CycleConfig.Period)
		}
	default:
		return fmt.Errorf("unknown task type %q", t.Type)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

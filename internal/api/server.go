package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartalarm/internal/challenge"
	"smartalarm/internal/config"
	"smartalarm/internal/history"
	"smartalarm/internal/lifecycle"
	"smartalarm/internal/model"
	"smartalarm/internal/sensor"
	"smartalarm/internal/store"
	"smartalarm/internal/timeutil"
)

// Server exposes alarm management, the firing-challenge flow, motion
// sample intake, and diagnostics over HTTP.
type Server struct {
	cfg     *config.Manager
	alarms  *store.Store
	ctrl    *lifecycle.Controller
	events  *history.Store
	feed    *sensor.Feed
	logger  *slog.Logger
	version string
}

func Start(ctx context.Context, cfg *config.Manager, alarms *store.Store, ctrl *lifecycle.Controller, events *history.Store, feed *sensor.Feed, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		alarms:  alarms,
		ctrl:    ctrl,
		events:  events,
		feed:    feed,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alarms", server.handleAlarms)
	mux.HandleFunc("/alarms/", server.handleAlarm)
	mux.HandleFunc("/firing", server.handleFiring)
	mux.HandleFunc("/firing/answers", server.handleAnswers)
	mux.HandleFunc("/firing/submit", server.handleSubmit)
	mux.HandleFunc("/firing/dismiss", server.handleDismiss)
	mux.HandleFunc("/motion", server.handleMotion)
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

type statusResponse struct {
	Status       string   `json:"status"`
	Time         string   `json:"time"`
	Clock        string   `json:"clock"`
	Version      string   `json:"version"`
	AlarmCount   int      `json:"alarm_count"`
	ActiveCount  int      `json:"active_count"`
	FiringAlarm  string   `json:"firing_alarm,omitempty"`
	Scheduled    []string `json:"scheduled"`
	TickInterval string   `json:"tick_interval"`
	Storage      string   `json:"storage_driver"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	now := time.Now()
	resp := statusResponse{
		Status:       "ok",
		Time:         now.UTC().Format(time.RFC3339Nano),
		Clock:        timeutil.FormatTime(now),
		Version:      s.version,
		AlarmCount:   len(s.alarms.List()),
		ActiveCount:  s.alarms.ActiveCount(),
		Scheduled:    s.alarms.Scheduled(),
		TickInterval: cfg.Lifecycle.TickInterval.String(),
		Storage:      cfg.Storage.Driver,
	}
	if f := s.ctrl.Firing(); f != nil {
		resp.FiringAlarm = f.Alarm.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type alarmRequest struct {
	Time       string  `json:"time"`
	Label      *string `json:"label"`
	Challenge  string  `json:"challenge"`
	Difficulty int     `json:"difficulty"`
	IsActive   *bool   `json:"is_active"`
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list := s.alarms.List()
		writeJSON(w, http.StatusOK, map[string]any{
			"alarms": list,
			"count":  len(list),
		})
	case http.MethodPost:
		var req alarmRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		label := ""
		if req.Label != nil {
			label = *req.Label
		}
		a, err := s.alarms.Create(r.Context(), req.Time, label, model.ChallengeType(req.Challenge), req.Difficulty)
		if err != nil && model.ErrorCode(err) != model.ErrPersistence {
			writeError(w, err)
			return
		}
		writeMutation(w, http.StatusCreated, a, err)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAlarm routes /alarms/{id}, /alarms/{id}/toggle and
// /alarms/{id}/fire.
func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/alarms/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodPut:
			s.updateAlarm(w, r, id)
		case http.MethodDelete:
			if err := s.alarms.Delete(r.Context(), id); err != nil && model.ErrorCode(err) != model.ErrPersistence {
				writeError(w, err)
				return
			}
			s.ctrl.Teardown(id)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "toggle":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a, err := s.alarms.Toggle(r.Context(), id)
		if err != nil && model.ErrorCode(err) != model.ErrPersistence {
			writeError(w, err)
			return
		}
		writeMutation(w, http.StatusOK, a, err)
	case "fire":
		// Notification-callback path for an external scheduler.
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.ctrl.HandleNotification(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) updateAlarm(w http.ResponseWriter, r *http.Request, id string) {
	var req alarmRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	fields := store.UpdateFields{
		Label:    req.Label,
		IsActive: req.IsActive,
	}
	if req.Time != "" {
		fields.Time = &req.Time
	}
	if req.Challenge != "" {
		ct := model.ChallengeType(req.Challenge)
		if ct != model.ChallengeMath && ct != model.ChallengeShake {
			writeError(w, model.Errorf(model.ErrInvalid, "unknown challenge type %q", req.Challenge))
			return
		}
		fields.Challenge = &ct
	}
	if req.Difficulty > 0 {
		fields.Difficulty = &req.Difficulty
	}
	a, err := s.alarms.Update(r.Context(), id, fields)
	if err != nil && model.ErrorCode(err) != model.ErrPersistence {
		writeError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, a, err)
}

func (s *Server) handleFiring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f := s.ctrl.Firing()
	if f == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := map[string]any{"firing": f}
	if f.Shake != nil {
		resp["progress"] = challenge.ShakeProgress(f.Shake.Current, f.Shake.Required)
	}
	if f.Math != nil {
		resp["filled"] = challenge.AllAnswersFilled(f.Math)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Index int    `json:"index"`
		Text  string `json:"text"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if err := s.ctrl.UpdateAnswer(req.Index, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := s.ctrl.SubmitAnswers(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "dismissed"})
	case errors.Is(err, lifecycle.ErrWrongAnswers):
		writeJSON(w, http.StatusConflict, map[string]any{
			"status": "retry",
			"error":  "wrong_answers",
		})
	default:
		writeError(w, err)
	}
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.ctrl.Dismiss(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "dismissed"})
}

// handleMotion accepts either a precomputed magnitude or a raw
// acceleration vector.
func (s *Server) handleMotion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Magnitude *float64 `json:"magnitude"`
		X         float64  `json:"x"`
		Y         float64  `json:"y"`
		Z         float64  `json:"z"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.Magnitude != nil {
		s.feed.Push(*req.Magnitude)
	} else {
		s.feed.PushVector(req.X, req.Y, req.Z)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.AlarmEvent
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.events.Since(ts)
	} else {
		list = s.events.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.events.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return err
	}
	return nil
}

// writeMutation reports a successful mutation, attaching a warning when
// durable save failed but the in-memory state advanced.
func writeMutation(w http.ResponseWriter, status int, a model.Alarm, err error) {
	resp := map[string]any{"alarm": a}
	if model.ErrorCode(err) == model.ErrPersistence {
		resp["warning"] = string(model.ErrPersistence)
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lifecycle.ErrNotFiring):
		status = http.StatusConflict
	default:
		switch model.ErrorCode(err) {
		case model.ErrInvalid:
			status = http.StatusBadRequest
		case model.ErrNotFound:
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

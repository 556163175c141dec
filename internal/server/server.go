// Package server provides the HTTP surface of the fingerspelling tutor.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/fingerspell/internal/assessment"
	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/overlay"
	"github.com/ayusman/fingerspell/internal/sampling"
	"github.com/ayusman/fingerspell/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatsSource reports sampling statistics.
type StatsSource interface {
	Stats() sampling.Stats
}

// HealthChecker probes a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds the server configuration. Nil components disable their routes.
type Config struct {
	StaticDir string
	StreamFPS int
	// MinConfidence is the threshold for counting a detection in the summary.
	MinConfidence float64

	Frames    *overlay.FrameBuffer
	Hub       *Hub
	Stats     StatsSource
	Predictor HealthChecker
	Store     *store.Store
	Tracker   *assessment.Tracker
}

// Server routes HTTP requests to the API handlers.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.StreamFPS))
	}
	if s.config.Hub != nil {
		s.mux.Handle("/api/predictions", s.config.Hub)
		s.mux.HandleFunc("/api/prediction", s.handlePrediction)
	}
	if s.config.Stats != nil {
		s.mux.HandleFunc("/api/stats", s.handleStats)
	}

	s.mux.HandleFunc("/api/lessons", s.handleLessons)
	s.mux.HandleFunc("/api/lessons/{id}", s.handleLesson)
	if s.config.Tracker != nil {
		s.mux.HandleFunc("/api/lessons/{id}/assessment", s.handleAssessment)
	}
	if s.config.Store != nil {
		s.mux.HandleFunc("/api/detections", s.handleDetections)
		s.mux.HandleFunc("/api/detections/summary", s.handleSummary)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Predictor != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.config.Predictor.Health(ctx); err != nil {
			response["predictor"] = "unreachable: " + err.Error()
		} else {
			response["predictor"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	latest := s.config.Hub.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, "no prediction yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.config.Stats.Stats())
}

func (s *Server) completed() map[int]bool {
	done := make(map[int]bool)
	if s.config.Store == nil {
		return done
	}
	progress, err := s.config.Store.Sessions().Progress()
	if err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "failed to load progress")
		return done
	}
	for _, p := range progress {
		done[p.LessonID] = true
	}
	return done
}

type lessonView struct {
	assessment.Lesson
	Completed bool `json:"completed"`
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	done := s.completed()
	lessons := assessment.Lessons()
	views := make([]lessonView, 0, len(lessons))
	for _, l := range lessons {
		views = append(views, lessonView{Lesson: l, Completed: done[l.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": views})
}

// lessonFromPath resolves the {id} path segment, writing an error response on failure.
func lessonFromPath(w http.ResponseWriter, r *http.Request) (assessment.Lesson, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lesson id")
		return assessment.Lesson{}, false
	}
	lesson, err := assessment.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return assessment.Lesson{}, false
	}
	return lesson, true
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	lesson, ok := lessonFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, lessonView{Lesson: lesson, Completed: s.completed()[lesson.ID]})
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	lesson, ok := lessonFromPath(w, r)
	if !ok {
		return
	}
	tracker := s.config.Tracker

	if r.Method == http.MethodPost {
		sess, err := tracker.Start(lesson.ID)
		if err != nil {
			log.Error(log.Fields{"lesson": lesson.ID, "error": err.Error()}, "failed to start assessment")
			writeError(w, http.StatusInternalServerError, "failed to start assessment")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"session":        sess,
			"assessment":     lesson.Assessment,
			"window_seconds": int(lesson.Assessment.Window.Seconds()),
		})
		return
	}

	res, err := tracker.Evaluate(lesson.ID)
	if err != nil {
		if errors.Is(err, assessment.ErrUnknownLesson) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(log.Fields{"lesson": lesson.ID, "error": err.Error()}, "failed to evaluate assessment")
		writeError(w, http.StatusInternalServerError, "failed to evaluate assessment")
		return
	}
	// Scores are recomputed so expired matches drop out; the last prediction is kept.
	if last := tracker.Last(); last != nil && last.LessonID == lesson.ID {
		res.SessionID = last.SessionID
		res.CurrentLetter = last.CurrentLetter
		res.CurrentConf = last.CurrentConf
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	detections, err := s.config.Store.Detections().Recent(limit)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "failed to list detections")
		writeError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": detections})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	summary, err := s.config.Store.Detections().Summarize(s.config.MinConfidence)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "failed to summarize detections")
		writeError(w, http.StatusInternalServerError, "failed to summarize detections")
		return
	}
	if summary == nil {
		summary = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"min_confidence": s.config.MinConfidence,
		"letters":        summary,
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

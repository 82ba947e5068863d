package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/repository"
	ws "github.com/krshsl/praxis/grader/websocket"
)

// Server holds all server dependencies
type Server struct {
	config              *Config
	repo                *repository.GORMRepository
	geminiService       *GeminiService
	sessions            *SessionStateMachine
	pipeline            *SubmissionPipeline
	interviewEndpoints  *InterviewEndpoints
	submissionEndpoints *SubmissionEndpoints
	questionEndpoints   *QuestionEndpoints
	wsHub               *ws.Hub
	upgrader            websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config, repo *repository.GORMRepository) *Server {
	return &Server{
		config: config,
		repo:   repo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// InitializeServices wires the scoring engine, the evaluator and the submission pipeline.
func (s *Server) InitializeServices(ctx context.Context) error {
	engine, err := s.config.ScoringEngine()
	if err != nil {
		return fmt.Errorf("invalid scoring configuration: %w", err)
	}

	if s.config.AI.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	s.geminiService, err = NewGeminiService(ctx, s.config.AI)
	if err != nil {
		return err
	}
	slog.Info("Gemini service initialized", "model", s.geminiService.model)

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()
	events := NewHubPublisher(s.wsHub)

	s.sessions = NewSessionStateMachine(s.repo, s.config.Scoring.MissingScorePolicy, NewKeyedLock(), events)
	s.pipeline = NewSubmissionPipeline(PipelineDeps{
		Repo:        s.repo,
		Sessions:    s.sessions,
		Engine:      engine,
		Evaluator:   s.geminiService,
		Transcriber: s.geminiService,
		Transcoder:  audio.NewFFmpegTranscoder(s.config.Audio.FFmpegPath, s.config.Audio.TempDir),
		Events:      events,
	}, s.config.Audio, s.config.Pipeline)

	s.interviewEndpoints = NewInterviewEndpoints(s.sessions)
	s.submissionEndpoints = NewSubmissionEndpoints(s.pipeline, s.repo, s.config.Audio.MaxBytes)
	s.questionEndpoints = NewQuestionEndpoints(s.repo)
	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)
		r.Get("/ws", s.websocketHandlerFunc)

		if s.interviewEndpoints != nil {
			s.interviewEndpoints.RegisterRoutes(r)
		}
		if s.submissionEndpoints != nil {
			s.submissionEndpoints.RegisterRoutes(r)
		}
		if s.questionEndpoints != nil {
			s.questionEndpoints.RegisterRoutes(r)
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.repo != nil {
		if err := s.repo.Ping(r.Context()); err != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))

	slog.Debug("Health check", "status", status, "database", dbStatus)
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

// websocketHandlerFunc subscribes the connection to one session's submission events.
func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := s.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := s.wsHub.Subscribe(conn, sessionID)
	slog.Info("WebSocket connection established", "session_id", sessionID, "client_id", client.ID)

	go client.WritePump()
	go client.ReadPump()
}

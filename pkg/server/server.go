// Package server exposes the relay's HTTP surface: synchronous generate
// endpoints, outward SSE streams, task management, and usage reporting.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/genrelay/genrelay/pkg/config"
	"github.com/genrelay/genrelay/pkg/metrics"
	"github.com/genrelay/genrelay/pkg/provider"
	"github.com/genrelay/genrelay/pkg/task"
	"github.com/genrelay/genrelay/pkg/usage"
)

// ChatBackend is a synchronous text-generation upstream.
type ChatBackend interface {
	Generate(ctx context.Context, contents, model string) (provider.GenerateResult, error)
}

// GeminiBackend adds Gemini's thought-aware streaming.
type GeminiBackend interface {
	ChatBackend
	Stream(ctx context.Context, contents, model string, thinking bool, emit provider.DeltaFunc) (provider.GenerateResult, error)
}

// DeepSeekBackend adds chat-completions streaming with a reasoning channel.
type DeepSeekBackend interface {
	ChatBackend
	Stream(ctx context.Context, contents, model string, emit provider.DeltaFunc) (provider.GenerateResult, error)
}

// TaskBackend covers the image/video task API.
type TaskBackend interface {
	CreateImageStream(ctx context.Context, req provider.ImageRequest) (io.ReadCloser, error)
	CreateTask(ctx context.Context, req provider.VideoRequest) (string, error)
	QueryTask(ctx context.Context, id string) (provider.Task, error)
	CancelTask(ctx context.Context, id string) (bool, string, error)
}

// AgentBackend streams raw agent SSE bytes.
type AgentBackend interface {
	Stream(ctx context.Context, messages []provider.AgentMessage) (io.ReadCloser, error)
}

type Server struct {
	cfg      *config.Config
	gemini   GeminiBackend
	deepseek DeepSeekBackend
	ark      TaskBackend
	mastra   AgentBackend
	poller   *task.Poller
	usage    *usage.Recorder

	httpServer *http.Server
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		deepseek: provider.NewDeepSeekClient(cfg.DeepSeek.BaseURL, cfg.DeepSeek.APIKey, cfg.DeepSeek.Model),
		mastra:   provider.NewMastraClient(cfg.Mastra.BaseURL, cfg.Mastra.Agent),
		usage:    usage.NewRecorder(),
	}
	ark := provider.NewArkClient(cfg.Ark.BaseURL, cfg.Ark.APIKey)
	s.ark = ark
	s.poller = task.NewPoller(ark)

	// A missing Gemini key is not a startup error; the failure surfaces as
	// an upstream auth error on first use, like the other providers.
	gemini, err := provider.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Warn("gemini client unavailable", "err", err)
	} else {
		s.gemini = gemini
	}

	metrics.Init()

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Hello genrelay"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/llm", func(llm chi.Router) {
		llm.Post("/gemini/generate", s.handleGeminiGenerate)
		llm.Post("/gemini/stream", s.handleGeminiStream)
		llm.Post("/deepseek/generate", s.handleDeepSeekGenerate)
		llm.Post("/deepseek/stream", s.handleDeepSeekStream)
		llm.Post("/image/create", s.handleImageCreate)
		llm.Post("/image/image-to-image/create", s.handleImageToImageCreate)
		llm.Get("/image/task/{taskId}", s.handleTaskQuery)
		llm.Post("/video/create", s.handleVideoCreate)
		llm.Get("/video/task/{taskId}", s.handleTaskQuery)
		llm.Get("/video/task/{taskId}/watch", s.handleVideoWatch)
		llm.Delete("/video/task/{taskId}", s.handleVideoCancel)
		llm.Post("/mastra/stream", s.handleMastraStream)
	})

	r.Route("/usage", func(u chi.Router) {
		u.Get("/stats", s.handleUsageStats)
		u.Get("/live", s.handleUsageLive)
	})

	r.Route("/demos", func(d chi.Router) {
		d.Get("/", s.handleListUsers)
		d.Get("/{id}", s.handleGetUser)
		d.Post("/", s.handleCreateUser)
		d.Put("/{id}", s.handleUpdateUser)
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.cfg.TLS.Enabled {
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(s.cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.cfg.TLS.Domain),
			Email:      s.cfg.TLS.Email,
		}

		httpsSrv := &http.Server{
			Addr:              s.cfg.TLS.ListenAddr,
			Handler:           s.httpServer.Handler,
			ReadHeaderTimeout: s.httpServer.ReadHeaderTimeout,
			ReadTimeout:       s.httpServer.ReadTimeout,
			WriteTimeout:      s.httpServer.WriteTimeout,
			IdleTimeout:       s.httpServer.IdleTimeout,
			TLSConfig:         &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12},
		}

		httpChallenge := &http.Server{
			Addr:              ":80",
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info("http challenge/redirect listening", "addr", ":80")
			if err := httpChallenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http challenge server: %w", err)
			}
		}()
		go func() {
			log.Info("https listening", "addr", httpsSrv.Addr, "domain", s.cfg.TLS.Domain)
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpChallenge.Shutdown(shutdownCtx)
		_ = httpsSrv.Shutdown(shutdownCtx)
		return firstErr(errCh)
	}

	go func() {
		log.Info("relay listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("relay server: %w", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	return firstErr(errCh)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func firstErr(errCh chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// upstreamStatus picks the client-facing status for an upstream failure.
func upstreamStatus(err error) int {
	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return httpErr.StatusCode
	}
	return http.StatusBadGateway
}

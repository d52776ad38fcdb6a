// Package server hosts the HTTP API: document processing, return
// preparation, and template inspection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/extract"
	"github.com/formfill/formfill/internal/fill"
	"github.com/formfill/formfill/internal/home"
	"github.com/formfill/formfill/internal/llm"
	"github.com/formfill/formfill/internal/locate"
	"github.com/formfill/formfill/internal/normalize"
	"github.com/formfill/formfill/internal/ocr"
	"github.com/formfill/formfill/internal/pipeline"
	"github.com/formfill/formfill/internal/raster"
	"github.com/formfill/formfill/internal/server/endpoints"
	"github.com/formfill/formfill/internal/svcctx"
	"github.com/formfill/formfill/internal/template"
)

// Server is the main formfill HTTP server.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	templates  *template.Registry
	logger     *slog.Logger

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu       sync.RWMutex
	services *svcctx.Services
	running  bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default from config)
	Host string
	// Port is the port to listen on (default from config)
	Port int
	// Home is the formfill home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	appCfg := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == 0 {
		cfg.Port = appCfg.Server.Port
	}

	templates, err := LoadTemplates(appCfg, cfg.Home)
	if err != nil {
		return nil, err
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		templates: templates,
		logger:    cfg.Logger,
	}

	orch, err := NewOrchestrator(appCfg, templates, TemplateDir(appCfg, cfg.Home), cfg.Logger)
	if err != nil {
		return nil, err
	}
	s.services = &svcctx.Services{
		Orchestrator: orch,
		Templates:    templates,
		ConfigMgr:    cfg.ConfigManager,
		Home:         cfg.Home,
		Logger:       cfg.Logger,
	}

	// Rebuild the pipeline when config changes so threshold and LLM
	// settings take effect without a restart.
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		orch, err := NewOrchestrator(c, s.templates, TemplateDir(c, s.home), s.logger)
		if err != nil {
			s.logger.Error("config reload failed", "error", err)
			return
		}
		s.mu.Lock()
		s.services.Orchestrator = orch
		s.mu.Unlock()
		s.logger.Info("pipeline rebuilt from config")
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{LLMEnabled: appCfg.LLM.Enabled}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // document runs can be slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// TemplateDir returns the directory for template definitions and blank PDFs.
func TemplateDir(cfg *config.Config, h *home.Dir) string {
	if cfg.TemplateDir != "" {
		return cfg.TemplateDir
	}
	return h.TemplatesPath()
}

// LoadTemplates loads the embedded templates plus any overrides on disk.
func LoadTemplates(cfg *config.Config, h *home.Dir) (*template.Registry, error) {
	registry, err := template.LoadDir(TemplateDir(cfg, h))
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return registry, nil
}

// NewOrchestrator wires the processing pipeline from the given config.
// The CLI uses it for local runs; the server rebuilds through it on
// config changes.
func NewOrchestrator(cfg *config.Config, templates *template.Registry, tmplDir string, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	engine := ocr.NewTesseractEngine(ocr.TesseractConfig{
		Languages:      cfg.OCR.Languages,
		TessdataPrefix: cfg.OCR.TessdataPrefix,
	})

	extractor, err := extract.New(extract.Config{
		Engine:        engine,
		MinConfidence: cfg.Pipeline.MinTokenConfidence,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	var modelExtractor *llm.Extractor
	if cfg.LLM.Enabled {
		modelExtractor, err = llm.New(llm.Config{
			APIKey:     cfg.ResolvedLLMKey(),
			Model:      cfg.LLM.Model,
			Confidence: cfg.LLM.Confidence,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("llm enabled but not usable: %w", err)
		}
	}

	dpi := cfg.Pipeline.DPI
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}

	return pipeline.New(pipeline.Config{
		Rasterizer: raster.NewPDFToPPM(),
		Templates:  templates,
		Opener:     fill.NewPDFCPUOpener(tmplDir),
		Extractor:  extractor,
		Locator: locate.New(locate.Config{
			MatchThreshold: cfg.Pipeline.MatchThreshold,
			BandOverlap:    cfg.Pipeline.BandOverlap,
			CheckboxRadius: cfg.Pipeline.CheckboxRadius,
			Scale:          float64(dpi) / 72.0,
			Logger:         logger,
		}),
		Normalizer: normalizerFromConfig(cfg),
		LLM:        modelExtractor,

		DPI:              dpi,
		PagesParallel:    cfg.Pipeline.PagesParallel,
		PageTimeout:      cfg.Pipeline.PageTimeout(),
		DocumentDeadline: cfg.Pipeline.DocumentDeadline(),
		ReportConfidence: cfg.Pipeline.ReportConfidence,
		Logger:           logger,
	})
}

// normalizerFromConfig builds the value normalizer with the configured
// correction tables.
func normalizerFromConfig(cfg *config.Config) *normalize.Normalizer {
	return normalize.New(normalize.Config{
		SSNCorrections:      cfg.Corrections.SSN,
		CurrencyCorrections: cfg.Corrections.Currency,
	})
}

// Start starts the server. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to prepare home directory: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Templates returns the loaded template registry.
func (s *Server) Templates() *template.Registry {
	return s.templates
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		ctx := svcctx.WithServices(r.Context(), services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.OrchestratorFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

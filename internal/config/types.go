package config

import (
	"time"

	"github.com/formfill/formfill/internal/llm"
	"github.com/formfill/formfill/internal/locate"
	"github.com/formfill/formfill/internal/pipeline"
	"github.com/formfill/formfill/internal/raster"
)

// Config is the full configuration surface.
type Config struct {
	// DefaultTemplate is the template used when a request names none.
	DefaultTemplate string `mapstructure:"default_template" yaml:"default_template"`

	// TemplateDir overrides/extends the embedded template set; empty means
	// the home templates directory.
	TemplateDir string `mapstructure:"template_dir" yaml:"template_dir"`

	Pipeline    PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline"`
	OCR         OCRConfig         `mapstructure:"ocr" yaml:"ocr"`
	Corrections CorrectionsConfig `mapstructure:"corrections" yaml:"corrections"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

// PipelineConfig tunes the document run.
type PipelineConfig struct {
	DPI                     int     `mapstructure:"dpi" yaml:"dpi"`
	PagesParallel           int     `mapstructure:"pages_parallel" yaml:"pages_parallel"`
	PageTimeoutSeconds      int     `mapstructure:"page_timeout_seconds" yaml:"page_timeout_seconds"`
	DocumentDeadlineSeconds int     `mapstructure:"document_deadline_seconds" yaml:"document_deadline_seconds"`
	MinTokenConfidence      float64 `mapstructure:"min_token_confidence" yaml:"min_token_confidence"`
	MatchThreshold          float64 `mapstructure:"match_threshold" yaml:"match_threshold"`
	BandOverlap             float64 `mapstructure:"band_overlap" yaml:"band_overlap"`
	CheckboxRadius          float64 `mapstructure:"checkbox_radius" yaml:"checkbox_radius"`
	ReportConfidence        float64 `mapstructure:"report_confidence" yaml:"report_confidence"`
}

// PageTimeout returns the per-page timeout as a duration.
func (p PipelineConfig) PageTimeout() time.Duration {
	return time.Duration(p.PageTimeoutSeconds) * time.Second
}

// DocumentDeadline returns the whole-document deadline; zero disables it.
func (p PipelineConfig) DocumentDeadline() time.Duration {
	return time.Duration(p.DocumentDeadlineSeconds) * time.Second
}

// OCRConfig configures the recognition engine.
type OCRConfig struct {
	Languages      []string `mapstructure:"languages" yaml:"languages"`
	TessdataPrefix string   `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix"`
}

// CorrectionsConfig enables the per-kind character correction tables.
type CorrectionsConfig struct {
	SSN      bool `mapstructure:"ssn" yaml:"ssn"`
	Currency bool `mapstructure:"currency" yaml:"currency"`
}

// LLMConfig configures the optional model-assisted extraction path.
// APIKey uses ${ENV_VAR} syntax to reference environment variables.
type LLMConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Model      string  `mapstructure:"model" yaml:"model"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTemplate: "f1040",
		Pipeline: PipelineConfig{
			DPI:                raster.DefaultDPI,
			PagesParallel:      pipeline.DefaultPagesParallel,
			PageTimeoutSeconds: int(pipeline.DefaultPageTimeout / time.Second),
			MinTokenConfidence: 0.35,
			MatchThreshold:     locate.DefaultMatchThreshold,
			BandOverlap:        locate.DefaultBandOverlap,
			CheckboxRadius:     locate.DefaultCheckboxRadius,
			ReportConfidence:   pipeline.DefaultReportConfidence,
		},
		OCR: OCRConfig{
			Languages: []string{"eng"},
		},
		Corrections: CorrectionsConfig{
			SSN:      true,
			Currency: true,
		},
		LLM: LLMConfig{
			Enabled:    false,
			Model:      llm.DefaultModel,
			APIKey:     "${OPENAI_API_KEY}",
			Confidence: llm.DefaultConfidence,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-organizer/constants"
)

// Config holds all application configuration
type Config struct {
	Paths      PathsConfig      `toml:"paths"`
	Extraction ExtractionConfig `toml:"extraction"`
	OCR        OCRConfig        `toml:"ocr"`
	LLM        LLMConfig        `toml:"llm"`
	Organizer  OrganizerConfig  `toml:"organizer"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Mail       MailConfig       `toml:"mail"`
}

// PathsConfig holds input and output locations
type PathsConfig struct {
	InboxDir        string `toml:"inbox_dir"`
	OutputRoot      string `toml:"output_root"`
	MetadataPath    string `toml:"metadata_path"`
	ReportsDir      string `toml:"reports_dir"`
	CachePath       string `toml:"cache_path"`
	MetricsTextfile string `toml:"metrics_textfile"`
}

// ExtractionConfig holds field normalization and routing settings
type ExtractionConfig struct {
	ConfidenceThreshold float64           `toml:"confidence_threshold"`
	DefaultCurrency     string            `toml:"default_currency"`
	DayFirst            bool              `toml:"day_first"`
	PreferLabeledDates  bool              `toml:"prefer_labeled_dates"`
	DateTiebreak        string            `toml:"date_tiebreak"`
	SenderAliases       map[string]string `toml:"sender_aliases"`
}

// OCRConfig holds text-layer and OCR fallback settings
type OCRConfig struct {
	Enabled       bool   `toml:"enabled"`
	MinTextLength int    `toml:"min_text_length"`
	MaxPages      int    `toml:"max_pages"`
	DPI           int    `toml:"dpi"`
	Lang          string `toml:"lang"`
	Pdftotext     string `toml:"pdftotext"`
	Pdftoppm      string `toml:"pdftoppm"`
	Tesseract     string `toml:"tesseract"`
	TessdataDir   string `toml:"tessdata_dir"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider     string        `toml:"provider"`
	Model        string        `toml:"model"`
	APIKey       string        `toml:"api_key"`
	BaseURL      string        `toml:"base_url"`
	Temperature  float32       `toml:"temperature"`
	Timeout      time.Duration `toml:"timeout"`
	MaxAttempts  int           `toml:"max_attempts"`
	BackoffBase  time.Duration `toml:"backoff_base"`
	MaxTextChars int           `toml:"max_text_chars"`
}

// OrganizerConfig holds materialization settings
type OrganizerConfig struct {
	Mode string `toml:"mode"`
}

// PipelineConfig holds worker pool settings
type PipelineConfig struct {
	Workers     int           `toml:"workers"`
	FileTimeout time.Duration `toml:"file_timeout"`
	QueueSize   int           `toml:"queue_size"`
}

// MailConfig holds the mail collaborator settings
type MailConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
	ProcessedLabel  string `toml:"processed_label"`
}

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			InboxDir:     "./invoices",
			OutputRoot:   "./organized",
			MetadataPath: "./invoices_metadata.json",
			ReportsDir:   "./reports",
			CachePath:    "./.tmp/extraction_cache.db",
		},
		Extraction: ExtractionConfig{
			ConfidenceThreshold: 0.7,
			DefaultCurrency:     "USD",
			PreferLabeledDates:  true,
			DateTiebreak:        "latest",
			SenderAliases: map[string]string{
				"google_workspace":   "google",
				"apify_technologies": "apify",
			},
		},
		OCR: OCRConfig{
			MinTextLength: 20,
			MaxPages:      3,
			DPI:           300,
			Lang:          "eng",
			Pdftotext:     "pdftotext",
			Pdftoppm:      "pdftoppm",
			Tesseract:     "tesseract",
		},
		LLM: LLMConfig{
			Provider:     ProviderOpenAI,
			Model:        "gpt-4o-mini",
			Timeout:      60 * time.Second,
			MaxAttempts:  3,
			BackoffBase:  time.Second,
			MaxTextChars: 4000,
		},
		Organizer: OrganizerConfig{
			Mode: "copy",
		},
		Pipeline: PipelineConfig{
			Workers:     4,
			FileTimeout: 3 * time.Minute,
			QueueSize:   256,
		},
		Mail: MailConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			ProcessedLabel:  "Invoices/Processed",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file,
// an optional .env file and the process environment, in increasing precedence.
func LoadConfig(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, NewAppError(CodeConfig, fmt.Sprintf("parsing %s", path), err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, NewAppError(CodeConfig, fmt.Sprintf("reading %s", path), err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("loading %s", envFile), err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(c *Config) {
	c.Paths.InboxDir = getEnv("INBOX_DIR", c.Paths.InboxDir)
	c.Paths.OutputRoot = getEnv("OUTPUT_ROOT", c.Paths.OutputRoot)
	c.Paths.MetadataPath = getEnv("METADATA_PATH", c.Paths.MetadataPath)
	c.Paths.ReportsDir = getEnv("REPORTS_DIR", c.Paths.ReportsDir)
	c.Paths.CachePath = getEnv("CACHE_PATH", c.Paths.CachePath)
	c.Paths.MetricsTextfile = getEnv("METRICS_TEXTFILE", c.Paths.MetricsTextfile)

	c.Extraction.ConfidenceThreshold = getEnvAsFloat64("CONFIDENCE_THRESHOLD", c.Extraction.ConfidenceThreshold)
	c.Extraction.DefaultCurrency = strings.ToUpper(getEnv("DEFAULT_CURRENCY", c.Extraction.DefaultCurrency))
	c.Extraction.DayFirst = getEnvAsBool("DATE_DAY_FIRST", c.Extraction.DayFirst)
	c.Extraction.PreferLabeledDates = getEnvAsBool("DATE_PREFER_LABELED", c.Extraction.PreferLabeledDates)
	c.Extraction.DateTiebreak = getEnv("DATE_TIEBREAK", c.Extraction.DateTiebreak)

	c.OCR.Enabled = getEnvAsBool("OCR_ENABLED", c.OCR.Enabled)
	c.OCR.MinTextLength = getEnvAsInt("OCR_MIN_TEXT_LENGTH", c.OCR.MinTextLength)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.Pdftotext = getEnv("PDFTOTEXT_BIN", c.OCR.Pdftotext)
	c.OCR.Pdftoppm = getEnv("PDFTOPPM_BIN", c.OCR.Pdftoppm)
	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	switch c.LLM.Provider {
	case ProviderOpenAI:
		c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
		c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	case ProviderGemini:
		c.LLM.APIKey = getEnv("GEMINI_API_KEY", c.LLM.APIKey)
	case ProviderOllama:
		c.LLM.BaseURL = getEnv("OLLAMA_HOST", c.LLM.BaseURL)
	}
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxAttempts = getEnvAsInt("LLM_MAX_ATTEMPTS", c.LLM.MaxAttempts)
	c.LLM.BackoffBase = getEnvAsDuration("LLM_BACKOFF_BASE", c.LLM.BackoffBase)
	c.LLM.MaxTextChars = getEnvAsInt("LLM_MAX_TEXT_CHARS", c.LLM.MaxTextChars)

	c.Organizer.Mode = strings.ToLower(getEnv("ORGANIZE_MODE", c.Organizer.Mode))

	c.Pipeline.Workers = getEnvAsInt("WORKERS", c.Pipeline.Workers)
	c.Pipeline.FileTimeout = getEnvAsDuration("FILE_TIMEOUT", c.Pipeline.FileTimeout)

	c.Mail.CredentialsFile = getEnv("GMAIL_CREDENTIALS_FILE", c.Mail.CredentialsFile)
	c.Mail.TokenFile = getEnv("GMAIL_TOKEN_FILE", c.Mail.TokenFile)
	c.Mail.ProcessedLabel = getEnv("GMAIL_PROCESSED_LABEL", c.Mail.ProcessedLabel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("paths.inbox_dir", c.Paths.InboxDir, Required).
		Field("paths.output_root", c.Paths.OutputRoot, Required).
		Field("paths.metadata_path", c.Paths.MetadataPath, Required).
		Field("paths.reports_dir", c.Paths.ReportsDir, Required).
		Field("extraction.confidence_threshold", c.Extraction.ConfidenceThreshold, Between(0, 1)).
		Field("extraction.default_currency", c.Extraction.DefaultCurrency, CurrencyCode).
		Field("extraction.date_tiebreak", c.Extraction.DateTiebreak, OneOf("latest", "earliest")).
		Field("ocr.min_text_length", c.OCR.MinTextLength, Between(1, 1<<20)).
		Field("llm.provider", c.LLM.Provider, OneOf(ProviderOpenAI, ProviderGemini, ProviderOllama)).
		Field("llm.model", c.LLM.Model, Required).
		Field("llm.max_attempts", c.LLM.MaxAttempts, Between(1, 10)).
		Field("llm.timeout", c.LLM.Timeout, Positive).
		Field("organizer.mode", c.Organizer.Mode, OneOf("copy", "hardlink", "symlink")).
		Field("pipeline.workers", c.Pipeline.Workers, Between(1, 256)).
		Field("pipeline.file_timeout", c.Pipeline.FileTimeout, Positive)

	for _, dir := range c.organizedTrees() {
		v.Check("paths.inbox_dir", c.Paths.InboxDir, !within(dir, c.Paths.InboxDir),
			"must not lie inside the organized tree "+dir)
	}

	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

func (c *Config) organizedTrees() []string {
	return []string{
		filepath.Join(c.Paths.OutputRoot, constants.DirByDate),
		filepath.Join(c.Paths.OutputRoot, constants.DirBySender),
	}
}

// GeneratedDirs lists the directories the tool writes into: both organized
// trees and the reports directory. Inbox scans and watches skip them, so an
// output root inside the inbox never feeds organized copies back in as sources.
func (c *Config) GeneratedDirs() []string {
	return append(c.organizedTrees(), c.Paths.ReportsDir)
}

// within reports whether path is dir or lies below it, after resolving both to absolute paths.
func within(dir, path string) bool {
	absDir, err1 := filepath.Abs(dir)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// RequireLLMCredentials checks the credentials needed by the configured provider.
func (c *Config) RequireLLMCredentials() error {
	if c.LLM.Provider == ProviderOllama {
		return nil
	}
	if c.LLM.APIKey == "" {
		key := "OPENAI_API_KEY"
		if c.LLM.Provider == ProviderGemini {
			key = "GEMINI_API_KEY"
		}
		return NewAppError(CodeConfig, key+" is required", ErrInvalidInput)
	}
	return nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Upload     UploadConfig     `yaml:"upload" mapstructure:"upload"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Thresholds ThresholdConfig  `yaml:"thresholds" mapstructure:"thresholds"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// UploadConfig configures invoice file storage.
type UploadConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// OCRConfig configures document text extraction for the rule-based strategy.
// Layout mode keeps line item columns aligned; disable it only for
// single-column invoices.
type OCRConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath   string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToTextLayout bool   `yaml:"pdftotext_layout" mapstructure:"pdftotext_layout"`
	MistralKey      string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel    string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// AnthropicConfig holds settings for the vision extraction strategy.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	VisionModel    string  `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ThresholdConfig overrides the routing thresholds. Defaults mirror the
// constants in internal/model.
type ThresholdConfig struct {
	ExtractionSuccess float64 `yaml:"extraction_success" mapstructure:"extraction_success"`
	ExtractionPartial float64 `yaml:"extraction_partial" mapstructure:"extraction_partial"`
	VendorAutoMatch   int     `yaml:"vendor_auto_match" mapstructure:"vendor_auto_match"`
	CostCodeFloor     float64 `yaml:"cost_code_floor" mapstructure:"cost_code_floor"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INVOICEPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoicepipe.db")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftotext_layout", true)
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_min", 30)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("thresholds.extraction_success", 0.85)
	v.SetDefault("thresholds.extraction_partial", 0.40)
	v.SetDefault("thresholds.vendor_auto_match", 90)
	v.SetDefault("thresholds.cost_code_floor", 0.80)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upload and extraction limits.
	WorkspaceDir      string
	MaxUploadBytes    int64
	MaxExtractedBytes int64

	// Pipeline defaults.
	DefaultMinCompleteness int
	PreviewRows            int
	SheetName              string

	// Source file schema.
	DateColumn        string
	StationIDColumn   string
	StationNameColumn string
	ValueColumn       string
	TextColumns       []string
	DateDayFirst      bool

	// Kafka run-summary publishing.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaSummaryTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	maxUpload, err := parseSize("MAX_UPLOAD_BYTES", 256<<20)
	if err != nil {
		return nil, err
	}
	maxExtracted, err := parseSize("MAX_EXTRACTED_BYTES", 2<<30)
	if err != nil {
		return nil, err
	}

	minCompleteness, err := parseIntInRange("DEFAULT_MIN_COMPLETENESS", 50, 0, 100)
	if err != nil {
		return nil, err
	}
	previewRows, err := parseIntInRange("PREVIEW_ROWS", 10, 0, 1000)
	if err != nil {
		return nil, err
	}

	dayFirst, err := parseBool("DATE_DAY_FIRST", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WorkspaceDir:      os.Getenv("WORKSPACE_DIR"),
		MaxUploadBytes:    maxUpload,
		MaxExtractedBytes: maxExtracted,

		DefaultMinCompleteness: minCompleteness,
		PreviewRows:            previewRows,
		SheetName:              sharedcfg.EnvOrDefault("SHEET_NAME", "Organized Data"),

		DateColumn:        sharedcfg.EnvOrDefault("SCHEMA_DATE_COLUMN", "Fecha"),
		StationIDColumn:   sharedcfg.EnvOrDefault("SCHEMA_STATION_ID_COLUMN", "CodigoEstacion"),
		StationNameColumn: sharedcfg.EnvOrDefault("SCHEMA_STATION_NAME_COLUMN", "NombreEstacion"),
		ValueColumn:       sharedcfg.EnvOrDefault("SCHEMA_VALUE_COLUMN", "Valor"),
		TextColumns:       splitList(sharedcfg.EnvOrDefault("SCHEMA_TEXT_COLUMNS", "CodigoEstacion,FechaSuspension")),
		DateDayFirst:      dayFirst,

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      brokers,
		KafkaSummaryTopic: sharedcfg.EnvOrDefault("KAFKA_SUMMARY_TOPIC", "station-pivot-runs"),
	}

	if len(cfg.SheetName) > 31 || strings.ContainsAny(cfg.SheetName, `[]:*?/\`) {
		return nil, errors.New("invalid SHEET_NAME: at most 31 characters, none of []:*?/\\")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSummaryTopic == "" {
		return nil, errors.New("KAFKA_SUMMARY_TOPIC is required")
	}

	return cfg, nil
}

// Schema returns the source file schema described by the SCHEMA_* variables.
func (c *Config) Schema() domain.Schema {
	return domain.Schema{
		DateColumn:        c.DateColumn,
		StationIDColumn:   c.StationIDColumn,
		StationNameColumn: c.StationNameColumn,
		ValueColumn:       c.ValueColumn,
		TextColumns:       c.TextColumns,
		DayFirst:          c.DateDayFirst,
	}
}

func parseSize(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive byte count", key)
	}
	return n, nil
}

func parseIntInRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

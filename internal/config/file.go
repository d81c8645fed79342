package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadFile reads a TOML/YAML/JSON config file on top of the defaults.
// Environment variables that are set keep precedence over file values.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	overlay(v, &cfg)
	return cfg, nil
}

func overlay(v *viper.Viper, cfg *Config) {
	strs := map[string]*string{
		"api_port":            &cfg.APIPort,
		"log_level":           &cfg.LogLevel,
		"api_key":             &cfg.APIKey,
		"db_driver":           &cfg.DBDriver,
		"sqlite_path":         &cfg.SQLitePath,
		"postgres_dsn":        &cfg.PostgresDSN,
		"nats_url":            &cfg.NATSURL,
		"nats_subject":        &cfg.NATSSubject,
		"thumbs_dir":          &cfg.ThumbsDir,
		"library_root":        &cfg.LibraryRoot,
		"export_root":         &cfg.ExportRoot,
		"ai_provider":         &cfg.AIProvider,
		"ai_base_url":         &cfg.AIBaseURL,
		"ai_api_key":          &cfg.AIAPIKey,
		"ai_model":            &cfg.AIModel,
		"ollama_url":          &cfg.OllamaURL,
		"ollama_vision_model": &cfg.OllamaVisionModel,
		"worker_metrics_port": &cfg.WorkerMetricsPort,
	}
	ints := map[string]*int{
		"thumb_width":          &cfg.ThumbWidth,
		"thumb_quality":        &cfg.ThumbQuality,
		"hash_chunk_size":      &cfg.HashChunkSize,
		"ingest_workers":       &cfg.IngestWorkers,
		"ai_timeout_seconds":   &cfg.AITimeoutSeconds,
		"ai_max_retries":       &cfg.AIMaxRetries,
		"classify_workers":     &cfg.ClassifyWorkers,
		"api_rate_limit_burst": &cfg.APIRateLimitBurst,
		"api_max_in_flight":    &cfg.APIMaxInFlight,
	}
	bools := map[string]*bool{
		"nats_enabled":    &cfg.NATSEnabled,
		"use_exiftool":    &cfg.UseExifTool,
		"breaker_enabled": &cfg.BreakerEnabled,
	}

	for key, dst := range strs {
		if fromFile(v, key) {
			*dst = v.GetString(key)
		}
	}
	for key, dst := range ints {
		if fromFile(v, key) {
			*dst = v.GetInt(key)
		}
	}
	for key, dst := range bools {
		if fromFile(v, key) {
			*dst = v.GetBool(key)
		}
	}
	floats := map[string]*float64{
		"ai_requests_per_second": &cfg.AIRequestsPerSecond,
		"api_rate_limit_rps":     &cfg.APIRateLimitRPS,
	}
	for key, dst := range floats {
		if fromFile(v, key) {
			*dst = v.GetFloat64(key)
		}
	}
}

func fromFile(v *viper.Viper, key string) bool {
	if !v.IsSet(key) {
		return false
	}
	return os.Getenv(strings.ToUpper(key)) == ""
}

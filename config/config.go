// Package config loads the application configuration from a YAML file, a
// .env file and LPR_* environment variables, in that order.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/inference/providers"
	"github.com/nvr-ai/go-lpr/logging"
	"github.com/nvr-ai/go-lpr/ocr"
	"github.com/nvr-ai/go-lpr/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LPR_"

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Detector   detectors.Config `json:"detector" yaml:"detector"`
	OCR        ocr.Config       `json:"ocr" yaml:"ocr"`
	Thresholds pipeline.Config  `json:"thresholds" yaml:"thresholds"`
	Logging    logging.Config   `json:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr"`
	// DataDir holds uploads and annotated outputs.
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// Workers bounds concurrently processed jobs.
	Workers int `json:"workers" yaml:"workers"`
	// MaxUploadMB bounds multipart uploads.
	MaxUploadMB int64 `json:"max_upload_mb" yaml:"max_upload_mb"`
	// JobTimeout cancels a video job that runs longer. 0 disables it.
	JobTimeout time.Duration `json:"job_timeout" yaml:"job_timeout"`
	// ResultTTL is how long finished jobs and their files are kept.
	ResultTTL time.Duration `json:"result_ttl" yaml:"result_ttl"`
	// SweepInterval is how often expired jobs are evicted.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	// DeleteAfterDownload removes a job once its output was downloaded.
	DeleteAfterDownload bool `json:"delete_after_download" yaml:"delete_after_download"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8000",
			DataDir:       "data",
			Workers:       2,
			MaxUploadMB:   512,
			JobTimeout:    30 * time.Minute,
			ResultTTL:     time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Detector:   detectors.DefaultConfig(),
		OCR:        ocr.DefaultConfig(),
		Thresholds: pipeline.DefaultConfig(),
		Logging:    logging.Config{Level: "info"},
	}
}

// Load builds the configuration.
//
// Arguments:
//   - path: A YAML file, or "" for defaults only.
//   - envFiles: .env files to load. None means ./.env if it exists.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if a file cannot be read or parsed, or a value is invalid.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !(len(envFiles) == 0 && os.IsNotExist(err)) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from LPR_* variables.
func (c *Config) applyEnv() error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float32) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = float32(f)
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key)
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Server.Addr)
	str("DATA_DIR", &c.Server.DataDir)
	integer("WORKERS", &c.Server.Workers)
	duration("JOB_TIMEOUT", &c.Server.JobTimeout)
	duration("RESULT_TTL", &c.Server.ResultTTL)
	boolean("DELETE_AFTER_DOWNLOAD", &c.Server.DeleteAfterDownload)

	str("MODEL_PATH", &c.Detector.ModelPath)
	str("ONNXRUNTIME_LIB", &c.Detector.LibraryPath)
	var backend string
	str("PROVIDER", &backend)
	if backend != "" {
		c.Detector.Provider.Backend = providers.Backend(backend)
	}

	var langs string
	str("OCR_LANGUAGES", &langs)
	if langs != "" {
		c.OCR.Languages = strings.Split(langs, "+")
	}

	float("IOU_THRESHOLD", &c.Thresholds.IoUThreshold)
	float("DETECTOR_CONFIDENCE", &c.Thresholds.DetectorConfidence)

	str("LOG_LEVEL", &c.Logging.Level)
	boolean("LOG_DEVELOPMENT", &c.Logging.Development)

	if len(errs) > 0 {
		return errors.Errorf("invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Validate checks everything except the model path, which only the binaries
// that load a model require.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return errors.Wrap(err, "thresholds")
	}
	if c.Server.Workers < 1 {
		return errors.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Server.ResultTTL <= 0 {
		return errors.Errorf("server.result_ttl must be positive, got %s", c.Server.ResultTTL)
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if _, err := providers.ParseBackend(string(c.Detector.Provider.Backend)); err != nil {
		return errors.Wrap(err, "detector.provider")
	}
	return nil
}

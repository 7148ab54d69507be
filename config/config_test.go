package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-lpr/inference/providers"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, float32(0.6), cfg.Thresholds.IoUThreshold)
	assert.Equal(t, float32(0.5), cfg.Thresholds.DetectorConfidence)
	assert.Equal(t, 4, cfg.Thresholds.MinCandidateLength)
	assert.Equal(t, 6, cfg.Thresholds.MinPlateLength)
	assert.Equal(t, 3, cfg.Thresholds.CropPadding)
	assert.Equal(t, 400, cfg.Thresholds.Enhance.MaxDimension)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "lpr.yaml", `
server:
  addr: ":9000"
  workers: 4
  result_ttl: 2h
detector:
  model_path: models/plate.onnx
  provider:
    backend: coreml
ocr:
  languages: [ben]
thresholds:
  iou_threshold: 0.5
  min_plate_length: 7
logging:
  level: debug
`)

	cfg, err := Load(path, writeFile(t, "empty.env", ""))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, 2*time.Hour, cfg.Server.ResultTTL)
	assert.Equal(t, "models/plate.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, providers.CoreMLBackend, cfg.Detector.Provider.Backend)
	assert.Equal(t, 640, cfg.Detector.InputSize, "unset fields keep defaults")
	assert.Equal(t, []string{"ben"}, cfg.OCR.Languages)
	assert.Equal(t, float32(0.5), cfg.Thresholds.IoUThreshold)
	assert.Equal(t, 7, cfg.Thresholds.MinPlateLength)
	assert.Equal(t, 4, cfg.Thresholds.MinCandidateLength)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LPR_WORKERS", "8")
	t.Setenv("LPR_IOU_THRESHOLD", "0.7")
	t.Setenv("LPR_OCR_LANGUAGES", "ben+eng+hin")
	t.Setenv("LPR_DELETE_AFTER_DOWNLOAD", "true")

	cfg, err := Load("", writeFile(t, "empty.env", ""))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.Equal(t, float32(0.7), cfg.Thresholds.IoUThreshold)
	assert.Equal(t, []string{"ben", "eng", "hin"}, cfg.OCR.Languages)
	assert.True(t, cfg.Server.DeleteAfterDownload)
}

func TestLoadDotEnv(t *testing.T) {
	// godotenv never overrides variables that are already set.
	t.Setenv("LPR_MODEL_PATH", "")
	os.Unsetenv("LPR_MODEL_PATH")
	t.Cleanup(func() { os.Unsetenv("LPR_MODEL_PATH") })

	env := writeFile(t, "test.env", "LPR_MODEL_PATH=/models/bd-plate.onnx\n")
	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "/models/bd-plate.onnx", cfg.Detector.ModelPath)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"), writeFile(t, "empty.env", ""))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "thresholds:\n  iou_threshold: 2\n"), writeFile(t, "empty.env", ""))
	assert.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err, "an explicit env file must exist")

	t.Setenv("LPR_WORKERS", "many")
	_, err = Load("", writeFile(t, "empty.env", ""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Detector.Provider.Backend = "tpu"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.ResultTTL = 0
	assert.Error(t, cfg.Validate())
}

package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in       string
		expected Backend
		wantErr  bool
	}{
		{"", CPUBackend, false},
		{"cpu", CPUBackend, false},
		{" CoreML ", CoreMLBackend, false},
		{"OPENVINO", OpenVINOBackend, false},
		{"cuda", CUDABackend, false},
		{"tpu", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestOpenVINOOptions(t *testing.T) {
	opts := OpenVINOOptions(Config{DeviceID: 1, IntraOpThreads: 8})
	assert.Equal(t, "1", opts["device_id"])
	assert.Equal(t, "CPU", opts["device_type"])
	assert.Equal(t, "8", opts["num_of_threads"])

	opts = OpenVINOOptions(Config{DeviceType: "GPU"})
	assert.Equal(t, "GPU", opts["device_type"])
	assert.NotContains(t, opts, "num_of_threads")
}

func TestSharedLibraryPath(t *testing.T) {
	assert.Equal(t, "/opt/ort/libonnxruntime.so", SharedLibraryPath("/opt/ort/libonnxruntime.so"))

	t.Setenv(LibraryPathEnv, "/env/libonnxruntime.so")
	assert.Equal(t, "/env/libonnxruntime.so", SharedLibraryPath(""))

	t.Setenv(LibraryPathEnv, "")
	assert.Contains(t, SharedLibraryPath(""), "third_party")
}

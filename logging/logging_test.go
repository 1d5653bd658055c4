package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap/zapcore"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(Conf{})
	assert.NoError(t, err)
	check.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	check.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name string
		conf Conf
	}{
		{"bad level", Conf{Level: "loud"}},
		{"bad format", Conf{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.conf)
			check.Error(t, err)
		})
	}
}

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	logger, err := New(Conf{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	assert.NoError(t, err)

	logger.Debug("bid accepted")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	check.True(t, strings.Contains(string(data), `"msg":"bid accepted"`))
	check.True(t, strings.Contains(string(data), `"level":"debug"`))
}

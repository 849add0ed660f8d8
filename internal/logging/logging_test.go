package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { Setup("info", os.Stderr) })

	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			Setup(tt.input, &bytes.Buffer{})
			assert.Equal(t, tt.want, logrus.GetLevel())
		})
	}
}

func TestWithModule(t *testing.T) {
	var buf bytes.Buffer
	Setup("info", &buf)
	t.Cleanup(func() { Setup("info", os.Stderr) })

	WithModule("workflow").Info("hello")

	assert.Contains(t, buf.String(), "module=workflow")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestOpenFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	f, err := OpenFile(dir)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("line\n")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

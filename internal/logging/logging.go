// Package logging configures the process-wide logrus logger. The TUI owns
// the terminal, so logs are written to a file in the data directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileName is the log file created inside the data directory
const FileName = "rxflow.log"

// Setup sets the level and output of the standard logger. Unknown levels
// fall back to info.
func Setup(logLevel string, out io.Writer) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
}

// OpenFile opens (creating if needed) the log file in dataDir for appending
func OpenFile(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dataDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// WithModule returns an entry tagged with the component name
func WithModule(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}

package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level][%field] %msg", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "decode failed",
		Data:    logrus.Fields{"plugin": "en10mb", "dlt": 1},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [WARNING][dlt=1,plugin=en10mb] decode failed", string(out))
}

func TestFormatterWithoutCaller(t *testing.T) {
	f := &formatter{pattern: "%caller %func", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "- -", string(out))
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriterContinuesPastFailure(t *testing.T) {
	var buf bytes.Buffer
	w := NewMultiWriter().Add(failingWriter{}).Add(&buf)

	n, err := w.Write([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.Error(t, err)
	assert.Equal(t, "hello", buf.String())
}

func TestNewLogrusLevelAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcpedit.log")
	var stdout bytes.Buffer

	l, err := newLogrus(&Config{
		Level:   "debug",
		Pattern: "%level %msg\n",
		File:    FileConfig{Enabled: true, Path: path, MaxSizeMB: 1},
	}, &stdout)
	require.NoError(t, err)
	assert.True(t, l.IsLevelEnabled(logrus.DebugLevel))

	l.Debug("hello")
	assert.Equal(t, "DEBUG hello\n", stdout.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "DEBUG hello"))
}

func TestNewLogrusFileWithoutPath(t *testing.T) {
	_, err := newLogrus(&Config{File: FileConfig{Enabled: true}}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := newLogrus(&Config{Level: "chatty"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestGetLoggerBeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
	require.NoError(t, Init(&Config{Level: "warn"}))
	assert.False(t, GetLogger().IsInfoEnabled())
	require.NoError(t, Init(&Config{Level: "info"}))
}

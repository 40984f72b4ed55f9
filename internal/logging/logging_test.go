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

func TestNewWritesToStderrAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "spectrai.log")

	logger, err := New(Options{Level: "debug", File: file, NoColors: true}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("image", "a.png").Info("loaded")

	assert.Contains(t, buf.String(), "loaded")
	assert.Contains(t, buf.String(), "a.png")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "loaded")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	assert.NotNil(t, l)
}

func TestNewReportsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{NoColors: true, Caller: true}, &buf)
	require.NoError(t, err)

	logger.Info("with caller")
	assert.Contains(t, buf.String(), "[logging_test.go:")
	assert.Contains(t, buf.String(), "[TestNewReportsCaller()]")

	buf.Reset()
	logger, err = New(Options{NoColors: true}, &buf)
	require.NoError(t, err)
	logger.Info("without caller")
	assert.NotContains(t, buf.String(), "logging_test.go")
}

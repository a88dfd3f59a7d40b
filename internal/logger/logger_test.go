package logger_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/mergeload/internal/logger"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logger.ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, logger.ParseLevel(" warning "))
	require.Equal(t, zerolog.Disabled, logger.ParseLevel("off"))
	require.Equal(t, zerolog.InfoLevel, logger.ParseLevel("bogus"))
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Options{Level: "warn", Format: "json", Writer: &buf})

	l.Info().Msg("hidden")
	l.Warn().Str("source", "people").Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"source":"people"`)
	require.Contains(t, buf.String(), `"message":"shown"`)
}

func TestInit_ReplacesRoot(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Options{Level: "info", Format: "json", Writer: &buf})

	logger.Named("merge").Info().Msg("hello")

	require.Contains(t, buf.String(), `"component":"merge"`)
}

package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "info", false)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Debug().Msg("hidden")
	log.Info().Str("addr", "127.0.0.1:5001").Msg("listening")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "listening")
	assert.Contains(t, buf.String(), "addr=127.0.0.1:5001")
	assert.NotContains(t, buf.String(), "\x1b[", "no colors when not writing to a terminal")
}

func TestNewLoggerQuiet(t *testing.T) {
	log, err := newLogger(&bytes.Buffer{}, "debug", true)
	require.NoError(t, err)
	assert.Equal(t, zerolog.ErrorLevel, log.GetLevel())
}

func TestNewLoggerBadLevel(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		_, err := newLogger(&bytes.Buffer{}, level, false)
		assert.Equal(t, KindConfig, kindOf(err), level)
	}
}

package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"console format", func(c *Config) { c.Format = "console" }, true},
		{"bad level", func(c *Config) { c.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Format = "xml" }, false},
		{"no outputs", func(c *Config) { c.Output.Stdout = false; c.Output.OTEL = false }, false},
		{"zero sampling tick", func(c *Config) { c.Sampling.Tick = 0 }, false},
		{"sampling disabled ignores tick", func(c *Config) { c.Sampling.Enabled = false; c.Sampling.Tick = 0 }, true},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }, false},
		{"invalid redaction pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, false},
		{"oversized redaction pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} }, false},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"service": ""} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func encodeWith(t *testing.T, cfg RedactionConfig, fields ...zap.Field) string {
	t.Helper()
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, cfg)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Now(),
		Message: "test",
	}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoderFieldNames(t *testing.T) {
	cfg := DefaultConfig().Redaction
	out := encodeWith(t, cfg,
		zap.String("api_key", "super-secret"),
		zap.String("Token", "also-secret"),
		zap.String("file", "a.py"),
	)

	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "also-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "a.py")
}

func TestRedactingEncoderValuePatterns(t *testing.T) {
	cfg := DefaultConfig().Redaction
	out := encodeWith(t, cfg,
		zap.String("header", "Bearer abc123def456"),
		zap.String("env", "OPENAI_API_KEY=sk-aaaaaaaaaaaaaaaaaaaaaaaa"),
		zap.String("note", "nothing sensitive here"),
	)

	assert.NotContains(t, out, "abc123def456")
	assert.NotContains(t, out, "sk-aaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Contains(t, out, "[REDACTED:pattern]")
	assert.Contains(t, out, "nothing sensitive here")
}

func TestRedactingEncoderDisabledPassesThrough(t *testing.T) {
	out := encodeWith(t, RedactionConfig{Enabled: false},
		zap.String("api_key", "visible-when-disabled"),
	)
	assert.Contains(t, out, "visible-when-disabled")
}

func TestRedactingEncoderRejectsBadPattern(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	_, err := NewRedactingEncoder(base, RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("key", "12345")
	assert.Equal(t, "[REDACTED:5]", f.String)
}

func TestNewBuildsLoggerFromDefaults(t *testing.T) {
	logger, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("smoke", zap.String("k", "v"))
	Sync(logger)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "nope"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestTestLoggerObservesEntries(t *testing.T) {
	logger := NewTestLogger()
	logger.Warn("disk is filling up")

	logger.AssertLogged(t, zapcore.WarnLevel, "disk is filling")
	logger.AssertNotLogged(t, zapcore.ErrorLevel, "disk")
	require.Len(t, logger.All(), 1)
}

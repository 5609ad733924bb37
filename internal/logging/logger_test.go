package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/cql-migration-engine/internal/config"
	"github.com/aqasim81/cql-migration-engine/internal/logging"
)

func TestNewLogger_levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   string
		want    zerolog.Level
		wantErr bool
	}{
		{level: "", want: zerolog.InfoLevel},
		{level: "debug", want: zerolog.DebugLevel},
		{level: "warn", want: zerolog.WarnLevel},
		{level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			cfg.LogLevel = tt.level

			logger, err := logging.NewLogger(cfg, &bytes.Buffer{})
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestLogConfig_masksPassword(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := config.New()
	cfg.LogLevel = "debug"
	cfg.Password = "s3cret"

	logger, err := logging.NewLogger(cfg, &buf)
	require.NoError(t, err)

	logging.LogConfig(logger, cfg)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "***", entry["password"])
	assert.NotContains(t, buf.String(), "s3cret")
	assert.Equal(t, "effective configuration", entry["message"])
}

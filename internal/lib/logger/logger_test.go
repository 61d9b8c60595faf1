package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/endesa-gateway/internal/config"
)

func TestSetup_Profiles(t *testing.T) {
	tests := []struct {
		env   string
		level slog.Level
	}{
		{env: config.EnvLocal, level: slog.LevelDebug},
		{env: config.EnvDev, level: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			log, closer, err := Setup(tt.env, "")
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.Equal(t, tt.level, Level(log))
			assert.NoError(t, closer.Close())
		})
	}
}

func TestSetup_ProdWritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "webserver.log")

	log, closer, err := Setup(config.EnvProd, file)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, Level(log))

	log.Debug("hidden")
	log.Info("MongoDB connected", slog.String("db", "endesa"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "MongoDB connected", line["msg"])
	assert.Equal(t, "endesa", line["db"])
	assert.NotContains(t, string(data), "hidden")
}

func TestSetup_Errors(t *testing.T) {
	_, _, err := Setup("staging", "")
	require.Error(t, err)

	_, _, err = Setup(config.EnvProd, filepath.Join(t.TempDir(), "no", "such", "dir", "app.log"))
	require.Error(t, err)
}

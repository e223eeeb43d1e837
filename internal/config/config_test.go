package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/adapters/similarity"
	"cellfate/domain/core"
	"cellfate/domain/lineage"
	apperrors "cellfate/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "PORT", "DATABASE_URL", "RSCRIPT_PATH"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "latent_time", cfg.Trend.TimeKey)
	assert.Equal(t, 200, cfg.Trend.NTestPoints)
	assert.Equal(t, 0.01, cfg.Trend.WeightThreshold)
	assert.Equal(t, lineage.ModeDist, cfg.Reduce.Mode)
	assert.Equal(t, similarity.MutualInfo, cfg.Reduce.Measure)
	assert.Equal(t, lineage.NormalizeSoftmax, cfg.Reduce.Normalization)
	assert.Equal(t, 1.0, cfg.Reduce.SoftmaxBeta)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.RTimeout)
	assert.Equal(t, "INFO", cfg.Runtime.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "", cfg.Database.URL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CELLFATE_TIME_KEY", "dpt_pseudotime")
	t.Setenv("CELLFATE_N_TEST_POINTS", "50")
	t.Setenv("CELLFATE_REDUCE_MODE", "scale")
	t.Setenv("CELLFATE_DIST_MEASURE", similarity.CosineSim)
	t.Setenv("CELLFATE_NORMALIZE_WEIGHTS", "scale")
	t.Setenv("CELLFATE_SEED", "7")
	t.Setenv("CELLFATE_PARALLELISM", "4")
	t.Setenv("CELLFATE_R_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/cellfate?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dpt_pseudotime", cfg.Trend.TimeKey)
	assert.Equal(t, 50, cfg.Trend.NTestPoints)
	assert.Equal(t, lineage.ModeScale, cfg.Reduce.Mode)
	assert.Equal(t, similarity.CosineSim, cfg.Reduce.Measure)
	assert.Equal(t, lineage.NormalizeScale, cfg.Reduce.Normalization)
	assert.Equal(t, int64(7), cfg.Runtime.Seed)
	assert.Equal(t, 4, cfg.Runtime.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.Runtime.RTimeout)
	assert.Equal(t, "DEBUG", cfg.Runtime.LogLevel)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/cellfate?sslmode=disable", cfg.Database.URL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CELLFATE_N_TEST_POINTS", "many")
	t.Setenv("CELLFATE_R_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Trend.NTestPoints)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.RTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value, code string
	}{
		{"too few test points", "CELLFATE_N_TEST_POINTS", "1", apperrors.CodeConfigInvalid},
		{"threshold above one", "CELLFATE_WEIGHT_THRESHOLD", "1.5", apperrors.CodeConfigInvalid},
		{"unknown measure", "CELLFATE_DIST_MEASURE", "euclidean", apperrors.CodeConfigInvalid},
		{"non-positive beta", "CELLFATE_SOFTMAX_BETA", "0", apperrors.CodeConfigInvalid},
		{"negative parallelism", "CELLFATE_PARALLELISM", "-2", apperrors.CodeConfigInvalid},
		{"non-numeric port", "PORT", "http", apperrors.CodeConfigInvalid},
		{"unknown mode", "CELLFATE_REDUCE_MODE", "merge", apperrors.CodeValidationError},
		{"unknown normalization", "CELLFATE_NORMALIZE_WEIGHTS", "l1", apperrors.CodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestUnknownModeKeepsSentinel(t *testing.T) {
	t.Setenv("CELLFATE_REDUCE_MODE", "merge")
	_, err := Load()
	assert.True(t, errors.Is(err, core.ErrUnknownOption))
}

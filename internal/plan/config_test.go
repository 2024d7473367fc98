package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.ErrorIs(t, Config{DetourFactor: 1.0, AvgSpeedKmh: 30}.Validate(), ErrConfig)
	require.ErrorIs(t, Config{DetourFactor: 0.9, AvgSpeedKmh: 30}.Validate(), ErrConfig)
	require.ErrorIs(t, Config{DetourFactor: 1.3, AvgSpeedKmh: 0}.Validate(), ErrConfig)
	require.ErrorIs(t, Config{DetourFactor: 1.3, AvgSpeedKmh: -5}.Validate(), ErrConfig)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detourFactor: 1.5\navgSpeedKmh: 25\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, Config{DetourFactor: 1.5, AvgSpeedKmh: 25}, cfg)

	// Omitted fields keep the defaults.
	require.NoError(t, os.WriteFile(path, []byte("detourFactor: 1.4\n"), 0o644))
	cfg, err = LoadConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, 1.4, cfg.DetourFactor)
	require.Equal(t, DefaultConfig().AvgSpeedKmh, cfg.AvgSpeedKmh)

	// Invalid values in the file are rejected.
	require.NoError(t, os.WriteFile(path, []byte("detourFactor: 0.5\n"), 0o644))
	_, err = LoadConfigFile(path)
	require.ErrorIs(t, err, ErrConfig)
}

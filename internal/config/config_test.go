package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/vitalsim/internal/config"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv makes sure no variable from the outer environment leaks in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"VITALSIM_CONFIG", "PATIENT_ID", "DEVICE_ID", "SEND_INTERVAL", "AUTH_TOKEN",
		"VITALSIM_PATIENT_ID", "VITALSIM_DEVICE_ID", "VITALSIM_SEND_INTERVAL",
		"VITALSIM_AUTH_TOKEN", "VITALSIM_DEVICES", "VITALSIM_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vitalsim.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultScenario, cfg.Scenario)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, config.DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, config.DefaultPatientID, cfg.PatientID)
	assert.Equal(t, config.DefaultDeviceID, cfg.DeviceID)
	assert.Equal(t, time.Second, cfg.SendInterval)
	assert.Equal(t, 10*time.Second, cfg.SmoothingWindow)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout)
	assert.InDelta(t, 0.03, cfg.NoiseLevel, 1e-9)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.HistoryEnabled)
	assert.Empty(t, cfg.Devices)
	assert.Equal(t, []string{config.DefaultDeviceID}, cfg.DeviceIDs())
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
endpoint = "http://ingest.local:8080/"
patient_id = "p-42"
device_id = "d-42"
send_interval = 2.5
noise_level = 0.05
log_level = "debug"
history_enabled = true
history_db = "/tmp/history.db"
devices = ["a", "b"]
`)
	t.Setenv("VITALSIM_CONFIG", path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "http://ingest.local:8080", cfg.Endpoint)
	assert.Equal(t, "p-42", cfg.PatientID)
	assert.Equal(t, "d-42", cfg.DeviceID)
	assert.Equal(t, 2500*time.Millisecond, cfg.SendInterval)
	assert.InDelta(t, 0.05, cfg.NoiseLevel, 1e-9)
	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.True(t, cfg.HistoryEnabled)
	assert.Equal(t, "/tmp/history.db", cfg.HistoryDB)
	assert.Equal(t, []string{"a", "b"}, cfg.DeviceIDs())
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
patient_id = "from-file"
device_id = "from-file"
send_interval = 3
`)
	t.Setenv("PATIENT_ID", "from-env")
	t.Setenv("DEVICE_ID", "from-env")
	t.Setenv("SEND_INTERVAL", "0.5")

	cfg, err := config.Load([]string{"--device", "from-flag"}, config.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.PatientID, "env overrides file")
	assert.Equal(t, "from-flag", cfg.DeviceID, "flag overrides env")
	assert.Equal(t, 500*time.Millisecond, cfg.SendInterval, "SEND_INTERVAL is in seconds")
}

func TestLoadPrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITALSIM_PATIENT_ID", "prefixed")
	t.Setenv("PATIENT_ID", "short")
	t.Setenv("VITALSIM_DEVICES", "x, y,z")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "prefixed", cfg.PatientID)
	assert.Equal(t, []string{"x", "y", "z"}, cfg.Devices)
}

func TestLoadFlags(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{
		"--interval", "0.25",
		"--transport", "mqtt",
		"--token", "secret",
		"--assign",
		"--devices", "a,b",
		"--list",
		"deteriorate",
	})
	require.NoError(t, err)

	assert.Equal(t, "deteriorate", cfg.Scenario)
	assert.Equal(t, 250*time.Millisecond, cfg.SendInterval)
	assert.Equal(t, "mqtt", cfg.Transport)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.True(t, cfg.AssignDevice)
	assert.True(t, cfg.ListScenarios)
	assert.Equal(t, []string{"a", "b"}, cfg.Devices)
}

func TestDebugFlag(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{"--debug"})
	require.NoError(t, err)
	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
}

func TestLoadHelp(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestLoadUnknownFlag(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--no-such-flag"})
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITALSIM_CONFIG", writeConfig(t, "This is not a valid TOML file"))

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"zero interval", []string{"--interval", "0"}, errors.ErrInvalidInterval},
		{"negative interval", []string{"--interval", "-1"}, errors.ErrInvalidInterval},
		{"noise too high", []string{"--noise", "1"}, errors.ErrInvalidConfig},
		{"negative noise", []string{"--noise", "-0.1"}, errors.ErrInvalidConfig},
		{"unknown transport", []string{"--transport", "carrier-pigeon"}, errors.ErrInvalidConfig},
		{"invalid log level", []string{"--log-level", "loud"}, errors.ErrInvalidLogLevel},
		{"empty patient", []string{"--patient", ""}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.args)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestLogLevelIsValid(t *testing.T) {
	assert.True(t, config.LogLevelWarning.IsValid())
	assert.False(t, config.LogLevel("verbose").IsValid())
}

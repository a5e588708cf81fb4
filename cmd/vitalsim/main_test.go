package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quickScenario = `
name: quick
duration: 0.2
vitals:
  heart_rate:
    - { time: 0, kind: constant, value: 70 }
  temperature:
    - { time: 0, kind: constant, value: 36.9 }
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"VITALSIM_CONFIG", "PATIENT_ID", "DEVICE_ID", "SEND_INTERVAL", "AUTH_TOKEN"} {
		t.Setenv(name, "")
	}
}

func scenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(quickScenario), 0o600))
	return dir
}

func TestRunList(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, 0, run(context.Background(), []string{"--list"}))
}

func TestRunHelp(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, 0, run(context.Background(), []string{"--help"}))
}

func TestRunInvalidConfig(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, 1, run(context.Background(), []string{"--interval", "0"}))
}

func TestRunUnknownScenario(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, 1, run(context.Background(), []string{"no-such-scenario"}))
}

func TestRunUnreachableEndpoint(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, 1, run(context.Background(), []string{
		"--endpoint", "http://127.0.0.1:1",
		"--timeout", "0.5",
		"--device", "main-test-unreachable",
		"stable",
	}))
}

func TestRunCompletes(t *testing.T) {
	clearEnv(t)

	var vitals atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/vitals", func(w http.ResponseWriter, _ *http.Request) {
		vitals.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code := run(context.Background(), []string{
		"--endpoint", srv.URL,
		"--scenario-dir", scenarioDir(t),
		"--interval", "0.05",
		"--drain-timeout", "1",
		"--device", "main-test-complete",
		"quick",
	})

	assert.Equal(t, 0, code)
	assert.Positive(t, vitals.Load())
}

func TestRunInterruptedDuringConnectivityCheck(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	code := run(ctx, []string{
		"--endpoint", srv.URL,
		"--scenario-dir", scenarioDir(t),
		"--timeout", "5",
		"--device", "main-test-interrupt",
		"quick",
	})

	assert.Equal(t, 0, code)
}

func TestRunInterruptedWhileRunning(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	code := run(ctx, []string{
		"--endpoint", srv.URL,
		"--interval", "0.05",
		"--device", "main-test-interrupt-running",
		"stable",
	})

	assert.Equal(t, 0, code)
}

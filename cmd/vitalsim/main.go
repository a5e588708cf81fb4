package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/vitalsim/internal/config"
	"codeberg.org/mutker/vitalsim/internal/delivery"
	"codeberg.org/mutker/vitalsim/internal/engine"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/history"
	"codeberg.org/mutker/vitalsim/internal/logger"
	"codeberg.org/mutker/vitalsim/internal/pid"
	"codeberg.org/mutker/vitalsim/internal/scenario"
	"github.com/spf13/pflag"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// run executes the simulator and returns the process exit code. Cancelling
// ctx is an interrupt: the run ends early and still exits 0.
func run(ctx context.Context, args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		config.Usage(os.Stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	level, _ := logger.ParseLevel(cfg.LogLevel.String())
	logger.Init(level, logger.IsService())
	logger.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	loader := scenario.NewLoader(cfg.ScenarioDir)
	if cfg.ListScenarios {
		return listScenarios(loader)
	}

	sc, err := loader.Load(cfg.Scenario)
	if err != nil {
		logError(err, "Failed to load scenario")
		return 1
	}

	devices := cfg.DeviceIDs()
	for _, deviceID := range devices {
		lock, err := pid.Acquire(deviceID)
		if err != nil {
			logError(err, "Failed to acquire device lock")
			return 1
		}
		defer releaseLock(lock)
	}

	histCfg := history.DefaultConfig()
	histCfg.Enabled = cfg.HistoryEnabled
	histCfg.DBPath = cfg.HistoryDB
	recorder, err := history.NewService(histCfg, logger.New("history"))
	if err != nil {
		logError(err, "Failed to initialize run history")
		return 1
	}
	defer recorder.Close()

	engines := make([]*engine.Engine, 0, len(devices))
	for _, deviceID := range devices {
		client, err := newClient(cfg, deviceID)
		if err != nil {
			logError(err, "Failed to create delivery client")
			return 1
		}
		defer client.Close()

		if cfg.AssignDevice {
			assignDevice(ctx, client, deviceID, cfg)
		}

		e := engine.New(engine.Options{
			PatientID:       cfg.PatientID,
			DeviceID:        deviceID,
			SendInterval:    cfg.SendInterval,
			SmoothingWindow: cfg.SmoothingWindow,
			NoiseLevel:      cfg.NoiseLevel,
			Seed:            cfg.Seed,
			DrainTimeout:    cfg.DrainTimeout,
		}, client, recorder, logger.New("engine"))
		if err := e.LoadScenario(sc); err != nil {
			logError(err, "Failed to load scenario")
			return 1
		}
		engines = append(engines, e)
	}

	if _, err := engine.NewFleet(engines...).Run(ctx); err != nil {
		if errors.HasCode(err, errors.ErrCancelled) {
			logger.Info().Msg("Interrupted before the simulation started")
			return 0
		}
		logError(err, "Simulation failed")
		return 1
	}

	logger.Info().Msg("Exiting...")
	return 0
}

func newClient(cfg *config.Config, deviceID string) (delivery.Client, error) {
	client, err := delivery.NewClient(delivery.Config{
		Transport:   cfg.Transport,
		Timeout:     cfg.Timeout,
		Endpoint:    cfg.Endpoint,
		Broker:      cfg.MQTTBroker,
		ClientID:    "vitalsim-" + deviceID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         1,
	}, logger.New("delivery").With("device_id", deviceID))
	if err != nil {
		return nil, err
	}

	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}

	return client, nil
}

// assignDevice links the device to the patient. Failure only warns; the run
// proceeds either way.
func assignDevice(ctx context.Context, client delivery.Client, deviceID string, cfg *config.Config) {
	if !client.TestConnection(ctx) {
		logger.Warn().Str("device_id", deviceID).Msg("Skipping device assignment, endpoint unreachable")
		return
	}

	res := client.AssignDevice(ctx, deviceID, cfg.PatientID, cfg.AssignNotes)
	if !res.Success {
		logger.Warn().
			Err(res.Failure()).
			Str("device_id", deviceID).
			Int("status", res.Status).
			Msg("Device assignment failed")
		return
	}

	logger.Info().
		Str("device_id", deviceID).
		Str("patient_id", cfg.PatientID).
		Msg("Device assigned")
}

func listScenarios(loader *scenario.Loader) int {
	names, err := loader.List()
	if err != nil {
		logError(err, "Failed to list scenarios")
		return 1
	}

	for _, name := range names {
		fmt.Println(name)
	}
	return 0
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func releaseLock(lock *pid.Lock) {
	if err := lock.Release(); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove PID file")
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

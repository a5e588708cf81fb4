package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/vitalsim/internal/delivery"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix       = "VITALSIM"
	DefaultScenario        = "stable"
	DefaultEndpoint        = "http://localhost:3000"
	DefaultMQTTBroker      = "tcp://localhost:1883"
	DefaultPatientID       = "patient-001"
	DefaultDeviceID        = "device-001"
	DefaultSendInterval    = 1.0 // seconds
	DefaultDrainTimeout    = 5.0 // seconds
	DefaultLogLevel        = LogLevelInfo
	DefaultHistoryDB       = "/var/lib/vitalsim/history.db"
	DefaultConfigName      = "vitalsim"
	DefaultSystemConfigDir = "/etc/vitalsim"
)

type Config struct {
	// Scenario is the positional scenario name.
	Scenario      string
	ListScenarios bool
	ConfigFile    string

	Transport       string
	Endpoint        string
	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
	Timeout         time.Duration

	PatientID string
	DeviceID  string
	// Devices, when set, runs one engine per device id.
	Devices []string

	SendInterval    time.Duration
	SmoothingWindow time.Duration
	NoiseLevel      float64
	Seed            int64
	DrainTimeout    time.Duration
	ScenarioDir     string

	AuthToken    string
	AssignDevice bool
	AssignNotes  string

	LogLevel LogLevel

	HistoryEnabled bool
	HistoryDB      string
}

// envAliases are the short variable names accepted besides the prefixed ones.
var envAliases = map[string]string{
	"patient_id":    "PATIENT_ID",
	"device_id":     "DEVICE_ID",
	"send_interval": "SEND_INTERVAL",
	"auth_token":    "AUTH_TOKEN",
}

// Load builds the configuration from flags, environment, config file and
// defaults, in that order of precedence. args excludes the program name.
// It returns pflag.ErrHelp when --help was requested.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := bindFlags(v, fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, o.envPrefix+"_"+strings.ToUpper(key), alias); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, fs, o); err != nil {
		return nil, err
	}

	cfg := fromViper(v)
	if fs.NArg() > 0 {
		cfg.Scenario = fs.Arg(0)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", delivery.TransportHTTP)
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("mqtt_broker", DefaultMQTTBroker)
	v.SetDefault("mqtt_topic_prefix", delivery.DefaultTopicPrefix)
	v.SetDefault("timeout", delivery.DefaultTimeout.Seconds())
	v.SetDefault("patient_id", DefaultPatientID)
	v.SetDefault("device_id", DefaultDeviceID)
	v.SetDefault("devices", []string{})
	v.SetDefault("send_interval", DefaultSendInterval)
	v.SetDefault("smoothing_window", generator.DefaultSmoothingWindow.Seconds())
	v.SetDefault("noise_level", generator.DefaultNoiseLevel)
	v.SetDefault("seed", 0)
	v.SetDefault("drain_timeout", DefaultDrainTimeout)
	v.SetDefault("scenario_dir", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("assign_device", false)
	v.SetDefault("assign_notes", "")
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("history_enabled", false)
	v.SetDefault("history_db", DefaultHistoryDB)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("vitalsim", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {}

	fs.StringP("config", "c", "", "Path to a TOML configuration file")
	fs.BoolP("list", "l", false, "List available scenarios and exit")
	fs.String("transport", delivery.TransportHTTP, "Delivery transport (http|mqtt)")
	fs.StringP("endpoint", "e", DefaultEndpoint, "Base URL of the ingestion service")
	fs.String("mqtt-broker", DefaultMQTTBroker, "MQTT broker URL")
	fs.String("mqtt-topic-prefix", delivery.DefaultTopicPrefix, "MQTT topic prefix")
	fs.String("mqtt-username", "", "MQTT username")
	fs.String("mqtt-password", "", "MQTT password")
	fs.Float64("timeout", delivery.DefaultTimeout.Seconds(), "Per-request delivery timeout in seconds")
	fs.StringP("patient", "p", DefaultPatientID, "Patient id stamped on every payload")
	fs.StringP("device", "d", DefaultDeviceID, "Device id stamped on every payload")
	fs.StringSlice("devices", nil, "Run one simulator per device id (comma separated)")
	fs.Float64P("interval", "i", DefaultSendInterval, "Seconds between payloads")
	fs.Float64("smoothing-window", generator.DefaultSmoothingWindow.Seconds(), "Smoothing window in seconds")
	fs.Float64("noise", generator.DefaultNoiseLevel, "Relative noise level")
	fs.Int64("seed", 0, "Random seed (0 picks one)")
	fs.Float64("drain-timeout", DefaultDrainTimeout, "Seconds to wait for in-flight deliveries at the end of a run")
	fs.String("scenario-dir", "", "Directory searched for scenario files before the built-ins")
	fs.String("token", "", "Bearer token for authenticated requests")
	fs.Bool("assign", false, "Assign the device to the patient before running")
	fs.String("assign-notes", "", "Notes sent with the device assignment")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug|info|warning|error)")
	fs.Bool("debug", false, "Enable debug logging")
	fs.Bool("history", false, "Record run history")
	fs.String("history-db", DefaultHistoryDB, "Path to the run history database")

	return fs
}

// Usage writes the command line help to w.
func Usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: vitalsim [flags] [scenario]\n\nFlags:\n%s", newFlagSet().FlagUsages())
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"config":            "config",
	"list":              "list",
	"transport":         "transport",
	"endpoint":          "endpoint",
	"mqtt-broker":       "mqtt_broker",
	"mqtt-topic-prefix": "mqtt_topic_prefix",
	"mqtt-username":     "mqtt_username",
	"mqtt-password":     "mqtt_password",
	"timeout":           "timeout",
	"patient":           "patient_id",
	"device":            "device_id",
	"devices":           "devices",
	"interval":          "send_interval",
	"smoothing-window":  "smoothing_window",
	"noise":             "noise_level",
	"seed":              "seed",
	"drain-timeout":     "drain_timeout",
	"scenario-dir":      "scenario_dir",
	"token":             "auth_token",
	"assign":            "assign_device",
	"assign-notes":      "assign_notes",
	"log-level":         "log_level",
	"history":           "history_enabled",
	"history-db":        "history_db",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return err
		}
	}

	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("log_level", string(LogLevelDebug))
	}

	return nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		path = flagPath
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultSystemConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Scenario:        DefaultScenario,
		ListScenarios:   v.GetBool("list"),
		ConfigFile:      v.ConfigFileUsed(),
		Transport:       strings.ToLower(v.GetString("transport")),
		Endpoint:        strings.TrimRight(v.GetString("endpoint"), "/"),
		MQTTBroker:      v.GetString("mqtt_broker"),
		MQTTTopicPrefix: v.GetString("mqtt_topic_prefix"),
		MQTTUsername:    v.GetString("mqtt_username"),
		MQTTPassword:    v.GetString("mqtt_password"),
		Timeout:         seconds(v.GetFloat64("timeout")),
		PatientID:       v.GetString("patient_id"),
		DeviceID:        v.GetString("device_id"),
		Devices:         splitList(v.GetStringSlice("devices")),
		SendInterval:    seconds(v.GetFloat64("send_interval")),
		SmoothingWindow: seconds(v.GetFloat64("smoothing_window")),
		NoiseLevel:      v.GetFloat64("noise_level"),
		Seed:            v.GetInt64("seed"),
		DrainTimeout:    seconds(v.GetFloat64("drain_timeout")),
		ScenarioDir:     v.GetString("scenario_dir"),
		AuthToken:       v.GetString("auth_token"),
		AssignDevice:    v.GetBool("assign_device"),
		AssignNotes:     v.GetString("assign_notes"),
		LogLevel:        LogLevel(strings.ToLower(v.GetString("log_level"))),
		HistoryEnabled:  v.GetBool("history_enabled"),
		HistoryDB:       v.GetString("history_db"),
	}
}

// seconds converts a seconds value to a Duration at millisecond resolution.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}

// splitList accepts both list values and comma separated strings.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// Validate checks the configuration for values the simulator cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SendInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.SendInterval.String())
	}
	if c.SmoothingWindow < 0 || c.Timeout < 0 || c.DrainTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "durations must not be negative")
	}
	if c.NoiseLevel < 0 || c.NoiseLevel >= 1 || math.IsNaN(c.NoiseLevel) {
		return errFactory.WithData(errors.ErrInvalidConfig, "noise_level must be in [0, 1)")
	}
	if c.Transport != delivery.TransportHTTP && c.Transport != delivery.TransportMQTT {
		return errFactory.WithData(errors.ErrInvalidConfig, "unsupported transport: "+c.Transport)
	}
	if c.Transport == delivery.TransportHTTP && c.Endpoint == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "endpoint is required")
	}
	if c.Transport == delivery.TransportMQTT && c.MQTTBroker == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt_broker is required")
	}
	if c.PatientID == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "patient_id is required")
	}
	if c.DeviceID == "" && len(c.Devices) == 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "device_id is required")
	}
	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel.String())
	}
	if c.HistoryEnabled && c.HistoryDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "history_db is required when history is enabled")
	}

	return nil
}

// DeviceIDs returns the devices to simulate, at least one.
func (c *Config) DeviceIDs() []string {
	if len(c.Devices) > 0 {
		return c.Devices
	}
	return []string{c.DeviceID}
}

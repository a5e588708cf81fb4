package config

// Option overrides where Load looks for its sources.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile reads path instead of searching for vitalsim.toml.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// LogLevel is a log_level value as written in config, env or flags.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

var logLevels = map[LogLevel]struct{}{
	LogLevelDebug:   {},
	LogLevelInfo:    {},
	LogLevelWarning: {},
	LogLevelError:   {},
}

func (l LogLevel) IsValid() bool {
	_, ok := logLevels[l]
	return ok
}

func (l LogLevel) String() string {
	return string(l)
}

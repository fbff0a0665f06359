package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for tendersync.
type Config struct {
	API        APIConfig        `mapstructure:"api"        yaml:"api"`
	Retrievers RetrieversConfig `mapstructure:"retrievers" yaml:"retrievers"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`

	// Location is api.timezone resolved via time.LoadLocation, populated by
	// Load/ResolveLocation. Never unmarshaled directly — mapstructure skips
	// it — since viper only ever gives us the zone name.
	Location *time.Location `mapstructure:"-" yaml:"-"`
}

// ResolveLocation loads cfg.API.TimeZone via time.LoadLocation and stores it
// on cfg.Location, matching the original's `pytz.timezone(TZ)` (spec.md §6).
// Called by Load; exposed so callers building a Config by hand (tests, the
// SDK's functional options) can resolve it too.
func (c *Config) ResolveLocation() error {
	loc, err := time.LoadLocation(c.API.TimeZone)
	if err != nil {
		return err
	}
	c.Location = loc
	return nil
}

// Now returns the current time in cfg's resolved zone, falling back to UTC
// if ResolveLocation was never called — used wherever a logged or displayed
// timestamp should reflect api.timezone rather than the host's local zone
// (the original stamps last_response with `datetime.now(TZ)`).
func (c *Config) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// APIConfig describes the upstream changes-feed endpoint (spec.md §6).
type APIConfig struct {
	Host        string            `mapstructure:"host"         yaml:"host"`
	Version     string            `mapstructure:"version"      yaml:"version"`
	Key         string            `mapstructure:"key"          yaml:"key"`
	Resource    string            `mapstructure:"resource"     yaml:"resource"`
	ExtraParams map[string]string `mapstructure:"extra_params" yaml:"extra_params"`
	Adaptive    bool              `mapstructure:"adaptive"     yaml:"adaptive"`
	TimeZone    string            `mapstructure:"timezone"     yaml:"timezone"`
}

// RetrieversConfig mirrors spec.md §3's RetrieverParams.
type RetrieversConfig struct {
	DownRequestsSleep time.Duration `mapstructure:"down_requests_sleep" yaml:"down_requests_sleep"`
	UpRequestsSleep   time.Duration `mapstructure:"up_requests_sleep"   yaml:"up_requests_sleep"`
	UpWaitSleep       time.Duration `mapstructure:"up_wait_sleep"       yaml:"up_wait_sleep"`
	UpWaitSleepMin    time.Duration `mapstructure:"up_wait_sleep_min"   yaml:"up_wait_sleep_min"`
	QueueSize         int           `mapstructure:"queue_size"          yaml:"queue_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     yaml:"request_timeout"`
	Limit             int           `mapstructure:"limit"               yaml:"limit"`
}

// StorageConfig controls the optional downstream sink. Ambient: not part of
// the core synchronizer, which only ever hands items to the in-memory queue.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	BatchSize  int    `mapstructure:"batch_size"  yaml:"batch_size"`
	MongoURI   string `mapstructure:"mongo_uri"   yaml:"mongo_uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the MetricsPump and its Prometheus exposition.
type MetricsConfig struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled"`
	Port    int               `mapstructure:"port"    yaml:"port"`
	Path    string            `mapstructure:"path"    yaml:"path"`
	Args    map[string]string `mapstructure:"args"    yaml:"args"`
}

// Defaults enumerated in spec.md §3 and §6.
const (
	DefaultAPIHost    = "https://lb.api-sandbox.openprocurement.org/"
	DefaultAPIVersion = "2.3"
	DefaultResource   = "tenders"
	DefaultTimeZone   = "Europe/Kiev"
)

// DefaultConfig returns a Config with the defaults enumerated in spec.md §3/§6.
func DefaultConfig() *Config {
	cfg := defaultConfig()
	// DefaultTimeZone is always a valid IANA name, so this can't fail.
	cfg.ResolveLocation()
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:     DefaultAPIHost,
			Version:  DefaultAPIVersion,
			Resource: DefaultResource,
			ExtraParams: map[string]string{
				"opt_fields": "status",
				"mode":       "_all_",
			},
			TimeZone: DefaultTimeZone,
		},
		Retrievers: RetrieversConfig{
			DownRequestsSleep: 5 * time.Second,
			UpRequestsSleep:   1 * time.Second,
			UpWaitSleep:       30 * time.Second,
			UpWaitSleepMin:    5 * time.Second,
			QueueSize:         101,
			RequestTimeout:    60 * time.Second,
		},
		Storage: StorageConfig{
			Type:       "jsonl",
			OutputPath: "./output",
			BatchSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

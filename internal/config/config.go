package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimezone = "Asia/Ho_Chi_Minh"
	DefaultListen   = "127.0.0.1:8080"

	PartitionEven = "even"
	PartitionOdd  = "odd"
)

// LogConfig controls internal/log.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Pretty selects the console writer instead of JSON lines.
	Pretty bool `yaml:"pretty" json:"pretty"`
}

// TimezoneConfig lists the zones sessions may be scheduled in.
type TimezoneConfig struct {
	// Default is substituted whenever a request carries an unknown zone.
	Default string `yaml:"default" json:"default"`
	// Allowed is the ordered list of supported IANA zone names.
	Allowed []string `yaml:"allowed" json:"allowed"`
	// Labels maps a zone name to its display label.
	Labels map[string]string `yaml:"labels" json:"labels"`
}

// CalendarsConfig holds the remote calendar id of each partition.
type CalendarsConfig struct {
	Even string `yaml:"even" json:"even"`
	Odd  string `yaml:"odd" json:"odd"`
	// Default is the partition ("even" or "odd") used when a start time
	// cannot be routed.
	Default string `yaml:"default" json:"default"`
}

// CalendarBackendConfig selects and configures the remote Events API.
type CalendarBackendConfig struct {
	// Backend is "google" or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// CredentialsFile is a service-account JSON key for the google backend.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Endpoint overrides the Calendar API base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// ListHorizonDays bounds how far into the future List looks.
	ListHorizonDays int `yaml:"list_horizon_days" json:"list_horizon_days"`
}

// AuxConfig configures the auxiliary metadata store.
type AuxConfig struct {
	// Backend is "file" or "redis".
	Backend   string `yaml:"backend" json:"backend"`
	Path      string `yaml:"path" json:"path"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	RedisKey  string `yaml:"redis_key" json:"redis_key"`
}

// SuggestConfig configures the OpenAI-compatible suggestion service.
// An empty APIKey disables the assisted tier.
type SuggestConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// BasicAuthConfig protects the API with HTTP Basic Auth. Either field
// empty disables it.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type ReconcileConfig struct {
	// Cron is a robfig/cron spec; empty disables the job.
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`
	// BasicAuth guards every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Log       LogConfig             `yaml:"log" json:"log"`
	Timezone  TimezoneConfig        `yaml:"timezone" json:"timezone"`
	Calendars CalendarsConfig       `yaml:"calendars" json:"calendars"`
	Calendar  CalendarBackendConfig `yaml:"calendar" json:"calendar"`
	Aux       AuxConfig             `yaml:"aux" json:"aux"`
	Suggest   SuggestConfig         `yaml:"suggest" json:"suggest"`
	Reconcile ReconcileConfig       `yaml:"reconcile" json:"reconcile"`

	// FirstInstanceTolerance is how close an instance start must be to its
	// series start to count as the first instance.
	FirstInstanceTolerance time.Duration `yaml:"first_instance_tolerance" json:"first_instance_tolerance"`
}

func defaultZones() []string {
	return []string{
		"Asia/Ho_Chi_Minh", "America/Chicago", "America/New_York",
		"America/Los_Angeles", "Europe/London", "Europe/Paris",
		"Asia/Tokyo", "Australia/Sydney", "UTC",
		"America/Denver", "Europe/Berlin", "Asia/Seoul",
		"Asia/Singapore", "Pacific/Auckland",
	}
}

func defaultLabels() map[string]string {
	return map[string]string{
		"Asia/Ho_Chi_Minh":    "Vietnam Time",
		"America/Chicago":     "Central Time - Chicago",
		"America/New_York":    "Eastern Time - New York",
		"America/Los_Angeles": "Pacific Time - Los Angeles",
		"America/Denver":      "Mountain Time - Denver",
		"Europe/London":       "London Time",
		"Europe/Paris":        "Paris Time",
		"Europe/Berlin":       "Berlin Time",
		"Asia/Tokyo":          "Japan Time - Tokyo",
		"Asia/Seoul":          "Korea Time - Seoul",
		"Asia/Singapore":      "Singapore Time",
		"Australia/Sydney":    "Sydney Time",
		"Pacific/Auckland":    "New Zealand Time - Auckland",
		"UTC":                 "UTC",
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: DefaultListen,
		Log:    LogConfig{Level: "info", Pretty: true},
		Timezone: TimezoneConfig{
			Default: DefaultTimezone,
			Allowed: defaultZones(),
			Labels:  defaultLabels(),
		},
		Calendars: CalendarsConfig{Default: PartitionOdd},
		Calendar: CalendarBackendConfig{
			Backend:         "memory",
			ListHorizonDays: 60,
		},
		Aux: AuxConfig{
			Backend:  "file",
			Path:     "data/classes_extra.json",
			RedisKey: "classcal:aux",
		},
		Suggest: SuggestConfig{
			Model:   "gpt-4o-mini",
			Timeout: 20 * time.Second,
		},
		Reconcile:              ReconcileConfig{Cron: "@every 1h"},
		FirstInstanceTolerance: 60 * time.Second,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Timezone.Default == "" {
		c.Timezone.Default = d.Timezone.Default
	}
	if len(c.Timezone.Allowed) == 0 {
		c.Timezone.Allowed = d.Timezone.Allowed
	}
	if c.Timezone.Labels == nil {
		c.Timezone.Labels = d.Timezone.Labels
	}

	switch strings.ToLower(c.Calendars.Default) {
	case PartitionEven:
		c.Calendars.Default = PartitionEven
	default:
		// Unknown value; fall back to odd like a fresh install.
		c.Calendars.Default = PartitionOdd
	}

	switch c.Calendar.Backend {
	case "google", "memory":
	default:
		c.Calendar.Backend = d.Calendar.Backend
	}
	if c.Calendar.ListHorizonDays <= 0 {
		c.Calendar.ListHorizonDays = d.Calendar.ListHorizonDays
	}

	switch c.Aux.Backend {
	case "file", "redis":
	default:
		c.Aux.Backend = d.Aux.Backend
	}
	if c.Aux.Path == "" {
		c.Aux.Path = d.Aux.Path
	}
	if c.Aux.RedisKey == "" {
		c.Aux.RedisKey = d.Aux.RedisKey
	}

	if c.Suggest.Model == "" {
		c.Suggest.Model = d.Suggest.Model
	}
	if c.Suggest.Timeout <= 0 {
		c.Suggest.Timeout = d.Suggest.Timeout
	}
	if c.FirstInstanceTolerance <= 0 {
		c.FirstInstanceTolerance = d.FirstInstanceTolerance
	}
}

// ApplyEnv overrides fields from CLASSCAL_* environment variables.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("CLASSCAL_LISTEN", &c.Listen)
	set("CLASSCAL_LOG_LEVEL", &c.Log.Level)
	set("CLASSCAL_CALENDAR_EVEN", &c.Calendars.Even)
	set("CLASSCAL_CALENDAR_ODD", &c.Calendars.Odd)
	set("CLASSCAL_CALENDAR_BACKEND", &c.Calendar.Backend)
	set("CLASSCAL_CREDENTIALS_FILE", &c.Calendar.CredentialsFile)
	set("CLASSCAL_AUX_BACKEND", &c.Aux.Backend)
	set("CLASSCAL_AUX_PATH", &c.Aux.Path)
	set("CLASSCAL_REDIS_ADDR", &c.Aux.RedisAddr)
	set("CLASSCAL_OPENAI_API_KEY", &c.Suggest.APIKey)
	set("CLASSCAL_OPENAI_BASE_URL", &c.Suggest.BaseURL)
	set("CLASSCAL_OPENAI_MODEL", &c.Suggest.Model)
	set("CLASSCAL_RECONCILE_CRON", &c.Reconcile.Cron)

	if v := os.Getenv("CLASSCAL_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Pretty = b
		}
	}
}

// CalendarID returns the remote calendar id for a partition name.
func (c *Config) CalendarID(partition string) string {
	if partition == PartitionEven {
		return c.Calendars.Even
	}
	return c.Calendars.Odd
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied last in both cases and are never
// written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			err := Save(path, cfg)
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, err
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

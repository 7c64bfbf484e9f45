package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const envPrefix = "NFCLEDGER_"

var ErrInvalid = errors.New("invalid configuration")

// Duration reads "3s", "1m30s" from YAML, JSON and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Env     string `yaml:"env" json:"env"`         // "dev" | "prod"
	Backend string `yaml:"backend" json:"backend"` // "sqlite" | "file" | "memory"
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// DBPath defaults to <data_dir>/ledger.db.
	DBPath string `yaml:"db_path" json:"db_path"`
	// LogFormat is the on-disk record layout of the file backend.
	LogFormat string `yaml:"log_format" json:"log_format"`

	Cooldown      Duration `yaml:"cooldown" json:"cooldown"`
	WriteAttempts int      `yaml:"write_attempts" json:"write_attempts"`
	PayloadCodec  string   `yaml:"payload_codec" json:"payload_codec"`
	// ReaderDevice is read line by line for card ids. Empty means stdin.
	ReaderDevice string `yaml:"reader_device" json:"reader_device"`

	// HTTPAddr and GRPCAddr accept "off" to disable the listener.
	HTTPAddr        string  `yaml:"http_addr" json:"http_addr"`
	GRPCAddr        string  `yaml:"grpc_addr" json:"grpc_addr"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst" json:"rate_burst"`

	// Event/dwell retention. 0 keeps everything.
	EventRetentionDays    int `yaml:"event_retention_days" json:"event_retention_days"`
	PruneIntervalHours    int `yaml:"prune_interval_hours" json:"prune_interval_hours"`
	HealthIntervalSeconds int `yaml:"health_interval_seconds" json:"health_interval_seconds"`

	CardHashKey string `yaml:"card_hash_key" json:"card_hash_key"`
	Timezone    string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`
	LogJSON  bool   `yaml:"log_json" json:"log_json"`

	// SeedIdentities are "uid:name:code" entries inserted on dev startup.
	SeedIdentities []string `yaml:"seed_identities" json:"seed_identities"`
}

func Defaults() Config {
	return Config{
		Env:                   "dev",
		Backend:               "sqlite",
		DataDir:               "./data",
		LogFormat:             "jsonl",
		Cooldown:              Duration(3 * time.Second),
		WriteAttempts:         3,
		PayloadCodec:          "json",
		HTTPAddr:              ":8080",
		GRPCAddr:              "off",
		RateLimitPerSec:       20,
		RateBurst:             40,
		EventRetentionDays:    0,
		PruneIntervalHours:    6,
		HealthIntervalSeconds: 15,
		Timezone:              "Local",
		LogLevel:              "info",
	}
}

// FromEnv returns the defaults overlaid with NFCLEDGER_* variables.
func FromEnv() Config {
	cfg := Defaults()
	cfg.ApplyEnv()
	return cfg
}

// Load reads a YAML, JSON or JSONC file over the defaults. Keys missing
// from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if err := cfg.LoadFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields whose NFCLEDGER_* variable is set. Unparsable
// numbers keep the current value.
func (c *Config) ApplyEnv() {
	c.Env = getenvDefault(envPrefix+"ENV", c.Env)
	c.Backend = getenvDefault(envPrefix+"BACKEND", c.Backend)
	c.DataDir = getenvDefault(envPrefix+"DATA_DIR", c.DataDir)
	c.DBPath = getenvDefault(envPrefix+"DB_PATH", c.DBPath)
	c.LogFormat = getenvDefault(envPrefix+"LOG_FORMAT", c.LogFormat)
	c.Cooldown = Duration(getenvDuration(envPrefix+"COOLDOWN", c.Cooldown.Std()))
	c.WriteAttempts = getenvInt(envPrefix+"WRITE_ATTEMPTS", c.WriteAttempts)
	c.PayloadCodec = getenvDefault(envPrefix+"PAYLOAD_CODEC", c.PayloadCodec)
	c.ReaderDevice = getenvDefault(envPrefix+"READER_DEVICE", c.ReaderDevice)

	c.HTTPAddr = getenvDefault(envPrefix+"HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvDefault(envPrefix+"GRPC_ADDR", c.GRPCAddr)
	c.RateLimitPerSec = getenvFloat(envPrefix+"RATE_LIMIT_PER_SEC", c.RateLimitPerSec)
	c.RateBurst = getenvInt(envPrefix+"RATE_BURST", c.RateBurst)

	c.EventRetentionDays = getenvInt(envPrefix+"EVENT_RETENTION_DAYS", c.EventRetentionDays)
	c.PruneIntervalHours = getenvInt(envPrefix+"PRUNE_INTERVAL_HOURS", c.PruneIntervalHours)
	c.HealthIntervalSeconds = getenvInt(envPrefix+"HEALTH_INTERVAL_SECONDS", c.HealthIntervalSeconds)

	c.CardHashKey = getenvDefault(envPrefix+"CARD_HASH_KEY", c.CardHashKey)
	c.Timezone = getenvDefault(envPrefix+"TIMEZONE", c.Timezone)
	c.LogLevel = getenvDefault(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogJSON = getenvBool(envPrefix+"LOG_JSON", c.LogJSON)

	if seeds := splitCSV(os.Getenv(envPrefix + "SEED_IDENTITIES")); seeds != nil {
		c.SeedIdentities = seeds
	}
}

// RegisterFlags adds the overridable keys to fs. Only flags the user
// actually set are applied by ApplyFlags.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("backend", d.Backend, "ledger backend: sqlite, file or memory")
	fs.String("data-dir", d.DataDir, "directory for ledger files")
	fs.String("db-path", "", "sqlite database path (default <data-dir>/ledger.db)")
	fs.String("log-format", d.LogFormat, "file backend record format: jsonl, csv or text")
	fs.Duration("cooldown", d.Cooldown.Std(), "duplicate read suppression window")
	fs.String("timezone", d.Timezone, "IANA zone used to cut calendar days")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.Bool("log-json", false, "emit JSON logs")
}

func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	str("backend", &c.Backend)
	str("data-dir", &c.DataDir)
	str("db-path", &c.DBPath)
	str("log-format", &c.LogFormat)
	str("timezone", &c.Timezone)
	str("log-level", &c.LogLevel)

	if fs.Changed("cooldown") {
		v, err := fs.GetDuration("cooldown")
		errs = append(errs, err)
		c.Cooldown = Duration(v)
	}
	if fs.Changed("log-json") {
		v, err := fs.GetBool("log-json")
		errs = append(errs, err)
		c.LogJSON = v
	}
	return errors.Join(errs...)
}

// Validate normalizes and checks the configuration. An unknown env is
// treated as dev.
func (c *Config) Validate() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		c.Env = "dev"
	}

	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "ledger.db")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative", ErrInvalid)
	}
	if c.WriteAttempts <= 0 {
		c.WriteAttempts = 1
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// Location resolves Timezone; "" and "Local" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Enabled reports whether a listen address is set.
func Enabled(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr != "" && !strings.EqualFold(addr, "off")
}

func (c Config) HealthInterval() time.Duration {
	if c.HealthIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"callcore/internal/telephony"
)

// DefaultPath is read when CALLCORE_CONFIG is not set.
const DefaultPath = "/etc/callcore/callcore.yaml"

// Radio modes.
const (
	ModeNetwork   = "network"
	ModeSimulated = "simulated"
)

// Config is the daemon configuration.
type Config struct {
	Phones           []PhoneConfig     `yaml:"phones"`
	PostDial         PostDialConfig    `yaml:"post_dial"`
	DisconnectCauses map[string]string `yaml:"disconnect_causes"`
	Watchdog         WatchdogConfig    `yaml:"watchdog"`
	API              APIConfig         `yaml:"api"`
	History          HistoryConfig     `yaml:"history"`
	Log              LogConfig         `yaml:"log"`
}

type PhoneConfig struct {
	ID         string      `yaml:"id"`
	Technology string      `yaml:"technology"`
	Radio      RadioConfig `yaml:"radio"`
}

type RadioConfig struct {
	Mode              string `yaml:"mode"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Secret            string `yaml:"secret"`
	ReconnectInterval int    `yaml:"reconnect_interval"` // seconds
	AutoAnswer        bool   `yaml:"auto_answer"`        // simulated mode only
}

type PostDialConfig struct {
	GSMPause  time.Duration `yaml:"gsm_pause"`
	CDMAPause time.Duration `yaml:"cdma_pause"`
}

type WatchdogConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxDialAge time.Duration `yaml:"max_dial_age"`
}

type APIConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	EnableCORS bool          `yaml:"enable_cors"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	Users      []UserConfig  `yaml:"users"`
}

type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type HistoryConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Database      DatabaseConfig `yaml:"database"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
	Retention     time.Duration  `yaml:"retention"` // zero keeps logs forever
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LogConfig struct {
	Level        string `yaml:"level"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
	File         string `yaml:"file"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
}

// Path returns the configuration file to load.
func Path() string {
	if p := os.Getenv("CALLCORE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads, completes and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document and applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overrideWithEnv lets secrets and database location come from the
// environment.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("CALLCORE_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("CALLCORE_DB_USERNAME"); v != "" {
		cfg.History.Database.Username = v
	}
	if v := os.Getenv("CALLCORE_DB_PASSWORD"); v != "" {
		cfg.History.Database.Password = v
	}
	if v := os.Getenv("CALLCORE_DB_HOST"); v != "" {
		cfg.History.Database.Host = v
	}
	if v := os.Getenv("CALLCORE_DB_DATABASE"); v != "" {
		cfg.History.Database.Database = v
	}
	if v := os.Getenv("CALLCORE_RADIO_SECRET"); v != "" {
		for i := range cfg.Phones {
			cfg.Phones[i].Radio.Secret = v
		}
	}
}

func (c *Config) applyDefaults() {
	for i := range c.Phones {
		p := &c.Phones[i]
		if p.Technology == "" {
			p.Technology = string(telephony.TechGSM)
		}
		if p.Radio.Mode == "" {
			p.Radio.Mode = ModeNetwork
		}
		if p.Radio.ReconnectInterval <= 0 {
			p.Radio.ReconnectInterval = 5
		}
	}
	if c.PostDial.GSMPause == 0 {
		c.PostDial.GSMPause = 3 * time.Second
	}
	if c.PostDial.CDMAPause == 0 {
		c.PostDial.CDMAPause = 2 * time.Second
	}
	if c.Watchdog.Interval == 0 {
		c.Watchdog.Interval = 10 * time.Second
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.TokenTTL == 0 {
		c.API.TokenTTL = 12 * time.Hour
	}
	if c.History.Database.Port == 0 {
		c.History.Database.Port = 3306
	}
	if c.History.BatchSize <= 0 {
		c.History.BatchSize = 100
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = 2 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
}

// Validate reports the first inconsistency found.
func (c *Config) Validate() error {
	if len(c.Phones) == 0 {
		return errors.New("config: at least one phone is required")
	}
	seen := make(map[string]bool, len(c.Phones))
	for _, p := range c.Phones {
		if p.ID == "" {
			return errors.New("config: phone without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate phone id %q", p.ID)
		}
		seen[p.ID] = true
		if !telephony.Technology(p.Technology).Valid() {
			return fmt.Errorf("config: phone %s: unknown technology %q", p.ID, p.Technology)
		}
		switch p.Radio.Mode {
		case ModeSimulated:
		case ModeNetwork:
			if p.Radio.Host == "" || p.Radio.Port == 0 {
				return fmt.Errorf("config: phone %s: network radio needs host and port", p.ID)
			}
		default:
			return fmt.Errorf("config: phone %s: unknown radio mode %q", p.ID, p.Radio.Mode)
		}
	}
	if _, err := telephony.NewCausePolicy(c.DisconnectCauses); err != nil {
		return fmt.Errorf("config: disconnect_causes: %w", err)
	}
	if len(c.API.Users) > 0 && c.API.JWTSecret == "" {
		return errors.New("config: api.jwt_secret is required when users are configured")
	}
	if c.History.Enabled && c.History.Database.Database == "" {
		return errors.New("config: history.database.database is required")
	}
	return nil
}

// Tech returns the phone's technology.
func (p PhoneConfig) Tech() telephony.Technology {
	return telephony.Technology(p.Technology)
}

// PauseFor returns the post-dial pause for a technology.
func (p PostDialConfig) PauseFor(t telephony.Technology) time.Duration {
	if t == telephony.TechCDMA {
		return p.CDMAPause
	}
	return p.GSMPause
}

// Address returns host:port of the API listener.
func (a APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Address returns host:port of the modem daemon.
func (r RadioConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DSN returns the MySQL data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Probe     ProbeConfig     `yaml:"probe"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type KafkaConfig struct {
	Brokers []string          `yaml:"brokers"`
	Topics  map[string]string `yaml:"topics"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

// TrackerConfig tunes the client side of the visit tracker.
type TrackerConfig struct {
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SendCooldown     time.Duration `yaml:"send_cooldown"`
	IPLookupURL      string        `yaml:"ip_lookup_url"`
}

type FallbackConfig struct {
	// Driver is one of file, redis or sqlite.
	Driver     string `yaml:"driver"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// ProbeConfig holds the environment signals a headless process cannot
// discover on its own.
type ProbeConfig struct {
	UserAgent      string  `yaml:"user_agent"`
	ScreenWidth    int     `yaml:"screen_width"`
	ScreenHeight   int     `yaml:"screen_height"`
	ViewportWidth  int     `yaml:"viewport_width"`
	ViewportHeight int     `yaml:"viewport_height"`
	ColorDepth     int     `yaml:"color_depth"`
	PixelRatio     float64 `yaml:"pixel_ratio"`
	Referrer       string  `yaml:"referrer"`
	CurrentURL     string  `yaml:"current_url"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Kafka.Topics == nil {
		c.Kafka.Topics = map[string]string{}
	}
	if c.Kafka.Topics["init"] == "" {
		c.Kafka.Topics["init"] = "visittrack.init"
	}
	if c.Kafka.Topics["tracking"] == "" {
		c.Kafka.Topics["tracking"] = "visittrack.tracking"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 100
	}

	if c.Tracker.RequestTimeout == 0 {
		c.Tracker.RequestTimeout = 10 * time.Second
	}
	if c.Tracker.SnapshotInterval == 0 {
		c.Tracker.SnapshotInterval = 30 * time.Second
	}
	if c.Tracker.SendCooldown == 0 {
		c.Tracker.SendCooldown = 5 * time.Second
	}
	if c.Tracker.IPLookupURL == "" {
		c.Tracker.IPLookupURL = "https://api.ipify.org?format=json"
	}

	if c.Fallback.Driver == "" {
		c.Fallback.Driver = "file"
	}
	if c.Fallback.Dir == "" {
		c.Fallback.Dir = "data/fallback"
	}
	if c.Fallback.SQLitePath == "" {
		c.Fallback.SQLitePath = "data/fallback.db"
	}
	if c.Fallback.KeyPrefix == "" {
		c.Fallback.KeyPrefix = "visittrack:fallback:"
	}

	if c.Probe.ColorDepth == 0 {
		c.Probe.ColorDepth = 24
	}
	if c.Probe.PixelRatio == 0 {
		c.Probe.PixelRatio = 1
	}
}

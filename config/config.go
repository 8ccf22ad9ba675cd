package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Web        WebConfig        `yaml:"web"`
	Messaging  MessagingConfig  `yaml:"messaging"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Tracking   TrackingConfig   `yaml:"tracking"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MessagingConfig struct {
	Kafka               KafkaConfig   `yaml:"kafka"`
	NotificationsTopic  string        `yaml:"notifications_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	ClientID       string `yaml:"client_id"`
	TelemetryTopic string `yaml:"telemetry_topic"`
}

// SchedulingConfig holds the route optimizer knobs.
type SchedulingConfig struct {
	TravelSpeedKmh    float64       `yaml:"travel_speed_kmh"`
	SetupMinutes      int           `yaml:"setup_minutes"`
	MaxWorkMinutes    int           `yaml:"max_work_minutes"`
	TimeoutFast       time.Duration `yaml:"timeout_fast"`
	TimeoutBalanced   time.Duration `yaml:"timeout_balanced"`
	TimeoutQuality    time.Duration `yaml:"timeout_quality"`
	JobWorkers        int           `yaml:"job_workers"`
	BusinessHourStart string        `yaml:"business_hour_start"`
	BusinessHourEnd   string        `yaml:"business_hour_end"`
}

type PredictorConfig struct {
	AnomalyContamination float64 `yaml:"anomaly_contamination"`
	ModelPath            string  `yaml:"model_path"`
}

type TrackingConfig struct {
	// Secret is the HMAC key for client tracking tokens.
	// FIELDCORE_TOKEN_SECRET overrides the file value; never written back to disk.
	Secret  string `yaml:"secret"`
	TTLDays int    `yaml:"ttl_days"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "fieldcore.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "fieldcore",
				User:     "fieldcore",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8084,
		},
		Messaging: MessagingConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "fieldcore",
			},
			NotificationsTopic:  "fieldcore.notifications",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker:         "localhost",
				Port:           1883,
				ClientID:       "fieldcore",
				TelemetryTopic: "fieldcore/telemetry/#",
			},
		},
		Scheduling: SchedulingConfig{
			TravelSpeedKmh:    50,
			SetupMinutes:      15,
			MaxWorkMinutes:    480,
			TimeoutFast:       10 * time.Second,
			TimeoutBalanced:   30 * time.Second,
			TimeoutQuality:    60 * time.Second,
			JobWorkers:        4,
			BusinessHourStart: "08:00",
			BusinessHourEnd:   "17:00",
		},
		Predictor: PredictorConfig{
			AnomalyContamination: 0.1,
			ModelPath:            "fieldcore-model.json",
		},
		Tracking: TrackingConfig{
			Secret:  "",
			TTLDays: 7,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.finish()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.finish()
}

// finish applies environment overrides and validates hard requirements.
// A missing or short tracking secret refuses startup rather than
// silently defaulting.
func (c *Config) finish() error {
	if env := os.Getenv("FIELDCORE_TOKEN_SECRET"); env != "" {
		c.Tracking.Secret = env
	}
	if len(c.Tracking.Secret) < 32 {
		return fmt.Errorf("tracking secret missing or shorter than 32 bytes; set tracking.secret or FIELDCORE_TOKEN_SECRET")
	}
	if c.Scheduling.TravelSpeedKmh <= 0 {
		return fmt.Errorf("scheduling.travel_speed_kmh must be positive")
	}
	if c.Tracking.TTLDays <= 0 {
		c.Tracking.TTLDays = 7
	}
	if c.Scheduling.JobWorkers <= 0 {
		c.Scheduling.JobWorkers = 4
	}
	return nil
}

// BusinessHours parses the configured business window as hours and minutes.
func (c *Config) BusinessHours() (startH, startM, endH, endM int) {
	startH, startM = parseClock(c.Scheduling.BusinessHourStart, 8, 0)
	endH, endM = parseClock(c.Scheduling.BusinessHourEnd, 17, 0)
	return
}

func parseClock(s string, defH, defM int) (int, int) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return defH, defM
	}
	return h, m
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	secret := c.Tracking.Secret
	c.Tracking.Secret = ""
	data, err := yaml.Marshal(c)
	c.Tracking.Secret = secret
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }

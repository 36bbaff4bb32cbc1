package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Hubs      []HubConfig     `mapstructure:"hubs"`
	Collector CollectorConfig `mapstructure:"collector"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// DeviceConfig holds the setup parameters of one heat pump.
type DeviceConfig struct {
	Name        string        `mapstructure:"name"`
	Hub         string        `mapstructure:"hub"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	SlaveID     uint8         `mapstructure:"slave_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SetpointMax float64       `mapstructure:"setpoint_max"`
}

// HubConfig is a shared Modbus connection other devices may reuse.
type HubConfig struct {
	Name                 string        `mapstructure:"name"`
	URL                  string        `mapstructure:"url"`
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	Timeout              time.Duration `mapstructure:"timeout"`
	SingleRegisterWrites bool          `mapstructure:"single_register_writes"`
}

type CollectorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Enabled      bool          `mapstructure:"enabled"`
	RefreshDelay time.Duration `mapstructure:"refresh_delay"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
	Metrics bool `mapstructure:"metrics"`
}

type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/wolf-fhs280")
	}

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.name", "Wolf FHS280")
	v.SetDefault("device.port", 502)
	v.SetDefault("device.slave_id", 3)
	v.SetDefault("device.timeout", "5s")
	v.SetDefault("device.setpoint_max", 60)
	v.SetDefault("collector.interval", "30s")
	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.refresh_delay", "200ms")
	v.SetDefault("api.port", 8046)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.metrics", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "wolf_fhs280")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.client_id", "wolf-fhs280")
	v.SetDefault("database.path", "./wolf-fhs280.db")
	v.SetDefault("database.retention", "720h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks presence and ranges of the setup parameters. It does not
// talk to the device.
func (c *Config) Validate() error {
	var errs []error

	d := c.Device
	if d.Name == "" {
		errs = append(errs, errors.New("device.name is required"))
	}
	if d.Hub == "" && d.Host == "" && len(c.Hubs) == 0 {
		errs = append(errs, errors.New("device.host or device.hub is required"))
	}
	if d.Host != "" && (d.Port < 1 || d.Port > 65535) {
		errs = append(errs, fmt.Errorf("device.port %d out of range 1-65535", d.Port))
	}
	if d.SlaveID < 1 || d.SlaveID > 247 {
		errs = append(errs, fmt.Errorf("device.slave_id %d out of range 1-247", d.SlaveID))
	}
	if d.Timeout != 0 && (d.Timeout < 500*time.Millisecond || d.Timeout > 60*time.Second) {
		errs = append(errs, fmt.Errorf("device.timeout %s out of range 0.5s-60s", d.Timeout))
	}
	if c.Collector.Interval < time.Second || c.Collector.Interval > time.Hour {
		errs = append(errs, fmt.Errorf("collector.interval %s out of range 1s-3600s", c.Collector.Interval))
	}

	seen := map[string]bool{}
	for i, h := range c.Hubs {
		if h.Name == "" {
			errs = append(errs, fmt.Errorf("hubs[%d].name is required", i))
		} else if seen[h.Name] {
			errs = append(errs, fmt.Errorf("hubs[%d]: duplicate hub %q", i, h.Name))
		}
		seen[h.Name] = true
		if h.URL == "" && h.Host == "" {
			errs = append(errs, fmt.Errorf("hubs[%d]: url or host is required", i))
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, fmt.Errorf("api.port %d out of range 1-65535", c.API.Port))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}

	return errors.Join(errs...)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:    "Wolf FHS280",
			Host:    "192.168.1.50",
			Port:    502,
			SlaveID: 3,
			Timeout: 5 * time.Second,
		},
		Collector: CollectorConfig{Interval: 30 * time.Second},
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  host: 10.0.0.7\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Wolf FHS280", cfg.Device.Name)
	assert.Equal(t, "10.0.0.7", cfg.Device.Host)
	assert.Equal(t, 502, cfg.Device.Port)
	assert.Equal(t, uint8(3), cfg.Device.SlaveID)
	assert.Equal(t, 5*time.Second, cfg.Device.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Collector.Interval)
	assert.Equal(t, 200*time.Millisecond, cfg.Collector.RefreshDelay)
	assert.Equal(t, 60.0, cfg.Device.SetpointMax)
}

func TestLoadHubs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
device:
  hub: basement
  slave_id: 4
hubs:
  - name: basement
    url: tcp://10.0.0.9:502
    single_register_writes: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Hubs, 1)
	assert.True(t, cfg.Hubs[0].SingleRegisterWrites)

	hub, err := cfg.ResolveHub()
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.9:502", hub.URL)
	assert.Equal(t, 5*time.Second, hub.Timeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  host: h\n  slave_id: 0\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "slave_id")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no name", func(c *Config) { c.Device.Name = "" }, "device.name"},
		{"no host or hub", func(c *Config) { c.Device.Host = "" }, "device.host or device.hub"},
		{"port zero", func(c *Config) { c.Device.Port = 0 }, "device.port"},
		{"port too high", func(c *Config) { c.Device.Port = 70000 }, "device.port"},
		{"slave too high", func(c *Config) { c.Device.SlaveID = 248 }, "device.slave_id"},
		{"timeout too short", func(c *Config) { c.Device.Timeout = 100 * time.Millisecond }, "device.timeout"},
		{"timeout too long", func(c *Config) { c.Device.Timeout = 2 * time.Minute }, "device.timeout"},
		{"interval too short", func(c *Config) { c.Collector.Interval = 0 }, "collector.interval"},
		{"interval too long", func(c *Config) { c.Collector.Interval = 2 * time.Hour }, "collector.interval"},
		{"hub without address", func(c *Config) { c.Hubs = []HubConfig{{Name: "a"}} }, "url or host"},
		{"duplicate hub", func(c *Config) {
			c.Hubs = []HubConfig{{Name: "a", Host: "x"}, {Name: "a", Host: "y"}}
		}, "duplicate hub"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResolveHub(t *testing.T) {
	hubs := []HubConfig{
		{Name: "garage", Host: "10.0.0.2", Port: 502},
		{Name: "cellar", Host: "10.0.0.3", Port: 5020, Timeout: 2 * time.Second},
	}

	t.Run("named hub", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs
		c.Device.Hub = "cellar"

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, "cellar", h.Name)
		assert.Equal(t, "tcp://10.0.0.3:5020", h.URL)
		assert.Equal(t, 2*time.Second, h.Timeout)
	})

	t.Run("host match", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs
		c.Device.Host = "10.0.0.2"

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, "garage", h.Name)
	})

	t.Run("port mismatch falls back to private hub", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs
		c.Device.Host = "10.0.0.3"
		c.Device.Port = 502

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, c.Device.Name, h.Name)
		assert.Equal(t, "tcp://10.0.0.3:502", h.URL)
	})

	t.Run("missing named hub", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs
		c.Device.Hub = "attic"

		_, err := c.ResolveHub()
		assert.ErrorContains(t, err, "attic")
	})

	t.Run("stale hub name with one hub", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs[:1]
		c.Device.Hub = "renamed"

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, "garage", h.Name)
		assert.Equal(t, "tcp://10.0.0.2:502", h.URL)
	})

	t.Run("single hub", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs[:1]
		c.Device.Host = ""

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, "garage", h.Name)
	})

	t.Run("ambiguous", func(t *testing.T) {
		c := validConfig()
		c.Hubs = hubs
		c.Device.Host = ""

		_, err := c.ResolveHub()
		assert.Error(t, err)
	})

	t.Run("private hub", func(t *testing.T) {
		c := validConfig()

		h, err := c.ResolveHub()
		require.NoError(t, err)
		assert.Equal(t, "tcp://192.168.1.50:502", h.URL)
		assert.Equal(t, 5*time.Second, h.Timeout)
	})
}

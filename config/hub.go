package config

import (
	"errors"
	"fmt"
	"strconv"
)

// ResolveHub returns the connection the device should use.
//
// Order: the hub named by device.hub, a hub whose host/port matches
// device.host/port, the only configured hub when device.hub names one that
// is gone, a private connection to device.host, the only configured hub.
func (c *Config) ResolveHub() (HubConfig, error) {
	d := c.Device

	if d.Hub != "" {
		for _, h := range c.Hubs {
			if h.Name == d.Hub {
				return c.normalizeHub(h), nil
			}
		}
	}

	if d.Host != "" {
		for _, h := range c.Hubs {
			if h.Host != d.Host {
				continue
			}
			if d.Port != 0 && h.Port != 0 && h.Port != d.Port {
				continue
			}
			return c.normalizeHub(h), nil
		}
	}

	if d.Hub != "" {
		if len(c.Hubs) == 1 {
			return c.normalizeHub(c.Hubs[0]), nil
		}
		return HubConfig{}, fmt.Errorf("configured modbus hub %q not found", d.Hub)
	}

	if d.Host != "" {
		return c.normalizeHub(HubConfig{
			Name: d.Name,
			Host: d.Host,
			Port: d.Port,
		}), nil
	}

	if len(c.Hubs) == 1 {
		return c.normalizeHub(c.Hubs[0]), nil
	}

	return HubConfig{}, errors.New("no modbus hub selected for this device")
}

func (c *Config) normalizeHub(h HubConfig) HubConfig {
	if h.Port == 0 {
		h.Port = 502
	}
	if h.URL == "" {
		h.URL = "tcp://" + h.Host + ":" + strconv.Itoa(h.Port)
	}
	if h.Timeout == 0 {
		h.Timeout = c.Device.Timeout
	}
	return h
}

package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wolf-fhs280/internal/heatpump"

	"github.com/simonvetter/modbus"
	log "github.com/sirupsen/logrus"
)

// HubConfig describes one Modbus connection.
type HubConfig struct {
	Name                 string
	URL                  string // tcp://host:port, rtu:///dev/ttyUSB0, ...
	Timeout              time.Duration
	SingleRegisterWrites bool // split multi-register writes into FC 6 calls
}

// Hub owns one Modbus connection and serializes every request on it.
// Several devices can share a hub through unit-bound clients.
type Hub struct {
	cfg    HubConfig
	mu     sync.Mutex
	client *modbus.ModbusClient
}

func NewHub(cfg HubConfig) *Hub {
	return &Hub{cfg: cfg}
}

// Name returns the hub identifier.
func (h *Hub) Name() string { return h.cfg.Name }

// URL returns the connection URL.
func (h *Hub) URL() string { return h.cfg.URL }

func (h *Hub) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectLocked()
}

func (h *Hub) connectLocked() error {
	if h.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     h.cfg.URL,
		Timeout: h.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", h.cfg.URL, err)
	}

	log.WithFields(log.Fields{"hub": h.cfg.Name, "url": h.cfg.URL}).Info("Modbus hub connected")
	h.client = client
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil {
		return nil
	}

	err := h.client.Close()
	h.client = nil
	return err
}

func (h *Hub) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client != nil
}

func (h *Hub) Reconnect() error {
	h.Close()
	return h.Connect()
}

// Unit returns a client addressing one slave on this hub.
func (h *Hub) Unit(slaveID uint8) *Client {
	return &Client{hub: h, slaveID: slaveID}
}

// do runs fn with exclusive use of a connected client addressed to unit.
func (h *Hub) do(ctx context.Context, unit uint8, fn func(c *modbus.ModbusClient) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.connectLocked(); err != nil {
		return err
	}
	if err := h.client.SetUnitId(unit); err != nil {
		return fmt.Errorf("failed to set unit id %d: %w", unit, err)
	}
	return fn(h.client)
}

// Client is a unit-bound view of a hub. It implements heatpump.Transport.
type Client struct {
	hub     *Hub
	slaveID uint8
}

func (c *Client) ReadRegisters(ctx context.Context, table heatpump.Table, address, quantity uint16) ([]uint16, error) {
	regType := modbus.HOLDING_REGISTER
	if table == heatpump.InputRegister {
		regType = modbus.INPUT_REGISTER
	}

	var regs []uint16
	err := c.hub.do(ctx, c.slaveID, func(mc *modbus.ModbusClient) error {
		var err error
		regs, err = mc.ReadRegisters(address, quantity, regType)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s registers %d+%d: %w", table, address, quantity, err)
	}
	return regs, nil
}

func (c *Client) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	err := c.hub.do(ctx, c.slaveID, func(mc *modbus.ModbusClient) error {
		if len(values) == 1 || c.hub.cfg.SingleRegisterWrites {
			for i, v := range values {
				log.Debugf("Writing register %d = 0x%04X", address+uint16(i), v)
				if err := mc.WriteRegister(address+uint16(i), v); err != nil {
					return err
				}
			}
			return nil
		}
		log.Debugf("Writing registers %d+%d = %v", address, len(values), values)
		return mc.WriteRegisters(address, values)
	})
	if err != nil {
		return fmt.Errorf("failed to write registers at %d: %w", address, err)
	}
	return nil
}

// ReadHoldingRegister reads one holding register; used as a connection test.
func (c *Client) ReadHoldingRegister(ctx context.Context, address uint16) (uint16, error) {
	regs, err := c.ReadRegisters(ctx, heatpump.HoldingRegister, address, 1)
	if err != nil {
		return 0, err
	}
	if len(regs) != 1 {
		return 0, fmt.Errorf("no register data at %d", address)
	}
	return regs[0], nil
}

// Probe opens a private connection and reads the setpoint register. It is
// the connection test run before a device is accepted.
func Probe(ctx context.Context, cfg HubConfig, slaveID uint8) (uint16, error) {
	hub := NewHub(cfg)
	defer hub.Close()

	if err := hub.Connect(); err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	value, err := hub.Unit(slaveID).ReadHoldingRegister(ctx, heatpump.RegSetpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to read data: %w", err)
	}
	return value, nil
}

package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"wolf-fhs280/internal/heatpump"
	"wolf-fhs280/internal/metrics"
	"wolf-fhs280/internal/modbus"
	"wolf-fhs280/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Write sources recorded in the audit log.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

// Publisher receives state changes for an external bus.
type Publisher interface {
	PublishState(snap *heatpump.Snapshot) error
	PublishAvailability(online bool) error
	PublishError(field string, err error) error
}

type Collector struct {
	poller       *heatpump.Poller
	hub          *modbus.Hub
	db           *storage.Database
	publisher    Publisher
	metrics      *metrics.Metrics
	interval     time.Duration
	refreshDelay time.Duration
	enabled      bool

	mu           sync.RWMutex
	ctx          context.Context
	isCollecting bool
	available    bool
	lastPoll     time.Time
	lastErr      error
	refresh      *time.Timer
}

type CollectorConfig struct {
	Poller       *heatpump.Poller
	Hub          *modbus.Hub // reset after a transport error, may be nil
	Database     *storage.Database
	Publisher    Publisher
	Metrics      *metrics.Metrics
	Interval     time.Duration
	RefreshDelay time.Duration
	Enabled      bool
}

// Status summarizes the collector for health checks.
type Status struct {
	Collecting bool      `json:"collecting"`
	Available  bool      `json:"available"`
	LastPoll   time.Time `json:"last_poll"`
	LastError  string    `json:"last_error,omitempty"`
	Fields     int       `json:"fields"`
}

func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		poller:       cfg.Poller,
		hub:          cfg.Hub,
		db:           cfg.Database,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		interval:     cfg.Interval,
		refreshDelay: cfg.RefreshDelay,
		enabled:      cfg.Enabled,
	}
}

func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled {
		log.Println("Collector is disabled")
		return nil
	}

	c.mu.Lock()
	c.ctx = ctx
	c.isCollecting = true
	c.mu.Unlock()

	log.Printf("Starting collector with interval %s", c.interval)

	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Collector stopped")
			c.mu.Lock()
			c.isCollecting = false
			if c.refresh != nil {
				c.refresh.Stop()
			}
			c.mu.Unlock()
			return nil
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	_, err := c.CollectOnce(ctx)
	if err == nil {
		return
	}
	log.Printf("Error polling heat pump: %v", err)

	if c.hub != nil && errors.Is(err, heatpump.ErrTransport) && ctx.Err() == nil {
		if reconnErr := c.hub.Reconnect(); reconnErr != nil {
			log.Printf("Failed to reconnect: %v", reconnErr)
		}
	}
}

// CollectOnce runs one poll cycle and fans the result out.
func (c *Collector) CollectOnce(ctx context.Context) (heatpump.PollResult, error) {
	if c.poller == nil {
		return heatpump.PollResult{}, errors.New("collector not initialized")
	}

	res, err := c.poller.PollOnce(ctx)
	if c.metrics != nil {
		c.metrics.ObservePoll(c.poller.Map(), res, err)
	}

	c.mu.Lock()
	c.lastPoll = time.Now()
	c.lastErr = err
	wasAvailable := c.available
	c.available = err == nil
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, heatpump.ErrTransport) {
			c.dropConnection()
		}
		if wasAvailable || c.Latest() == nil {
			c.publishAvailability(false)
		}
		return res, err
	}

	for _, derr := range res.DecodeErrors {
		log.WithError(derr).Warn("Keeping previous values after decode failure")
	}

	if c.db != nil && len(res.Updated) > 0 {
		if err := c.db.SaveSnapshot(res.Snapshot, res.Updated); err != nil {
			log.Printf("Error saving readings: %v", err)
		}
	}

	if !wasAvailable {
		c.publishAvailability(true)
	}
	c.publishState(res.Snapshot)

	log.WithFields(log.Fields{
		"updated":         len(res.Updated),
		"decode_failures": len(res.DecodeErrors),
	}).Debug("Poll completed")
	return res, nil
}

// dropConnection closes the hub so the next request reconnects.
func (c *Collector) dropConnection() {
	if c.hub == nil {
		return
	}
	if err := c.hub.Close(); err != nil {
		log.Printf("Error closing modbus hub %s: %v", c.hub.Name(), err)
	}
}

// WriteText parses text for the field's type and writes it.
func (c *Collector) WriteText(ctx context.Context, source, field, text string) (heatpump.WriteResult, error) {
	req := heatpump.WriteRequest{Field: field}
	f, err := c.poller.Map().Lookup(field)
	if err == nil {
		req.Value, err = heatpump.ParseValue(f, text)
	}
	if err != nil {
		c.recordWrite(source, heatpump.WriteResult{}, req, err)
		return heatpump.WriteResult{}, err
	}
	return c.Write(ctx, source, req)
}

// Write sends one validated field write and schedules a refresh poll.
func (c *Collector) Write(ctx context.Context, source string, req heatpump.WriteRequest) (heatpump.WriteResult, error) {
	res, err := c.poller.Write(ctx, req)
	c.afterWrite(source, res, req, err)
	return res, err
}

// SyncClock writes the current local time into the device clock.
func (c *Collector) SyncClock(ctx context.Context, source string) (heatpump.WriteResult, error) {
	now := time.Now()
	res, err := c.poller.SyncClock(ctx, now)
	req := heatpump.WriteRequest{Field: heatpump.FieldDeviceClock, Value: heatpump.Clock(now.Hour(), now.Minute())}
	c.afterWrite(source, res, req, err)
	return res, err
}

func (c *Collector) afterWrite(source string, res heatpump.WriteResult, req heatpump.WriteRequest, err error) {
	c.recordWrite(source, res, req, err)
	if err != nil {
		if errors.Is(err, heatpump.ErrTransport) {
			c.dropConnection()
		}
		return
	}

	log.WithFields(log.Fields{
		"field":   res.Field,
		"value":   res.Value.String(),
		"address": res.Address,
		"source":  source,
	}).Info("Field written")

	c.publishState(c.poller.Snapshot())
	c.scheduleRefresh()
}

func (c *Collector) recordWrite(source string, res heatpump.WriteResult, req heatpump.WriteRequest, err error) {
	if c.metrics != nil {
		c.metrics.ObserveWrite(req.Field, err)
	}
	if c.db != nil {
		if _, dbErr := c.db.SaveWrite(source, res, req, err); dbErr != nil {
			log.Printf("Error saving write record: %v", dbErr)
		}
	}
	if err != nil {
		log.WithFields(log.Fields{"field": req.Field, "source": source}).WithError(err).Warn("Write rejected")
		if c.publisher != nil {
			if pubErr := c.publisher.PublishError(req.Field, err); pubErr != nil {
				log.Printf("Error publishing write error: %v", pubErr)
			}
		}
	}
}

// scheduleRefresh polls again shortly after a write so the device's own
// view replaces the optimistic value. Pending refreshes are coalesced.
func (c *Collector) scheduleRefresh() {
	if c.refreshDelay <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.refresh != nil {
		c.refresh.Stop()
	}
	c.refresh = time.AfterFunc(c.refreshDelay, func() {
		if ctx.Err() != nil {
			return
		}
		c.collect(ctx)
	})
}

func (c *Collector) publishState(snap *heatpump.Snapshot) {
	if c.publisher == nil || snap == nil {
		return
	}
	if err := c.publisher.PublishState(snap); err != nil {
		log.Printf("Error publishing to MQTT: %v", err)
	}
}

func (c *Collector) publishAvailability(online bool) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishAvailability(online); err != nil {
		log.Printf("Error publishing availability: %v", err)
	}
}

// Latest returns the last snapshot, or nil before the first successful poll.
func (c *Collector) Latest() *heatpump.Snapshot {
	if c.poller == nil {
		return nil
	}
	return c.poller.Snapshot()
}

// Map returns the register map of the polled device.
func (c *Collector) Map() *heatpump.RegisterMap {
	return c.poller.Map()
}

func (c *Collector) IsCollecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCollecting
}

// Available reports whether the last poll reached the device.
func (c *Collector) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Collecting: c.isCollecting,
		Available:  c.available,
		LastPoll:   c.lastPoll,
		Fields:     c.Latest().Len(),
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refresh != nil {
		c.refresh.Stop()
	}
	if c.hub != nil {
		c.hub.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

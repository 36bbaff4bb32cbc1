package heatpump

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the Modbus read/write port the poller consumes.
// Implementations must be safe for sequential use; the poller never
// issues overlapping requests.
type Transport interface {
	ReadRegisters(ctx context.Context, table Table, address, quantity uint16) ([]uint16, error)
	WriteRegisters(ctx context.Context, address uint16, values []uint16) error
}

// WriteRequest asks for one field to be set.
type WriteRequest struct {
	Field string
	Value Value
}

// WriteResult describes a write that reached the device.
type WriteResult struct {
	Field   string
	Address uint16
	Words   []uint16
	Value   Value // as the device will report it
}

// PollResult describes one completed poll cycle.
type PollResult struct {
	Snapshot     *Snapshot
	Updated      []string // fields refreshed this cycle
	DecodeErrors []error  // one *RangeError per range that kept its previous values
}

// Poller reads the register map through a transport and keeps the latest
// snapshot. It owns no timer: callers invoke PollOnce on their schedule.
type Poller struct {
	regs      *RegisterMap
	transport Transport
	now       func() time.Time

	mu       sync.Mutex // held for a whole poll or write
	snapshot atomic.Pointer[Snapshot]
}

// NewPoller creates a poller with an empty snapshot.
func NewPoller(regs *RegisterMap, transport Transport) *Poller {
	return &Poller{
		regs:      regs,
		transport: transport,
		now:       time.Now,
	}
}

// Map returns the register map the poller decodes.
func (p *Poller) Map() *RegisterMap { return p.regs }

// Snapshot returns the last published snapshot, or nil before the first poll.
func (p *Poller) Snapshot() *Snapshot { return p.snapshot.Load() }

// PollOnce reads every coalesced range and publishes a new snapshot.
// A transport error fails the whole cycle and leaves the previous snapshot
// in place. A decode error only keeps the previous values of its range.
func (p *Poller) PollOnce(ctx context.Context) (PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ranges := p.regs.Ranges()
	raw := make([][]uint16, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return PollResult{}, err
		}
		words, err := p.transport.ReadRegisters(ctx, r.Table, r.Start, r.Count)
		if err != nil {
			return PollResult{}, &RangeError{Range: r, Err: ErrTransport, Cause: err}
		}
		raw[i] = words
	}

	prev := p.snapshot.Load()
	var values map[string]Value
	if prev != nil {
		values = prev.cloneValues()
	} else {
		values = make(map[string]Value, p.regs.Len())
	}

	var res PollResult
	for i, r := range ranges {
		decoded, err := p.decodeRange(r, raw[i])
		if err != nil {
			res.DecodeErrors = append(res.DecodeErrors, &RangeError{Range: r, Err: ErrDecode, Cause: err})
			continue
		}
		for _, name := range r.Fields {
			values[name] = decoded[name]
			res.Updated = append(res.Updated, name)
		}
	}

	if err := ctx.Err(); err != nil {
		return PollResult{}, err
	}

	next := newSnapshot(p.now(), values)
	p.snapshot.Store(next)
	res.Snapshot = next
	return res, nil
}

// decodeRange decodes all fields of one range or none of them.
func (p *Poller) decodeRange(r Range, words []uint16) (map[string]Value, error) {
	if len(words) != int(r.Count) {
		return nil, errors.New("payload length does not match range")
	}
	out := make(map[string]Value, len(r.Fields))
	for _, name := range r.Fields {
		f, err := p.regs.Lookup(name)
		if err != nil {
			return nil, err
		}
		off := f.Address - r.Start
		v, err := Decode(f, words[off:off+f.Words()])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Validate checks a write request against the register map and the latest
// snapshot without touching the transport.
func (p *Poller) Validate(req WriteRequest) (RegisterField, []uint16, error) {
	f, err := p.regs.Lookup(req.Field)
	if err != nil {
		return RegisterField{}, nil, err
	}
	if !f.Writable() {
		return f, nil, &FieldError{Field: f.Name, Err: ErrReadOnly}
	}
	words, err := Encode(f, req.Value)
	if err != nil {
		return f, nil, err
	}
	// Bounds apply to the value as it will be stored, after rounding to the raw step.
	stored, err := Decode(f, words)
	if err != nil {
		return f, nil, err
	}
	if err := checkBounds(f, stored, p.snapshot.Load()); err != nil {
		return f, nil, err
	}
	return f, words, nil
}

func checkBounds(f RegisterField, v Value, snap *Snapshot) error {
	if f.Type != Int16 && f.Type != Uint16 {
		return nil
	}
	if f.HasRange {
		if v.Number < f.Min {
			return fieldErr(f.Name, ErrOutOfRange, "%v is below minimum %v", v.Number, f.Min)
		}
		if v.Number > f.Max {
			return fieldErr(f.Name, ErrOutOfRange, "%v is above maximum %v", v.Number, f.Max)
		}
	}
	if f.MaxFrom != "" {
		bound, ok := snap.Get(f.MaxFrom)
		if ok && (bound.Type == Int16 || bound.Type == Uint16) && v.Number > bound.Number {
			return fieldErr(f.Name, ErrOutOfRange, "%v is above %s %v", v.Number, f.MaxFrom, bound.Number)
		}
	}
	return nil
}

// Write validates, encodes and sends one field write. On success the cached
// snapshot is updated with the written value until the next poll.
func (p *Poller) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, words, err := p.Validate(req)
	if err != nil {
		return WriteResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	if err := p.transport.WriteRegisters(ctx, f.Address, words); err != nil {
		return WriteResult{}, &FieldError{Field: f.Name, Err: ErrTransport, Cause: err}
	}

	written, err := Decode(f, words)
	if err != nil {
		return WriteResult{}, err
	}
	p.snapshot.Store(p.snapshot.Load().with(p.now(), f.Name, written))

	return WriteResult{Field: f.Name, Address: f.Address, Words: words, Value: written}, nil
}

// SyncClock writes now into the device clock in one batch.
func (p *Poller) SyncClock(ctx context.Context, now time.Time) (WriteResult, error) {
	return p.Write(ctx, WriteRequest{
		Field: FieldDeviceClock,
		Value: Clock(now.Hour(), now.Minute()),
	})
}

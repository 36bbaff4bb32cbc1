package heatpump

import (
	"context"
	"errors"
	"sync"
)

type writeCall struct {
	addr  uint16
	words []uint16
}

// fakeTransport serves registers from in-memory tables.
type fakeTransport struct {
	mu      sync.Mutex
	holding map[uint16]uint16
	input   map[uint16]uint16

	failReadAt map[uint16]bool // range start address -> transport error
	shortAt    map[uint16]bool // range start address -> one word short
	writeErr   error

	reads  int
	writes []writeCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		holding:    map[uint16]uint16{},
		input:      map[uint16]uint16{},
		failReadAt: map[uint16]bool{},
		shortAt:    map[uint16]bool{},
	}
}

func (f *fakeTransport) ReadRegisters(ctx context.Context, table Table, address, quantity uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.failReadAt[address] {
		return nil, errors.New("i/o timeout")
	}
	src := f.holding
	if table == InputRegister {
		src = f.input
	}
	n := int(quantity)
	if f.shortAt[address] {
		n--
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = src[address+uint16(i)]
	}
	return out, nil
}

func (f *fakeTransport) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, writeCall{addr: address, words: append([]uint16(nil), values...)})
	for i, v := range values {
		f.holding[address+uint16(i)] = v
	}
	return nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads + len(f.writes)
}

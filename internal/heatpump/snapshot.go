package heatpump

import (
	"encoding/json"
	"sort"
	"time"
)

// Snapshot is the decoded device state observed by one poll cycle.
// A published snapshot is never modified; updates produce a new one.
type Snapshot struct {
	At     time.Time
	values map[string]Value
}

// NewSnapshot builds a snapshot from a copy of values.
func NewSnapshot(at time.Time, values map[string]Value) *Snapshot {
	out := make(map[string]Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return newSnapshot(at, out)
}

func newSnapshot(at time.Time, values map[string]Value) *Snapshot {
	return &Snapshot{At: at, values: values}
}

// Get returns the value of one field. Safe on a nil snapshot.
func (s *Snapshot) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of fields in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Names returns the field names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for name := range s.values {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Values returns a copy of all field values.
func (s *Snapshot) Values() map[string]Value {
	if s == nil {
		return map[string]Value{}
	}
	return s.cloneValues()
}

func (s *Snapshot) cloneValues() map[string]Value {
	out := make(map[string]Value, len(s.values)+1)
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// with returns a copy of s where name holds v. A nil s yields a
// one-field snapshot taken at at.
func (s *Snapshot) with(at time.Time, name string, v Value) *Snapshot {
	if s == nil {
		return newSnapshot(at, map[string]Value{name: v})
	}
	values := s.cloneValues()
	values[name] = v
	return newSnapshot(s.At, values)
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		At     time.Time        `json:"timestamp"`
		Values map[string]Value `json:"values"`
	}{s.At, s.values})
}

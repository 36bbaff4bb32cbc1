package heatpump

import (
	"fmt"
	"sort"
)

// MaxBlockSize is the largest register count allowed in one Modbus read.
const MaxBlockSize = 125

// EnumOption is one named state of an enum field.
type EnumOption struct {
	Code  uint16
	Label string
}

// RegisterField describes one logical value of the device contract.
type RegisterField struct {
	Name    string
	Table   Table
	Address uint16
	Type    DataType
	Scale   float64 // raw * Scale = value; zero means 1
	Unit    string
	Access  Access

	// Static bounds for writable numeric fields, in engineering units.
	HasRange bool
	Min      float64
	Max      float64
	Step     float64

	// MaxFrom names a field whose current snapshot value is an extra upper bound.
	MaxFrom string

	Options     []EnumOption
	MinuteFirst bool // time fields: word order minute, hour

	// Entity metadata.
	Label             string
	Icon              string
	DeviceClass       string
	Diagnostic        bool
	DisabledByDefault bool
}

// Words returns the number of registers the field occupies.
func (f RegisterField) Words() uint16 { return f.Type.Words() }

// Writable reports whether the field accepts writes.
func (f RegisterField) Writable() bool { return f.Access == ReadWrite }

func (f RegisterField) scale() float64 {
	if f.Scale == 0 {
		return 1
	}
	return f.Scale
}

func (f RegisterField) labelFor(code uint16) (string, bool) {
	for _, o := range f.Options {
		if o.Code == code {
			return o.Label, true
		}
	}
	return "", false
}

func (f RegisterField) codeFor(label string) (uint16, bool) {
	for _, o := range f.Options {
		if o.Label == label {
			return o.Code, true
		}
	}
	return 0, false
}

// OptionLabels lists the enum labels in code order of declaration.
func (f RegisterField) OptionLabels() []string {
	out := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		out = append(out, o.Label)
	}
	return out
}

// Range is a contiguous block of registers read in one transport call.
type Range struct {
	Table  Table
	Start  uint16
	Count  uint16
	Fields []string
}

func (r Range) String() string {
	return fmt.Sprintf("%s[%d..%d]", r.Table, r.Start, int(r.Start)+int(r.Count)-1)
}

// RegisterMap is the immutable device contract.
type RegisterMap struct {
	fields []RegisterField
	index  map[string]int
	ranges []Range
}

// NewRegisterMap validates fields and builds the lookup index and read ranges.
func NewRegisterMap(fields ...RegisterField) (*RegisterMap, error) {
	m := &RegisterMap{
		fields: make([]RegisterField, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(m.fields, fields)

	for i, f := range m.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("register map: field %d has no name", i)
		}
		if _, dup := m.index[f.Name]; dup {
			return nil, fmt.Errorf("register map: duplicate field %q", f.Name)
		}
		if f.Table == InputRegister && f.Writable() {
			return nil, fmt.Errorf("register map: input register field %q cannot be writable", f.Name)
		}
		if f.Type == Enum && len(f.Options) == 0 {
			return nil, fmt.Errorf("register map: enum field %q has no options", f.Name)
		}
		if f.HasRange && f.Min > f.Max {
			return nil, fmt.Errorf("register map: field %q has min > max", f.Name)
		}
		if int(f.Address)+int(f.Words()) > 0x10000 {
			return nil, fmt.Errorf("register map: field %q exceeds address space", f.Name)
		}
		m.index[f.Name] = i
	}

	for _, f := range m.fields {
		if f.MaxFrom == "" {
			continue
		}
		if _, ok := m.index[f.MaxFrom]; !ok {
			return nil, fmt.Errorf("register map: field %q bound references unknown field %q", f.Name, f.MaxFrom)
		}
	}

	ranges, err := coalesce(m.fields, MaxBlockSize)
	if err != nil {
		return nil, err
	}
	m.ranges = ranges
	return m, nil
}

// MustRegisterMap is NewRegisterMap for static tables.
func MustRegisterMap(fields ...RegisterField) *RegisterMap {
	m, err := NewRegisterMap(fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the descriptor for name.
func (m *RegisterMap) Lookup(name string) (RegisterField, error) {
	i, ok := m.index[name]
	if !ok {
		return RegisterField{}, &FieldError{Field: name, Err: ErrUnknownField}
	}
	return m.fields[i], nil
}

// Fields returns the fields in declaration order.
func (m *RegisterMap) Fields() []RegisterField {
	out := make([]RegisterField, len(m.fields))
	copy(out, m.fields)
	return out
}

// Len returns the number of fields.
func (m *RegisterMap) Len() int { return len(m.fields) }

// Ranges returns the coalesced read ranges.
func (m *RegisterMap) Ranges() []Range {
	out := make([]Range, len(m.ranges))
	for i, r := range m.ranges {
		r.Fields = append([]string(nil), r.Fields...)
		out[i] = r
	}
	return out
}

// coalesce merges adjacent fields of the same table into ranges no larger
// than maxBlock registers. A field is never split across ranges.
func coalesce(fields []RegisterField, maxBlock uint16) ([]Range, error) {
	sorted := make([]RegisterField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Table != sorted[j].Table {
			return sorted[i].Table < sorted[j].Table
		}
		return sorted[i].Address < sorted[j].Address
	})

	var (
		out []Range
		cur *Range
	)
	for _, f := range sorted {
		if cur != nil && cur.Table == f.Table {
			end := int(cur.Start) + int(cur.Count)
			if int(f.Address) < end {
				return nil, fmt.Errorf("register map: field %q overlaps %s", f.Name, cur)
			}
			if int(f.Address) == end && int(cur.Count)+int(f.Words()) <= int(maxBlock) {
				cur.Count += f.Words()
				cur.Fields = append(cur.Fields, f.Name)
				continue
			}
		}
		out = append(out, Range{
			Table:  f.Table,
			Start:  f.Address,
			Count:  f.Words(),
			Fields: []string{f.Name},
		})
		cur = &out[len(out)-1]
	}
	return out, nil
}

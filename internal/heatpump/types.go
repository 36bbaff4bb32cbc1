package heatpump

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Table selects the Modbus register table a field lives in.
type Table uint8

const (
	HoldingRegister Table = iota // FC 3 read, FC 6/16 write
	InputRegister                // FC 4 read only
)

func (t Table) String() string {
	switch t {
	case HoldingRegister:
		return "holding"
	case InputRegister:
		return "input"
	default:
		return fmt.Sprintf("table(%d)", uint8(t))
	}
}

// DataType is the wire encoding of a field.
type DataType uint8

const (
	Int16 DataType = iota
	Uint16
	Flag
	Enum
	TimeOfDayType
)

func (d DataType) String() string {
	switch d {
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Flag:
		return "flag"
	case Enum:
		return "enum"
	case TimeOfDayType:
		return "time"
	default:
		return fmt.Sprintf("type(%d)", uint8(d))
	}
}

// Words returns the number of registers the type occupies.
func (d DataType) Words() uint16 {
	if d == TimeOfDayType {
		return 2
	}
	return 1
}

// Access is the read/write mode of a field.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// TimeOfDay is an hour/minute pair as stored by the controller.
type TimeOfDay struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// Valid reports whether t is a real wall-clock time.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Value is one decoded field value. Type decides which member is meaningful.
type Value struct {
	Type   DataType
	Number float64
	On     bool
	Code   uint16
	Label  string
	Time   TimeOfDay
}

// Number returns a numeric value for int16/uint16 fields.
func Number(v float64) Value { return Value{Type: Int16, Number: v} }

// Bool returns a flag value.
func Bool(on bool) Value { return Value{Type: Flag, On: on} }

// Option returns an enum value selected by label.
func Option(label string) Value { return Value{Type: Enum, Label: label} }

// Clock returns a time-of-day value.
func Clock(hour, minute int) Value {
	return Value{Type: TimeOfDayType, Time: TimeOfDay{Hour: hour, Minute: minute}}
}

// Unmapped reports whether an enum value carries a code with no known label.
func (v Value) Unmapped() bool {
	return v.Type == Enum && v.Label == ""
}

// Equal compares two values member by member for their type.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case Flag:
		return v.On == o.On
	case Enum:
		return v.Code == o.Code && v.Label == o.Label
	case TimeOfDayType:
		return v.Time == o.Time
	default:
		return v.Number == o.Number
	}
}

func (v Value) String() string {
	switch v.Type {
	case Flag:
		if v.On {
			return "on"
		}
		return "off"
	case Enum:
		if v.Unmapped() {
			return fmt.Sprintf("unmapped(%d)", v.Code)
		}
		return v.Label
	case TimeOfDayType:
		return v.Time.String()
	default:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
}

// Interface returns the value as a plain Go value for serializers.
func (v Value) Interface() interface{} {
	switch v.Type {
	case Flag:
		return v.On
	case Enum, TimeOfDayType:
		return v.String()
	default:
		return v.Number
	}
}

// Float maps any value onto a number: flags to 0/1, enums to their code and
// times to minutes since midnight.
func (v Value) Float() float64 {
	switch v.Type {
	case Flag:
		if v.On {
			return 1
		}
		return 0
	case Enum:
		return float64(v.Code)
	case TimeOfDayType:
		return float64(v.Time.Hour*60 + v.Time.Minute)
	default:
		return v.Number
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v Value) MarshalYAML() (interface{}, error) {
	return v.Interface(), nil
}

package heatpump

import (
	"math"
)

// Decode converts the raw words of one field into a value.
func Decode(f RegisterField, words []uint16) (Value, error) {
	if len(words) != int(f.Words()) {
		return Value{}, fieldErr(f.Name, ErrDecode, "want %d words, got %d", f.Words(), len(words))
	}

	switch f.Type {
	case Int16:
		return Value{Type: Int16, Number: scaled(float64(int16(words[0])), f)}, nil
	case Uint16:
		return Value{Type: Uint16, Number: scaled(float64(words[0]), f)}, nil
	case Flag:
		return Value{Type: Flag, On: words[0] != 0}, nil
	case Enum:
		label, _ := f.labelFor(words[0])
		return Value{Type: Enum, Code: words[0], Label: label}, nil
	case TimeOfDayType:
		t := TimeOfDay{Hour: int(words[0]), Minute: int(words[1])}
		if f.MinuteFirst {
			t = TimeOfDay{Hour: int(words[1]), Minute: int(words[0])}
		}
		if !t.Valid() {
			return Value{}, fieldErr(f.Name, ErrDecode, "invalid time %d:%d", t.Hour, t.Minute)
		}
		return Value{Type: TimeOfDayType, Time: t}, nil
	default:
		return Value{}, fieldErr(f.Name, ErrDecode, "unsupported type %s", f.Type)
	}
}

// Encode converts a value into the raw words of one field.
func Encode(f RegisterField, v Value) ([]uint16, error) {
	switch f.Type {
	case Int16, Uint16:
		if v.Type != Int16 && v.Type != Uint16 {
			return nil, fieldErr(f.Name, ErrOutOfRange, "expected a number, got %s", v.Type)
		}
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return nil, fieldErr(f.Name, ErrOutOfRange, "not a finite number")
		}
		raw := math.Round(v.Number / f.scale())
		if f.Type == Int16 {
			if raw < math.MinInt16 || raw > math.MaxInt16 {
				return nil, fieldErr(f.Name, ErrOutOfRange, "%v does not fit int16", v.Number)
			}
			return []uint16{uint16(int16(raw))}, nil
		}
		if raw < 0 || raw > math.MaxUint16 {
			return nil, fieldErr(f.Name, ErrOutOfRange, "%v does not fit uint16", v.Number)
		}
		return []uint16{uint16(raw)}, nil

	case Flag:
		if v.Type != Flag {
			return nil, fieldErr(f.Name, ErrOutOfRange, "expected on/off, got %s", v.Type)
		}
		if v.On {
			return []uint16{1}, nil
		}
		return []uint16{0}, nil

	case Enum:
		if v.Type != Enum {
			return nil, fieldErr(f.Name, ErrOutOfRange, "expected an option, got %s", v.Type)
		}
		code, ok := f.codeFor(v.Label)
		if !ok || v.Label == "" {
			return nil, fieldErr(f.Name, ErrOutOfRange, "unknown option %q", v.Label)
		}
		return []uint16{code}, nil

	case TimeOfDayType:
		if v.Type != TimeOfDayType {
			return nil, fieldErr(f.Name, ErrOutOfRange, "expected a time of day, got %s", v.Type)
		}
		if !v.Time.Valid() {
			return nil, fieldErr(f.Name, ErrOutOfRange, "invalid time %d:%d", v.Time.Hour, v.Time.Minute)
		}
		if f.MinuteFirst {
			return []uint16{uint16(v.Time.Minute), uint16(v.Time.Hour)}, nil
		}
		return []uint16{uint16(v.Time.Hour), uint16(v.Time.Minute)}, nil
	}

	return nil, fieldErr(f.Name, ErrOutOfRange, "unsupported type %s", f.Type)
}

// scaled applies the field scale and trims float noise to the scale's precision.
func scaled(raw float64, f RegisterField) float64 {
	s := f.scale()
	if s == 1 {
		return raw
	}
	p := math.Pow(10, decimals(s))
	return math.Round(raw*s*p) / p
}

func decimals(scale float64) float64 {
	d := math.Ceil(-math.Log10(scale))
	if d < 0 {
		return 0
	}
	return d
}

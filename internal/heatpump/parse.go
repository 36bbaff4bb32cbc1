package heatpump

import (
	"strconv"
	"strings"
)

// ParseValue turns a text command (HTTP body, MQTT payload, CLI argument)
// into a value for field f.
func ParseValue(f RegisterField, text string) (Value, error) {
	s := strings.TrimSpace(text)

	switch f.Type {
	case Int16, Uint16:
		n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return Value{}, fieldErr(f.Name, ErrOutOfRange, "%q is not a number", text)
		}
		return Value{Type: f.Type, Number: n}, nil

	case Flag:
		switch strings.ToLower(s) {
		case "on", "true", "1", "an":
			return Bool(true), nil
		case "off", "false", "0", "aus":
			return Bool(false), nil
		}
		return Value{}, fieldErr(f.Name, ErrOutOfRange, "%q is not on/off", text)

	case Enum:
		for _, o := range f.Options {
			if o.Label == s {
				return Option(o.Label), nil
			}
		}
		for _, o := range f.Options {
			if strings.EqualFold(o.Label, s) {
				return Option(o.Label), nil
			}
		}
		if code, err := strconv.ParseUint(s, 10, 16); err == nil {
			if label, ok := f.labelFor(uint16(code)); ok {
				return Option(label), nil
			}
		}
		return Value{}, fieldErr(f.Name, ErrOutOfRange, "unknown option %q", text)

	case TimeOfDayType:
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return Value{}, fieldErr(f.Name, ErrOutOfRange, "%q is not HH:MM", text)
		}
		h, herr := strconv.Atoi(parts[0])
		m, merr := strconv.Atoi(parts[1])
		if herr != nil || merr != nil {
			return Value{}, fieldErr(f.Name, ErrOutOfRange, "%q is not HH:MM", text)
		}
		v := Clock(h, m)
		if !v.Time.Valid() {
			return Value{}, fieldErr(f.Name, ErrOutOfRange, "invalid time %q", text)
		}
		return v, nil
	}

	return Value{}, fieldErr(f.Name, ErrOutOfRange, "unsupported type %s", f.Type)
}

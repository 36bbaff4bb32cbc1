package heatpump

// EntityKind is the kind of control a field is exposed as.
type EntityKind string

const (
	KindSensor       EntityKind = "sensor"
	KindBinarySensor EntityKind = "binary_sensor"
	KindNumber       EntityKind = "number"
	KindSelect       EntityKind = "select"
	KindSwitch       EntityKind = "switch"
	KindTime         EntityKind = "time"
	KindButton       EntityKind = "button"
)

// Entity categories understood by Home Assistant.
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// ActionSyncClock is the key of the clock-sync button entity.
const ActionSyncClock = "sync_device_clock"

// Entity describes one exposed control for the host platform.
type Entity struct {
	Key               string     `json:"key" yaml:"key"`
	Name              string     `json:"name" yaml:"name"`
	Kind              EntityKind `json:"kind" yaml:"kind"`
	Field             string     `json:"field,omitempty" yaml:"field,omitempty"`
	Unit              string     `json:"unit,omitempty" yaml:"unit,omitempty"`
	Icon              string     `json:"icon,omitempty" yaml:"icon,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty" yaml:"device_class,omitempty"`
	Min               *float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max               *float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Step              *float64   `json:"step,omitempty" yaml:"step,omitempty"`
	Options           []string   `json:"options,omitempty" yaml:"options,omitempty"`
	Category          string     `json:"entity_category,omitempty" yaml:"entity_category,omitempty"`
	DisabledByDefault bool       `json:"disabled_by_default,omitempty" yaml:"disabled_by_default,omitempty"`
}

// KindOf returns the entity kind matching a field's type and access.
func KindOf(f RegisterField) EntityKind {
	if !f.Writable() {
		if f.Type == Flag {
			return KindBinarySensor
		}
		return KindSensor
	}
	switch f.Type {
	case Flag:
		return KindSwitch
	case Enum:
		return KindSelect
	case TimeOfDayType:
		return KindTime
	default:
		return KindNumber
	}
}

// Entities lists one entity per field plus the clock-sync action when the
// map has a device clock.
func Entities(m *RegisterMap) []Entity {
	fields := m.Fields()
	out := make([]Entity, 0, len(fields)+1)
	for _, f := range fields {
		e := Entity{
			Key:               f.Name,
			Name:              f.Label,
			Kind:              KindOf(f),
			Field:             f.Name,
			Unit:              f.Unit,
			Icon:              f.Icon,
			DeviceClass:       f.DeviceClass,
			DisabledByDefault: f.DisabledByDefault,
		}
		if f.Diagnostic {
			e.Category = CategoryDiagnostic
		}
		if e.Name == "" {
			e.Name = f.Name
		}
		if e.Kind == KindNumber && f.HasRange {
			min, max := f.Min, f.Max
			step := f.Step
			if step == 0 {
				step = f.scale()
			}
			e.Min, e.Max, e.Step = &min, &max, &step
		}
		if f.Type == Enum {
			e.Options = f.OptionLabels()
		}
		out = append(out, e)
	}

	if _, err := m.Lookup(FieldDeviceClock); err == nil {
		out = append(out, Entity{
			Key:      ActionSyncClock,
			Name:     "Sync device clock",
			Kind:     KindButton,
			Icon:     "mdi:clock-sync",
			Category: CategoryConfig,
		})
	}
	return out
}

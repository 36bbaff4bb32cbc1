package heatpump

// Wolf FHS 280 register addresses. Holding unless noted.
const (
	RegSetpoint       = 4
	RegTMin           = 5
	RegT2Min          = 6
	RegTimer          = 7
	RegStartTime      = 8 // 8 hour, 9 minute
	RegStopTime       = 10
	RegOperatingMode  = 12
	RegLegionellaMode = 13
	RegFanSpeed       = 15
	RegPVMode         = 17
	RegTPVHeatPump    = 18
	RegTPVHeater      = 19
	RegHolidayMode    = 20
	RegAbsenceDays    = 21
	RegBoost          = 22
	RegTMax           = 28
	RegLegionellaDays = 33
	RegDeviceClock    = 104 // 104 minute, 105 hour

	// Input registers
	RegT1             = 7  // 0.1 °C
	RegT2             = 8  // 0.1 °C
	RegCompressor     = 9
	RegHeatingElement = 10
	RegStatus         = 16
)

// Field names used outside the table.
const (
	FieldSetpoint    = "t_setpoint"
	FieldTMax        = "t_max"
	FieldDeviceClock = "device_clock"
)

const (
	DefaultSetpointMax = 60
	setpointFloor      = 20
	setpointCeiling    = 80
)

var (
	operatingModes = []EnumOption{
		{0, "Off"},
		{1, "Heat pump only"},
		{2, "Heating element only"},
		{3, "Heat pump + heating element"},
		{4, "Boiler"},
		{5, "Heat pump + boiler"},
	}
	legionellaModes = []EnumOption{
		{0, "Off"},
		{1, "60°C"},
		{2, "65°C"},
	}
	pvModes = []EnumOption{
		{0, "Off"},
		{1, "Heat pump only"},
		{2, "Heating element only"},
		{3, "Heating element + heat pump"},
	}
	holidayModes = []EnumOption{
		{0, "Off"},
		{1, "1 week"},
		{2, "2 weeks"},
		{3, "3 weeks"},
		{4, "3 days"},
		{5, "Manual"},
	}
	fanSpeeds = []EnumOption{
		{0, "Low"},
		{1, "High"},
	}
)

// ClampSetpointMax limits a configured setpoint maximum to what the controller accepts.
func ClampSetpointMax(v float64) float64 {
	if v < setpointFloor {
		return setpointFloor
	}
	if v > setpointCeiling {
		return setpointCeiling
	}
	return v
}

// FHS280 builds the register map of the Wolf FHS 280 with the given setpoint ceiling.
func FHS280(setpointMax float64) *RegisterMap {
	temp := func(name, label string, addr uint16) RegisterField {
		return RegisterField{
			Name: name, Label: label, Table: HoldingRegister, Address: addr,
			Type: Int16, Unit: "°C", DeviceClass: "temperature",
		}
	}
	limit := func(name, label string, addr uint16) RegisterField {
		f := temp(name, label, addr)
		f.Access = ReadWrite
		f.HasRange, f.Min, f.Max, f.Step = true, setpointFloor, setpointCeiling, 1
		f.Icon = "mdi:thermometer-low"
		return f
	}

	setpoint := limit(FieldSetpoint, "Setpoint temperature", RegSetpoint)
	setpoint.Max = ClampSetpointMax(setpointMax)
	setpoint.MaxFrom = FieldTMax
	setpoint.Icon = "mdi:thermometer-chevron-up"

	return MustRegisterMap([]RegisterField{
		setpoint,
		limit("t_min", "T min", RegTMin),
		limit("t2_min", "T2 min", RegT2Min),
		{Name: "timer", Label: "Timer", Table: HoldingRegister, Address: RegTimer,
			Type: Flag, Access: ReadWrite, Icon: "mdi:timer-outline"},
		{Name: "start_time", Label: "Start time", Table: HoldingRegister, Address: RegStartTime,
			Type: TimeOfDayType, Access: ReadWrite, Icon: "mdi:clock-start"},
		{Name: "stop_time", Label: "Stop time", Table: HoldingRegister, Address: RegStopTime,
			Type: TimeOfDayType, Access: ReadWrite, Icon: "mdi:clock-end"},
		{Name: "operating_mode", Label: "Operating mode", Table: HoldingRegister, Address: RegOperatingMode,
			Type: Enum, Access: ReadWrite, Options: operatingModes, Icon: "mdi:cog-transfer"},
		{Name: "legionella_mode", Label: "Legionella protection", Table: HoldingRegister, Address: RegLegionellaMode,
			Type: Enum, Access: ReadWrite, Options: legionellaModes, Icon: "mdi:bacteria-outline"},
		{Name: "fan_speed", Label: "Fan", Table: HoldingRegister, Address: RegFanSpeed,
			Type: Enum, Options: fanSpeeds, Icon: "mdi:fan"},
		{Name: "pv_mode", Label: "PV mode", Table: HoldingRegister, Address: RegPVMode,
			Type: Enum, Access: ReadWrite, Options: pvModes, Icon: "mdi:solar-power-variant-outline"},
		temp("t_pv_heat_pump", "PV heat pump temperature", RegTPVHeatPump),
		temp("t_pv_heater", "PV heating element temperature", RegTPVHeater),
		{Name: "holiday_mode", Label: "Holiday mode", Table: HoldingRegister, Address: RegHolidayMode,
			Type: Enum, Access: ReadWrite, Options: holidayModes, Icon: "mdi:beach"},
		{Name: "absence_days", Label: "Absence days", Table: HoldingRegister, Address: RegAbsenceDays,
			Type: Uint16, Unit: "d", Access: ReadWrite, HasRange: true, Min: 0, Max: 30, Step: 1,
			Icon: "mdi:calendar-edit"},
		{Name: "boost", Label: "Boost", Table: HoldingRegister, Address: RegBoost,
			Type: Flag, Access: ReadWrite, Icon: "mdi:rocket-launch-outline"},
		temp(FieldTMax, "T max", RegTMax),
		{Name: "legionella_days", Label: "Days since legionella cycle", Table: HoldingRegister,
			Address: RegLegionellaDays, Type: Uint16, Unit: "d"},
		{Name: FieldDeviceClock, Label: "Device clock", Table: HoldingRegister, Address: RegDeviceClock,
			Type: TimeOfDayType, Access: ReadWrite, MinuteFirst: true, Icon: "mdi:clock-outline",
			Diagnostic: true, DisabledByDefault: true},

		{Name: "t1", Label: "T1 tank top", Table: InputRegister, Address: RegT1,
			Type: Int16, Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Name: "t2", Label: "T2 tank bottom", Table: InputRegister, Address: RegT2,
			Type: Int16, Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Name: "compressor", Label: "Compressor", Table: InputRegister, Address: RegCompressor,
			Type: Flag, Icon: "mdi:engine-outline"},
		{Name: "heating_element", Label: "Heating element", Table: InputRegister, Address: RegHeatingElement,
			Type: Flag, Icon: "mdi:radiator"},
		{Name: "status", Label: "Operating status", Table: InputRegister, Address: RegStatus,
			Type: Uint16, Icon: "mdi:heat-pump-outline"},
	}...)
}

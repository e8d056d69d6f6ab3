// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

// Units
const (
	unitCelsius = "°C"
	unitPercent = "%"
	unitBar     = "bar"
	unitFlow    = "l/min"
	unitKW      = "kW"
	unitHours   = "h"
)

func flag(id uint8, b ByteType, bit int, channel, subject string) DataItem {
	return DataItem{ID: id, Subject: subject, Channel: channel, DataType: Flags, ByteType: b, BitPos: bit}
}

func num(id uint8, t DataType, b ByteType, channel, subject, unit string) DataItem {
	return DataItem{ID: id, Subject: subject, Channel: channel, DataType: t, ByteType: b, Unit: unit}
}

func f88(id uint8, channel, subject, unit string) DataItem {
	return num(id, Float, BothBytes, channel, subject, unit)
}

// dataItemGroups maps OpenTherm 2.2 data-IDs to their sub-fields.
// Master bits live in the high byte, slave bits in the low byte.
var dataItemGroups = map[uint8][]DataItem{
	0: {
		flag(0, HighByte, 0, "ch_enable", "Central heating enabled"),
		flag(0, HighByte, 1, "dhw_enable", "Domestic hot water enabled"),
		flag(0, HighByte, 2, "cooling_enabled", "Cooling enabled"),
		flag(0, HighByte, 3, "otc_active", "Outside temperature correction active"),
		flag(0, HighByte, 4, "ch2_enable", "Central heating 2 enabled"),
		flag(0, HighByte, 5, "summer_winter", "Summer/winter mode"),
		flag(0, HighByte, 6, "dhw_blocking", "Domestic hot water blocking"),
		flag(0, LowByte, 0, "fault", "Fault indication"),
		flag(0, LowByte, 1, "ch_mode", "Central heating active"),
		flag(0, LowByte, 2, "dhw_mode", "Domestic hot water active"),
		flag(0, LowByte, 3, "flame", "Flame on"),
		flag(0, LowByte, 4, "cooling", "Cooling active"),
		flag(0, LowByte, 5, "ch2_mode", "Central heating 2 active"),
		flag(0, LowByte, 6, "diag_indication", "Diagnostic indication"),
	},
	1: {f88(1, "control_setpoint", "Control setpoint", unitCelsius)},
	2: {
		flag(2, HighByte, 0, "master_smart_power", "Master smart power"),
		num(2, Uint8, LowByte, "master_member_id", "Master MemberID code", ""),
	},
	3: {
		flag(3, HighByte, 0, "dhw_present", "Domestic hot water present"),
		flag(3, HighByte, 1, "control_type", "Control type (on/off)"),
		flag(3, HighByte, 2, "cooling_supported", "Cooling supported"),
		flag(3, HighByte, 3, "dhw_storage_tank", "Domestic hot water storage tank"),
		flag(3, HighByte, 4, "pump_control_allowed", "Master low-off and pump control allowed"),
		flag(3, HighByte, 5, "ch2_present", "Central heating 2 present"),
		num(3, Uint8, LowByte, "slave_member_id", "Slave MemberID code", ""),
	},
	4: {
		num(4, Uint8, HighByte, "remote_command", "Remote request command", ""),
		num(4, Uint8, LowByte, "remote_command_response", "Remote request response", ""),
	},
	5: {
		flag(5, HighByte, 0, "service_request", "Service request"),
		flag(5, HighByte, 1, "lockout_reset", "Lockout reset"),
		flag(5, HighByte, 2, "low_water_pressure", "Low water pressure"),
		flag(5, HighByte, 3, "gas_flame_fault", "Gas or flame fault"),
		flag(5, HighByte, 4, "air_pressure_fault", "Air pressure fault"),
		flag(5, HighByte, 5, "water_over_temp", "Water over-temperature"),
		num(5, Uint8, LowByte, "oem_fault_code", "OEM fault code", ""),
	},
	6: {
		flag(6, HighByte, 0, "dhw_setpoint_transfer", "DHW setpoint transfer enabled"),
		flag(6, HighByte, 1, "max_ch_setpoint_transfer", "Max CH setpoint transfer enabled"),
		flag(6, LowByte, 0, "dhw_setpoint_rw", "DHW setpoint read/write"),
		flag(6, LowByte, 1, "max_ch_setpoint_rw", "Max CH setpoint read/write"),
	},
	7:  {f88(7, "cooling_control", "Cooling control signal", unitPercent)},
	8:  {f88(8, "control_setpoint2", "Control setpoint central heating 2", unitCelsius)},
	9:  {f88(9, "remote_override_setpoint", "Remote override room setpoint", unitCelsius)},
	10: {num(10, Uint8, HighByte, "tsp_count", "Number of transparent slave parameters", "")},
	11: {
		num(11, Uint8, HighByte, "tsp_index", "Transparent slave parameter index", ""),
		num(11, Uint8, LowByte, "tsp_value", "Transparent slave parameter value", ""),
	},
	12: {num(12, Uint8, HighByte, "fhb_size", "Fault history buffer size", "")},
	13: {
		num(13, Uint8, HighByte, "fhb_index", "Fault history buffer index", ""),
		num(13, Uint8, LowByte, "fhb_value", "Fault history buffer value", ""),
	},
	14: {f88(14, "max_modulation", "Maximum relative modulation level", unitPercent)},
	15: {
		num(15, Uint8, HighByte, "max_capacity", "Maximum boiler capacity", unitKW),
		num(15, Uint8, LowByte, "min_modulation", "Minimum modulation level", unitPercent),
	},
	16: {f88(16, "room_setpoint", "Room setpoint", unitCelsius)},
	17: {f88(17, "modulation", "Relative modulation level", unitPercent)},
	18: {f88(18, "ch_pressure", "Central heating water pressure", unitBar)},
	19: {f88(19, "dhw_flow", "Domestic hot water flow rate", unitFlow)},
	20: {num(20, DoWToD, BothBytes, "day_time", "Day of week and time of day", "")},
	21: {
		num(21, Uint8, HighByte, "month", "Month", ""),
		num(21, Uint8, LowByte, "day_of_month", "Day of month", ""),
	},
	22: {num(22, Uint16, BothBytes, "year", "Year", "")},
	23: {f88(23, "room_setpoint2", "Room setpoint central heating 2", unitCelsius)},
	24: {f88(24, "room_temp", "Room temperature", unitCelsius)},
	25: {f88(25, "flow_temp", "Boiler water temperature", unitCelsius)},
	26: {f88(26, "dhw_temp", "Domestic hot water temperature", unitCelsius)},
	27: {f88(27, "outside_temp", "Outside temperature", unitCelsius)},
	28: {f88(28, "return_temp", "Return water temperature", unitCelsius)},
	29: {f88(29, "solar_storage_temp", "Solar storage temperature", unitCelsius)},
	30: {num(30, Int16, BothBytes, "solar_collector_temp", "Solar collector temperature", unitCelsius)},
	31: {f88(31, "flow_temp2", "Flow temperature central heating 2", unitCelsius)},
	32: {f88(32, "dhw2_temp", "Domestic hot water 2 temperature", unitCelsius)},
	33: {num(33, Int16, BothBytes, "exhaust_temp", "Exhaust temperature", unitCelsius)},
	48: {
		num(48, Int8, HighByte, "dhw_setpoint_max", "DHW setpoint upper bound", unitCelsius),
		num(48, Int8, LowByte, "dhw_setpoint_min", "DHW setpoint lower bound", unitCelsius),
	},
	49: {
		num(49, Int8, HighByte, "max_ch_setpoint_max", "Max CH setpoint upper bound", unitCelsius),
		num(49, Int8, LowByte, "max_ch_setpoint_min", "Max CH setpoint lower bound", unitCelsius),
	},
	56: {f88(56, "dhw_setpoint", "Domestic hot water setpoint", unitCelsius)},
	57: {f88(57, "max_ch_setpoint", "Maximum central heating water setpoint", unitCelsius)},
	70: {
		flag(70, HighByte, 0, "vh_ventilation_enable", "Ventilation enabled"),
		flag(70, HighByte, 1, "vh_bypass_position", "Bypass position"),
		flag(70, HighByte, 2, "vh_bypass_mode", "Bypass mode"),
		flag(70, HighByte, 3, "vh_free_ventilation_mode", "Free ventilation mode"),
		flag(70, LowByte, 0, "vh_fault", "Ventilation fault indication"),
		flag(70, LowByte, 1, "vh_ventilation_mode", "Ventilation mode"),
		flag(70, LowByte, 2, "vh_bypass_status", "Bypass status"),
		flag(70, LowByte, 3, "vh_bypass_automatic_status", "Bypass automatic status"),
		flag(70, LowByte, 4, "vh_free_ventilation_status", "Free ventilation status"),
		flag(70, LowByte, 6, "vh_diag_indication", "Ventilation diagnostic indication"),
	},
	71: {num(71, Uint8, LowByte, "vh_control_setpoint", "Ventilation control setpoint", unitPercent)},
	72: {
		flag(72, HighByte, 0, "vh_service_request", "Ventilation service request"),
		flag(72, HighByte, 1, "vh_exhaust_fan_fault", "Exhaust fan fault"),
		flag(72, HighByte, 2, "vh_inlet_fan_fault", "Inlet fan fault"),
		flag(72, HighByte, 3, "vh_frost_protection", "Frost protection"),
		num(72, Uint8, LowByte, "vh_oem_fault_code", "Ventilation OEM fault code", ""),
	},
	77: {num(77, Uint8, LowByte, "vh_relative_ventilation", "Relative ventilation", unitPercent)},
	100: {
		flag(100, LowByte, 0, "remote_override_manual_priority", "Manual change priority"),
		flag(100, LowByte, 1, "remote_override_program_priority", "Program change priority"),
	},
	115: {num(115, Uint16, BothBytes, "oem_diagnostic_code", "OEM diagnostic code", "")},
	116: {num(116, Uint16, BothBytes, "burner_starts", "Burner starts", "")},
	117: {num(117, Uint16, BothBytes, "ch_pump_starts", "Central heating pump starts", "")},
	118: {num(118, Uint16, BothBytes, "dhw_pump_starts", "DHW pump/valve starts", "")},
	119: {num(119, Uint16, BothBytes, "dhw_burner_starts", "DHW burner starts", "")},
	120: {num(120, Uint16, BothBytes, "burner_hours", "Burner operation hours", unitHours)},
	121: {num(121, Uint16, BothBytes, "ch_pump_hours", "Central heating pump operation hours", unitHours)},
	122: {num(122, Uint16, BothBytes, "dhw_pump_hours", "DHW pump/valve operation hours", unitHours)},
	123: {num(123, Uint16, BothBytes, "dhw_burner_hours", "DHW burner operation hours", unitHours)},
	124: {f88(124, "master_ot_version", "Master OpenTherm version", "")},
	125: {f88(125, "slave_ot_version", "Slave OpenTherm version", "")},
	126: {
		num(126, Uint8, HighByte, "master_product_type", "Master product type", ""),
		num(126, Uint8, LowByte, "master_product_version", "Master product version", ""),
	},
	127: {
		num(127, Uint8, HighByte, "slave_product_type", "Slave product type", ""),
		num(127, Uint8, LowByte, "slave_product_version", "Slave product version", ""),
	},
}

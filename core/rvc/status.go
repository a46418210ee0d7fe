package rvc

import (
	"encoding/json"
	"strconv"
	"time"
)

// StatusSnapshot is the normalized view of one THERMOSTAT_STATUS_1 message.
// Missing numeric fields stay nil; a snapshot with Valid false never
// satisfies a confirmation check.
type StatusSnapshot struct {
	Instance   int
	Mode       string
	FanMode    string
	FanSpeed   *float64
	CoolF      *float64
	HeatF      *float64
	DataHex    string
	CapturedAt time.Time
	Valid      bool
}

// DecodeStatus parses a status payload. It fails soft: malformed JSON,
// missing keys or non-numeric fields yield an invalid snapshot, never an
// error across the codec boundary.
func DecodeStatus(payload []byte, at time.Time) StatusSnapshot {
	s := StatusSnapshot{CapturedAt: at}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return s
	}
	if v, ok := asInt(raw["instance"]); ok {
		s.Instance = v
	}
	s.Mode, _ = raw["operating mode definition"].(string)
	s.FanMode, _ = raw["fan mode definition"].(string)
	s.FanSpeed = asFloatPtr(raw["fan speed"])
	s.CoolF = asFloatPtr(raw["setpoint temp cool F"])
	s.HeatF = asFloatPtr(raw["setpoint temp heat F"])
	s.DataHex, _ = raw["data"].(string)

	s.Valid = s.Mode != "" || s.FanMode != "" || s.FanSpeed != nil ||
		s.CoolF != nil || s.HeatF != nil
	return s
}

// The bridge emits numbers both as JSON numbers and as strings depending on
// field; coerce either form.
func asFloatPtr(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return &f
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		if n, err := strconv.Atoi(x); err == nil {
			return n, true
		}
	}
	return 0, false
}

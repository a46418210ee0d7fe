package rvc

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// FrameFields is the structured view of an 8-byte thermostat command frame.
// The byte layout is protocol-fixed and must stay bit-compatible with the
// downstream CAN bridge:
//
//	byte 0: instance
//	byte 1: mode (bits 0-3) | fan mode (bits 4-5) | schedule mode (bits 6-7)
//	byte 2: fan speed (percent)
//	bytes 3-4: heat setpoint, centi-degrees Celsius, little endian
//	bytes 5-6: cool setpoint, centi-degrees Celsius, little endian
//	byte 7: reserved, 0xFF
type FrameFields struct {
	Instance     int
	Mode         int
	FanMode      int
	ScheduleMode int
	FanSpeed     int
	HeatF        float64
	CoolF        float64
}

// PackFrame serializes the fields into the fixed 8-byte layout.
func PackFrame(f FrameFields) [8]byte {
	heat := fToC100(f.HeatF)
	cool := fToC100(f.CoolF)
	b1 := (f.Mode & 0x0F) | ((f.FanMode & 0x03) << 4) | ((f.ScheduleMode & 0x03) << 6)
	return [8]byte{
		byte(f.Instance & 0xFF),
		byte(b1),
		byte(f.FanSpeed & 0xFF),
		byte(heat & 0xFF),
		byte((heat >> 8) & 0xFF),
		byte(cool & 0xFF),
		byte((cool >> 8) & 0xFF),
		0xFF,
	}
}

// UnpackFrame recovers the structured fields from an 8-byte frame.
func UnpackFrame(b [8]byte) FrameFields {
	heat := int(b[3]) | int(b[4])<<8
	cool := int(b[5]) | int(b[6])<<8
	return FrameFields{
		Instance:     int(b[0]),
		Mode:         int(b[1]) & 0x0F,
		FanMode:      (int(b[1]) >> 4) & 0x03,
		ScheduleMode: (int(b[1]) >> 6) & 0x03,
		FanSpeed:     int(b[2]),
		HeatF:        c100ToF(heat),
		CoolF:        c100ToF(cool),
	}
}

// PackFrameHex returns the frame as the uppercase 16-hex-char data field
// carried in command envelopes.
func PackFrameHex(f FrameFields) string {
	b := PackFrame(f)
	return strings.ToUpper(hex.EncodeToString(b[:]))
}

// UnpackFrameHex parses a 16-hex-char data field into structured fields.
func UnpackFrameHex(s string) (FrameFields, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return FrameFields{}, fmt.Errorf("frame hex: %w", err)
	}
	if len(raw) != 8 {
		return FrameFields{}, fmt.Errorf("frame hex: want 8 bytes, got %d", len(raw))
	}
	var b [8]byte
	copy(b[:], raw)
	return UnpackFrame(b), nil
}

func fToC100(f float64) int {
	return int(math.Round((f - 32.0) * 5.0 / 9.0 * 100.0))
}

func c100ToF(c int) float64 {
	return float64(c)/100.0*9.0/5.0 + 32.0
}

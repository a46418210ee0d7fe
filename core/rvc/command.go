package rvc

import (
	"encoding/json"
	"fmt"
	"time"
)

// DGNThermostatCommand identifies THERMOSTAT_COMMAND_1 frames on the wire.
const DGNThermostatCommand = "1FEF9"

// Instance bounds observed on the coach network.
const (
	MinInstance = 0
	MaxInstance = 6
)

// CommandKind selects which actuator a LogicalCommand drives.
type CommandKind int

const (
	// SetpointStep nudges the setpoint by a signed number of degrees.
	SetpointStep CommandKind = iota
	// FanProfile selects a named fan operating profile.
	FanProfile
)

// Profile is a named fan profile with a captured command signature.
type Profile string

const (
	ProfileHigh Profile = "high"
	ProfileLow  Profile = "low"
	ProfileAuto Profile = "auto"
)

// LogicalCommand describes one thermostat command at the model level.
// Immutable once built; callers clamp Instance and Delta to documented
// ranges before encoding.
type LogicalCommand struct {
	Instance int
	Kind     CommandKind
	// Delta is the signed setpoint step in degrees Fahrenheit. Only the
	// sign matters: the controller has captured signatures for single
	// steps only, so one confirmation run moves the setpoint by one degree.
	Delta int
	// Profile is the target fan profile for FanProfile commands.
	Profile Profile
}

// Action returns the human-readable action label used in logs, metrics and
// capture files.
func (c LogicalCommand) Action() string {
	switch c.Kind {
	case SetpointStep:
		if c.Delta < 0 {
			return "temp_down"
		}
		return "temp_up"
	case FanProfile:
		return "fan_" + string(c.Profile)
	}
	return "unknown"
}

// Known-good command signatures captured during manual VegaTouch actions.
// The first data byte tracks the instance and is prepended at encode time.
var actionData = map[string]string{
	"temp_up":   "FFFFFFFFFAFFFF",
	"temp_down": "FFFFFFFFF9FFFF",
	"fan_high":  "DFC8FFFFFFFFFF",
	"fan_low":   "DF64FFFFFFFFFF",
	"fan_auto":  "CFFFFFFFFFFFFF",
}

// EncodedFrame is the wire form of a LogicalCommand: the command topic and
// the 8-byte payload as a 16-hex-char string. The JSON envelope is rebuilt
// per publish so its timestamp is fresh on every burst tick.
type EncodedFrame struct {
	Topic    string
	Name     string
	Instance int
	DGN      string
	DataHex  string
}

type commandEnvelope struct {
	Name      string `json:"name"`
	Instance  int    `json:"instance"`
	DGN       string `json:"dgn"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Envelope renders the JSON command envelope with the given send time.
func (f EncodedFrame) Envelope(now time.Time) []byte {
	env := commandEnvelope{
		Name:      f.Name,
		Instance:  f.Instance,
		DGN:       f.DGN,
		Data:      f.DataHex,
		Timestamp: fmt.Sprintf("%.6f", float64(now.UnixNano())/1e9),
	}
	b, err := json.Marshal(env)
	if err != nil {
		// Marshal of a flat struct of strings and ints cannot fail.
		panic(err)
	}
	return b
}

// Encode derives the wire frame for a logical command. Total for any
// well-formed command: unknown profiles fall back to the auto signature.
func Encode(cmd LogicalCommand) EncodedFrame {
	data, ok := actionData[cmd.Action()]
	if !ok {
		data = actionData["fan_auto"]
	}
	return RawFrame(cmd.Instance, fmt.Sprintf("%02X", cmd.Instance&0xFF)+data)
}

// RawFrame builds an EncodedFrame around an explicit 16-hex-char data field.
// Used by the raw-data escape hatch when probing for new signatures.
func RawFrame(instance int, dataHex string) EncodedFrame {
	return EncodedFrame{
		Topic:    CommandTopic(instance),
		Name:     "THERMOSTAT_COMMAND_1",
		Instance: instance,
		DGN:      DGNThermostatCommand,
		DataHex:  dataHex,
	}
}

// CommandTopic returns the per-instance THERMOSTAT_COMMAND_1 topic.
func CommandTopic(instance int) string {
	return fmt.Sprintf("RVC/THERMOSTAT_COMMAND_1/%d", instance)
}

// StatusTopic returns the per-instance THERMOSTAT_STATUS_1 topic.
func StatusTopic(instance int) string {
	return fmt.Sprintf("RVC/THERMOSTAT_STATUS_1/%d", instance)
}

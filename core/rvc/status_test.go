package rvc

import (
	"testing"
	"time"
)

func TestDecodeStatus_Full(t *testing.T) {
	payload := []byte(`{
		"name": "THERMOSTAT_STATUS_1",
		"instance": 0,
		"operating mode definition": "cool",
		"fan mode definition": "auto",
		"fan speed": 50,
		"setpoint temp cool F": 72.6,
		"setpoint temp heat F": 68.4,
		"data": "0011320000AE08FF"
	}`)
	at := time.Now()
	s := DecodeStatus(payload, at)
	if !s.Valid {
		t.Fatal("snapshot should be valid")
	}
	if s.Mode != "cool" || s.FanMode != "auto" {
		t.Fatalf("labels: %q %q", s.Mode, s.FanMode)
	}
	if s.FanSpeed == nil || *s.FanSpeed != 50 {
		t.Fatalf("fan speed: %v", s.FanSpeed)
	}
	if s.CoolF == nil || *s.CoolF != 72.6 {
		t.Fatalf("cool setpoint: %v", s.CoolF)
	}
	if s.HeatF == nil || *s.HeatF != 68.4 {
		t.Fatalf("heat setpoint: %v", s.HeatF)
	}
	if !s.CapturedAt.Equal(at) {
		t.Fatal("capture time not preserved")
	}
}

func TestDecodeStatus_StringNumbers(t *testing.T) {
	// The bridge occasionally emits numerics as strings.
	s := DecodeStatus([]byte(`{"instance":"2","fan speed":"100","fan mode definition":"on"}`), time.Now())
	if !s.Valid {
		t.Fatal("snapshot should be valid")
	}
	if s.Instance != 2 {
		t.Fatalf("instance: %d", s.Instance)
	}
	if s.FanSpeed == nil || *s.FanSpeed != 100 {
		t.Fatalf("fan speed: %v", s.FanSpeed)
	}
}

func TestDecodeStatus_FailsSoft(t *testing.T) {
	cases := map[string][]byte{
		"malformed json": []byte(`{not json`),
		"empty object":   []byte(`{}`),
		"no tracked":     []byte(`{"name":"THERMOSTAT_STATUS_1","instance":0}`),
		"wrong types":    []byte(`{"fan speed":true,"setpoint temp cool F":[1]}`),
		"empty payload":  []byte(``),
	}
	for name, payload := range cases {
		if s := DecodeStatus(payload, time.Now()); s.Valid {
			t.Fatalf("%s: snapshot should be invalid", name)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	ANOMALY_LENGTH_MISMATCH AnomalyType = iota
	ANOMALY_NON_NUMERIC
	ANOMALY_INVALID_TIMESTAMP
	ANOMALY_INVALID_VALUE
	ANOMALY_UNKNOWN_SOUND
	ANOMALY_STATE_ROUND_TRIP
	ANOMALY_DECODE_ERROR
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case ANOMALY_LENGTH_MISMATCH:
		return "length mismatch"
	case ANOMALY_NON_NUMERIC:
		return "non-numeric field"
	case ANOMALY_INVALID_TIMESTAMP:
		return "invalid timestamp"
	case ANOMALY_INVALID_VALUE:
		return "invalid value"
	case ANOMALY_UNKNOWN_SOUND:
		return "unknown sound"
	case ANOMALY_STATE_ROUND_TRIP:
		return "state round trip"
	case ANOMALY_DECODE_ERROR:
		return "decode error"
	default:
		return "unknown"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks the payload of a frame against its command's
// layout. Returns a slice of validation errors (empty if frame is valid).
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	switch f.ID() {
	case CmdState:
		errors = append(errors, validateState(f.Text())...)
	case CmdStats:
		errors = append(errors, validateStats(f.Text())...)
	case CmdData:
		errors = append(errors, validateData(f.Text())...)
	case CmdGPS:
		errors = append(errors, validateGPS(f.Text())...)
	case CmdSound:
		errors = append(errors, validateSound(f.Text())...)
	case CmdSense:
		if _, err := DecodeSense(f.Text()); err != nil {
			errors = append(errors, ValidationError{
				Type:    ANOMALY_NON_NUMERIC,
				Message: fmt.Sprintf("Sense word: %v", err),
				Details: map[string]interface{}{"payload": f.Text()},
			})
		}
	}

	return errors
}

// validateTimestamp checks the 16 character prefix shared by stamped frames
func validateTimestamp(payload string) []ValidationError {
	ts, err := ParseTimestamp(payload)
	if err != nil {
		return []ValidationError{{
			Type:    ANOMALY_NON_NUMERIC,
			Message: fmt.Sprintf("Timestamp: %v", err),
			Details: map[string]interface{}{"payload": payload},
		}}
	}

	errors := []ValidationError{}
	if ts.Weekday < 1 || ts.Weekday > 7 || ts.Day < 1 || ts.Day > 31 || ts.Month < 1 || ts.Month > 12 ||
		ts.Hours > 23 || ts.Minutes > 59 || ts.Seconds > 59 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_TIMESTAMP,
			Message: fmt.Sprintf("Timestamp out of range (%s)", payload[:16]),
			Details: map[string]interface{}{"timestamp": payload[:16]},
		})
	}
	return errors
}

func validateState(payload string) []ValidationError {
	if len(payload) != StateLength {
		return []ValidationError{{
			Type:    ANOMALY_LENGTH_MISMATCH,
			Message: fmt.Sprintf("State payload length mismatch (received=%d, expected=%d)", len(payload), StateLength),
			Details: map[string]interface{}{"length": len(payload), "expected": StateLength},
		}}
	}

	errors := validateTimestamp(payload)
	ts, word, err := DecodeState(payload)
	if err != nil {
		return append(errors, ValidationError{
			Type:    ANOMALY_NON_NUMERIC,
			Message: fmt.Sprintf("State word: %v", err),
			Details: map[string]interface{}{"payload": payload},
		})
	}

	if again := EncodeState(ts, word); again != payload {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_STATE_ROUND_TRIP,
			Message: fmt.Sprintf("State payload does not round trip (%q != %q)", again, payload),
			Details: map[string]interface{}{"received": payload, "encoded": again},
		})
	}
	return errors
}

func validateStats(payload string) []ValidationError {
	// An empty stats frame is the poll request
	if len(payload) == 0 {
		return nil
	}
	if len(payload) != StatsLength {
		return []ValidationError{{
			Type:    ANOMALY_LENGTH_MISMATCH,
			Message: fmt.Sprintf("Stats payload length mismatch (received=%d, expected=%d)", len(payload), StatsLength),
			Details: map[string]interface{}{"length": len(payload), "expected": StatsLength},
		}}
	}
	return validateStatsFields(payload)
}

func validateStatsFields(s string) []ValidationError {
	st, err := ParseStats(s)
	if err != nil {
		return []ValidationError{{
			Type:    ANOMALY_NON_NUMERIC,
			Message: fmt.Sprintf("Stats: %v", err),
			Details: map[string]interface{}{"payload": s},
		}}
	}

	errors := []ValidationError{}
	if st.Gear > 4 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_VALUE,
			Message: fmt.Sprintf("Invalid gear=%d (max 4)", st.Gear),
			Details: map[string]interface{}{"gear": st.Gear, "max": 4},
		})
	}
	if st.Voltage > MaxVoltage {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_VALUE,
			Message: fmt.Sprintf("Battery voltage %d mV above ADC full scale (%d mV)", st.Voltage, MaxVoltage),
			Details: map[string]interface{}{"voltage": st.Voltage, "max": MaxVoltage},
		})
	}
	return errors
}

func validateData(payload string) []ValidationError {
	if want := 16 + StatsLength; len(payload) != want {
		return []ValidationError{{
			Type:    ANOMALY_LENGTH_MISMATCH,
			Message: fmt.Sprintf("Data payload length mismatch (received=%d, expected=%d)", len(payload), want),
			Details: map[string]interface{}{"length": len(payload), "expected": want},
		}}
	}
	errors := validateTimestamp(payload)
	return append(errors, validateStatsFields(payload[16:])...)
}

func validateGPS(payload string) []ValidationError {
	if len(payload) < 16 || len(payload) > 16+GPSMaxLength {
		return []ValidationError{{
			Type:    ANOMALY_LENGTH_MISMATCH,
			Message: fmt.Sprintf("GPS payload length %d outside 16-%d", len(payload), 16+GPSMaxLength),
			Details: map[string]interface{}{"length": len(payload), "min": 16, "max": 16 + GPSMaxLength},
		}}
	}

	errors := validateTimestamp(payload)
	if len(payload) == 16 {
		return errors
	}
	fix, err := ParseGPSFix(payload[16:])
	if err != nil {
		return append(errors, ValidationError{
			Type:    ANOMALY_NON_NUMERIC,
			Message: fmt.Sprintf("GPS fix: %v", err),
			Details: map[string]interface{}{"payload": payload[16:]},
		})
	}
	if fix.Fix > 3 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_INVALID_VALUE,
			Message: fmt.Sprintf("Invalid fix mode=%d (max 3)", fix.Fix),
			Details: map[string]interface{}{"fix": fix.Fix, "max": 3},
		})
	}
	return errors
}

func validateSound(payload string) []ValidationError {
	if len(payload) != 3 {
		return []ValidationError{{
			Type:    ANOMALY_LENGTH_MISMATCH,
			Message: fmt.Sprintf("Sound payload length mismatch (received=%d, expected=3)", len(payload)),
			Details: map[string]interface{}{"length": len(payload), "expected": 3},
		}}
	}
	code, err := DecodeSound(payload)
	if err != nil {
		return []ValidationError{{
			Type:    ANOMALY_NON_NUMERIC,
			Message: fmt.Sprintf("Sound: %v", err),
			Details: map[string]interface{}{"payload": payload},
		}}
	}
	if code >= SongCount && code < SoundBeep {
		return []ValidationError{{
			Type:    ANOMALY_UNKNOWN_SOUND,
			Message: fmt.Sprintf("Unknown sound code %d", code),
			Details: map[string]interface{}{"code": code},
		}}
	}
	return nil
}

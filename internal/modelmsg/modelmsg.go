// Package modelmsg decodes the line-delimited JSON frames published by the
// perception model and the vehicle interface.
package modelmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/pathplanner/internal/pathplan"
)

const (
	EventTypeModel    = "model"
	EventTypeCarState = "car_state"
	EventTypeUnknown  = "unknown"
)

// ErrUnknownPayload is returned for lines that are not a known frame type.
var ErrUnknownPayload = errors.New("unknown payload")

// CarState is the subset of vehicle state the planner needs.
type CarState struct {
	VEgo float64 `json:"v_ego"` // m/s
}

// Message is one decoded line. Exactly one of Model and CarState is set.
type Message struct {
	Type     string
	Model    *pathplan.InputSample
	CarState *CarState
}

type envelope struct {
	Type string `json:"type"`
}

// ClassifyPayload returns the frame type of a line without decoding the body.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "{") {
		return EventTypeUnknown
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return EventTypeUnknown
	}
	switch env.Type {
	case EventTypeModel, EventTypeCarState:
		return env.Type
	default:
		return EventTypeUnknown
	}
}

// Decode parses one line. Lane line confidences are clamped to [0,1].
func Decode(payload string) (Message, error) {
	payload = strings.TrimSpace(payload)
	switch t := ClassifyPayload(payload); t {
	case EventTypeModel:
		var s pathplan.InputSample
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return Message{}, fmt.Errorf("failed to unmarshal model frame: %w", err)
		}
		s.LeftLane.Prob = clampProb(s.LeftLane.Prob)
		s.RightLane.Prob = clampProb(s.RightLane.Prob)
		s.Lead.Prob = clampProb(s.Lead.Prob)
		return Message{Type: t, Model: &s}, nil
	case EventTypeCarState:
		var cs CarState
		if err := json.Unmarshal([]byte(payload), &cs); err != nil {
			return Message{}, fmt.Errorf("failed to unmarshal car state: %w", err)
		}
		return Message{Type: t, CarState: &cs}, nil
	default:
		return Message{Type: EventTypeUnknown}, fmt.Errorf("%w: %.40q", ErrUnknownPayload, payload)
	}
}

func clampProb(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

type modelFrame struct {
	Type string `json:"type"`
	pathplan.InputSample
}

// EncodeModel renders a model frame as a single JSON line without the
// trailing newline. Used by the replay tooling and tests.
func EncodeModel(s *pathplan.InputSample) (string, error) {
	b, err := json.Marshal(modelFrame{Type: EventTypeModel, InputSample: *s})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeCarState renders a car state frame as a single JSON line.
func EncodeCarState(cs CarState) (string, error) {
	b, err := json.Marshal(struct {
		Type string `json:"type"`
		CarState
	}{EventTypeCarState, cs})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

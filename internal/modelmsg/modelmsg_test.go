package modelmsg

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/pathplanner/internal/curvefit"
	"github.com/banshee-data/pathplanner/internal/pathplan"
)

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"type":"model","path":{}}`, EventTypeModel},
		{`  {"type":"car_state","v_ego":3}  `, EventTypeCarState},
		{`{"type":"radar"}`, EventTypeUnknown},
		{`{"v_ego":3}`, EventTypeUnknown},
		{`1.0,2.0,3.0`, EventTypeUnknown},
		{`{"type":`, EventTypeUnknown},
		{``, EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestModelRoundTrip(t *testing.T) {
	in := &pathplan.InputSample{
		LogMonoTime: 987654321,
		Path:        pathplan.Curve{Points: curvefit.Poly{0, 0, 0.1, 0}.Sample()},
		LeftLane:    pathplan.Curve{Points: curvefit.Poly{0, 0, 0, 1.7}.Sample(), Prob: 0.75},
		RightLane:   pathplan.Curve{Points: curvefit.Poly{0, 0, 0, -1.7}.Sample(), Prob: 0.5},
		Lead:        pathplan.LeadInput{Dist: 30, Prob: 0.9, Std: 2},
	}
	line, err := EncodeModel(in)
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	if strings.Contains(line, "\n") {
		t.Fatal("encoded frame spans lines")
	}

	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.Type != EventTypeModel || msg.CarState != nil {
		t.Fatalf("Decode() = %+v, want model frame", msg)
	}
	if diff := cmp.Diff(in, msg.Model); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeClampsProbabilities(t *testing.T) {
	line := `{"type":"model","left_lane":{"points":[],"prob":1.7},"right_lane":{"points":[],"prob":-0.2},"lead":{"prob":3}}`
	msg, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Model.LeftLane.Prob != 1 {
		t.Errorf("left prob = %v, want 1", msg.Model.LeftLane.Prob)
	}
	if msg.Model.RightLane.Prob != 0 {
		t.Errorf("right prob = %v, want 0", msg.Model.RightLane.Prob)
	}
	if msg.Model.Lead.Prob != 1 {
		t.Errorf("lead prob = %v, want 1", msg.Model.Lead.Prob)
	}
}

func TestDecodeCarState(t *testing.T) {
	line, err := EncodeCarState(CarState{VEgo: 12.5})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if msg.CarState == nil || msg.CarState.VEgo != 12.5 {
		t.Errorf("Decode() = %+v, want v_ego 12.5", msg)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(`hello`); !errors.Is(err, ErrUnknownPayload) {
		t.Errorf("Decode(hello) error = %v, want ErrUnknownPayload", err)
	}
	if _, err := Decode(`{"type":"model","path":{"points":"nope"}}`); err == nil || errors.Is(err, ErrUnknownPayload) {
		t.Errorf("Decode(bad model) error = %v, want unmarshal error", err)
	}
	if _, err := Decode(`{"type":"car_state","v_ego":"fast"}`); err == nil {
		t.Error("Decode(bad car state) expected error")
	}
}

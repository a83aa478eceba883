package check

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// stubCheck is a minimal Check implementation for testing.
type stubCheck struct {
	typeName string
	result   Result
}

func (s *stubCheck) Type() string                 { return s.typeName }
func (s *stubCheck) Run(_ context.Context) Result { return s.result }

func stubFactory(typeName string, result Result) Factory {
	return func(config map[string]any) (Check, error) {
		return &stubCheck{typeName: typeName, result: result}, nil
	}
}

func failingFactory(config map[string]any) (Check, error) {
	return nil, fmt.Errorf("factory error")
}

func TestResult_ZeroValue(t *testing.T) {
	var r Result
	if r.Success {
		t.Error("zero Result should not be successful")
	}
	if r.Err != nil {
		t.Error("zero Result should have nil error")
	}
	if r.Latency != 0 {
		t.Error("zero Result should have zero latency")
	}
	if !r.Timestamp.IsZero() {
		t.Error("zero Result should have zero timestamp")
	}
}

func TestFailed(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cause := errors.New("timed out")

	r := Failed(ts, cause)
	if r.Success {
		t.Error("expected failure")
	}
	if !errors.Is(r.Err, cause) {
		t.Errorf("expected wrapped cause, got %v", r.Err)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, r.Timestamp)
	}
}

func TestBuildConfig(t *testing.T) {
	base := map[string]any{"timeout": "400ms"}

	got := BuildConfig(base, "10.0.0.5")
	if got["target"] != "10.0.0.5" {
		t.Errorf("expected target 10.0.0.5, got %v", got["target"])
	}
	if got["timeout"] != "400ms" {
		t.Errorf("expected timeout to be carried over, got %v", got["timeout"])
	}
	if _, ok := base["target"]; ok {
		t.Error("BuildConfig must not modify base")
	}
}

func TestBuildConfig_NilBase(t *testing.T) {
	got := BuildConfig(nil, "10.0.0.6")
	if len(got) != 1 || got["target"] != "10.0.0.6" {
		t.Errorf("unexpected config %v", got)
	}
}

func TestDurationOption(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		want    time.Duration
		wantOK  bool
		wantErr bool
	}{
		{"absent", map[string]any{}, 0, false, false},
		{"string", map[string]any{"timeout": "400ms"}, 400 * time.Millisecond, true, false},
		{"duration", map[string]any{"timeout": 2 * time.Second}, 2 * time.Second, true, false},
		{"bad string", map[string]any{"timeout": "soon"}, 0, false, true},
		{"wrong type", map[string]any{"timeout": 123}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := DurationOption(tt.config, "timeout")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMCPServer("test", logger, WithClock(func() time.Time { return fixedNow }))
}

func call(t *testing.T, s *MCPServer, name string, args map[string]interface{}) (map[string]interface{}, bool) {
	t.Helper()
	res, err := s.Call(context.Background(), name, args)
	if err != nil {
		t.Fatalf("Call(%s): %v", name, err)
	}
	text := ResultText(res)
	if res.IsError {
		return map[string]interface{}{"error": text}, true
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	return out, false
}

func TestToolsRegistered(t *testing.T) {
	s := newTestServer(t)
	tools := s.Tools()
	want := []string{"convert_time", "get_current_time", "time_difference"}
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tools[%d] = %s, want %s", i, tools[i].Name, name)
		}
		if tools[i].Annotations.ReadOnlyHint == nil || !*tools[i].Annotations.ReadOnlyHint {
			t.Errorf("%s should be read-only", name)
		}
	}
}

func TestCallUnknownTool(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Call(context.Background(), "calculator", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestGetCurrentTime(t *testing.T) {
	s := newTestServer(t)

	out, isErr := call(t, s, "get_current_time", map[string]interface{}{"timezone": "Asia/Shanghai"})
	if isErr {
		t.Fatalf("tool error: %v", out["error"])
	}
	if out["datetime"] != "2025-03-14 20:30:00" {
		t.Errorf("datetime = %v", out["datetime"])
	}
	if out["offset_hours"] != 8.0 {
		t.Errorf("offset_hours = %v", out["offset_hours"])
	}
	if out["weekday"] != "Friday" {
		t.Errorf("weekday = %v", out["weekday"])
	}
	if out["timestamp"] != float64(fixedNow.Unix()) {
		t.Errorf("timestamp = %v", out["timestamp"])
	}

	out, _ = call(t, s, "get_current_time", map[string]interface{}{"format": "2006-01-02"})
	if out["datetime"] != "2025-03-14" || out["timezone"] != "UTC" {
		t.Errorf("default timezone with format: %v", out)
	}

	out, isErr = call(t, s, "get_current_time", map[string]interface{}{"timezone": "Mars/Olympus"})
	if !isErr {
		t.Errorf("expected tool error for unknown timezone, got %v", out)
	}
}

func TestConvertTime(t *testing.T) {
	s := newTestServer(t)

	out, isErr := call(t, s, "convert_time", map[string]interface{}{
		"time":          "2025-01-15 09:00:00",
		"from_timezone": "America/New_York",
		"to_timezone":   "Europe/Berlin",
	})
	if isErr {
		t.Fatalf("tool error: %v", out["error"])
	}
	target := out["target"].(map[string]interface{})
	if target["datetime"] != "2025-01-15 15:00:00" {
		t.Errorf("target datetime = %v", target["datetime"])
	}
	if out["difference_hours"] != 6.0 {
		t.Errorf("difference_hours = %v", out["difference_hours"])
	}

	// RFC 3339 input carries its own offset.
	out, _ = call(t, s, "convert_time", map[string]interface{}{
		"time":          "2025-01-15T09:00:00Z",
		"from_timezone": "UTC",
		"to_timezone":   "Asia/Tokyo",
	})
	if out["target"].(map[string]interface{})["datetime"] != "2025-01-15 18:00:00" {
		t.Errorf("RFC 3339 conversion = %v", out)
	}

	tests := []map[string]interface{}{
		{"time": "yesterday", "from_timezone": "UTC", "to_timezone": "UTC"},
		{"time": "2025-01-15 09:00:00", "from_timezone": "Nowhere", "to_timezone": "UTC"},
		{"time": "2025-01-15 09:00:00", "from_timezone": "UTC"},
	}
	for i, args := range tests {
		if _, isErr := call(t, s, "convert_time", args); !isErr {
			t.Errorf("case %d: expected tool error", i)
		}
	}
}

func TestTimeDifference(t *testing.T) {
	s := newTestServer(t)

	out, isErr := call(t, s, "time_difference", map[string]interface{}{
		"start": "2025-01-01 00:00:00",
		"end":   "2025-01-02 06:30:15",
	})
	if isErr {
		t.Fatalf("tool error: %v", out["error"])
	}
	if out["seconds"] != 109815.0 {
		t.Errorf("seconds = %v", out["seconds"])
	}
	if out["human"] != "1d 6h 30m 15s" {
		t.Errorf("human = %v", out["human"])
	}

	out, _ = call(t, s, "time_difference", map[string]interface{}{
		"start": "2025-01-02T00:00:00Z",
		"end":   "2025-01-01T00:00:00Z",
		"unit":  "hours",
	})
	if out["value"] != -24.0 || out["unit"] != "hours" || out["human"] != "-1d 0h 0m 0s" {
		t.Errorf("negative difference = %v", out)
	}

	if _, isErr := call(t, s, "time_difference", map[string]interface{}{
		"start": "2025-01-01", "end": "2025-01-02", "unit": "weeks",
	}); !isErr {
		t.Error("expected tool error for unknown unit")
	}
}

func TestCallerContext(t *testing.T) {
	ctx := WithCaller(context.Background(), "mcp_0123456789abcdef")
	if got := CallerFromContext(ctx); got != "mcp_0123456789abcdef" {
		t.Errorf("CallerFromContext = %q", got)
	}
	if got := CallerFromContext(context.Background()); got != "" {
		t.Errorf("empty context caller = %q", got)
	}
}

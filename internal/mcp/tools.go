package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/mark3labs/mcp-go/mcp"
)

// inputLayouts are the accepted layouts for times given without an explicit
// zone; they are interpreted in the tool's source timezone.
var inputLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Output layout shared by every time tool.
const outputLayout = "2006-01-02 15:04:05"

// registerTools registers the time toolset.
func (s *MCPServer) registerTools() {
	s.addTool(
		mcp.NewTool("get_current_time",
			mcp.WithDescription(
				"Get the current date and time in a timezone. Returns the formatted time, "+
					"UTC offset in hours, weekday and unix timestamp.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("timezone",
				mcp.Description("IANA timezone name, e.g. \"Asia/Shanghai\" or \"America/New_York\". Defaults to UTC."),
			),
			mcp.WithString("format",
				mcp.Description("Optional Go time layout for the datetime field, e.g. \"2006-01-02\". Defaults to \"2006-01-02 15:04:05\"."),
			),
		),
		s.handleGetCurrentTime,
	)

	s.addTool(
		mcp.NewTool("convert_time",
			mcp.WithDescription(
				"Convert a time from one timezone to another. Accepts RFC 3339 or "+
					"\"YYYY-MM-DD HH:MM:SS\"; times without an offset are read in from_timezone.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("time",
				mcp.Required(),
				mcp.Description("Time to convert"),
			),
			mcp.WithString("from_timezone",
				mcp.Required(),
				mcp.Description("IANA timezone of the input time"),
			),
			mcp.WithString("to_timezone",
				mcp.Required(),
				mcp.Description("IANA timezone to convert to"),
			),
		),
		s.handleConvertTime,
	)

	s.addTool(
		mcp.NewTool("time_difference",
			mcp.WithDescription(
				"Compute the difference between two times (end minus start). Accepts RFC 3339 "+
					"or \"YYYY-MM-DD HH:MM:SS\" (read as UTC).",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start time"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End time"),
			),
			mcp.WithString("unit",
				mcp.Description("One of seconds, minutes, hours, days. Omit to get all units."),
				mcp.Enum("seconds", "minutes", "hours", "days"),
			),
		),
		s.handleTimeDifference,
	)
}

// timeInfo describes one instant in one timezone.
type timeInfo struct {
	Datetime    string  `json:"datetime"`
	Timezone    string  `json:"timezone"`
	OffsetHours float64 `json:"offset_hours"`
	Weekday     string  `json:"weekday"`
	Timestamp   int64   `json:"timestamp"`
}

func describe(t time.Time, layout string) timeInfo {
	_, offset := t.Zone()
	return timeInfo{
		Datetime:    t.Format(layout),
		Timezone:    t.Location().String(),
		OffsetHours: float64(offset) / 3600,
		Weekday:     t.Weekday().String(),
		Timestamp:   t.Unix(),
	}
}

func (s *MCPServer) handleGetCurrentTime(
	ctx context.Context, request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	tz := optionalString(request, "timezone", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return toolError("Unknown timezone %q: use an IANA name such as \"Europe/Berlin\"", tz)
	}
	layout := optionalString(request, "format", outputLayout)

	return successJSON(describe(s.now().In(loc), layout))
}

func (s *MCPServer) handleConvertTime(
	ctx context.Context, request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	input, err := requireString(request, "time")
	if err != nil {
		return toolError("%v", err)
	}
	fromName, err := requireString(request, "from_timezone")
	if err != nil {
		return toolError("%v", err)
	}
	toName, err := requireString(request, "to_timezone")
	if err != nil {
		return toolError("%v", err)
	}

	from, err := time.LoadLocation(fromName)
	if err != nil {
		return toolError("Unknown timezone %q", fromName)
	}
	to, err := time.LoadLocation(toName)
	if err != nil {
		return toolError("Unknown timezone %q", toName)
	}

	t, err := parseTime(input, from)
	if err != nil {
		return toolError("%v", err)
	}
	src := t.In(from)
	dst := t.In(to)
	_, srcOff := src.Zone()
	_, dstOff := dst.Zone()

	return successJSON(map[string]interface{}{
		"source":           describe(src, outputLayout),
		"target":           describe(dst, outputLayout),
		"difference_hours": float64(dstOff-srcOff) / 3600,
	})
}

func (s *MCPServer) handleTimeDifference(
	ctx context.Context, request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	startStr, err := requireString(request, "start")
	if err != nil {
		return toolError("%v", err)
	}
	endStr, err := requireString(request, "end")
	if err != nil {
		return toolError("%v", err)
	}
	start, err := parseTime(startStr, time.UTC)
	if err != nil {
		return toolError("start: %v", err)
	}
	end, err := parseTime(endStr, time.UTC)
	if err != nil {
		return toolError("end: %v", err)
	}

	d := end.Sub(start)
	result := map[string]interface{}{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
		"human": humanDuration(d),
	}

	unit := optionalString(request, "unit", "")
	values := map[string]float64{
		"seconds": d.Seconds(),
		"minutes": d.Minutes(),
		"hours":   d.Hours(),
		"days":    d.Hours() / 24,
	}
	if unit == "" {
		for k, v := range values {
			result[k] = round(v, 4)
		}
		return successJSON(result)
	}
	v, ok := values[unit]
	if !ok {
		return toolError("Unknown unit %q: use seconds, minutes, hours or days", unit)
	}
	result["unit"] = unit
	result["value"] = round(v, 4)
	return successJSON(result)
}

// parseTime accepts RFC 3339 (which carries its own offset) or one of
// inputLayouts interpreted in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q: use RFC 3339 or \"YYYY-MM-DD HH:MM:SS\"", s)
}

// humanDuration renders d as e.g. "-1d 2h 3m 4s".
func humanDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	return fmt.Sprintf("%s%dd %dh %dm %ds", sign, days, h, m, sec)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"invalid with message", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

// runSummary mirrors the shape of a verify report.
type runSummary struct {
	RunID    string `json:"run_id" yaml:"run_id"`
	State    string `json:"state" yaml:"state"`
	Received int    `json:"records_received" yaml:"records_received"`
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)

	if err := r.Render(runSummary{RunID: "run-7", State: "success", Received: 12}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{`"run_id": "run-7"`, `"state": "success"`, `"records_received": 12`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON output missing %s:\n%s", want, got)
		}
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)

	if err := r.Render(runSummary{RunID: "run-7", State: "triggered", Received: 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"run_id: run-7", "state: triggered", "records_received: 3"} {
		if !strings.Contains(got, want) {
			t.Errorf("YAML output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render(runSummary{RunID: "run-7", State: "interrupted", Received: 42}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"run_id:", "run-7", "state:", "interrupted", "records_received:", "42"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	runs := []runSummary{
		{RunID: "run-1", State: "success", Received: 5},
		{RunID: "run-2", State: "failure", Received: 4},
	}
	if err := r.Render(runs); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows:\n%s", len(lines), buf.String())
	}
	for _, h := range []string{"run_id", "state", "records_received"} {
		if !strings.Contains(lines[0], h) {
			t.Errorf("header %q missing: %q", h, lines[0])
		}
	}
	if !strings.Contains(lines[1], "run-1") || !strings.Contains(lines[2], "failure") {
		t.Errorf("rows out of order or missing:\n%s", buf.String())
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render([]runSummary{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if got := buf.String(); !strings.Contains(got, "(no results)") {
		t.Errorf("empty slice should show '(no results)', got: %s", got)
	}
}

func TestRenderer_NoColor_DoesNotAffectJSON(t *testing.T) {
	var bufColor, bufNoColor bytes.Buffer

	data := map[string]string{"state": "failure"}
	if err := NewRendererWithWriter(FormatJSON, false, &bufColor).Render(data); err != nil {
		t.Fatalf("Render with color failed: %v", err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &bufNoColor).Render(data); err != nil {
		t.Fatalf("Render without color failed: %v", err)
	}

	if bufColor.String() != bufNoColor.String() {
		t.Errorf("--no-color should not affect JSON output")
	}
}

func TestRenderer_Table_NoColorState(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	type report struct {
		State string `json:"state"`
	}
	if err := r.Render(report{State: "failure"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "\x1b[") {
		t.Errorf("no-color output contains escape codes: %q", got)
	}
	if !strings.Contains(got, "state:") || !strings.Contains(got, "failure") {
		t.Errorf("missing state line: %q", got)
	}
}

func TestRenderer_Table_FlattensNestedStructs(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	type stats struct {
		Received int `json:"records_received"`
		Expected int `json:"records_expected"`
	}
	type report struct {
		RunID  string  `json:"run_id"`
		Stats  stats   `json:"stats"`
		Detail *string `json:"detail,omitempty"`
		hidden int
	}
	if err := r.Render(&report{RunID: "run-1", Stats: stats{Received: 7, Expected: 9}}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"run_id:", "run-1", "stats.records_received:", "7", "stats.records_expected:", "9", "detail:"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("unexported field rendered:\n%s", got)
	}
}

func TestRenderer_Table_MapSortedKeys(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render(map[string]any{"zeta": 1, "alpha": "a", "mid": []int{1, 2}}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "alpha:") || !strings.HasPrefix(lines[2], "zeta:") {
		t.Errorf("keys not sorted:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "[2 items]") {
		t.Errorf("slice value = %q, want [2 items]", lines[1])
	}
}

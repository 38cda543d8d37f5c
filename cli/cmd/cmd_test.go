package cmd

import (
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/runtime"
	"github.com/pithecene-io/tally/types"
	"github.com/pithecene-io/tally/verify"
)

// newTestCLIContext builds a context where flagValues are set explicitly
// and defaultFlags only carry defaults, so c.IsSet reflects the difference.
func newTestCLIContext(t *testing.T, flagValues, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		app.Flags = append(app.Flags, &cli.StringFlag{Name: name, Value: val})
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}
	return cli.NewContext(app, fs, nil)
}

func TestResolveString(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"suite": "cli"}, map[string]string{"transport": "stream"})

	if got := resolveString(c, "suite", "config"); got != "cli" {
		t.Errorf("CLI should win, got %q", got)
	}
	if got := resolveString(c, "transport", "redis"); got != "redis" {
		t.Errorf("config should beat flag default, got %q", got)
	}
	if got := resolveString(c, "transport", ""); got != "stream" {
		t.Errorf("flag default should apply last, got %q", got)
	}
}

func TestConfigVal(t *testing.T) {
	if got := configVal(nil, func(c *config.Config) string { return c.Suite }); got != "" {
		t.Errorf("nil config should give zero value, got %q", got)
	}
	cfg := &config.Config{Suite: "wordcount"}
	if got := configVal(cfg, func(c *config.Config) string { return c.Suite }); got != "wordcount" {
		t.Errorf("got %q, want wordcount", got)
	}
}

func TestResolveInt(t *testing.T) {
	app := cli.NewApp()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("stop-after", 0, "")
	fs.Int("expect", 0, "")
	_ = fs.Set("expect", "0")
	c := cli.NewContext(app, fs, nil)

	if got := resolveInt(c, "stop-after", 50); got != 50 {
		t.Errorf("config fallback = %d, want 50", got)
	}

	cfgExpect := 9
	got := resolveOptionalInt(c, "expect", &cfgExpect)
	if got == nil || *got != 0 {
		t.Errorf("explicit --expect 0 should win, got %v", got)
	}
	if got := resolveOptionalInt(c, "stop-after", nil); got != nil {
		t.Errorf("unset flag with nil config should stay nil, got %d", *got)
	}
}

func TestResolveDuration(t *testing.T) {
	app := cli.NewApp()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("timeout", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveDuration(c, "timeout", 10*time.Second); got != 10*time.Second {
		t.Errorf("config fallback = %v, want 10s", got)
	}
	_ = fs.Set("timeout", "30s")
	if got := resolveDuration(c, "timeout", 10*time.Second); got != 30*time.Second {
		t.Errorf("CLI should win, got %v", got)
	}
}

func TestExitCode(t *testing.T) {
	interrupt := &runtime.Error{Kind: runtime.ErrorInterrupted, Err: errors.New("deadline")}
	tests := []struct {
		name   string
		state  types.ResultState
		runErr error
		want   int
	}{
		{"success", types.ResultSuccess, nil, exitSuccess},
		{"triggered", types.ResultTriggered, nil, exitSuccess},
		{"failure", types.ResultFailure, errors.New("protocol"), exitFailure},
		{"interrupted fail policy", types.ResultInterrupted, interrupt, exitInterrupted},
		{"interrupted inconclusive policy", types.ResultInterrupted, nil, exitSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &runtime.Result{Outcome: &types.Outcome{State: tt.state}}
			if got := exitCode(result, tt.runErr); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
	if got := exitCode(nil, nil); got != exitFailure {
		t.Errorf("exitCode(nil) = %d, want %d", got, exitFailure)
	}
}

func TestExitCodeConstants(t *testing.T) {
	codes := map[string]int{
		"success":        exitSuccess,
		"failure":        exitFailure,
		"interrupted":    exitInterrupted,
		"invalid config": exitInvalidConfig,
	}
	want := map[string]int{"success": 0, "failure": 1, "interrupted": 2, "invalid config": 3}
	for name, code := range codes {
		if code != want[name] {
			t.Errorf("%s exit code = %d, want %d", name, code, want[name])
		}
	}
}

func intp(n int) *int { return &n }

func runVerifier(v verify.Verifier, n int) (receiveErr, finishErr error) {
	if err := v.Init(); err != nil {
		return err, nil
	}
	for i := 0; i < n; i++ {
		if err := v.Receive(i); err != nil {
			return err, nil
		}
	}
	return nil, v.Finish()
}

func TestVerifyChoice_Verifier(t *testing.T) {
	tests := []struct {
		name        string
		choice      verifyChoice
		records     int
		wantReceive bool
		wantFinish  bool
	}{
		{"no bounds", verifyChoice{}, 5, false, false},
		{"exact match", verifyChoice{expect: intp(3)}, 3, false, false},
		{"exact short", verifyChoice{expect: intp(3)}, 2, false, true},
		{"exact over", verifyChoice{expect: intp(3)}, 4, true, false},
		{"min satisfied", verifyChoice{minimum: intp(2)}, 4, false, false},
		{"min short", verifyChoice{minimum: intp(2)}, 1, false, true},
		{"max exceeded", verifyChoice{maximum: intp(2)}, 3, true, false},
		{"range inside", verifyChoice{minimum: intp(2), maximum: intp(4)}, 3, false, false},
		{"range short", verifyChoice{minimum: intp(2), maximum: intp(4)}, 1, false, true},
		{"range over", verifyChoice{minimum: intp(2), maximum: intp(4)}, 5, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiveErr, finishErr := runVerifier(tt.choice.verifier(), tt.records)
			if (receiveErr != nil) != tt.wantReceive {
				t.Errorf("receive error = %v, want error %v", receiveErr, tt.wantReceive)
			}
			if (finishErr != nil) != tt.wantFinish {
				t.Errorf("finish error = %v, want error %v", finishErr, tt.wantFinish)
			}
			if receiveErr != nil && !verify.IsFailure(receiveErr) {
				t.Errorf("receive error should be a verify.Failure: %v", receiveErr)
			}
		})
	}
}

func TestVerifyChoice_Trigger(t *testing.T) {
	if (verifyChoice{}).trigger().OnRecordCount(1 << 20) {
		t.Error("no --stop-after should never trigger")
	}
	tr := verifyChoice{stopAfter: 3}.trigger()
	if tr.OnRecordCount(2) || !tr.OnRecordCount(3) {
		t.Error("--stop-after 3 should trigger at the third record")
	}
}

func TestVerifyChoice_Validate(t *testing.T) {
	stream := transportChoice{kind: config.TransportStream}
	tests := []struct {
		name    string
		choice  verifyChoice
		wantErr string
	}{
		{"defaults", verifyChoice{transport: stream}, ""},
		{"bad transport", verifyChoice{transport: transportChoice{kind: "carrier"}}, "invalid --transport"},
		{"redis without url", verifyChoice{transport: transportChoice{kind: config.TransportRedis}}, "--redis-url"},
		{"kafka without topic", verifyChoice{transport: transportChoice{kind: config.TransportKafka, brokers: []string{"k:9092"}}}, "topic"},
		{"negative timeout", verifyChoice{transport: stream, timeout: -time.Second}, "--timeout"},
		{"negative expect", verifyChoice{transport: stream, expect: intp(-1)}, "--expect"},
		{"expect with min", verifyChoice{transport: stream, expect: intp(2), minimum: intp(1)}, "cannot be combined"},
		{"min above max", verifyChoice{transport: stream, minimum: intp(3), maximum: intp(1)}, "exceeds"},
		{"negative stop-after", verifyChoice{transport: stream, stopAfter: -1}, "--stop-after"},
		{"archive path without backend", verifyChoice{transport: stream, archive: archiveChoice{path: "/tmp/x"}}, "--archive-backend"},
		{"fs archive without path", verifyChoice{transport: stream, archive: archiveChoice{backend: "fs"}}, "--archive-path"},
		{"unknown archive", verifyChoice{transport: stream, archive: archiveChoice{backend: "gcs", path: "x"}}, "invalid --archive-backend"},
		{"webhook without url", verifyChoice{transport: stream, adapter: adapterChoice{kind: "webhook"}}, "--adapter-url"},
		{"unknown adapter", verifyChoice{transport: stream, adapter: adapterChoice{kind: "smtp"}}, "invalid --adapter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.choice.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewReport(t *testing.T) {
	kind := "protocol_error"
	result := &runtime.Result{
		RunMeta:  &types.RunMeta{RunID: "run-1", Suite: "s"},
		Outcome:  &types.Outcome{State: types.ResultFailure, Message: "duplicate OPEN", ErrorKind: &kind},
		Stats:    runtime.Stats{Parallelism: 2, Participating: 2},
		Duration: 1200 * time.Millisecond,
	}
	r := newReport(result, "tally/suite=s")
	if r.RunID != "run-1" || r.State != "failure" || r.ErrorKind != "protocol_error" {
		t.Errorf("report = %+v", r)
	}
	if r.DurationMs != 1200 || r.Stats.Parallelism != 2 || r.ReportPath != "tally/suite=s" {
		t.Errorf("report = %+v", r)
	}
}

func TestParseLine(t *testing.T) {
	if v, err := parseLine("string", `{"a":1}`); err != nil || v != `{"a":1}` {
		t.Errorf("string codec = %v, %v", v, err)
	}
	if v, err := parseLine("bytes", "raw"); err != nil || string(v.([]byte)) != "raw" {
		t.Errorf("bytes codec = %v, %v", v, err)
	}
	v, err := parseLine("json", `{"word":"go","n":2}`)
	if err != nil {
		t.Fatalf("json codec: %v", err)
	}
	if m, ok := v.(map[string]any); !ok || m["word"] != "go" {
		t.Errorf("json codec = %#v", v)
	}
	if _, err := parseLine("msgpack", "not json"); err == nil {
		t.Error("msgpack codec should reject non-JSON lines")
	}
}

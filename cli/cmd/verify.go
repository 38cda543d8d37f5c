package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tally/adapter"
	redisadapter "github.com/pithecene-io/tally/adapter/redis"
	"github.com/pithecene-io/tally/adapter/webhook"
	"github.com/pithecene-io/tally/archive"
	"github.com/pithecene-io/tally/cli/config"
	"github.com/pithecene-io/tally/cli/render"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/runtime"
	"github.com/pithecene-io/tally/types"
	"github.com/pithecene-io/tally/verify"
)

// VerifyCommand returns the verify command.
// It collects one run's output from the channel and verifies it.
func VerifyCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "suite",
			Usage: "Suite name recorded with the run",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (default: random)",
		},
		&cli.StringFlag{
			Name:  "input",
			Usage: "Stream file to read (stream transport, default stdin)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Interrupt the run after this long (0 waits forever)",
		},
		&cli.StringFlag{
			Name:  "parallelism-policy",
			Usage: "Mismatched parallelism handling: strict or last_wins",
		},
		&cli.StringFlag{
			Name:  "interrupt-policy",
			Usage: "Forced closure handling: fail or inconclusive",
		},
		&cli.IntFlag{
			Name:  "expect",
			Usage: "Exact number of records expected",
		},
		&cli.IntFlag{
			Name:  "min-records",
			Usage: "Minimum number of records expected",
		},
		&cli.IntFlag{
			Name:  "max-records",
			Usage: "Maximum number of records expected",
		},
		&cli.IntFlag{
			Name:  "stop-after",
			Usage: "Stop early once this many records were received",
		},
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Report archive backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Report archive path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification adapter: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter URL (redis URL or webhook endpoint)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress report output",
		},
	}
	flags = append(flags, transportFlags()...)
	flags = append(flags, OutputFlags()...)

	return &cli.Command{
		Name:   "verify",
		Usage:  "Collect a run's output from the channel and verify it",
		Flags:  flags,
		Action: verifyAction,
	}
}

// Report is the rendered result of a verify run.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Suite      string        `json:"suite,omitempty" yaml:"suite,omitempty"`
	State      string        `json:"state" yaml:"state"`
	Message    string        `json:"message" yaml:"message"`
	ErrorKind  string        `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Stats      runtime.Stats `json:"stats" yaml:"stats"`
	DurationMs int64         `json:"duration_ms" yaml:"duration_ms"`
	ReportPath string        `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}

// verifyChoice holds the resolved verify options.
type verifyChoice struct {
	suite     string
	runID     string
	timeout   time.Duration
	transport transportChoice

	parallelism runtime.ParallelismPolicy
	interrupt   runtime.InterruptPolicy

	expect    *int
	minimum   *int
	maximum   *int
	stopAfter int

	archive archiveChoice
	adapter adapterChoice
}

// archiveChoice holds the resolved report archive configuration.
type archiveChoice struct {
	backend     string
	path        string
	dataset     string
	region      string
	endpoint    string
	s3PathStyle bool
}

// adapterChoice holds the resolved notification adapter configuration.
type adapterChoice struct {
	kind            string
	url             string
	channel         string
	headers         map[string]string
	secret          string
	timeout         time.Duration
	retries         *int
	resultKeyPrefix string
	resultTTL       time.Duration
}

func resolveVerify(c *cli.Context, cfg *config.Config) (verifyChoice, error) {
	run := configVal(cfg, func(c *config.Config) config.RunConfig { return c.Run })
	vc := configVal(cfg, func(c *config.Config) config.VerifyConfig { return c.Verify })
	ac := configVal(cfg, func(c *config.Config) config.ArchiveConfig { return c.Archive })
	adc := configVal(cfg, func(c *config.Config) config.AdapterConfig { return c.Adapter })

	choice := verifyChoice{
		suite:     resolveString(c, "suite", configVal(cfg, func(c *config.Config) string { return c.Suite })),
		runID:     c.String("run-id"),
		timeout:   resolveDuration(c, "timeout", run.Timeout.Duration),
		transport: resolveTransport(c, cfg, "input"),
		expect:    resolveOptionalInt(c, "expect", vc.ExpectedRecords),
		minimum:   resolveOptionalInt(c, "min-records", vc.MinRecords),
		maximum:   resolveOptionalInt(c, "max-records", vc.MaxRecords),
		stopAfter: resolveInt(c, "stop-after", configVal(cfg, func(c *config.Config) int { return c.Trigger.MaxRecords })),
		archive: archiveChoice{
			backend:     resolveString(c, "archive-backend", ac.Backend),
			path:        resolveString(c, "archive-path", ac.Path),
			dataset:     ac.Dataset,
			region:      ac.Region,
			endpoint:    ac.Endpoint,
			s3PathStyle: ac.S3PathStyle,
		},
		adapter: adapterChoice{
			kind:            resolveString(c, "adapter", adc.Type),
			url:             resolveString(c, "adapter-url", adc.URL),
			channel:         adc.Channel,
			headers:         adc.Headers,
			secret:          adc.Secret,
			timeout:         adc.Timeout.Duration,
			retries:         adc.Retries,
			resultKeyPrefix: adc.ResultKeyPrefix,
			resultTTL:       adc.ResultTTL.Duration,
		},
	}

	var err error
	if choice.parallelism, err = runtime.ParseParallelismPolicy(resolveString(c, "parallelism-policy", run.ParallelismPolicy)); err != nil {
		return choice, fmt.Errorf("invalid --parallelism-policy: %w", err)
	}
	if choice.interrupt, err = runtime.ParseInterruptPolicy(resolveString(c, "interrupt-policy", run.InterruptPolicy)); err != nil {
		return choice, fmt.Errorf("invalid --interrupt-policy: %w", err)
	}
	return choice, choice.validate()
}

func (v verifyChoice) validate() error {
	if err := v.transport.validate(); err != nil {
		return err
	}
	if v.timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	for name, n := range map[string]*int{"--expect": v.expect, "--min-records": v.minimum, "--max-records": v.maximum} {
		if n != nil && *n < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if v.expect != nil && (v.minimum != nil || v.maximum != nil) {
		return errors.New("--expect cannot be combined with --min-records or --max-records")
	}
	if v.minimum != nil && v.maximum != nil && *v.minimum > *v.maximum {
		return errors.New("--min-records exceeds --max-records")
	}
	if v.stopAfter < 0 {
		return errors.New("--stop-after must be >= 0")
	}

	switch v.archive.backend {
	case "":
		if v.archive.path != "" {
			return errors.New("--archive-backend is required when --archive-path is set")
		}
	case "fs", "s3":
		if v.archive.path == "" {
			return fmt.Errorf("--archive-path is required for the %s archive", v.archive.backend)
		}
	default:
		return fmt.Errorf("invalid --archive-backend %q (must be fs or s3)", v.archive.backend)
	}

	switch v.adapter.kind {
	case "":
	case "redis", "webhook":
		if v.adapter.url == "" {
			return fmt.Errorf("--adapter-url is required for the %s adapter", v.adapter.kind)
		}
	default:
		return fmt.Errorf("invalid --adapter %q (must be redis or webhook)", v.adapter.kind)
	}
	return nil
}

// verifier builds the record verifier from the count options.
func (v verifyChoice) verifier() verify.Verifier {
	always := func(any) bool { return true }
	switch {
	case v.expect != nil:
		return verify.Count(*v.expect)
	case v.minimum != nil && v.maximum != nil:
		lo := verify.Quantify(verify.AtLeast(*v.minimum), "records", always)
		hi := verify.Quantify(verify.AtMost(*v.maximum), "records", always)
		return verify.Funcs{
			ReceiveFn: func(elem any) error {
				if err := hi.Receive(elem); err != nil {
					return err
				}
				return lo.Receive(elem)
			},
			FinishFn: func() error {
				return errors.Join(hi.Finish(), lo.Finish())
			},
		}
	case v.minimum != nil:
		return verify.Quantify(verify.AtLeast(*v.minimum), "records", always)
	case v.maximum != nil:
		return verify.Quantify(verify.AtMost(*v.maximum), "records", always)
	default:
		return verify.Collect(nil)
	}
}

func (v verifyChoice) trigger() verify.Trigger {
	if v.stopAfter > 0 {
		return verify.AfterCount(v.stopAfter)
	}
	return verify.Never()
}

func verifyAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}
	choice, err := resolveVerify(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}

	renderer, err := render.NewRenderer(c, os.Stdout)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidConfig)
	}

	runMeta := types.NewRunMeta(choice.suite)
	if choice.runID != "" {
		runMeta.RunID = choice.runID
	}
	logger := log.NewLogger(runMeta)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if choice.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, choice.timeout)
		defer cancel()
	}

	sub, err := openSubscriber(ctx, choice.transport, os.Stdin)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open %s channel: %v", choice.transport.kind, err), exitFailure)
	}

	mc := metrics.NewCollector(choice.transport.kind, choice.archive.backend, runMeta.RunID, runMeta.Suite)
	collector, err := runtime.NewCollector(&runtime.Config{
		Subscriber:        sub,
		Verifier:          choice.verifier(),
		Trigger:           choice.trigger(),
		RunMeta:           runMeta,
		Logger:            logger,
		Metrics:           mc,
		ParallelismPolicy: choice.parallelism,
		InterruptPolicy:   choice.interrupt,
	})
	if err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to create collector: %w", err)
	}

	result, runErr := collector.Run(ctx)
	if result == nil {
		return fmt.Errorf("verification failed: %w", runErr)
	}

	// Reporting outlives the run's context so a timeout still gets archived.
	reportCtx := context.WithoutCancel(c.Context)
	completedAt := time.Now()
	reportPath := archiveResult(reportCtx, choice.archive, mc, logger, result, completedAt)
	notify(reportCtx, choice.adapter, mc, logger, adapter.NewEvent(result, reportPath, completedAt))

	if !c.Bool("quiet") {
		if err := renderer.Render(newReport(result, reportPath)); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}

	return cli.Exit("", exitCode(result, runErr))
}

func newReport(result *runtime.Result, reportPath string) *Report {
	r := &Report{
		Stats:      result.Stats,
		DurationMs: result.Duration.Milliseconds(),
		ReportPath: reportPath,
	}
	if result.RunMeta != nil {
		r.RunID = result.RunMeta.RunID
		r.Suite = result.RunMeta.Suite
	}
	if result.Outcome != nil {
		r.State = string(result.Outcome.State)
		r.Message = result.Outcome.Message
		if result.Outcome.ErrorKind != nil {
			r.ErrorKind = *result.Outcome.ErrorKind
		}
	}
	return r
}

// exitCode maps a run result to the process exit code. An interrupted run
// only fails the process when the interrupt policy made Run return an error.
func exitCode(result *runtime.Result, runErr error) int {
	if result == nil || result.Outcome == nil {
		return exitFailure
	}
	switch result.Outcome.State {
	case types.ResultSuccess, types.ResultTriggered:
		return exitSuccess
	case types.ResultInterrupted:
		if runErr != nil {
			return exitInterrupted
		}
		return exitSuccess
	default:
		return exitFailure
	}
}

// archiveResult writes the report when an archive is configured and
// returns its path. Archive failures are logged and never change the
// run's outcome.
func archiveResult(ctx context.Context, choice archiveChoice, mc *metrics.Collector, logger *log.Logger, result *runtime.Result, now time.Time) string {
	if choice.backend == "" {
		return ""
	}

	a, err := openArchive(ctx, choice, mc)
	if err != nil {
		mc.IncArchiveWriteFailure()
		logger.Error("archive open failed", map[string]any{"backend": choice.backend, "error": err.Error()})
		return ""
	}
	defer func() { _ = a.Close() }()

	path, err := a.Write(ctx, result, now)
	if err != nil {
		logger.Error("archive write failed", map[string]any{"backend": choice.backend, "error": err.Error()})
		return ""
	}
	logger.Info("report archived", map[string]any{"path": path})
	return path
}

func openArchive(ctx context.Context, choice archiveChoice, mc *metrics.Collector) (*archive.Archive, error) {
	cfg := archive.Config{Dataset: choice.dataset, Backend: choice.backend, Metrics: mc}
	switch choice.backend {
	case "fs":
		return archive.NewFS(cfg, choice.path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(choice.path)
		return archive.NewS3(ctx, cfg, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.s3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", choice.backend)
	}
}

// notify publishes the completion event when an adapter is configured.
// Notification failures are logged and never change the run's outcome.
func notify(ctx context.Context, choice adapterChoice, mc *metrics.Collector, logger *log.Logger, event *adapter.VerificationCompletedEvent) {
	if choice.kind == "" {
		return
	}

	a, err := openAdapter(choice)
	if err != nil {
		mc.IncNotifyFailure()
		logger.Error("adapter setup failed", map[string]any{"adapter": choice.kind, "error": err.Error()})
		return
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(ctx, event); err != nil {
		mc.IncNotifyFailure()
		logger.Error("notification failed", map[string]any{"adapter": choice.kind, "error": err.Error()})
		return
	}
	mc.IncNotifySuccess()
	logger.Info("notification sent", map[string]any{"adapter": choice.kind})
}

func openAdapter(choice adapterChoice) (adapter.Adapter, error) {
	retries := redisadapter.DefaultRetries
	if choice.retries != nil {
		retries = *choice.retries
	}
	switch choice.kind {
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:             choice.url,
			Channel:         choice.channel,
			ResultKeyPrefix: choice.resultKeyPrefix,
			ResultTTL:       choice.resultTTL,
			Timeout:         choice.timeout,
			Retries:         retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Secret:  choice.secret,
			Timeout: choice.timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q", choice.kind)
	}
}

// Package archive stores verification reports in a lode dataset.
//
// Each finished run is written as one JSONL record, partitioned by suite,
// day and run ID. Filesystem, S3 and in-memory backends share the same
// dataset layout so that reports written by one process can be read back
// by another.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/runtime"
	"github.com/pithecene-io/tally/types"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "tally"

// DefaultSuite is the partition value for runs without a suite name.
const DefaultSuite = "default"

// RecordKindReport is the record_kind of every report record.
const RecordKindReport = "verification_report"

// ErrNoReportFound is returned when no report matches a query.
var ErrNoReportFound = errors.New("no report found")

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"suite", "day", "run_id"}

// Config configures an Archive.
type Config struct {
	// Dataset is the lode dataset ID.
	Dataset string
	// Backend names the storage backend for metrics ("fs", "s3", "memory").
	Backend string
	// Metrics receives archive write counters. May be nil.
	Metrics *metrics.Collector
}

// Archive writes and reads verification reports.
type Archive struct {
	ds      lode.Dataset
	dataset string
	backend string
	metrics *metrics.Collector
	mu      sync.Mutex
}

// New creates an Archive over the given store factory.
func New(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	if factory == nil {
		return nil, errors.New("store factory is required")
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{
		ds:      ds,
		dataset: cfg.Dataset,
		backend: cfg.Backend,
		metrics: cfg.Metrics,
	}, nil
}

// NewFS creates an Archive rooted at a filesystem directory.
func NewFS(cfg Config, root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("archive root is required")
	}
	if cfg.Backend == "" {
		cfg.Backend = "fs"
	}
	return New(cfg, lode.NewFSFactory(root))
}

// NewMemory creates an Archive backed by an in-process store.
func NewMemory(cfg Config) (*Archive, error) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	return New(cfg, lode.NewMemoryFactory())
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Dataset returns the dataset ID.
func (a *Archive) Dataset() string {
	return a.dataset
}

// Backend returns the configured backend name.
func (a *Archive) Backend() string {
	return a.backend
}

// Write stores the report for result and returns its partition path.
// now stamps the record and selects the day partition.
func (a *Archive) Write(ctx context.Context, result *runtime.Result, now time.Time) (string, error) {
	if result == nil || result.RunMeta == nil || result.Outcome == nil {
		return "", errors.New("result with run meta and outcome is required")
	}
	record := ReportRecord(result, now)
	path := ReportPath(a.dataset, record)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.ds.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		a.metrics.IncArchiveWriteFailure()
		return "", WrapWriteError(err, path)
	}
	a.metrics.IncArchiveWriteSuccess()
	return path, nil
}

// Latest returns the most recent report record, filtered by runID and
// suite when they are non-empty.
func (a *Archive) Latest(ctx context.Context, runID, suite string) (map[string]any, error) {
	snapshots, err := a.ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, a.dataset+"/snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "run_id", runID) || !snapshotMatches(snap, "suite", suite) {
			continue
		}

		data, err := a.ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", a.dataset, snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindReport {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			if suite != "" && toString(record["suite"]) != suite {
				continue
			}
			return record, nil
		}
	}
	return nil, ErrNoReportFound
}

// Close releases archive resources.
func (a *Archive) Close() error {
	return nil
}

// ReportRecord flattens result into the record stored in the dataset.
func ReportRecord(result *runtime.Result, now time.Time) map[string]any {
	suite := result.RunMeta.Suite
	if suite == "" {
		suite = DefaultSuite
	}
	now = now.UTC()
	record := map[string]any{
		"record_kind":      RecordKindReport,
		"version":          types.Version,
		"suite":            suite,
		"day":              now.Format("2006-01-02"),
		"run_id":           result.RunMeta.RunID,
		"state":            string(result.Outcome.State),
		"message":          result.Outcome.Message,
		"participating":    result.Stats.Participating,
		"closed":           result.Stats.Closed,
		"parallelism":      result.Stats.Parallelism,
		"records_received": result.Stats.RecordsReceived,
		"records_expected": result.Stats.RecordsExpected,
		"messages":         result.Stats.Messages,
		"duration_ms":      result.Duration.Milliseconds(),
		"completed_at":     now.Format(time.RFC3339Nano),
	}
	if result.Outcome.ErrorKind != nil {
		record["error_kind"] = *result.Outcome.ErrorKind
	}
	return record
}

// ReportPath returns the Hive partition path of record within dataset.
func ReportPath(dataset string, record map[string]any) string {
	path := dataset
	for _, key := range partitionKeys {
		path += "/" + key + "=" + toString(record[key])
	}
	return path
}

// snapshotMatches reports whether any file in snap lies under the
// key=value partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

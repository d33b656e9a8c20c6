// Package aggregator buffers per-test coverage records in the host process and turns
// them into the Smarter Testing coverage document at the end of the run.
package aggregator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/circleci-coverage/internal/collector"
	"github.com/kjstillabower/circleci-coverage/internal/host"
	"github.com/kjstillabower/circleci-coverage/internal/models"
	"github.com/kjstillabower/circleci-coverage/internal/observability"
)

const (
	// EnvVar holds the output path. Its presence, not its content, enables the feature.
	EnvVar = "CIRCLECI_COVERAGE"
	// TaskName is the task collectors deliver records to.
	TaskName = "circleci:coverage:collect"
	// Prefix starts every line written to the notice stream.
	Prefix = "circleci-coverage: "
)

// DefaultExcludeSegments keeps third-party code that was instrumented by accident out
// of the document.
var DefaultExcludeSegments = []string{"node_modules"}

// Host is the lifecycle the aggregator registers with.
type Host interface {
	Task(name string, h host.TaskHandler)
	AfterRun(fn func() error)
	Expose(key string, value any)
}

// Options tune an activated Aggregator. Zero values fall back to process defaults.
type Options struct {
	// Root is the directory covered files are made relative to. Defaults to the
	// working directory at activation.
	Root string
	// ExcludeSegments drops any file whose relative path contains one of them.
	ExcludeSegments []string
	// Notices receives the three diagnostic lines. Defaults to os.Stdout.
	Notices io.Writer
	Logger  *zap.Logger
}

// Aggregator is one test-run session: it owns the record buffer until the document
// has been written.
type Aggregator struct {
	sessionID  string
	outputFile string
	root       string
	exclude    []string
	notices    io.Writer
	logger     *zap.Logger
	records    []models.Record
}

// ActivateFromEnv reads EnvVar and calls Activate.
func ActivateFromEnv(h Host, opts Options) (*Aggregator, error) {
	value, present := os.LookupEnv(EnvVar)
	return Activate(value, present, h, opts)
}

// Activate enables collection when present is true. With present false it returns
// (nil, nil) and leaves h untouched. An empty value enables collection but the run
// ends without writing a file.
func Activate(value string, present bool, h Host, opts Options) (*Aggregator, error) {
	if !present {
		return nil, nil
	}

	root := opts.Root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("aggregator: get working directory: %w", err)
		}
		root = cwd
	}
	exclude := opts.ExcludeSegments
	if exclude == nil {
		exclude = DefaultExcludeSegments
	}
	notices := opts.Notices
	if notices == nil {
		notices = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		sessionID:  uuid.New().String(),
		outputFile: value,
		root:       root,
		exclude:    exclude,
		notices:    notices,
		records:    make([]models.Record, 0),
	}
	a.logger = logger.With(zap.String("session_id", a.sessionID))

	h.Expose(collector.ExposedFlag, true)
	a.notice("generating CircleCI coverage JSON...")
	a.logger.Info("coverage collection enabled", zap.String("output", value), zap.String("root", root))

	h.Task(TaskName, a.handleTask)
	h.AfterRun(a.OnRunComplete)
	return a, nil
}

// SessionID identifies this run in logs.
func (a *Aggregator) SessionID() string {
	return a.sessionID
}

// OutputFile returns the configured destination, possibly empty.
func (a *Aggregator) OutputFile() string {
	return a.outputFile
}

// Records returns the number of buffered records.
func (a *Aggregator) Records() int {
	return len(a.records)
}

func (a *Aggregator) handleTask(payload json.RawMessage) (any, error) {
	var rec models.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode coverage record: %w", err)
	}
	a.OnRecordReceived(rec)
	return nil, nil
}

// OnRecordReceived buffers rec. Duplicates and empty file lists are kept; the
// document collapses them.
func (a *Aggregator) OnRecordReceived(rec models.Record) {
	a.records = append(a.records, rec)
	observability.RecordsReceivedTotal.Inc()
}

// OnRunComplete reduces the buffer and writes the document, replacing any existing
// file. It is a no-op without an output path. Filesystem errors are returned wrapped;
// nothing is retried.
func (a *Aggregator) OnRunComplete() error {
	if a.outputFile == "" {
		a.logger.Debug("no output file; skipping coverage write")
		return nil
	}
	start := time.Now()
	defer func() { observability.WriteDuration.Observe(time.Since(start).Seconds()) }()

	doc, stats := Reduce(a.records, a.root, a.exclude)
	observability.FilesAttributedTotal.Add(float64(stats.Attributed))
	observability.FilesExcludedTotal.Add(float64(stats.Excluded))

	if err := ensureDir(a.outputFile); err != nil {
		observability.WritesTotal.WithLabelValues("error").Inc()
		return err
	}

	if len(doc) == 0 {
		a.notice("warning: no coverage data collected")
		a.logger.Warn("no coverage data collected", zap.Int("records", len(a.records)))
	}

	if err := writeDocument(a.outputFile, doc); err != nil {
		observability.WritesTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.WritesTotal.WithLabelValues("success").Inc()
	observability.DocumentFiles.Set(float64(len(doc)))

	a.notice("wrote " + a.outputFile)
	a.logger.Info("coverage document written",
		zap.String("output", a.outputFile),
		zap.Int("records", len(a.records)),
		zap.Int("files", len(doc)),
		zap.Int("excluded", stats.Excluded))
	a.records = nil
	return nil
}

func (a *Aggregator) notice(msg string) {
	_, _ = io.WriteString(a.notices, Prefix+msg+"\n")
}

func ensureDir(outputFile string) error {
	dir := filepath.Dir(outputFile)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create coverage directory %s: %w", dir, err)
	}
	return nil
}

func writeDocument(outputFile string, doc models.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode coverage document: %w", err)
	}
	if err := os.WriteFile(outputFile, raw, 0o644); err != nil {
		return fmt.Errorf("write coverage document %s: %w", outputFile, err)
	}
	return nil
}

// Package ingestion discovers new landed files, parses them against the
// registered dataset schema, and appends validated rows (plus rejects) to the
// RAW layer with per-row provenance.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/landing"
	"github.com/coverlake/coverlake/internal/metrics"
	"github.com/coverlake/coverlake/internal/repository"
	"github.com/coverlake/coverlake/internal/schema"
)

// Options control how landed files are parsed.
type Options struct {
	Delimiter  rune
	HeaderSkip int
	// NullTokens are cell values treated as null, compared after trimming.
	NullTokens []string
}

// DefaultOptions mirror the common warehouse loader configuration: comma
// delimited, one header row, empty string and literal NULL as null.
func DefaultOptions() Options {
	return Options{
		Delimiter:  ',',
		HeaderSkip: 1,
		NullTokens: []string{"", "NULL", "null", `\N`},
	}
}

// Result reports one ingest call.
type Result struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Files    int      `json:"files"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *Result) merge(other Result) {
	r.Accepted += other.Accepted
	r.Rejected += other.Rejected
	r.Files += other.Files
	for _, sample := range other.Errors {
		if len(r.Errors) >= domain.MaxErrorSamples {
			break
		}
		r.Errors = append(r.Errors, sample)
	}
}

// Loader ingests landed files into the RAW layer.
type Loader struct {
	registry *schema.Registry
	rawRepo  repository.RawRecordRepository
	fileRepo repository.IngestedFileRepository
	rejRepo  repository.RejectionLogRepository
	store    landing.Store
	log      *slog.Logger
	clock    clockwork.Clock
	opts     Options
}

// NewLoader creates a new ingestion loader.
func NewLoader(
	registry *schema.Registry,
	rawRepo repository.RawRecordRepository,
	fileRepo repository.IngestedFileRepository,
	rejRepo repository.RejectionLogRepository,
	store landing.Store,
	log *slog.Logger,
	clock clockwork.Clock,
	opts Options,
) *Loader {
	return &Loader{
		registry: registry,
		rawRepo:  rawRepo,
		fileRepo: fileRepo,
		rejRepo:  rejRepo,
		store:    store,
		log:      log,
		clock:    clock,
		opts:     opts,
	}
}

// IngestDataset lists the landing store and ingests every object not yet
// loaded. Row-level problems never abort a file; unreadable files and unknown
// datasets are fatal.
func (l *Loader) IngestDataset(ctx context.Context, dataset string) (Result, error) {
	var result Result

	if _, err := l.registry.Get(dataset); err != nil {
		return result, err
	}

	loaded, err := l.fileRepo.LoadedKeys(ctx, dataset)
	if err != nil {
		return result, err
	}

	objects, err := l.store.ListNewObjects(ctx, dataset, time.Time{})
	if err != nil {
		return result, fmt.Errorf("failed to list landing store: %w", err)
	}

	for _, obj := range objects {
		if loaded[obj.Key] {
			continue
		}

		fileResult, err := l.ingestObject(ctx, dataset, obj)
		if err != nil {
			return result, err
		}
		result.merge(fileResult)
	}

	return result, nil
}

func (l *Loader) ingestObject(ctx context.Context, dataset string, obj landing.Object) (Result, error) {
	rc, err := l.store.Read(ctx, obj)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read landed object %s: %w", obj.Key, err)
	}
	defer func() { _ = rc.Close() }()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read landed object %s: %w", obj.Key, err)
	}

	return l.Ingest(ctx, dataset, obj.Key, payload)
}

// Ingest parses one landed payload and appends its rows to the RAW layer.
func (l *Loader) Ingest(ctx context.Context, dataset, sourceFile string, payload []byte) (Result, error) {
	result := Result{Files: 1}

	desc, err := l.registry.Get(dataset)
	if err != nil {
		return result, err
	}

	rows, err := parseTable(sourceFile, payload, l.opts.Delimiter, l.opts.HeaderSkip)
	if err != nil {
		return result, fmt.Errorf("failed to parse %s: %w", sourceFile, err)
	}

	now := l.clock.Now()
	records := make([]domain.RawRecord, 0, len(rows))

	for rowIdx, row := range rows {
		rowNumber := l.opts.HeaderSkip + rowIdx + 1 // 1-based, counting skipped header rows

		fields := l.mapRow(desc, row)
		record := domain.NewRawRecord(dataset, sourceFile, rowNumber, fields, now)

		ok, problems := l.registry.Validate(dataset, fields)
		if !ok {
			reason := strings.Join(problems, "; ")
			record = record.Rejected(reason)
			result.Rejected++
			if len(result.Errors) < domain.MaxErrorSamples {
				result.Errors = append(result.Errors, fmt.Sprintf("%s row %d: %s", sourceFile, rowNumber, reason))
			}
			l.logRejection(ctx, dataset, sourceFile, rowNumber, reason)
		} else {
			result.Accepted++
		}
		records = append(records, record)
	}

	// Rows and the loaded-file mark commit together; a failure here leaves
	// the file unloaded and safe to retry.
	if err := l.rawRepo.CommitFile(ctx, dataset, sourceFile, records, now); err != nil {
		return result, fmt.Errorf("failed to commit raw batch: %w", err)
	}

	metrics.RowsIngested.WithLabelValues(dataset, "valid").Add(float64(result.Accepted))
	metrics.RowsIngested.WithLabelValues(dataset, "rejected").Add(float64(result.Rejected))

	l.log.Info("ingested landed file",
		"dataset", dataset,
		"file", sourceFile,
		"accepted", result.Accepted,
		"rejected", result.Rejected)

	return result, nil
}

// mapRow pairs positional cells with schema column names, dropping null-token
// cells so downstream code sees absent keys for nulls.
func (l *Loader) mapRow(desc domain.SchemaDefinition, row []string) map[string]string {
	fields := make(map[string]string, len(desc.Fields))
	for idx, field := range desc.Fields {
		if idx >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[idx])
		if l.isNullToken(value) {
			continue
		}
		fields[field.Name] = value
	}
	return fields
}

func (l *Loader) isNullToken(value string) bool {
	for _, token := range l.opts.NullTokens {
		if value == token {
			return true
		}
	}
	return false
}

func (l *Loader) logRejection(ctx context.Context, dataset, sourceFile string, rowNumber int, reason string) {
	if l.rejRepo == nil {
		return
	}
	entry := domain.RejectionEntry{
		ID:         uuid.New(),
		Dataset:    dataset,
		SourceFile: sourceFile,
		RowNumber:  &rowNumber,
		Reason:     reason,
	}
	if err := l.rejRepo.Record(ctx, entry); err != nil {
		l.log.Warn("failed to record rejection", "dataset", dataset, "file", sourceFile, "error", err)
	}
}

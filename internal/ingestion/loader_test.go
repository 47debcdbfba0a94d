package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/landing"
	"github.com/coverlake/coverlake/internal/schema"
)

type stubRawRepo struct {
	appended []domain.RawRecord
	marked   []string
	// failCommits makes the next N commits fail atomically, recording
	// neither rows nor the loaded-file mark.
	failCommits int
	commitErr   error
}

func (s *stubRawRepo) CommitFile(_ context.Context, _, sourceFile string, records []domain.RawRecord, _ time.Time) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	if s.failCommits > 0 {
		s.failCommits--
		return errors.New("connection reset")
	}
	s.appended = append(s.appended, records...)
	s.marked = append(s.marked, sourceFile)
	return nil
}

func (s *stubRawRepo) ListValidAfter(context.Context, string, int64) ([]domain.RawRecord, error) {
	return nil, nil
}

func (s *stubRawRepo) MaxSeq(context.Context, string) (int64, error) { return 0, nil }

func (s *stubRawRepo) CountByStatus(context.Context, string) (int64, int64, error) {
	return 0, 0, nil
}

type stubFileRepo struct {
	loaded map[string]bool
}

func (s *stubFileRepo) LoadedKeys(context.Context, string) (map[string]bool, error) {
	if s.loaded == nil {
		return map[string]bool{}, nil
	}
	return s.loaded, nil
}

type stubRejectionRepo struct {
	entries []domain.RejectionEntry
}

func (s *stubRejectionRepo) Record(_ context.Context, entry domain.RejectionEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRejectionRepo) List(context.Context, string, int) ([]domain.RejectionEntry, error) {
	return s.entries, nil
}

type memoryStore struct {
	objects map[string][]landing.Object
	files   map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]landing.Object{}, files: map[string][]byte{}}
}

func (m *memoryStore) add(dataset, key, content string) {
	m.objects[dataset] = append(m.objects[dataset], landing.Object{
		Dataset: dataset,
		Key:     key,
		Size:    int64(len(content)),
	})
	m.files[key] = []byte(content)
}

func (m *memoryStore) ListNewObjects(_ context.Context, dataset string, _ time.Time) ([]landing.Object, error) {
	return m.objects[dataset], nil
}

func (m *memoryStore) Read(_ context.Context, obj landing.Object) (io.ReadCloser, error) {
	payload, ok := m.files[obj.Key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func newTestLoader(store landing.Store, rawRepo *stubRawRepo, fileRepo *stubFileRepo, rejRepo *stubRejectionRepo) *Loader {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoader(
		schema.NewDefaultRegistry(),
		rawRepo,
		fileRepo,
		rejRepo,
		store,
		log,
		clockwork.NewFakeClock(),
		DefaultOptions(),
	)
}

const policiesCSV = `policy_id,customer_id,product_type,policy_start_date,policy_end_date,monthly_premium,sum_assured,insured_latitude,insured_longitude
POL-1,CUST-1,FUNERAL,2024-01-15,,125.50,100000.00,-33.92,18.42
POL-2,CUST-2,LIFE,2024-02-01,2034-02-01,300.00,500000.00,-26.20,28.05
`

func TestIngestAcceptsValidRows(t *testing.T) {
	rawRepo := &stubRawRepo{}
	loader := newTestLoader(newMemoryStore(), rawRepo, &stubFileRepo{}, &stubRejectionRepo{})

	result, err := loader.Ingest(context.Background(), schema.PoliciesDataset, "policies.csv", []byte(policiesCSV))
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if result.Accepted != 2 || result.Rejected != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(rawRepo.appended) != 2 {
		t.Fatalf("expected 2 raw records, got %d", len(rawRepo.appended))
	}

	first := rawRepo.appended[0]
	if first.Status != domain.RecordStatusValid {
		t.Fatalf("expected VALID status, got %s", first.Status)
	}
	if first.RowNumber != 2 {
		t.Fatalf("expected row number 2 (after header), got %d", first.RowNumber)
	}
	if _, present := first.Fields["policy_end_date"]; present {
		t.Fatalf("expected empty end date cell to be dropped from fields")
	}
	if first.Fields["monthly_premium"] != "125.50" {
		t.Fatalf("unexpected premium cell: %q", first.Fields["monthly_premium"])
	}
}

func TestIngestContinuesPastBadRows(t *testing.T) {
	rawRepo := &stubRawRepo{}
	rejRepo := &stubRejectionRepo{}
	loader := newTestLoader(newMemoryStore(), rawRepo, &stubFileRepo{}, rejRepo)

	data := `policy_id,customer_id,product_type,policy_start_date,policy_end_date,monthly_premium,sum_assured,insured_latitude,insured_longitude
POL-1,CUST-1,FUNERAL,2024-01-15,,125.50,100000.00,-33.92,18.42
POL-2,CUST-2,LIFE,not-a-date,,abc,500000.00,-26.20,28.05
POL-3,CUST-3,AUTO,2024-03-01,,80.00,20000.00,95.0,18.42
POL-4,CUST-4,HOME,2024-04-01,,60.00,30000.00,-33.00,18.00
`
	result, err := loader.Ingest(context.Background(), schema.PoliciesDataset, "policies.csv", []byte(data))
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if result.Accepted != 2 || result.Rejected != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// Rejected rows still land in RAW, marked REJECTED with a reason.
	if len(rawRepo.appended) != 4 {
		t.Fatalf("expected all 4 rows appended, got %d", len(rawRepo.appended))
	}

	rejected := rawRepo.appended[1]
	if rejected.Status != domain.RecordStatusRejected {
		t.Fatalf("expected REJECTED status, got %s", rejected.Status)
	}
	if !strings.Contains(rejected.RejectionReason, "policy_start_date") ||
		!strings.Contains(rejected.RejectionReason, "monthly_premium") {
		t.Fatalf("expected combined rejection reason, got %q", rejected.RejectionReason)
	}

	if len(rejRepo.entries) != 2 {
		t.Fatalf("expected 2 rejection log entries, got %d", len(rejRepo.entries))
	}
	if rejRepo.entries[0].RowNumber == nil || *rejRepo.entries[0].RowNumber != 3 {
		t.Fatalf("unexpected rejection row number: %+v", rejRepo.entries[0])
	}
}

func TestIngestDatasetSkipsLoadedFiles(t *testing.T) {
	store := newMemoryStore()
	store.add(schema.PoliciesDataset, "2024-03-01.csv", policiesCSV)
	store.add(schema.PoliciesDataset, "2024-03-02.csv", policiesCSV)

	rawRepo := &stubRawRepo{}
	fileRepo := &stubFileRepo{loaded: map[string]bool{"2024-03-01.csv": true}}
	loader := newTestLoader(store, rawRepo, fileRepo, &stubRejectionRepo{})

	result, err := loader.IngestDataset(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if result.Files != 1 {
		t.Fatalf("expected 1 new file ingested, got %d", result.Files)
	}
	if len(rawRepo.marked) != 1 || rawRepo.marked[0] != "2024-03-02.csv" {
		t.Fatalf("unexpected marked files: %v", rawRepo.marked)
	}
	if len(rawRepo.appended) != 2 {
		t.Fatalf("expected 2 rows from the new file, got %d", len(rawRepo.appended))
	}
}

func TestIngestDatasetUnknownDatasetFails(t *testing.T) {
	loader := newTestLoader(newMemoryStore(), &stubRawRepo{}, &stubFileRepo{}, &stubRejectionRepo{})

	_, err := loader.IngestDataset(context.Background(), "vehicles")
	if !errors.Is(err, schema.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestIngestCommitFailureIsFatal(t *testing.T) {
	rawRepo := &stubRawRepo{commitErr: errors.New("connection reset")}
	loader := newTestLoader(newMemoryStore(), rawRepo, &stubFileRepo{}, &stubRejectionRepo{})

	_, err := loader.Ingest(context.Background(), schema.PoliciesDataset, "policies.csv", []byte(policiesCSV))
	if err == nil {
		t.Fatalf("expected commit failure to abort ingest")
	}
}

func TestIngestDatasetRetryAfterCommitFailure(t *testing.T) {
	store := newMemoryStore()
	store.add(schema.PoliciesDataset, "2024-03-01.csv", policiesCSV)

	// The first commit fails after parsing; because rows and the loaded-file
	// mark share one transaction, nothing is persisted and the retry loads
	// the file exactly once.
	rawRepo := &stubRawRepo{failCommits: 1}
	fileRepo := &stubFileRepo{}
	loader := newTestLoader(store, rawRepo, fileRepo, &stubRejectionRepo{})

	_, err := loader.IngestDataset(context.Background(), schema.PoliciesDataset)
	if err == nil {
		t.Fatalf("expected first ingest to fail")
	}
	if len(rawRepo.appended) != 0 || len(rawRepo.marked) != 0 {
		t.Fatalf("failed commit must persist nothing, got %d rows, %v marks", len(rawRepo.appended), rawRepo.marked)
	}

	fileRepo.loaded = map[string]bool{}
	for _, key := range rawRepo.marked {
		fileRepo.loaded[key] = true
	}
	result, err := loader.IngestDataset(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if result.Accepted != 2 {
		t.Fatalf("expected 2 accepted rows on retry, got %d", result.Accepted)
	}
	if len(rawRepo.appended) != 2 {
		t.Fatalf("expected the file's rows appended once, got %d", len(rawRepo.appended))
	}
	if len(rawRepo.marked) != 1 || rawRepo.marked[0] != "2024-03-01.csv" {
		t.Fatalf("unexpected marked files: %v", rawRepo.marked)
	}
}

func TestIngestUnsupportedFormat(t *testing.T) {
	loader := newTestLoader(newMemoryStore(), &stubRawRepo{}, &stubFileRepo{}, &stubRejectionRepo{})

	_, err := loader.Ingest(context.Background(), schema.PoliciesDataset, "policies.parquet", []byte("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseDelimitedSkipsBOMAndEmptyRows(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("h1,h2\na,b\n\n ,\nc,d\n")...)

	rows, err := parseDelimited(payload, ',', 1)
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "a" || rows[1][1] != "d" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/schema"
)

type stubRawRepo struct {
	records []domain.RawRecord
}

func (s *stubRawRepo) CommitFile(context.Context, string, string, []domain.RawRecord, time.Time) error {
	return nil
}

func (s *stubRawRepo) ListValidAfter(_ context.Context, dataset string, afterSeq int64) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for _, record := range s.records {
		if record.Dataset == dataset && record.Seq > afterSeq && record.Status == domain.RecordStatusValid {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubRawRepo) MaxSeq(context.Context, string) (int64, error) { return 0, nil }

func (s *stubRawRepo) CountByStatus(context.Context, string) (int64, int64, error) {
	return 0, 0, nil
}

type stubStagingRepo struct {
	policies  []domain.StagingPolicy
	claims    []domain.StagingClaim
	marks     []domain.Watermark
	commitErr error
}

func (s *stubStagingRepo) CommitPolicies(_ context.Context, policies []domain.StagingPolicy, mark domain.Watermark) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.policies = append(s.policies, policies...)
	s.marks = append(s.marks, mark)
	return nil
}

func (s *stubStagingRepo) CommitClaims(_ context.Context, claims []domain.StagingClaim, mark domain.Watermark) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.claims = append(s.claims, claims...)
	s.marks = append(s.marks, mark)
	return nil
}

func (s *stubStagingRepo) ListPolicies(context.Context) ([]domain.StagingPolicy, error) {
	return s.policies, nil
}

func (s *stubStagingRepo) ListClaims(context.Context) ([]domain.StagingClaim, error) {
	return s.claims, nil
}

type stubWatermarkRepo struct {
	value int64
}

func (s *stubWatermarkRepo) Get(_ context.Context, dataset string, transition domain.Transition) (domain.Watermark, error) {
	return domain.Watermark{Dataset: dataset, Transition: transition, Value: s.value}, nil
}

func (s *stubWatermarkRepo) Advance(_ context.Context, _ string, _ domain.Transition, value int64) error {
	if value > s.value {
		s.value = value
	}
	return nil
}

func newTestEngine(rawRepo *stubRawRepo, stagingRepo *stubStagingRepo, wmRepo *stubWatermarkRepo) *Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(rawRepo, stagingRepo, wmRepo, log, clockwork.NewFakeClock(), DefaultConfig())
}

func policyRawRecord(seq int64, premium string) domain.RawRecord {
	fields := policyFields()
	fields["monthly_premium"] = premium
	fields["policy_id"] = fmt.Sprintf("POL-%d", seq)
	record := domain.NewRawRecord(schema.PoliciesDataset, "policies.csv", int(seq)+1, fields, testNow)
	record.Seq = seq
	return record
}

func TestTransformCommitsBatchWithWatermark(t *testing.T) {
	rawRepo := &stubRawRepo{records: []domain.RawRecord{
		policyRawRecord(1, "100.00"),
		policyRawRecord(2, "0.00"), // filtered, still advances the watermark
		policyRawRecord(3, "250.00"),
	}}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{})

	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}

	if result.RowsIn != 3 || result.RowsOut != 2 || result.RowsFiltered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(stagingRepo.policies) != 2 {
		t.Fatalf("expected 2 staged policies, got %d", len(stagingRepo.policies))
	}
	if len(stagingRepo.marks) != 1 || stagingRepo.marks[0].Value != 3 {
		t.Fatalf("expected watermark committed at 3, got %+v", stagingRepo.marks)
	}
	if stagingRepo.marks[0].Transition != domain.TransitionRawToStaging {
		t.Fatalf("unexpected transition: %s", stagingRepo.marks[0].Transition)
	}
}

func TestTransformSkipsRowsBehindWatermark(t *testing.T) {
	rawRepo := &stubRawRepo{records: []domain.RawRecord{
		policyRawRecord(1, "100.00"),
		policyRawRecord(2, "200.00"),
		policyRawRecord(3, "300.00"),
	}}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{value: 2})

	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}

	if result.RowsIn != 1 || result.RowsOut != 1 {
		t.Fatalf("expected only the row past the watermark, got %+v", result)
	}
	if stagingRepo.policies[0].PolicyID != "POL-3" {
		t.Fatalf("unexpected staged policy: %+v", stagingRepo.policies[0])
	}
}

func TestTransformNoNewRowsIsNoop(t *testing.T) {
	rawRepo := &stubRawRepo{records: []domain.RawRecord{policyRawRecord(1, "100.00")}}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{value: 1})

	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}
	if result.RowsIn != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if len(stagingRepo.marks) != 0 {
		t.Fatalf("expected no commit on an empty batch")
	}
}

func TestTransformFailedCommitLeavesWatermark(t *testing.T) {
	rawRepo := &stubRawRepo{records: []domain.RawRecord{policyRawRecord(1, "100.00")}}
	stagingRepo := &stubStagingRepo{commitErr: errors.New("deadlock detected")}
	wmRepo := &stubWatermarkRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, wmRepo)

	if _, err := engine.Transform(context.Background(), schema.PoliciesDataset); err == nil {
		t.Fatalf("expected commit failure to surface")
	}
	if wmRepo.value != 0 {
		t.Fatalf("expected watermark unchanged after failed commit, got %d", wmRepo.value)
	}

	// Retry after the fault clears reprocesses the same batch exactly once.
	stagingRepo.commitErr = nil
	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if result.RowsOut != 1 || len(stagingRepo.policies) != 1 {
		t.Fatalf("expected the batch staged once on retry, got %+v", result)
	}
}

func TestTransformRejectedRowsNeverStaged(t *testing.T) {
	bad := policyRawRecord(2, "100.00").Rejected("field monthly_premium: boom")
	rawRepo := &stubRawRepo{records: []domain.RawRecord{policyRawRecord(1, "100.00"), bad}}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{})

	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}
	if result.RowsIn != 1 || len(stagingRepo.policies) != 1 {
		t.Fatalf("expected only the VALID row staged, got %+v", result)
	}
}

func TestTransformClaims(t *testing.T) {
	fields := claimFields()
	record := domain.NewRawRecord(schema.ClaimsDataset, "claims.csv", 2, fields, testNow)
	record.Seq = 5

	rawRepo := &stubRawRepo{records: []domain.RawRecord{record}}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{})

	result, err := engine.Transform(context.Background(), schema.ClaimsDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}
	if result.RowsOut != 1 || len(stagingRepo.claims) != 1 {
		t.Fatalf("expected 1 staged claim, got %+v", result)
	}
	if !stagingRepo.claims[0].Amount.Equal(decimal.RequireFromString("5000.00")) {
		t.Fatalf("unexpected claim amount: %s", stagingRepo.claims[0].Amount)
	}
	if stagingRepo.marks[0].Value != 5 {
		t.Fatalf("expected watermark at 5, got %d", stagingRepo.marks[0].Value)
	}
}

func TestTransformUnknownDataset(t *testing.T) {
	engine := newTestEngine(&stubRawRepo{}, &stubStagingRepo{}, &stubWatermarkRepo{})

	_, err := engine.Transform(context.Background(), "vehicles")
	if !errors.Is(err, schema.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestTransformLargeBatchPreservesOrder(t *testing.T) {
	var records []domain.RawRecord
	for seq := int64(1); seq <= 500; seq++ {
		records = append(records, policyRawRecord(seq, "10.00"))
	}
	rawRepo := &stubRawRepo{records: records}
	stagingRepo := &stubStagingRepo{}
	engine := newTestEngine(rawRepo, stagingRepo, &stubWatermarkRepo{})

	result, err := engine.Transform(context.Background(), schema.PoliciesDataset)
	if err != nil {
		t.Fatalf("transform returned error: %v", err)
	}
	if result.RowsOut != 500 {
		t.Fatalf("expected 500 staged rows, got %d", result.RowsOut)
	}
	// Parallel mapping must not reorder the batch relative to raw sequence.
	for idx, policy := range stagingRepo.policies {
		if policy.RawSeq != int64(idx)+1 {
			t.Fatalf("row %d out of order: seq %d", idx, policy.RawSeq)
		}
	}
	if stagingRepo.marks[0].Value != 500 {
		t.Fatalf("expected watermark at 500, got %d", stagingRepo.marks[0].Value)
	}
}

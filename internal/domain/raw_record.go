package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the validation outcome recorded with every raw row.
type RecordStatus string

const (
	RecordStatusValid    RecordStatus = "VALID"
	RecordStatusRejected RecordStatus = "REJECTED"
)

// RawRecord is one row from a landed file plus its provenance. Raw records are
// append-only: once written they are never mutated or deleted, so the RAW
// layer can always be replayed or audited.
type RawRecord struct {
	ID      uuid.UUID `json:"id"`
	Dataset string    `json:"dataset"`
	// Seq is the warehouse-assigned sequence number. It is zero until the
	// record is persisted and is the basis for the RAW→STAGING watermark.
	Seq             int64             `json:"seq"`
	SourceFile      string            `json:"source_file"`
	RowNumber       int               `json:"row_number"`
	Fields          map[string]string `json:"fields"`
	Status          RecordStatus      `json:"validation_status"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	IngestedAt      time.Time         `json:"ingested_at"`
}

// NewRawRecord builds a raw record for a parsed row. Fields holds the raw cell
// text keyed by column name; null-token cells are simply absent.
func NewRawRecord(dataset, sourceFile string, rowNumber int, fields map[string]string, ingestedAt time.Time) RawRecord {
	return RawRecord{
		ID:         uuid.New(),
		Dataset:    dataset,
		SourceFile: sourceFile,
		RowNumber:  rowNumber,
		Fields:     fields,
		Status:     RecordStatusValid,
		IngestedAt: ingestedAt,
	}
}

// Rejected returns a copy marked REJECTED with the collected reason.
func (r RawRecord) Rejected(reason string) RawRecord {
	r.Status = RecordStatusRejected
	r.RejectionReason = reason
	return r
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// RejectionEntry captures row level problems that occur during ingestion.
type RejectionEntry struct {
	ID         uuid.UUID `json:"id"`
	Dataset    string    `json:"dataset"`
	SourceFile string    `json:"source_file"`
	RowNumber  *int      `json:"row_number,omitempty"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

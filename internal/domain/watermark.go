package domain

import "time"

// Transition identifies a stage boundary tracked by a watermark.
type Transition string

const (
	TransitionRawToStaging     Transition = "raw_to_staging"
	TransitionStagingToCurated Transition = "staging_to_curated"
)

// Watermark is the per (dataset, transition) progress pointer. Its value is
// the highest raw-record sequence number whose batch has fully committed.
// Values are monotonically non-decreasing; the store enforces this even under
// concurrent writers.
type Watermark struct {
	Dataset    string     `json:"dataset"`
	Transition Transition `json:"transition"`
	Value      int64      `json:"value"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

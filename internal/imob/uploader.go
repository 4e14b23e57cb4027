package imob

import (
	"context"
	"fmt"
)

// InsertFunc appends one batch of fully-formed rows to the remote store.
// A failed call inserts none of its rows; there is no atomicity across
// calls.
type InsertFunc func(ctx context.Context, rows []Record) error

// InsertReport describes how far an insert run got.
type InsertReport struct {
	// Total is the number of rows the run started with.
	Total int `json:"total"`

	// Inserted counts rows persisted remotely, i.e. the rows of every
	// batch that was accepted before the run stopped.
	Inserted int `json:"inserted"`

	// FailedBatch is the 1-based index of the batch whose call failed,
	// or 0 on full success.
	FailedBatch int `json:"failedBatch,omitempty"`

	// Remaining counts rows left unsent, including the failed batch.
	Remaining int `json:"remaining"`
}

// InsertAll submits rows in fixed-size batches, strictly sequentially:
// batch n+1 is not sent until batch n's result is known. Writes are never
// dispatched concurrently and never retried here; ordering and accurate
// partial-failure reporting matter more than latency.
//
// On the first batch failure the run stops. Batches already accepted stay
// persisted (no compensating delete) and the report says which batch index
// failed and how many rows landed. The error wraps the remote failure.
func InsertAll(ctx context.Context, rows []Record, insert InsertFunc, batchSize int) (InsertReport, error) {
	if batchSize <= 0 {
		batchSize = DefaultChunkSize
	}

	report := InsertReport{Total: len(rows), Remaining: len(rows)}
	batches := chunk(rows, batchSize)

	for i, batch := range batches {
		if err := insert(ctx, batch); err != nil {
			report.FailedBatch = i + 1
			return report, fmt.Errorf("insert batch %d of %d: %w", i+1, len(batches), err)
		}
		report.Inserted += len(batch)
		report.Remaining -= len(batch)
	}

	return report, nil
}

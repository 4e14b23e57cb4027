package imob

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultChunkSize bounds how many keys or rows travel in a single remote
// call. The server-side list-size limit is unknown, so every remote
// operation stays under this.
const DefaultChunkSize = 500

// DefaultChunkConcurrency bounds how many read-side chunk queries are in
// flight at once.
const DefaultChunkConcurrency = 4

// DefaultRetryBaseDelay is the initial backoff for read-side retries.
const DefaultRetryBaseDelay = 200 * time.Millisecond

// ChunkOptions controls chunk sizing, fan-out and the read-side retry
// policy for the duplicate filter and the reference enricher.
//
// Retries apply only to reads: existence and lookup queries are side-effect
// free, so a transient failure can be retried safely. The write path never
// uses this policy.
type ChunkOptions struct {
	Size          int
	Concurrency   int
	RetryAttempts int           // extra attempts after the first; 0 disables retries
	RetryBase     time.Duration // initial backoff, doubled per attempt
}

// withDefaults fills in zero fields.
func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.Size <= 0 {
		o.Size = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultChunkConcurrency
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBaseDelay
	}
	return o
}

// doRead runs one read-side chunk query under the retry policy.
func (o ChunkOptions) doRead(ctx context.Context, fn func(context.Context) error) error {
	if o.RetryAttempts <= 0 {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(uint64(o.RetryAttempts), retry.NewExponential(o.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// chunk partitions items into slices of at most size elements, preserving
// order. The returned slices alias the input.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

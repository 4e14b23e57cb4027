package imob

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ExistenceFunc reports which of the given business keys are already
// present in the remote store. It must be side-effect free and tolerate
// overlapping key lists across calls.
type ExistenceFunc func(ctx context.Context, keys []string) ([]string, error)

// FilterResult is the outcome of the duplicate filter.
type FilterResult struct {
	// New holds the records whose business key was not found remotely,
	// in input order.
	New []Record

	// Duplicates counts records whose key already exists in the store.
	Duplicates int

	// MissingKey counts records with an empty or absent business key.
	// They are excluded before lookup and never treated as new.
	MissingKey int
}

// FilterNew partitions records into new vs. already-ingested by checking
// their business keys against the remote store in chunks.
//
// Chunk queries run concurrently but the partition is only computed once
// every chunk has answered. If any chunk fails (after the read-side retry
// policy is exhausted) the whole operation fails: reporting a row as new
// without a verified duplicate set risks a double insert, so this path is
// fail-closed.
func FilterNew(ctx context.Context, records []Record, existing ExistenceFunc, opts ChunkOptions) (*FilterResult, error) {
	opts = opts.withDefaults()
	result := &FilterResult{}

	var keys []string
	for _, rec := range records {
		if key := stringValue(rec, ColSeq); key != "" {
			keys = append(keys, key)
		}
	}

	existingSet := make(map[string]struct{})
	if len(keys) > 0 {
		chunks := chunk(keys, opts.Size)
		found := make([][]string, len(chunks))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, keyChunk := range chunks {
			i, keyChunk := i, keyChunk
			g.Go(func() error {
				return opts.doRead(gctx, func(ctx context.Context) error {
					hits, err := existing(ctx, keyChunk)
					if err != nil {
						return err
					}
					found[i] = hits
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("check existing keys: %w", err)
		}

		for _, hits := range found {
			for _, key := range hits {
				existingSet[key] = struct{}{}
			}
		}
	}

	for _, rec := range records {
		key := stringValue(rec, ColSeq)
		switch {
		case key == "":
			result.MissingKey++
		case contains(existingSet, key):
			result.Duplicates++
		default:
			result.New = append(result.New, rec)
		}
	}

	return result, nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

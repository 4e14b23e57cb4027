package imob

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// fornecedorSep separates the numeric id from the free-text name inside
// the composite identifier field.
const fornecedorSep = " - "

// Loja is one entry of the lojas reference table.
type Loja struct {
	ID       int64
	Nome     string
	Segmento *string
}

// LookupFunc fetches the reference-table entries for the given loja ids.
// Like ExistenceFunc it must be a pure read.
type LookupFunc func(ctx context.Context, ids []int64) ([]Loja, error)

// FornecedorID extracts the lookup id embedded in the composite identifier
// field: the numeric prefix before the first " - " separator, trimmed.
// Records lacking the separator contribute no key.
func FornecedorID(rec Record) string {
	raw := stringValue(rec, ColFornecedorID)
	idx := strings.Index(raw, fornecedorSep)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(raw[:idx])
}

// BuildLookup resolves the loja ids referenced by records into a join map
// keyed by the id's decimal string form.
//
// Ids are deduplicated and discarded when they fail integer parsing; the
// remainder is fetched in chunks, concurrently, with the same fail-closed
// policy as FilterNew. When records reference no ids at all the remote
// call is skipped and an empty map is returned.
func BuildLookup(ctx context.Context, records []Record, lookup LookupFunc, opts ChunkOptions) (map[string]Loja, error) {
	opts = opts.withDefaults()

	seen := make(map[int64]struct{})
	var ids []int64
	for _, rec := range records {
		raw := FornecedorID(rec)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	joined := make(map[string]Loja, len(ids))
	if len(ids) == 0 {
		return joined, nil
	}

	chunks := chunk(ids, opts.Size)
	found := make([][]Loja, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, idChunk := range chunks {
		i, idChunk := i, idChunk
		g.Go(func() error {
			return opts.doRead(gctx, func(ctx context.Context) error {
				lojas, err := lookup(ctx, idChunk)
				if err != nil {
					return err
				}
				found[i] = lojas
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch lojas: %w", err)
	}

	for _, lojas := range found {
		for _, loja := range lojas {
			joined[strconv.FormatInt(loja.ID, 10)] = loja
		}
	}

	return joined, nil
}

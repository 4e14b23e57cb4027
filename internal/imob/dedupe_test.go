package imob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// recordsWithKeys builds one minimal record per key; "" means no key.
func recordsWithKeys(keys ...string) []Record {
	records := make([]Record, len(keys))
	for i, key := range keys {
		rec := make(Record, len(Columns))
		for _, col := range Columns {
			rec[col] = nil
		}
		if key != "" {
			rec[ColSeq] = key
		}
		records[i] = rec
	}
	return records
}

func TestFilterNew_Partition(t *testing.T) {
	records := recordsWithKeys("1", "2", "3", "4")

	existing := func(ctx context.Context, keys []string) ([]string, error) {
		return []string{"2", "4"}, nil
	}

	result, err := FilterNew(context.Background(), records, existing, ChunkOptions{})
	if err != nil {
		t.Fatalf("FilterNew() error = %v", err)
	}

	if result.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", result.Duplicates)
	}
	if len(result.New) != 2 {
		t.Fatalf("len(New) = %d, want 2", len(result.New))
	}
	// Stable: input order preserved.
	if result.New[0][ColSeq] != "1" || result.New[1][ColSeq] != "3" {
		t.Errorf("New keys = %v, %v; want 1, 3", result.New[0][ColSeq], result.New[1][ColSeq])
	}
}

func TestFilterNew_MissingKeysExcluded(t *testing.T) {
	records := recordsWithKeys("1", "", "3")

	var gotKeys []string
	existing := func(ctx context.Context, keys []string) ([]string, error) {
		gotKeys = append(gotKeys, keys...)
		return nil, nil
	}

	result, err := FilterNew(context.Background(), records, existing, ChunkOptions{})
	if err != nil {
		t.Fatalf("FilterNew() error = %v", err)
	}

	if len(gotKeys) != 2 {
		t.Errorf("queried %d keys, want 2 (empty key must not be looked up)", len(gotKeys))
	}
	if result.MissingKey != 1 {
		t.Errorf("MissingKey = %d, want 1", result.MissingKey)
	}
	if len(result.New) != 2 {
		t.Errorf("len(New) = %d, want 2 (keyless record is never new)", len(result.New))
	}
}

func TestFilterNew_ChunkBoundary(t *testing.T) {
	// 501 keys with chunk size 500 must issue exactly two queries whose
	// merged result equals the union of both chunk results.
	keys := make([]string, 501)
	for i := range keys {
		keys[i] = fmt.Sprintf("%d", i+1)
	}
	records := recordsWithKeys(keys...)

	var (
		mu    sync.Mutex
		calls [][]string
	)
	existing := func(ctx context.Context, chunk []string) ([]string, error) {
		mu.Lock()
		calls = append(calls, chunk)
		mu.Unlock()
		// Report the first key of each chunk as a duplicate.
		return []string{chunk[0]}, nil
	}

	result, err := FilterNew(context.Background(), records, existing, ChunkOptions{Size: 500})
	if err != nil {
		t.Fatalf("FilterNew() error = %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("issued %d chunk queries, want 2", len(calls))
	}
	if got := len(calls[0]) + len(calls[1]); got != 501 {
		t.Errorf("chunks cover %d keys, want 501", got)
	}
	if result.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2 (one per chunk)", result.Duplicates)
	}
	if len(result.New) != 499 {
		t.Errorf("len(New) = %d, want 499", len(result.New))
	}
}

func TestFilterNew_FailClosed(t *testing.T) {
	records := recordsWithKeys("1", "2", "3")
	boom := errors.New("connection reset")

	existing := func(ctx context.Context, keys []string) ([]string, error) {
		return nil, boom
	}

	result, err := FilterNew(context.Background(), records, existing, ChunkOptions{Size: 1})
	if err == nil {
		t.Fatal("FilterNew() expected error when a chunk fails")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil (no partial results on failure)", result)
	}
}

func TestFilterNew_RetriesTransientReadFailure(t *testing.T) {
	records := recordsWithKeys("1")

	attempts := 0
	existing := func(ctx context.Context, keys []string) ([]string, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return nil, nil
	}

	result, err := FilterNew(context.Background(), records, existing,
		ChunkOptions{RetryAttempts: 2, RetryBase: 1})
	if err != nil {
		t.Fatalf("FilterNew() error = %v, want retry to recover", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(result.New) != 1 {
		t.Errorf("len(New) = %d, want 1", len(result.New))
	}
}

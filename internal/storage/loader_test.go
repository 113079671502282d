package storage

import (
	"context"
	"errors"
	"iter"
	"testing"

	"normalize/internal/records"
)

func seq(n int, tail error) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(records.Record{"c1": i, "c2": "x"}, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

// TestLoadBatches_Basic verifies rows are grouped into batches aligned to the
// column order and the total equals the sum of all writes.
func TestLoadBatches_Basic(t *testing.T) {
	t.Parallel()

	var sizes []int
	var first []any
	write := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		if first == nil {
			first = append([]any(nil), rows[0]...)
		}
		sizes = append(sizes, len(rows))
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), []string{"c2", "c1"}, seq(7, nil), 3, write, nil)
	if err != nil {
		t.Fatalf("LoadBatches error: %v", err)
	}
	if total != 7 {
		t.Fatalf("total rows %d, want 7", total)
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Fatalf("batch sizes %v, want [3 3 1]", sizes)
	}
	if first[0] != "x" || first[1] != 0 {
		t.Fatalf("first row %v, want [x 0]", first)
	}
}

// TestLoadBatches_ErrorPropagation ensures the first write error stops the
// load.
func TestLoadBatches_ErrorPropagation(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("copy failed")
	var batches int
	write := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		batches++
		if batches == 2 {
			return 1, wantErr
		}
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), []string{"c1"}, seq(5, nil), 2, write, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if batches != 2 {
		t.Fatalf("write calls %d, want 2", batches)
	}
	if total != 3 {
		t.Fatalf("total %d, want 3", total)
	}
}

// TestLoadBatches_StreamError forwards an upstream error without flushing the
// partial batch.
func TestLoadBatches_StreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("parse failed")
	calls := 0
	write := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		calls++
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), []string{"c1"}, seq(3, boom), 2, write, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 || total != 2 {
		t.Fatalf("calls=%d total=%d, want 1 and 2", calls, total)
	}
}

func TestLoadBatches_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	write := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		return int64(len(rows)), nil
	}
	if _, err := LoadBatches(ctx, []string{"c1"}, seq(3, nil), 2, write, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadBatches_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := LoadBatches(context.Background(), nil, seq(0, nil), 0, nil, nil); err == nil {
		t.Fatalf("expected error for batchSize=0")
	}
	if _, err := LoadBatches(context.Background(), nil, seq(0, nil), 1, nil, nil); err == nil {
		t.Fatalf("expected error for nil write")
	}
}

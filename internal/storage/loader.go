package storage

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"normalize/internal/records"
)

// WriteFn writes one batch of rows aligned to columns and returns the number
// of rows written. The rows slice is reused after the call returns.
type WriteFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains records from in, groups them into batches of batchSize
// rows aligned to columns, and calls write for each non-empty batch. It
// returns the total reported by write and the first error encountered,
// either from the stream or from write.
//
// Progress is logged on every successful flush with running totals and
// rows/sec since the previous flush.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in iter.Seq2[records.Record, error],
	batchSize int,
	write WriteFn,
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if write == nil {
		return 0, fmt.Errorf("write must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := write(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Error("loader: write failed", zap.Int64("after", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Debug("loader: batch",
			zap.Int64("batch", batches),
			zap.Float64("rps", rps),
			zap.Int64("written", n),
			zap.Int64("total_written", total),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for rec, err := range in {
		if err != nil {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch = append(batch, rec.Values(columns))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	log.Debug("loader: input drained", zap.Int64("batches", batches), zap.Int64("total_written", total))
	return total, nil
}

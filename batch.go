package rdsearch

import "context"

// DefaultBatchSize is the bulk-write chunk size used when none is configured.
const DefaultBatchSize = 1000

// BatchWriter accumulates records and flushes each full batch as one bulk
// write, keeping memory bounded by one batch regardless of stream length.
// Flush failures propagate immediately; retry, if any, is the storage
// client's concern.
type BatchWriter[T any] struct {
	size  int
	buf   []T
	flush func(context.Context, []T) error
	total int
}

// NewBatchWriter returns a BatchWriter flushing through fn every size
// records. A non-positive size falls back to DefaultBatchSize.
func NewBatchWriter[T any](size int, fn func(context.Context, []T) error) *BatchWriter[T] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter[T]{size: size, buf: make([]T, 0, size), flush: fn}
}

// Add buffers one record, flushing when the buffer reaches the batch size.
func (b *BatchWriter[T]) Add(ctx context.Context, rec T) error {
	b.buf = append(b.buf, rec)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered records as one bulk write. Cancellation is
// honored here, between batches, never mid-batch.
func (b *BatchWriter[T]) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.flush(ctx, b.buf); err != nil {
		return err
	}
	b.total += len(b.buf)
	b.buf = b.buf[:0]
	return nil
}

// Total returns the number of records written by completed flushes.
func (b *BatchWriter[T]) Total() int { return b.total }

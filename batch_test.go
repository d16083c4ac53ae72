package rdsearch

import (
	"context"
	"testing"
)

func TestBatchWriter(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		records    int
		expFlushes int
	}{
		{name: "empty", size: 3, records: 0, expFlushes: 0},
		{name: "single record", size: 3, records: 1, expFlushes: 1},
		{name: "exact multiple", size: 3, records: 6, expFlushes: 2},
		{name: "remainder", size: 3, records: 7, expFlushes: 3},
		{name: "size one", size: 1, records: 4, expFlushes: 4},
		{name: "default size", size: 0, records: DefaultBatchSize + 1, expFlushes: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			var flushes int
			var written int
			bw := NewBatchWriter(test.size, func(ctx context.Context, batch []int) error {
				flushes++
				written += len(batch)
				return nil
			})
			for i := 0; i < test.records; i++ {
				if err := bw.Add(ctx, i); err != nil {
					t.Fatalf("adding record %d: %v", i, err)
				}
			}
			if err := bw.Flush(ctx); err != nil {
				t.Fatalf("final flush: %v", err)
			}
			if flushes != test.expFlushes {
				t.Errorf("expected %d flushes, got %d", test.expFlushes, flushes)
			}
			if written != test.records {
				t.Errorf("expected %d records written, got %d", test.records, written)
			}
			if bw.Total() != test.records {
				t.Errorf("expected total %d, got %d", test.records, bw.Total())
			}
		})
	}
}

func TestBatchWriterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var flushes int
	bw := NewBatchWriter(2, func(ctx context.Context, batch []string) error {
		flushes++
		return nil
	})
	if err := bw.Add(ctx, "a"); err != nil {
		t.Fatalf("adding record: %v", err)
	}
	cancel()
	if err := bw.Flush(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if flushes != 0 {
		t.Fatalf("flush ran despite cancellation")
	}
}

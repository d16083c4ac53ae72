package rdsearch

import (
	"archive/zip"
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Phase names the states of an ingest run.
type Phase int

const (
	Locating Phase = iota
	ReadingMfg
	ReadingOs
	ReadingProducts
	ReadingFiles
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Locating:
		return "locating"
	case ReadingMfg:
		return "reading-mfg"
	case ReadingOs:
		return "reading-os"
	case ReadingProducts:
		return "reading-products"
	case ReadingFiles:
		return "reading-files"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Ingestor drains the four tabular sources of a reference dataset into a
// storage client: manufacturers, then operating systems, then products, then
// files. The order matters: products denormalize manufacturer and OS
// names resolved from the tables committed before them. Memory use is bounded
// by one batch plus the resolver's name maps, independent of dataset size.
type Ingestor struct {
	// BatchSize is the number of records per bulk write.
	BatchSize int
	// Log, when non-nil, receives phase timings and file-count progress.
	Log *log.Logger

	client Client
	phase  Phase
}

// NewIngestor returns an Ingestor writing through client.
func NewIngestor(client Client) *Ingestor {
	return &Ingestor{client: client, BatchSize: DefaultBatchSize}
}

// Phase reports the state of the most recent run.
func (ing *Ingestor) Phase() Phase { return ing.phase }

func (ing *Ingestor) logf(format string, args ...interface{}) {
	if ing.Log != nil {
		ing.Log.Printf(format, args...)
	}
}

// IngestDirectory ingests the four source files from a directory holding an
// extracted distribution. It returns the total record count written.
func (ing *Ingestor) IngestDirectory(ctx context.Context, path string) (int, error) {
	c, err := OpenDir(path)
	if err != nil {
		ing.phase = Failed
		return 0, err
	}
	defer c.Close()
	return ing.run(ctx, c, DirSourceFiles)
}

// IngestISO ingests directly from an ISO 9660 disk image. It returns the
// total record count written.
func (ing *Ingestor) IngestISO(ctx context.Context, path string) (int, error) {
	c, err := OpenISO(path)
	if err != nil {
		ing.phase = Failed
		return 0, err
	}
	defer c.Close()
	return ing.run(ctx, c, ISOSourceFiles)
}

// run sequences the phases over a located container. The phase table is
// fixed at compile time; wanted holds the container form's filenames in
// mfg, os, prod, zip order.
func (ing *Ingestor) run(ctx context.Context, c Container, wanted []string) (total int, err error) {
	defer func() {
		if err != nil {
			ing.phase = Failed
		}
	}()

	ing.phase = Locating
	names, err := c.Names()
	if err != nil {
		return 0, errors.Wrap(err, "listing container")
	}
	fmap, err := MatchSourceFiles(wanted, names)
	if err != nil {
		return 0, err
	}

	resolver := NewResolver(ing.client)
	phases := []struct {
		phase  Phase
		wanted string
		ingest func(ctx context.Context, r io.Reader, source string) (int, error)
	}{
		{ReadingMfg, wanted[0], func(ctx context.Context, r io.Reader, source string) (int, error) {
			return ing.ingestManufacturers(ctx, r, source, resolver)
		}},
		{ReadingOs, wanted[1], func(ctx context.Context, r io.Reader, source string) (int, error) {
			return ing.ingestOSes(ctx, r, source, resolver)
		}},
		{ReadingProducts, wanted[2], func(ctx context.Context, r io.Reader, source string) (int, error) {
			return ing.ingestProducts(ctx, r, source, resolver)
		}},
	}
	for _, ph := range phases {
		ing.phase = ph.phase
		name := fmap[ph.wanted]
		rc, err := c.Open(name)
		if err != nil {
			return total, err
		}
		start := time.Now()
		n, err := ph.ingest(ctx, rc, name)
		rc.Close()
		if err != nil {
			return total, err
		}
		total += n
		ing.logf("%s: put %d records in %s", name, n, time.Since(start))
	}

	ing.phase = ReadingFiles
	start := time.Now()
	n, err := ing.ingestFiles(ctx, c, fmap[wanted[3]])
	if err != nil {
		return total, err
	}
	total += n
	ing.logf("%s: put %d records in %s", fmap[wanted[3]], n, time.Since(start))
	ing.phase = Done
	return total, nil
}

func (ing *Ingestor) ingestManufacturers(ctx context.Context, r io.Reader, source string, res *Resolver) (int, error) {
	bw := NewBatchWriter(ing.BatchSize, ing.client.PutManufacturers)
	rr := NewRecordReader(NewLineDecoder(r, false), source, mfgArity)
	for {
		row, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return bw.Total(), err
		}
		m := manufacturerFromRow(row)
		res.AddManufacturer(m.Code, m.Name)
		if err := bw.Add(ctx, m); err != nil {
			return bw.Total(), err
		}
	}
	return bw.Total(), bw.Flush(ctx)
}

func (ing *Ingestor) ingestOSes(ctx context.Context, r io.Reader, source string, res *Resolver) (int, error) {
	bw := NewBatchWriter(ing.BatchSize, ing.client.PutOSes)
	rr := NewRecordReader(NewLineDecoder(r, false), source, osArity)
	for {
		row, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return bw.Total(), err
		}
		o := osFromRow(row)
		res.AddOS(o.Code, o.Name)
		if err := bw.Add(ctx, o); err != nil {
			return bw.Total(), err
		}
	}
	return bw.Total(), bw.Flush(ctx)
}

func (ing *Ingestor) ingestProducts(ctx context.Context, r io.Reader, source string, res *Resolver) (int, error) {
	bw := NewBatchWriter(ing.BatchSize, ing.client.PutProducts)
	rr := NewRecordReader(NewLineDecoder(r, false), source, prodArity)
	for {
		row, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return bw.Total(), err
		}
		p := productFromRow(row)
		if err := res.ResolveProduct(ctx, &p); err != nil {
			return bw.Total(), err
		}
		if err := bw.Add(ctx, p); err != nil {
			return bw.Total(), err
		}
	}
	return bw.Total(), bw.Flush(ctx)
}

// ingestFiles processes the zipped file table. The zip needs random access,
// so image sources are first copied to a temporary store which is removed on
// every exit path. Parsing and bulk writing run concurrently; the bounded
// channel keeps the parser from racing ahead of a slow backend.
func (ing *Ingestor) ingestFiles(ctx context.Context, c Container, name string) (total int, err error) {
	ra, size, cleanup, err := c.OpenRandomAccess(name)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return 0, errors.Wrapf(err, "opening zip %s", name)
	}
	var entry *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, FileTableEntry) {
			entry = f
			break
		}
	}
	if entry == nil {
		return 0, &MissingSourceFileError{Missing: []string{FileTableEntry}, Present: zipNames(zr)}
	}
	rc, err := entry.Open()
	if err != nil {
		return 0, errors.Wrapf(err, "opening zip entry %s", entry.Name)
	}
	defer rc.Close()

	batches := make(chan []ProductFile, 2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		rr := NewRecordReader(NewLineDecoder(rc, true), entry.Name, fileArity)
		buf := make([]ProductFile, 0, ing.BatchSize)
		send := func(b []ProductFile) error {
			select {
			case batches <- b:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for rec := 1; ; rec++ {
			row, err := rr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			f, ferr := fileFromRow(row)
			if ferr != nil {
				return &MalformedRecordError{Source: entry.Name, Record: rec, Err: ferr}
			}
			buf = append(buf, f)
			if len(buf) >= ing.BatchSize {
				if err := send(buf); err != nil {
					return err
				}
				buf = make([]ProductFile, 0, ing.BatchSize)
			}
		}
		if len(buf) > 0 {
			return send(buf)
		}
		return nil
	})
	g.Go(func() error {
		lastReported := 0
		for batch := range batches {
			if err := ing.client.PutFiles(gctx, batch); err != nil {
				return errors.Wrap(err, "bulk file write")
			}
			total += len(batch)
			if total-lastReported >= 1000000 {
				lastReported = total
				ing.logf("    files inserted: %d", total)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func zipNames(zr *zip.Reader) []string {
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

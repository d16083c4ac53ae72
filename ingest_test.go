package rdsearch_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kdomanski/iso9660"

	"github.com/rdsearch/rdsearch"
	"github.com/rdsearch/rdsearch/boltdb"
)

const (
	sharedSHA1 = "00000142988AFA836117B1B572FAE4713F200567"
	onlySHA1   = "0000A1C4FED36E288FCBEFB7BC74BBB5537603B0"
)

// fixtureMfg has one header pseudo-record, one plain record, and one record
// holding a latin-1 byte to exercise the encoding recovery path.
var fixtureMfg = []byte("\"MfgCode\",\"MfgName\"\r\n" +
	"\"42\",\"Acme Corp\"\r\n" +
	"\"1337\",\"Caf\xe9 Software\"\r\n")

var fixtureOS = []byte("\"OpSystemCode\",\"OpSystemName\",\"OpSystemVersion\",\"MfgCode\"\r\n" +
	"\"362\",\"TestOS\",\"1.0\",\"42\"\r\n")

var fixtureProd = []byte("\"ProductCode\",\"ProductName\",\"ProductVersion\",\"OpSystemCode\",\"MfgCode\",\"Language\",\"ApplicationType\"\r\n" +
	"\"9342\",\"Widget\",\"1.0\",\"362\",\"42\",\"English\",\"Utility\"\r\n")

var fixtureFile = []byte("\"SHA-1\",\"MD5\",\"CRC32\",\"FileName\",\"FileSize\",\"ProductCode\",\"OpSystemCode\",\"SpecialCode\"\r\n" +
	"\"" + sharedSHA1 + "\",\"9B3702B0E788C6D27996D8845B496F8C\",\"05436505\",\"shared.dll\",\"42496\",\"9342\",\"362\",\"\"\r\n" +
	"\"" + onlySHA1 + "\",\"FEF93DBB2D0255FBABEAF9A7C84D8B68\",\"BEB0E9EE\",\"only.bin\",\"100\",\"9342\",\"362\",\"\"\r\n")

// All flat sources are ingested whole, headers included; only the zipped
// file table skips its header line.
const fixtureRecords = 3 + 2 + 2 + 2

func zipFileTable(t *testing.T, table []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("NSRLFile.txt")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write(table); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func writeDirFixture(t *testing.T, mfg, osTable, prod, file []byte) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"NSRLMfg.txt":      mfg,
		"NSRLOs.txt":       osTable,
		"NSRLProd.txt":     prod,
		"NSRLFile.txt.zip": zipFileTable(t, file),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	return dir
}

func writeISOFixture(t *testing.T, mfg, osTable, prod, file []byte) string {
	t.Helper()
	w, err := iso9660.NewWriter()
	if err != nil {
		t.Fatalf("creating image writer: %v", err)
	}
	defer w.Cleanup()

	entries := map[string][]byte{
		"NSRLMFG.TXT":  mfg,
		"NSRLOS.TXT":   osTable,
		"NSRLPROD.TXT": prod,
		"NSRLFILE.ZIP": zipFileTable(t, file),
	}
	for name, content := range entries {
		if err := w.AddFile(bytes.NewReader(content), name); err != nil {
			t.Fatalf("adding image entry %s: %v", name, err)
		}
	}

	path := filepath.Join(t.TempDir(), "fixture.iso")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating image file: %v", err)
	}
	defer f.Close()
	if err := w.WriteTo(f, "NSRL"); err != nil {
		t.Fatalf("writing image: %v", err)
	}
	return path
}

func newTestClient(t *testing.T) *boltdb.Client {
	t.Helper()
	c, err := boltdb.NewClient(filepath.Join(t.TempDir(), "rdsearch.db"))
	if err != nil {
		t.Fatalf("opening client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.CreateIndices(context.Background(), 4, 1, false); err != nil {
		t.Fatalf("creating indices: %v", err)
	}
	return c
}

func checkIngested(t *testing.T, c rdsearch.Client) {
	t.Helper()
	ctx := context.Background()

	counts, err := c.Counts(ctx)
	if err != nil {
		t.Fatalf("getting counts: %v", err)
	}
	exp := rdsearch.Counts{"mfg": 3, "os": 2, "prod": 2, "file": 2}
	for kind, n := range exp {
		if counts[kind] != n {
			t.Errorf("expected %d %s records, got %d", n, kind, counts[kind])
		}
	}

	// Products carry denormalized names resolved during the run.
	p, err := c.GetProduct(ctx, "9342")
	if err != nil {
		t.Fatalf("getting product: %v", err)
	}
	if p == nil || p.OSName != "TestOS" || p.MfgName != "Acme Corp" {
		t.Fatalf("product names not resolved: %+v", p)
	}

	// Digests are queryable in any case with all three types.
	for _, digest := range []string{sharedSHA1, "9b3702b0e788c6d27996d8845b496f8c", "05436505"} {
		exists, err := c.DigestExists(ctx, digest)
		if err != nil {
			t.Fatalf("checking digest %s: %v", digest, err)
		}
		if !exists {
			t.Errorf("digest %s not found after ingest", digest)
		}
	}

	f, err := c.GetDigest(ctx, onlySHA1, true, true)
	if err != nil {
		t.Fatalf("getting digest: %v", err)
	}
	if f == nil || f.Filename != "only.bin" || f.ProdCode != "9342" || f.Size != 100 {
		t.Fatalf("unexpected file record: %+v", f)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := writeDirFixture(t, fixtureMfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	total, err := ing.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	if total != fixtureRecords {
		t.Fatalf("expected %d records, got %d", fixtureRecords, total)
	}
	if ing.Phase() != rdsearch.Done {
		t.Fatalf("expected phase Done, got %s", ing.Phase())
	}
	checkIngested(t, c)
}

func TestIngestISO(t *testing.T) {
	iso := writeISOFixture(t, fixtureMfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	total, err := ing.IngestISO(context.Background(), iso)
	if err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	if total != fixtureRecords {
		t.Fatalf("expected %d records, got %d", fixtureRecords, total)
	}
	if ing.Phase() != rdsearch.Done {
		t.Fatalf("expected phase Done, got %s", ing.Phase())
	}
	checkIngested(t, c)
}

func TestIngestIdempotent(t *testing.T) {
	dir := writeDirFixture(t, fixtureMfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)

	for i := 0; i < 2; i++ {
		if _, err := rdsearch.NewIngestor(c).IngestDirectory(context.Background(), dir); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	checkIngested(t, c)
}

func TestIngestMissingSourceFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "NSRLMfg.txt"), fixtureMfg, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	_, err := ing.IngestDirectory(context.Background(), dir)
	var msf *rdsearch.MissingSourceFileError
	if !errors.As(err, &msf) {
		t.Fatalf("expected MissingSourceFileError, got %v", err)
	}
	if len(msf.Missing) != 3 {
		t.Fatalf("expected all 3 absent files reported, got %v", msf.Missing)
	}
	if ing.Phase() != rdsearch.Failed {
		t.Fatalf("expected phase Failed, got %s", ing.Phase())
	}
}

func TestIngestUnresolvableProduct(t *testing.T) {
	prod := []byte("\"ProductCode\",\"ProductName\",\"ProductVersion\",\"OpSystemCode\",\"MfgCode\",\"Language\",\"ApplicationType\"\r\n" +
		"\"9342\",\"Widget\",\"1.0\",\"999\",\"42\",\"English\",\"Utility\"\r\n")
	dir := writeDirFixture(t, fixtureMfg, fixtureOS, prod, fixtureFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	_, err := ing.IngestDirectory(context.Background(), dir)
	var ird *rdsearch.InvalidReferenceDataError
	if !errors.As(err, &ird) {
		t.Fatalf("expected InvalidReferenceDataError, got %v", err)
	}
	if ird.Kind != "os" || ird.Code != "999" {
		t.Fatalf("error misattributed: %+v", ird)
	}
	if ing.Phase() != rdsearch.Failed {
		t.Fatalf("expected phase Failed, got %s", ing.Phase())
	}
}

func TestIngestMalformedRecord(t *testing.T) {
	mfg := []byte("\"MfgCode\",\"MfgName\"\r\n" +
		"\"42\",\"Acme Corp\",\"extra column\"\r\n")
	dir := writeDirFixture(t, mfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	_, err := ing.IngestDirectory(context.Background(), dir)
	var mre *rdsearch.MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if mre.Record != 2 {
		t.Fatalf("error misattributed: %+v", mre)
	}
	if ing.Phase() != rdsearch.Failed {
		t.Fatalf("expected phase Failed, got %s", ing.Phase())
	}
}

func TestIngestCancellation(t *testing.T) {
	dir := writeDirFixture(t, fixtureMfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ing.IngestDirectory(ctx, dir); err == nil {
		t.Fatal("expected error from canceled context")
	}
	if ing.Phase() != rdsearch.Failed {
		t.Fatalf("expected phase Failed, got %s", ing.Phase())
	}
}

func tempFileTableCopies(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "rdsearch-filetable-*.zip"))
	if err != nil {
		t.Fatalf("globbing temp dir: %v", err)
	}
	return len(matches)
}

func TestISOTempCopyCleanedUp(t *testing.T) {
	before := tempFileTableCopies(t)

	iso := writeISOFixture(t, fixtureMfg, fixtureOS, fixtureProd, fixtureFile)
	c := newTestClient(t)
	if _, err := rdsearch.NewIngestor(c).IngestISO(context.Background(), iso); err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	if after := tempFileTableCopies(t); after != before {
		t.Fatalf("temporary file table copy leaked after success (%d -> %d)", before, after)
	}
}

func TestISOTempCopyCleanedUpOnFailure(t *testing.T) {
	before := tempFileTableCopies(t)

	// A file table with an unparseable size fails the run mid-phase.
	badFile := []byte("\"SHA-1\",\"MD5\",\"CRC32\",\"FileName\",\"FileSize\",\"ProductCode\",\"OpSystemCode\",\"SpecialCode\"\r\n" +
		"\"" + sharedSHA1 + "\",\"9B3702B0E788C6D27996D8845B496F8C\",\"05436505\",\"shared.dll\",\"not-a-size\",\"9342\",\"362\",\"\"\r\n")
	iso := writeISOFixture(t, fixtureMfg, fixtureOS, fixtureProd, badFile)
	c := newTestClient(t)
	ing := rdsearch.NewIngestor(c)

	_, err := ing.IngestISO(context.Background(), iso)
	var mre *rdsearch.MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if ing.Phase() != rdsearch.Failed {
		t.Fatalf("expected phase Failed, got %s", ing.Phase())
	}
	if after := tempFileTableCopies(t); after != before {
		t.Fatalf("temporary file table copy leaked after failure (%d -> %d)", before, after)
	}
}

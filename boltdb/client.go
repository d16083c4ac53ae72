// Package boltdb provides an embedded bolt-backed implementation of
// rdsearch.Client. It lets the full ingest and query surface run against
// local storage with no cluster, and is the backend the conformance suite
// exercises both directly and through the HTTP proxy.
package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/rdsearch/rdsearch"
)

var (
	mfgBucket  = []byte("mfg")
	osBucket   = []byte("os")
	prodBucket = []byte("prod")
	fileBucket = []byte("file")

	// digestBuckets index digest values to file document keys, one bucket
	// per digest type, with a nested bucket per digest value.
	digestBuckets = map[string][]byte{
		"md5":   []byte("digest_md5"),
		"sha1":  []byte("digest_sha1"),
		"crc32": []byte("digest_crc32"),
	}

	allBuckets = [][]byte{
		mfgBucket, osBucket, prodBucket, fileBucket,
		digestBuckets["md5"], digestBuckets["sha1"], digestBuckets["crc32"],
	}
)

// Client is a rdsearch.Client backed by a single bolt file.
type Client struct {
	db *bolt.DB
}

// NewClient opens (creating if necessary) the bolt file at path.
func NewClient(path string) (*Client, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", path)
	}
	return &Client{db: db}, nil
}

// Close syncs and closes the underlying boltdb.
func (c *Client) Close() error {
	if err := c.db.Sync(); err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return c.db.Close()
}

// CreateIndices creates the entity buckets. Shards and replicas are
// meaningless for a single-file store and are ignored.
func (c *Client) CreateIndices(ctx context.Context, shards, replicas int, recreate bool) error {
	exist, err := c.IndicesExist(ctx)
	if err != nil {
		return err
	}
	if exist && !recreate {
		return &rdsearch.InvalidOperationError{Msg: "indices already exist; pass recreate to replace them"}
	}
	if exist {
		if err := c.DeleteIndices(ctx); err != nil {
			return err
		}
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "creating bucket %s", b)
			}
		}
		return nil
	})
}

// DeleteIndices drops all entity buckets.
func (c *Client) DeleteIndices(ctx context.Context) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if err := tx.DeleteBucket(b); err != nil && err != bolt.ErrBucketNotFound {
				return errors.Wrapf(err, "deleting bucket %s", b)
			}
		}
		return nil
	})
}

// IndicesExist reports whether every entity bucket is present.
func (c *Client) IndicesExist(ctx context.Context) (bool, error) {
	exist := true
	err := c.db.View(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if tx.Bucket(b) == nil {
				exist = false
				return nil
			}
		}
		return nil
	})
	return exist, err
}

// Counts returns per-entity document counts.
func (c *Client) Counts(ctx context.Context) (rdsearch.Counts, error) {
	counts := rdsearch.Counts{}
	err := c.db.View(func(tx *bolt.Tx) error {
		for kind, name := range map[string][]byte{
			"mfg": mfgBucket, "os": osBucket, "prod": prodBucket, "file": fileBucket,
		} {
			b := tx.Bucket(name)
			if b == nil {
				return errors.Errorf("bucket %s does not exist; create indices first", name)
			}
			counts[kind] = int64(b.Stats().KeyN)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return errors.Errorf("bucket %s does not exist; create indices first", bucket)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshaling record")
	}
	return b.Put([]byte(key), buf)
}

func getJSON(tx *bolt.Tx, bucket []byte, key string, v interface{}) (bool, error) {
	b := tx.Bucket(bucket)
	if b == nil {
		return false, errors.Errorf("bucket %s does not exist; create indices first", bucket)
	}
	raw := b.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	return true, errors.Wrap(json.Unmarshal(raw, v), "unmarshaling record")
}

// PutManufacturer upserts one manufacturer by code.
func (c *Client) PutManufacturer(ctx context.Context, m rdsearch.Manufacturer) error {
	return c.PutManufacturers(ctx, []rdsearch.Manufacturer{m})
}

// PutManufacturers upserts a batch in one transaction.
func (c *Client) PutManufacturers(ctx context.Context, ms []rdsearch.Manufacturer) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, m := range ms {
			if err := putJSON(tx, mfgBucket, m.Code, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutOS upserts one operating system by code.
func (c *Client) PutOS(ctx context.Context, o rdsearch.OS) error {
	return c.PutOSes(ctx, []rdsearch.OS{o})
}

// PutOSes upserts a batch in one transaction.
func (c *Client) PutOSes(ctx context.Context, os []rdsearch.OS) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, o := range os {
			if err := putJSON(tx, osBucket, o.Code, o); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutProduct upserts one product by code, resolving missing names.
func (c *Client) PutProduct(ctx context.Context, p rdsearch.Product) error {
	return c.PutProducts(ctx, []rdsearch.Product{p})
}

// PutProducts upserts a batch, resolving missing OS/manufacturer names by
// point lookup before writing.
func (c *Client) PutProducts(ctx context.Context, ps []rdsearch.Product) error {
	res := rdsearch.NewResolver(c)
	for i := range ps {
		if err := res.ResolveProduct(ctx, &ps[i]); err != nil {
			return err
		}
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, p := range ps {
			if err := putJSON(tx, prodBucket, p.Code, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutFile upserts one file record by its composite (prod_code, sha1) key.
func (c *Client) PutFile(ctx context.Context, f rdsearch.ProductFile) error {
	return c.PutFiles(ctx, []rdsearch.ProductFile{f})
}

// PutFiles upserts a batch in one transaction, maintaining the digest
// indexes.
func (c *Client) PutFiles(ctx context.Context, fs []rdsearch.ProductFile) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, f := range fs {
			f = f.Normalized()
			key := f.Key()
			if err := putJSON(tx, fileBucket, key, f); err != nil {
				return err
			}
			for dt, digest := range map[string]string{"md5": f.MD5, "sha1": f.SHA1, "crc32": f.CRC32} {
				b := tx.Bucket(digestBuckets[dt])
				if b == nil {
					return errors.Errorf("bucket %s does not exist; create indices first", digestBuckets[dt])
				}
				idx, err := b.CreateBucketIfNotExists([]byte(digest))
				if err != nil {
					return errors.Wrapf(err, "indexing %s %s", dt, digest)
				}
				if err := idx.Put([]byte(key), nil); err != nil {
					return errors.Wrapf(err, "indexing %s %s", dt, digest)
				}
			}
		}
		return nil
	})
}

// GetManufacturer returns the manufacturer with the given code, or nil.
func (c *Client) GetManufacturer(ctx context.Context, code string) (*rdsearch.Manufacturer, error) {
	var m rdsearch.Manufacturer
	var found bool
	err := c.db.View(func(tx *bolt.Tx) (err error) {
		found, err = getJSON(tx, mfgBucket, code, &m)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// GetOS returns the operating system with the given code, or nil.
func (c *Client) GetOS(ctx context.Context, code string) (*rdsearch.OS, error) {
	var o rdsearch.OS
	var found bool
	err := c.db.View(func(tx *bolt.Tx) (err error) {
		found, err = getJSON(tx, osBucket, code, &o)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &o, nil
}

// GetProduct returns the product with the given code, or nil.
func (c *Client) GetProduct(ctx context.Context, code string) (*rdsearch.Product, error) {
	var p rdsearch.Product
	var found bool
	err := c.db.View(func(tx *bolt.Tx) (err error) {
		found, err = getJSON(tx, prodBucket, code, &p)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// GetProductFiles returns the product and up to limit of its file records,
// or nil when the product does not exist.
func (c *Client) GetProductFiles(ctx context.Context, code string, limit int) (*rdsearch.ProductFiles, error) {
	p, err := c.GetProduct(ctx, code)
	if err != nil || p == nil {
		return nil, err
	}
	res := &rdsearch.ProductFiles{Product: *p, Files: []rdsearch.ProductFile{}}
	err = c.db.View(func(tx *bolt.Tx) error {
		prefix := []byte(code + "_")
		cur := tx.Bucket(fileBucket).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var f rdsearch.ProductFile
			if err := json.Unmarshal(v, &f); err != nil {
				return errors.Wrap(err, "unmarshaling file record")
			}
			res.Files = append(res.Files, f)
			if limit > 0 && len(res.Files) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// getDigestKeys returns the file document keys indexed under a digest.
func (c *Client) getDigestKeys(digest string, limit int) ([]string, error) {
	dt, err := rdsearch.DigestType(digest)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(digestBuckets[dt])
		if b == nil {
			return errors.Errorf("bucket %s does not exist; create indices first", digestBuckets[dt])
		}
		idx := b.Bucket([]byte(strings.ToLower(digest)))
		if idx == nil {
			return nil
		}
		cur := idx.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			keys = append(keys, string(k))
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
		return nil
	})
	return keys, err
}

// GetDigest returns one file record matching the digest, or nil. The digest
// is length-classified before any lookup; an unrecognized length fails with
// InvalidDigestError. Filename and prod_code are stripped unless requested.
func (c *Client) GetDigest(ctx context.Context, digest string, includeFilename, includeProdCode bool) (*rdsearch.ProductFile, error) {
	keys, err := c.getDigestKeys(digest, 1)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	var f rdsearch.ProductFile
	var found bool
	err = c.db.View(func(tx *bolt.Tx) (err error) {
		found, err = getJSON(tx, fileBucket, keys[0], &f)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	if !includeFilename {
		f.Filename = ""
	}
	if !includeProdCode {
		f.ProdCode = ""
	}
	return &f, nil
}

// DigestExists reports whether any file record matches the digest.
func (c *Client) DigestExists(ctx context.Context, digest string) (bool, error) {
	keys, err := c.getDigestKeys(digest, 1)
	return len(keys) > 0, err
}

// GetDigestProducts returns up to limit products containing a file matching
// the digest, or nil when there are none.
func (c *Client) GetDigestProducts(ctx context.Context, digest string, limit int) ([]rdsearch.Product, error) {
	keys, err := c.getDigestKeys(digest, 0)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	seen := make(map[string]bool)
	var products []rdsearch.Product
	for _, key := range keys {
		// file keys are prodCode + "_" + sha1 (40 hex chars)
		if len(key) < 41 {
			continue
		}
		code := key[:len(key)-41]
		if seen[code] {
			continue
		}
		seen[code] = true
		p, err := c.GetProduct(ctx, code)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, *p)
			if limit > 0 && len(products) >= limit {
				break
			}
		}
	}
	return products, nil
}

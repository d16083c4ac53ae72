// Package elastic provides the Elasticsearch-backed rdsearch.Client.
//
// Indices are named "<base>_<type>" so multiple datasets can share one
// cluster (a test dataset alongside a production one, say). Elasticsearch 7
// dropped mapping types and parent/child joins, so product and file records
// live in separate indices; the file document id is still the composite
// (prod_code, sha1) key and product/file navigation uses term queries, which
// preserves the observable client semantics.
package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	es "github.com/olivere/elastic/v7"
	"github.com/pkg/errors"

	"github.com/rdsearch/rdsearch"
)

// DefaultIndexBase is the index name prefix used when none is configured.
const DefaultIndexBase = "nsrl"

var kinds = []string{"mfg", "os", "prod", "file"}

var mappings = map[string]string{
	"mfg": `{"properties":{
		"code":{"type":"keyword"},
		"name":{"type":"text"}}}`,
	"os": `{"properties":{
		"code":{"type":"keyword"},
		"name":{"type":"text"},
		"version":{"type":"keyword"},
		"mfg_code":{"type":"keyword"}}}`,
	"prod": `{"properties":{
		"code":{"type":"keyword"},
		"name":{"type":"keyword"},
		"version":{"type":"keyword"},
		"os_code":{"type":"keyword"},
		"os_name":{"type":"text"},
		"mfg_code":{"type":"keyword"},
		"mfg_name":{"type":"text"},
		"language":{"type":"keyword"},
		"application_type":{"type":"keyword"}}}`,
	"file": `{"properties":{
		"md5":{"type":"keyword"},
		"sha1":{"type":"keyword"},
		"crc32":{"type":"keyword"},
		"size":{"type":"long"},
		"filename":{"type":"keyword"},
		"os_code":{"type":"keyword"},
		"prod_code":{"type":"keyword"}}}`,
}

// Client stores and queries the reference dataset in an Elasticsearch
// cluster.
type Client struct {
	es        *es.Client
	indexBase string
}

// Option configures a Client.
type Option func(*Client)

// WithIndexBase overrides the default index name prefix.
func WithIndexBase(base string) Option {
	return func(c *Client) { c.indexBase = base }
}

// NewClient wraps an Elasticsearch client.
func NewClient(esc *es.Client, opts ...Option) *Client {
	c := &Client{es: esc, indexBase: DefaultIndexBase}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) index(kind string) string { return c.indexBase + "_" + kind }

func (c *Client) indices() []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = c.index(k)
	}
	return names
}

// IndicesExist reports whether all dataset indices are present.
func (c *Client) IndicesExist(ctx context.Context) (bool, error) {
	exist, err := c.es.IndexExists(c.indices()...).Do(ctx)
	return exist, errors.Wrap(err, "checking indices")
}

// CreateIndices creates the dataset indices with the given shard and replica
// counts. It refuses when the indices already exist unless recreate is set.
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
	for _, kind := range kinds {
		body := fmt.Sprintf(`{"settings":{"number_of_shards":%d,"number_of_replicas":%d},"mappings":%s}`,
			shards, replicas, mappings[kind])
		if _, err := c.es.CreateIndex(c.index(kind)).BodyString(body).Do(ctx); err != nil {
			return errors.Wrapf(err, "creating index %s", c.index(kind))
		}
	}
	return nil
}

// DeleteIndices drops all dataset indices.
func (c *Client) DeleteIndices(ctx context.Context) error {
	_, err := c.es.DeleteIndex(c.indices()...).Do(ctx)
	return errors.Wrap(err, "deleting indices")
}

// Counts returns per-entity document counts.
func (c *Client) Counts(ctx context.Context) (rdsearch.Counts, error) {
	counts := rdsearch.Counts{}
	for _, kind := range kinds {
		n, err := c.es.Count(c.index(kind)).Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "counting %s", kind)
		}
		counts[kind] = n
	}
	return counts, nil
}

func (c *Client) bulkDo(ctx context.Context, bulk *es.BulkService) error {
	resp, err := bulk.Do(ctx)
	if err != nil {
		return errors.Wrap(err, "bulk write")
	}
	if resp.Errors {
		return errors.Errorf("bulk write reported %d failed items", len(resp.Failed()))
	}
	return nil
}

// PutManufacturer upserts one manufacturer by code.
func (c *Client) PutManufacturer(ctx context.Context, m rdsearch.Manufacturer) error {
	_, err := c.es.Index().Index(c.index("mfg")).Id(m.Code).BodyJson(m).Do(ctx)
	return errors.Wrapf(err, "indexing manufacturer %s", m.Code)
}

// PutManufacturers upserts a batch with one bulk request.
func (c *Client) PutManufacturers(ctx context.Context, ms []rdsearch.Manufacturer) error {
	bulk := c.es.Bulk()
	for _, m := range ms {
		bulk.Add(es.NewBulkIndexRequest().Index(c.index("mfg")).Id(m.Code).Doc(m))
	}
	return c.bulkDo(ctx, bulk)
}

// PutOS upserts one operating system by code.
func (c *Client) PutOS(ctx context.Context, o rdsearch.OS) error {
	_, err := c.es.Index().Index(c.index("os")).Id(o.Code).BodyJson(o).Do(ctx)
	return errors.Wrapf(err, "indexing os %s", o.Code)
}

// PutOSes upserts a batch with one bulk request.
func (c *Client) PutOSes(ctx context.Context, os []rdsearch.OS) error {
	bulk := c.es.Bulk()
	for _, o := range os {
		bulk.Add(es.NewBulkIndexRequest().Index(c.index("os")).Id(o.Code).Doc(o))
	}
	return c.bulkDo(ctx, bulk)
}

// PutProduct upserts one product by code, resolving missing names by point
// lookup.
func (c *Client) PutProduct(ctx context.Context, p rdsearch.Product) error {
	if err := rdsearch.NewResolver(c).ResolveProduct(ctx, &p); err != nil {
		return err
	}
	_, err := c.es.Index().Index(c.index("prod")).Id(p.Code).BodyJson(p).Do(ctx)
	return errors.Wrapf(err, "indexing product %s", p.Code)
}

// PutProducts upserts a batch, resolving missing names, with one bulk
// request.
func (c *Client) PutProducts(ctx context.Context, ps []rdsearch.Product) error {
	res := rdsearch.NewResolver(c)
	bulk := c.es.Bulk()
	for i := range ps {
		if err := res.ResolveProduct(ctx, &ps[i]); err != nil {
			return err
		}
		bulk.Add(es.NewBulkIndexRequest().Index(c.index("prod")).Id(ps[i].Code).Doc(ps[i]))
	}
	return c.bulkDo(ctx, bulk)
}

// PutFile upserts one file record by its composite (prod_code, sha1) key.
func (c *Client) PutFile(ctx context.Context, f rdsearch.ProductFile) error {
	f = f.Normalized()
	_, err := c.es.Index().Index(c.index("file")).Id(f.Key()).BodyJson(f).Do(ctx)
	return errors.Wrapf(err, "indexing file %s", f.Key())
}

// PutFiles upserts a batch with one bulk request.
func (c *Client) PutFiles(ctx context.Context, fs []rdsearch.ProductFile) error {
	bulk := c.es.Bulk()
	for _, f := range fs {
		f = f.Normalized()
		bulk.Add(es.NewBulkIndexRequest().Index(c.index("file")).Id(f.Key()).Doc(f))
	}
	return c.bulkDo(ctx, bulk)
}

func (c *Client) get(ctx context.Context, kind, id string, v interface{}) (bool, error) {
	res, err := c.es.Get().Index(c.index(kind)).Id(id).Do(ctx)
	if err != nil {
		if es.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "getting %s %s", kind, id)
	}
	if !res.Found {
		return false, nil
	}
	return true, errors.Wrap(json.Unmarshal(res.Source, v), "unmarshaling source")
}

// GetManufacturer returns the manufacturer with the given code, or nil.
func (c *Client) GetManufacturer(ctx context.Context, code string) (*rdsearch.Manufacturer, error) {
	var m rdsearch.Manufacturer
	found, err := c.get(ctx, "mfg", code, &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// GetOS returns the operating system with the given code, or nil.
func (c *Client) GetOS(ctx context.Context, code string) (*rdsearch.OS, error) {
	var o rdsearch.OS
	found, err := c.get(ctx, "os", code, &o)
	if err != nil || !found {
		return nil, err
	}
	return &o, nil
}

// GetProduct returns the product with the given code, or nil.
func (c *Client) GetProduct(ctx context.Context, code string) (*rdsearch.Product, error) {
	var p rdsearch.Product
	found, err := c.get(ctx, "prod", code, &p)
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
	if limit <= 0 {
		limit = 10000
	}
	res, err := c.es.Search(c.index("file")).
		Query(es.NewTermQuery("prod_code", code)).
		Size(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "searching files of product %s", code)
	}
	out := &rdsearch.ProductFiles{Product: *p, Files: []rdsearch.ProductFile{}}
	for _, hit := range res.Hits.Hits {
		var f rdsearch.ProductFile
		if err := json.Unmarshal(hit.Source, &f); err != nil {
			return nil, errors.Wrap(err, "unmarshaling file hit")
		}
		out.Files = append(out.Files, f)
	}
	return out, nil
}

// GetDigest returns one file record matching the digest, or nil. The digest
// is length-classified before any lookup. Filename and prod_code are
// stripped unless requested.
func (c *Client) GetDigest(ctx context.Context, digest string, includeFilename, includeProdCode bool) (*rdsearch.ProductFile, error) {
	dt, err := rdsearch.DigestType(digest)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Search(c.index("file")).
		Query(es.NewTermQuery(dt, strings.ToLower(digest))).
		Size(1).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "searching digest %s", digest)
	}
	if len(res.Hits.Hits) == 0 {
		return nil, nil
	}
	var f rdsearch.ProductFile
	if err := json.Unmarshal(res.Hits.Hits[0].Source, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshaling file hit")
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
	f, err := c.GetDigest(ctx, digest, false, false)
	return f != nil, err
}

// GetDigestProducts returns up to limit products containing a file matching
// the digest, or nil when there are none.
func (c *Client) GetDigestProducts(ctx context.Context, digest string, limit int) ([]rdsearch.Product, error) {
	dt, err := rdsearch.DigestType(digest)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10000
	}
	res, err := c.es.Search(c.index("file")).
		Query(es.NewTermQuery(dt, strings.ToLower(digest))).
		Size(10000).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "searching digest %s", digest)
	}
	seen := make(map[string]bool)
	var products []rdsearch.Product
	for _, hit := range res.Hits.Hits {
		var f rdsearch.ProductFile
		if err := json.Unmarshal(hit.Source, &f); err != nil {
			return nil, errors.Wrap(err, "unmarshaling file hit")
		}
		if f.ProdCode == "" || seen[f.ProdCode] {
			continue
		}
		seen[f.ProdCode] = true
		p, err := c.GetProduct(ctx, f.ProdCode)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, *p)
			if len(products) >= limit {
				break
			}
		}
	}
	return products, nil
}

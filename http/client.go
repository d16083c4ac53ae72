package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rdsearch/rdsearch"
)

// Client is a storage client speaking to a remote Server. It mirrors the
// direct backends' semantics: 404 with an empty body means "no such record"
// and maps to a nil result, a 403 or 409 surfaces as an
// InvalidOperationError, and digests are length-classified locally before
// any request goes out.
type Client struct {
	base string
	hc   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// NewClient returns a Client for the server at uri, such as
// "http://localhost:8080".
func NewClient(uri string, opts ...ClientOption) *Client {
	c := &Client{base: strings.TrimRight(uri, "/"), hc: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c
}

var errNotFound = errors.New("not found")

// do issues one request. It returns errNotFound for an empty-bodied 404 and
// decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request body")
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusForbidden:
		return &rdsearch.InvalidOperationError{Msg: "server not configured to be writable"}
	case resp.StatusCode == http.StatusConflict:
		msg, _ := io.ReadAll(resp.Body)
		return &rdsearch.InvalidOperationError{Msg: strings.TrimSpace(string(msg))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(resp.Body)
		return errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
	}
	return nil
}

// CreateIndices asks the server to create backend storage.
func (c *Client) CreateIndices(ctx context.Context, shards, replicas int, recreate bool) error {
	q := url.Values{
		"shards":   {strconv.Itoa(shards)},
		"replicas": {strconv.Itoa(replicas)},
		"recreate": {strconv.FormatBool(recreate)},
	}
	return c.do(ctx, http.MethodPut, "/indices", q, nil, nil)
}

// DeleteIndices asks the server to drop backend storage.
func (c *Client) DeleteIndices(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/indices", nil, nil, nil)
}

// IndicesExist reports whether backend storage exists on the server.
func (c *Client) IndicesExist(ctx context.Context) (bool, error) {
	var status struct {
		Indices struct {
			Exists bool `json:"exists"`
		} `json:"indices"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", nil, nil, &status); err != nil {
		return false, err
	}
	return status.Indices.Exists, nil
}

// Counts returns per-entity record counts from the server.
func (c *Client) Counts(ctx context.Context) (rdsearch.Counts, error) {
	var counts rdsearch.Counts
	if err := c.do(ctx, http.MethodGet, "/counts", nil, nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// PutManufacturer upserts one manufacturer.
func (c *Client) PutManufacturer(ctx context.Context, m rdsearch.Manufacturer) error {
	q := url.Values{"name": {m.Name}}
	return c.do(ctx, http.MethodPut, "/manufacturers/"+url.PathEscape(m.Code), q, nil, nil)
}

// PutManufacturers upserts a batch with one request.
func (c *Client) PutManufacturers(ctx context.Context, ms []rdsearch.Manufacturer) error {
	body := make(map[string]rdsearch.Manufacturer, len(ms))
	for _, m := range ms {
		body[m.Code] = m
	}
	return c.do(ctx, http.MethodPost, "/manufacturers", nil, body, nil)
}

// PutOS upserts one operating system.
func (c *Client) PutOS(ctx context.Context, o rdsearch.OS) error {
	q := url.Values{
		"name":     {o.Name},
		"version":  {o.Version},
		"mfg_code": {o.MfgCode},
	}
	return c.do(ctx, http.MethodPut, "/os/"+url.PathEscape(o.Code), q, nil, nil)
}

// PutOSes upserts a batch with one request.
func (c *Client) PutOSes(ctx context.Context, os []rdsearch.OS) error {
	body := make(map[string]rdsearch.OS, len(os))
	for _, o := range os {
		body[o.Code] = o
	}
	return c.do(ctx, http.MethodPost, "/os", nil, body, nil)
}

// PutProduct upserts one product. Name resolution happens server side, so
// the referenced manufacturer and OS must already exist there.
func (c *Client) PutProduct(ctx context.Context, p rdsearch.Product) error {
	q := url.Values{
		"name":             {p.Name},
		"version":          {p.Version},
		"os_code":          {p.OSCode},
		"mfg_code":         {p.MfgCode},
		"language":         {p.Language},
		"application_type": {p.ApplicationType},
	}
	return c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(p.Code), q, nil, nil)
}

// PutProducts upserts a batch with one request.
func (c *Client) PutProducts(ctx context.Context, ps []rdsearch.Product) error {
	body := make(map[string]rdsearch.Product, len(ps))
	for _, p := range ps {
		body[p.Code] = p
	}
	return c.do(ctx, http.MethodPost, "/products", nil, body, nil)
}

// PutFile upserts one file record.
func (c *Client) PutFile(ctx context.Context, f rdsearch.ProductFile) error {
	f = f.Normalized()
	q := url.Values{
		"sha1":     {f.SHA1},
		"md5":      {f.MD5},
		"crc32":    {f.CRC32},
		"filename": {f.Filename},
		"size":     {strconv.FormatInt(f.Size, 10)},
		"os_code":  {f.OSCode},
	}
	return c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(f.ProdCode)+"/files", q, nil, nil)
}

// PutFiles upserts a batch with one request.
func (c *Client) PutFiles(ctx context.Context, fs []rdsearch.ProductFile) error {
	body := make(map[string]rdsearch.ProductFile, len(fs))
	for _, f := range fs {
		f = f.Normalized()
		body[f.Key()] = f
	}
	return c.do(ctx, http.MethodPost, "/files", nil, body, nil)
}

// GetManufacturer returns the manufacturer with the given code, or nil.
func (c *Client) GetManufacturer(ctx context.Context, code string) (*rdsearch.Manufacturer, error) {
	var m rdsearch.Manufacturer
	err := c.do(ctx, http.MethodGet, "/manufacturers/"+url.PathEscape(code), nil, nil, &m)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOS returns the operating system with the given code, or nil.
func (c *Client) GetOS(ctx context.Context, code string) (*rdsearch.OS, error) {
	var o rdsearch.OS
	err := c.do(ctx, http.MethodGet, "/os/"+url.PathEscape(code), nil, nil, &o)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetProduct returns the product with the given code, or nil.
func (c *Client) GetProduct(ctx context.Context, code string) (*rdsearch.Product, error) {
	var p rdsearch.Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(code), nil, nil, &p)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductFiles returns the product and up to limit of its file records,
// or nil when the product does not exist.
func (c *Client) GetProductFiles(ctx context.Context, code string, limit int) (*rdsearch.ProductFiles, error) {
	q := url.Values{
		"include_files": {"true"},
		"limit":         {strconv.Itoa(limit)},
	}
	var pf rdsearch.ProductFiles
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(code), q, nil, &pf)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// GetDigest returns one file record matching the digest, or nil. The digest
// is classified locally so a bad length never reaches the server.
func (c *Client) GetDigest(ctx context.Context, digest string, includeFilename, includeProdCode bool) (*rdsearch.ProductFile, error) {
	if _, err := rdsearch.DigestType(digest); err != nil {
		return nil, err
	}
	q := url.Values{
		"include_filename":  {strconv.FormatBool(includeFilename)},
		"include_prod_code": {strconv.FormatBool(includeProdCode)},
	}
	var f rdsearch.ProductFile
	err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(digest), q, nil, &f)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DigestExists reports whether any file record matches the digest.
func (c *Client) DigestExists(ctx context.Context, digest string) (bool, error) {
	if _, err := rdsearch.DigestType(digest); err != nil {
		return false, err
	}
	q := url.Values{"exists": {"true"}}
	err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(digest), q, nil, nil)
	if err == errNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetDigestProducts returns up to limit products containing a file matching
// the digest, or nil when there are none.
func (c *Client) GetDigestProducts(ctx context.Context, digest string, limit int) ([]rdsearch.Product, error) {
	if _, err := rdsearch.DigestType(digest); err != nil {
		return nil, err
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var ps []rdsearch.Product
	err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(digest)+"/products", q, nil, &ps)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ps, nil
}

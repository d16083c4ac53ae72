package rdsearch

import (
	"context"

	"github.com/pkg/errors"
)

// Resolver resolves manufacturer and OS codes to display names for
// denormalization onto product records. Codes ingested earlier in the current
// run answer from memory; anything else falls back to a point lookup against
// the storage client. The maps are bounded by the count of distinct
// manufacturers and OSes, orders of magnitude smaller than the file table.
type Resolver struct {
	client Client
	mfg    map[string]string
	os     map[string]string
}

// NewResolver returns a Resolver with empty maps, falling back to client.
func NewResolver(client Client) *Resolver {
	return &Resolver{
		client: client,
		mfg:    make(map[string]string),
		os:     make(map[string]string),
	}
}

// AddManufacturer records a code-to-name mapping from the current run.
func (r *Resolver) AddManufacturer(code, name string) { r.mfg[code] = name }

// AddOS records a code-to-name mapping from the current run.
func (r *Resolver) AddOS(code, name string) { r.os[code] = name }

// ResolveProduct fills in empty OSName and MfgName fields. Failure of both
// the in-memory map and the backend lookup is fatal to the record: it signals
// a corrupt or out-of-order source dataset.
func (r *Resolver) ResolveProduct(ctx context.Context, p *Product) error {
	if p.OSName == "" {
		name, ok := r.os[p.OSCode]
		if !ok {
			rec, err := r.client.GetOS(ctx, p.OSCode)
			if err != nil {
				return errors.Wrapf(err, "looking up os %q", p.OSCode)
			}
			if rec == nil {
				return &InvalidReferenceDataError{ProdCode: p.Code, Kind: "os", Code: p.OSCode}
			}
			name = rec.Name
			r.os[p.OSCode] = name
		}
		p.OSName = name
	}
	if p.MfgName == "" {
		name, ok := r.mfg[p.MfgCode]
		if !ok {
			rec, err := r.client.GetManufacturer(ctx, p.MfgCode)
			if err != nil {
				return errors.Wrapf(err, "looking up manufacturer %q", p.MfgCode)
			}
			if rec == nil {
				return &InvalidReferenceDataError{ProdCode: p.Code, Kind: "mfg", Code: p.MfgCode}
			}
			name = rec.Name
			r.mfg[p.MfgCode] = name
		}
		p.MfgName = name
	}
	return nil
}

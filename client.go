package rdsearch

import "context"

// Counts maps entity kind (mfg, os, prod, file) to stored record count.
type Counts map[string]int64

// Client is the storage backend interface. All implementations share these
// semantics: puts are idempotent upserts keyed by code (file records by the
// composite Key), point lookups return nil with a nil error when the record
// does not exist, and digest arguments are length-classified before any
// lookup so an unclassifiable digest never reaches the backend.
type Client interface {
	// CreateIndices creates backend storage for the dataset. When storage
	// already exists it fails with an InvalidOperationError unless recreate
	// is set, in which case it is dropped and rebuilt empty. Backends
	// without a sharding concept accept and ignore shards and replicas.
	CreateIndices(ctx context.Context, shards, replicas int, recreate bool) error
	DeleteIndices(ctx context.Context) error
	IndicesExist(ctx context.Context) (bool, error)
	Counts(ctx context.Context) (Counts, error)

	PutManufacturer(ctx context.Context, m Manufacturer) error
	PutManufacturers(ctx context.Context, ms []Manufacturer) error
	PutOS(ctx context.Context, o OS) error
	PutOSes(ctx context.Context, os []OS) error

	// PutProduct resolves empty OSName/MfgName from the referenced codes
	// before storing; an unresolvable code fails with an
	// InvalidReferenceDataError.
	PutProduct(ctx context.Context, p Product) error
	PutProducts(ctx context.Context, ps []Product) error

	PutFile(ctx context.Context, f ProductFile) error
	PutFiles(ctx context.Context, fs []ProductFile) error

	GetManufacturer(ctx context.Context, code string) (*Manufacturer, error)
	GetOS(ctx context.Context, code string) (*OS, error)
	GetProduct(ctx context.Context, code string) (*Product, error)
	GetProductFiles(ctx context.Context, code string, limit int) (*ProductFiles, error)

	// GetDigest returns one file record whose digest of the matching type
	// equals the given digest, nil when none does. Filename and prod_code
	// are omitted from the result unless requested.
	GetDigest(ctx context.Context, digest string, includeFilename, includeProdCode bool) (*ProductFile, error)
	DigestExists(ctx context.Context, digest string) (bool, error)
	GetDigestProducts(ctx context.Context, digest string, limit int) ([]Product, error)
}

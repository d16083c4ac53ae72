package rdsearch

import "strings"

// Manufacturer is one row of the manufacturer table.
type Manufacturer struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// OS is one row of the operating system table.
type OS struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Version string `json:"version"`
	MfgCode string `json:"mfg_code"`
}

// Product is one row of the product table. OSName and MfgName are
// denormalized from the tables ingested before it so that product lookups
// never need a join.
type Product struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	OSCode          string `json:"os_code"`
	OSName          string `json:"os_name,omitempty"`
	MfgCode         string `json:"mfg_code"`
	MfgName         string `json:"mfg_name,omitempty"`
	Language        string `json:"language"`
	ApplicationType string `json:"application_type"`
}

// ProductFile is one row of the file table: one file observed in one
// product. The same content hash can appear under many products.
type ProductFile struct {
	SHA1     string `json:"sha1"`
	MD5      string `json:"md5"`
	CRC32    string `json:"crc32"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size"`
	ProdCode string `json:"prod_code,omitempty"`
	OSCode   string `json:"os_code"`
}

// Key is the deterministic record id: product code joined to the lower-cased
// sha1. Re-ingesting a dataset overwrites rather than duplicates.
func (f ProductFile) Key() string {
	return f.ProdCode + "_" + strings.ToLower(f.SHA1)
}

// Normalized returns a copy with all three digests lower-cased, the form
// stored and queried.
func (f ProductFile) Normalized() ProductFile {
	f.SHA1 = strings.ToLower(f.SHA1)
	f.MD5 = strings.ToLower(f.MD5)
	f.CRC32 = strings.ToLower(f.CRC32)
	return f
}

// ProductFiles is a product together with its file records, the shape of a
// product-files lookup.
type ProductFiles struct {
	Product
	Files []ProductFile `json:"files"`
}

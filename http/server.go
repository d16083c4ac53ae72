// Package http exposes a storage client over a REST surface and provides a
// client speaking to it, so ingestion and queries can run against a remote
// server instead of a backend reachable only locally. The two sides together
// satisfy the same contract as a direct backend client.
package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rdsearch/rdsearch"
)

// Server proxies a storage client over HTTP. When not writable, every
// mutating route answers 403.
type Server struct {
	client   rdsearch.Client
	writable bool
	router   *mux.Router
	log      *log.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWritable enables the mutating routes.
func WithWritable() ServerOption {
	return func(s *Server) { s.writable = true }
}

// WithLogger sets the request error logger.
func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer returns a read-only server over client unless WithWritable is
// given.
func NewServer(client rdsearch.Client, opts ...ServerOption) *Server {
	s := &Server{client: client, router: mux.NewRouter()}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/counts", s.handleCounts).Methods("GET")
	r.HandleFunc("/indices", s.writableOnly(s.handleCreateIndices)).Methods("PUT")
	r.HandleFunc("/indices", s.writableOnly(s.handleDeleteIndices)).Methods("DELETE")

	r.HandleFunc("/manufacturers/{code}", s.handleGetManufacturer).Methods("GET")
	r.HandleFunc("/manufacturers/{code}", s.writableOnly(s.handlePutManufacturer)).Methods("PUT")
	r.HandleFunc("/manufacturers", s.writableOnly(s.handlePostManufacturers)).Methods("POST")

	r.HandleFunc("/os/{code}", s.handleGetOS).Methods("GET")
	r.HandleFunc("/os/{code}", s.writableOnly(s.handlePutOS)).Methods("PUT")
	r.HandleFunc("/os", s.writableOnly(s.handlePostOSes)).Methods("POST")

	r.HandleFunc("/products/{code}", s.handleGetProduct).Methods("GET")
	r.HandleFunc("/products/{code}", s.writableOnly(s.handlePutProduct)).Methods("PUT")
	r.HandleFunc("/products", s.writableOnly(s.handlePostProducts)).Methods("POST")
	r.HandleFunc("/products/{code}/files", s.handleGetProductFiles).Methods("GET")
	r.HandleFunc("/products/{code}/files", s.writableOnly(s.handlePutProductFile)).Methods("PUT")

	r.HandleFunc("/files", s.writableOnly(s.handlePostFiles)).Methods("POST")
	r.HandleFunc("/files/{digest}", s.handleGetDigest).Methods("GET")
	r.HandleFunc("/files/{digest}/products", s.handleGetDigestProducts).Methods("GET")
}

func (s *Server) writableOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.writable {
			http.Error(w, "server not configured to be writable", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// respondErr maps the error taxonomy onto status codes: unclassifiable
// digests and bad reference data are the caller's fault, refused operations
// conflict with server state, the rest is internal.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	var status int
	switch err.(type) {
	case *rdsearch.InvalidDigestError, *rdsearch.InvalidReferenceDataError:
		status = http.StatusBadRequest
	case *rdsearch.InvalidOperationError:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		s.logf("request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// respondJSON writes v as JSON, or an empty 404 when v is nil.
func (s *Server) respondJSON(w http.ResponseWriter, v interface{}) {
	if v == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logf("encoding response: %v", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("reference dataset search HTTP API\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	exist, err := s.client.IndicesExist(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, map[string]interface{}{
		"indices": map[string]bool{"exists": exist},
	})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.client.Counts(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, counts)
}

func (s *Server) handleCreateIndices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shards := intParam(q.Get("shards"), 4)
	replicas := intParam(q.Get("replicas"), 1)
	recreate := boolParam(q.Get("recreate"))
	if err := s.client.CreateIndices(r.Context(), shards, replicas, recreate); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleDeleteIndices(w http.ResponseWriter, r *http.Request) {
	if err := s.client.DeleteIndices(r.Context()); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleGetManufacturer(w http.ResponseWriter, r *http.Request) {
	m, err := s.client.GetManufacturer(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if m == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, m)
}

func (s *Server) handlePutManufacturer(w http.ResponseWriter, r *http.Request) {
	m := rdsearch.Manufacturer{
		Code: mux.Vars(r)["code"],
		Name: r.URL.Query().Get("name"),
	}
	if err := s.client.PutManufacturer(r.Context(), m); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handlePostManufacturers(w http.ResponseWriter, r *http.Request) {
	var body map[string]rdsearch.Manufacturer
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ms := make([]rdsearch.Manufacturer, 0, len(body))
	for _, m := range body {
		ms = append(ms, m)
	}
	if err := s.client.PutManufacturers(r.Context(), ms); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleGetOS(w http.ResponseWriter, r *http.Request) {
	o, err := s.client.GetOS(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if o == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, o)
}

func (s *Server) handlePutOS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	o := rdsearch.OS{
		Code:    mux.Vars(r)["code"],
		Name:    q.Get("name"),
		Version: q.Get("version"),
		MfgCode: q.Get("mfg_code"),
	}
	if err := s.client.PutOS(r.Context(), o); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handlePostOSes(w http.ResponseWriter, r *http.Request) {
	var body map[string]rdsearch.OS
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	os := make([]rdsearch.OS, 0, len(body))
	for _, o := range body {
		os = append(os, o)
	}
	if err := s.client.PutOSes(r.Context(), os); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	q := r.URL.Query()
	if boolParam(q.Get("include_files")) {
		pf, err := s.client.GetProductFiles(r.Context(), code, intParam(q.Get("limit"), 10000))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		if pf == nil {
			s.respondJSON(w, nil)
			return
		}
		s.respondJSON(w, pf)
		return
	}
	p, err := s.client.GetProduct(r.Context(), code)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if p == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, p)
}

func (s *Server) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := rdsearch.Product{
		Code:            mux.Vars(r)["code"],
		Name:            q.Get("name"),
		Version:         q.Get("version"),
		OSCode:          q.Get("os_code"),
		MfgCode:         q.Get("mfg_code"),
		Language:        q.Get("language"),
		ApplicationType: q.Get("application_type"),
	}
	if err := s.client.PutProduct(r.Context(), p); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handlePostProducts(w http.ResponseWriter, r *http.Request) {
	var body map[string]rdsearch.Product
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ps := make([]rdsearch.Product, 0, len(body))
	for _, p := range body {
		ps = append(ps, p)
	}
	if err := s.client.PutProducts(r.Context(), ps); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleGetProductFiles(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	limit := intParam(r.URL.Query().Get("limit"), 10000)
	pf, err := s.client.GetProductFiles(r.Context(), code, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if pf == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, pf.Files)
}

func (s *Server) handlePutProductFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		http.Error(w, "bad size: "+err.Error(), http.StatusBadRequest)
		return
	}
	f := rdsearch.ProductFile{
		SHA1:     q.Get("sha1"),
		MD5:      q.Get("md5"),
		CRC32:    q.Get("crc32"),
		Filename: q.Get("filename"),
		Size:     size,
		ProdCode: mux.Vars(r)["code"],
		OSCode:   q.Get("os_code"),
	}
	if err := s.client.PutFile(r.Context(), f); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handlePostFiles(w http.ResponseWriter, r *http.Request) {
	var body map[string]rdsearch.ProductFile
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fs := make([]rdsearch.ProductFile, 0, len(body))
	for _, f := range body {
		fs = append(fs, f)
	}
	if err := s.client.PutFiles(r.Context(), fs); err != nil {
		s.respondErr(w, err)
	}
}

func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	digest := mux.Vars(r)["digest"]
	q := r.URL.Query()
	if boolParam(q.Get("exists")) {
		exists, err := s.client.DigestExists(r.Context(), digest)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		if !exists {
			s.respondJSON(w, nil)
			return
		}
		s.respondJSON(w, map[string]bool{"exists": true})
		return
	}
	f, err := s.client.GetDigest(r.Context(), digest,
		boolParam(q.Get("include_filename")), boolParam(q.Get("include_prod_code")))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if f == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, f)
}

func (s *Server) handleGetDigestProducts(w http.ResponseWriter, r *http.Request) {
	digest := mux.Vars(r)["digest"]
	limit := intParam(r.URL.Query().Get("limit"), 10000)
	ps, err := s.client.GetDigestProducts(r.Context(), digest, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if ps == nil {
		s.respondJSON(w, nil)
		return
	}
	s.respondJSON(w, ps)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func boolParam(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

package http

import (
	"context"
	"log"
	"net/http"
	"os"

	es "github.com/olivere/elastic/v7"
	"github.com/pkg/errors"

	"github.com/rdsearch/rdsearch"
	"github.com/rdsearch/rdsearch/boltdb"
	"github.com/rdsearch/rdsearch/elastic"
)

// Main holds the config for the web command.
type Main struct {
	Bind          string   `help:"Listen for requests on this address."`
	Writable      bool     `help:"Allow mutating routes; read-only answers 403 on them."`
	Backend       string   `help:"Storage backend to proxy: elasticsearch or bolt."`
	ESHosts       []string `help:"List of URLs for the Elasticsearch cluster."`
	IndexBase     string   `help:"Base name for the Elasticsearch indices."`
	BoltPath      string   `help:"Path to the bolt database file."`
	CreateIndices bool     `help:"Create indices on startup if they do not exist."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	return &Main{
		Bind:      ":8080",
		Backend:   "elasticsearch",
		ESHosts:   []string{"http://localhost:9200"},
		IndexBase: elastic.DefaultIndexBase,
		BoltPath:  "rdsearch.db",
	}
}

// Run runs the web command.
func (m *Main) Run() error {
	var client rdsearch.Client
	switch m.Backend {
	case "elasticsearch":
		esc, err := es.NewClient(es.SetURL(m.ESHosts...), es.SetSniff(false))
		if err != nil {
			return errors.Wrap(err, "connecting to elasticsearch")
		}
		client = elastic.NewClient(esc, elastic.WithIndexBase(m.IndexBase))
	case "bolt":
		bc, err := boltdb.NewClient(m.BoltPath)
		if err != nil {
			return errors.Wrap(err, "opening bolt database")
		}
		defer bc.Close()
		client = bc
	default:
		return errors.Errorf("unknown backend %q", m.Backend)
	}

	if m.CreateIndices {
		ctx := context.Background()
		exist, err := client.IndicesExist(ctx)
		if err != nil {
			return errors.Wrap(err, "checking indices")
		}
		if !exist {
			if err := client.CreateIndices(ctx, 4, 1, false); err != nil {
				return errors.Wrap(err, "creating indices")
			}
		}
	}

	opts := []ServerOption{WithLogger(log.New(os.Stderr, "", log.LstdFlags))}
	if m.Writable {
		opts = append(opts, WithWritable())
	}
	srv := NewServer(client, opts...)

	log.Println("listening on", m.Bind)
	return errors.Wrap(http.ListenAndServe(m.Bind, srv), "serving")
}

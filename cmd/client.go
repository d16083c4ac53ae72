package cmd

import (
	es "github.com/olivere/elastic/v7"
	"github.com/pkg/errors"

	"github.com/rdsearch/rdsearch"
	"github.com/rdsearch/rdsearch/boltdb"
	"github.com/rdsearch/rdsearch/elastic"
	rdhttp "github.com/rdsearch/rdsearch/http"
)

// newClient builds a storage client from the shared server-type/server
// flags. The returned closer releases backend resources and may be nil.
func newClient(serverType, server, indexBase string) (rdsearch.Client, func() error, error) {
	switch serverType {
	case "elasticsearch":
		esc, err := es.NewClient(es.SetURL(server), es.SetSniff(false))
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to elasticsearch")
		}
		return elastic.NewClient(esc, elastic.WithIndexBase(indexBase)), nil, nil
	case "http":
		return rdhttp.NewClient(server), nil, nil
	case "bolt":
		bc, err := boltdb.NewClient(server)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening bolt database")
		}
		return bc, bc.Close, nil
	}
	return nil, nil, errors.Errorf("unknown server type %q (want elasticsearch, http or bolt)", serverType)
}

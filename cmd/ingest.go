package cmd

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rdsearch/rdsearch"
)

// IngestConfig holds the flags of the ingest command.
type IngestConfig struct {
	ServerType string
	Server     string
	IndexBase  string
	BatchSize  int
	Shards     int
	Replicas   int
	Recreate   bool
	Quiet      bool
}

func NewIngestCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &IngestConfig{
		ServerType: "elasticsearch",
		Server:     "http://localhost:9200",
		IndexBase:  "nsrl",
		BatchSize:  rdsearch.DefaultBatchSize,
		Shards:     4,
		Replicas:   1,
	}
	ingestCommand := &cobra.Command{
		Use:   "ingest <path>",
		Short: "ingest - load a reference dataset distribution into a backend",
		Long: `Ingest the manufacturer, OS, product and file tables of a reference
dataset into a search backend. The path may be a directory holding an
extracted distribution or an ISO 9660 image; the form is detected from the
filesystem.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closer, err := newClient(conf.ServerType, conf.Server, conf.IndexBase)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			ctx := context.Background()

			exist, err := client.IndicesExist(ctx)
			if err != nil {
				return errors.Wrap(err, "checking indices")
			}
			if !exist || conf.Recreate {
				if err := client.CreateIndices(ctx, conf.Shards, conf.Replicas, conf.Recreate); err != nil {
					return errors.Wrap(err, "creating indices")
				}
			}

			ing := rdsearch.NewIngestor(client)
			ing.BatchSize = conf.BatchSize
			if !conf.Quiet {
				ing.Log = log.New(stderr, "", log.LstdFlags)
			}

			info, err := os.Stat(args[0])
			if err != nil {
				return errors.Wrap(err, "statting source path")
			}
			start := time.Now()
			var total int
			if info.IsDir() {
				total, err = ing.IngestDirectory(ctx, args[0])
			} else {
				total, err = ing.IngestISO(ctx, args[0])
			}
			if err != nil {
				return errors.Wrapf(err, "ingest failed in phase %s", ing.Phase())
			}
			log.Printf("ingested %d records in %s", total, time.Since(start))
			return nil
		},
	}
	flags := ingestCommand.Flags()
	flags.StringVarP(&conf.ServerType, "server-type", "t", conf.ServerType, "Backend to ingest into: elasticsearch, http or bolt.")
	flags.StringVarP(&conf.Server, "server", "s", conf.Server, "Backend address (URL for elasticsearch/http, file path for bolt).")
	flags.StringVar(&conf.IndexBase, "index-base", conf.IndexBase, "Base name for the Elasticsearch indices.")
	flags.IntVarP(&conf.BatchSize, "batch-size", "b", conf.BatchSize, "Number of records per bulk write.")
	flags.IntVar(&conf.Shards, "shards", conf.Shards, "Number of shards when creating indices.")
	flags.IntVar(&conf.Replicas, "replicas", conf.Replicas, "Number of replicas when creating indices.")
	flags.BoolVar(&conf.Recreate, "recreate", conf.Recreate, "Drop and recreate indices before ingesting.")
	flags.BoolVarP(&conf.Quiet, "quiet", "q", conf.Quiet, "Suppress progress output.")
	return ingestCommand
}

func init() {
	subcommandFns["ingest"] = NewIngestCommand
}

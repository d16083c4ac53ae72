package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// IndicesConfig holds the flags of the indices command.
type IndicesConfig struct {
	ServerType string
	Server     string
	IndexBase  string
	Shards     int
	Replicas   int
	Recreate   bool
}

func NewIndicesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &IndicesConfig{
		ServerType: "elasticsearch",
		Server:     "http://localhost:9200",
		IndexBase:  "nsrl",
		Shards:     4,
		Replicas:   1,
	}
	indicesCommand := &cobra.Command{
		Use:   "indices",
		Short: "indices - manage backend index schema",
	}

	createCommand := &cobra.Command{
		Use:   "create",
		Short: "create the dataset indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closer, err := newClient(conf.ServerType, conf.Server, conf.IndexBase)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			return client.CreateIndices(context.Background(), conf.Shards, conf.Replicas, conf.Recreate)
		},
	}
	createCommand.Flags().IntVar(&conf.Shards, "shards", conf.Shards, "Number of shards per index.")
	createCommand.Flags().IntVar(&conf.Replicas, "replicas", conf.Replicas, "Number of replicas per index.")
	createCommand.Flags().BoolVar(&conf.Recreate, "recreate", conf.Recreate, "Drop existing indices first.")

	deleteCommand := &cobra.Command{
		Use:   "delete",
		Short: "delete the dataset indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closer, err := newClient(conf.ServerType, conf.Server, conf.IndexBase)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			return client.DeleteIndices(context.Background())
		},
	}

	flags := indicesCommand.PersistentFlags()
	flags.StringVarP(&conf.ServerType, "server-type", "t", conf.ServerType, "Backend to manage: elasticsearch, http or bolt.")
	flags.StringVarP(&conf.Server, "server", "s", conf.Server, "Backend address (URL for elasticsearch/http, file path for bolt).")
	flags.StringVar(&conf.IndexBase, "index-base", conf.IndexBase, "Base name for the Elasticsearch indices.")

	indicesCommand.AddCommand(createCommand, deleteCommand)
	return indicesCommand
}

func init() {
	subcommandFns["indices"] = NewIndicesCommand
}

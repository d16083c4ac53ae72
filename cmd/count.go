package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// CountConfig holds the flags of the count command.
type CountConfig struct {
	ServerType string
	Server     string
	IndexBase  string
}

func NewCountCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &CountConfig{
		ServerType: "http",
		Server:     "http://localhost:8080",
		IndexBase:  "nsrl",
	}
	countCommand := &cobra.Command{
		Use:   "count",
		Short: "count - report per-entity record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closer, err := newClient(conf.ServerType, conf.Server, conf.IndexBase)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			counts, err := client.Counts(context.Background())
			if err != nil {
				return err
			}
			for _, kind := range []string{"mfg", "os", "prod", "file"} {
				fmt.Fprintf(stdout, "%-5s %d\n", kind, counts[kind])
			}
			return nil
		},
	}
	flags := countCommand.Flags()
	flags.StringVarP(&conf.ServerType, "server-type", "t", conf.ServerType, "Backend to query: elasticsearch, http or bolt.")
	flags.StringVarP(&conf.Server, "server", "s", conf.Server, "Backend address (URL for elasticsearch/http, file path for bolt).")
	flags.StringVar(&conf.IndexBase, "index-base", conf.IndexBase, "Base name for the Elasticsearch indices.")
	return countCommand
}

func init() {
	subcommandFns["count"] = NewCountCommand
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rdsearch/rdsearch"
)

// QueryConfig holds the flags of the query command.
type QueryConfig struct {
	ServerType string
	Server     string
	IndexBase  string
	Details    bool
	Products   bool
}

func NewQueryCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &QueryConfig{
		ServerType: "http",
		Server:     "http://localhost:8080",
		IndexBase:  "nsrl",
	}
	queryCommand := &cobra.Command{
		Use:   "query <digest> [<digest>...]",
		Short: "query - look file digests up against the dataset",
		Long: `Look one or more md5, sha1 or crc32 digests up. By default each digest
is answered with a present/absent line; --details prints the matching file
record and --products the products carrying it. Digests of unknown length
are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closer, err := newClient(conf.ServerType, conf.Server, conf.IndexBase)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			ctx := context.Background()
			enc := json.NewEncoder(stdout)

			for _, digest := range args {
				if _, err := rdsearch.DigestType(digest); err != nil {
					fmt.Fprintf(stderr, "%s: %v\n", digest, err)
					continue
				}
				switch {
				case conf.Products:
					ps, err := client.GetDigestProducts(ctx, digest, 10000)
					if err != nil {
						return err
					}
					if ps == nil {
						fmt.Fprintf(stdout, "%s: absent\n", digest)
						continue
					}
					if err := enc.Encode(ps); err != nil {
						return err
					}
				case conf.Details:
					f, err := client.GetDigest(ctx, digest, true, true)
					if err != nil {
						return err
					}
					if f == nil {
						fmt.Fprintf(stdout, "%s: absent\n", digest)
						continue
					}
					if err := enc.Encode(f); err != nil {
						return err
					}
				default:
					exists, err := client.DigestExists(ctx, digest)
					if err != nil {
						return err
					}
					if exists {
						fmt.Fprintf(stdout, "%s: present\n", digest)
					} else {
						fmt.Fprintf(stdout, "%s: absent\n", digest)
					}
				}
			}
			return nil
		},
	}
	flags := queryCommand.Flags()
	flags.StringVarP(&conf.ServerType, "server-type", "t", conf.ServerType, "Backend to query: elasticsearch, http or bolt.")
	flags.StringVarP(&conf.Server, "server", "s", conf.Server, "Backend address (URL for elasticsearch/http, file path for bolt).")
	flags.StringVar(&conf.IndexBase, "index-base", conf.IndexBase, "Base name for the Elasticsearch indices.")
	flags.BoolVarP(&conf.Details, "details", "d", conf.Details, "Print the matching file record instead of present/absent.")
	flags.BoolVarP(&conf.Products, "products", "p", conf.Products, "Print the products carrying the matching file.")
	return queryCommand
}

func init() {
	subcommandFns["query"] = NewQueryCommand
}

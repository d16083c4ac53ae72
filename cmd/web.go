package cmd

import (
	"io"

	"github.com/jaffee/commandeer/cobrafy"
	"github.com/spf13/cobra"

	"github.com/rdsearch/rdsearch/http"
)

func NewWebCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	com, err := cobrafy.Command(http.NewMain())
	if err != nil {
		panic(err)
	}
	com.Use = "web"
	com.Short = "web - serve the dataset over the HTTP proxy API"
	return com
}

func init() {
	subcommandFns["web"] = NewWebCommand
}

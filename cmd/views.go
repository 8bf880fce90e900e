package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "List Tableau views available for embedding",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := initTableau()
		if client == nil {
			fmt.Fprintln(os.Stderr, "Tableau is not configured (tableau.server_url, tableau.token_name, tableau.token_secret).")
			return nil
		}

		views, err := client.ListViews(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "list views")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, views)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tWORKBOOK\tEMBED URL")
		for _, v := range views {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, v.WorkbookID, v.EmbedURL)
		}
		return w.Flush()
	},
}

func init() {
	viewsCmd.Flags().Bool("json", false, "print views as JSON")
	rootCmd.AddCommand(viewsCmd)
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var playsJSON bool

var playsCmd = &cobra.Command{
	Use:   "plays",
	Short: "List registered plays",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initStudio(cmd.Context(), "run")
		if err != nil {
			return err
		}
		defer env.Close()

		specs := env.Service.Registry().List()
		if playsJSON {
			return printJSON(os.Stdout, specs)
		}
		formatPlays(os.Stdout, specs)
		return nil
	},
}

func init() {
	playsCmd.Flags().BoolVar(&playsJSON, "json", false, "print play specs as JSON")
	rootCmd.AddCommand(playsCmd)
}

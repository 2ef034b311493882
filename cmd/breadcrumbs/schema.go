package main

import (
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the Trip and BreadCrumb tables if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), flagDatabase)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.EnsureSchema(cmd.Context())
	},
}

func init() {
	schemaCmd.Flags().StringVar(&flagDatabase, "database", "", "postgres database name overriding the one in the DSN")
}

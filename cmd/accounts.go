package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reflekt-app/reflekt/internal/config"
	"github.com/reflekt-app/reflekt/internal/services"
	"github.com/reflekt-app/reflekt/internal/storage"
)

var (
	accountsCount  int
	accountsPrefix string
)

// accountsCmd bulk-generates respondent accounts from the command line,
// printing each identifier with its one-time plaintext secret.
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Bulk-generates respondent accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		credentials := services.NewCredentialService(
			storage.NewFileBackend(filepath.Join(cfg.DataDir, "identities.json")),
			cfg.CredentialSalt,
		)
		summaries := services.NewFileSummaryStore(
			storage.NewFileBackend(filepath.Join(cfg.DataDir, "summaries.json")),
		)
		admin := services.NewAdminService(credentials, summaries)
		generated, err := admin.BulkGenerate(accountsCount, accountsPrefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "identifier,secret")
		for _, g := range generated {
			fmt.Fprintf(os.Stdout, "%s,%s\n", g.Identifier, g.Secret)
		}
		return nil
	},
}

func init() {
	accountsCmd.Flags().IntVar(&accountsCount, "count", 10, "number of accounts to generate")
	accountsCmd.Flags().StringVar(&accountsPrefix, "prefix", "emp", "identifier prefix")
	rootCmd.AddCommand(accountsCmd)
}

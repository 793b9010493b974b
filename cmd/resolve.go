package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/model"
)

var (
	resolveAddress  string
	resolveDistrict string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <company name>",
	Short: "Resolve contacts for a single company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		orch, err := buildOrchestrator(store)
		if err != nil {
			return err
		}

		rec, err := orch.Resolve(ctx, model.Input{
			Name:     args[0],
			Address:  resolveAddress,
			District: resolveDistrict,
		})
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		zap.L().Info("resolution complete",
			zap.String("name", rec.Name),
			zap.Bool("found", rec.Found),
			zap.Bool("from_cache", rec.FromCache),
			zap.String("data_source", string(rec.DataSource)),
			zap.Int("phones", len(rec.Phones)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "address hint for the search query")
	resolveCmd.Flags().StringVar(&resolveDistrict, "district", "", "district hint for the search query")
	rootCmd.AddCommand(resolveCmd)
}

package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-resolver/internal/batch"
	"github.com/sells-group/contact-resolver/internal/model"
)

var (
	batchInput  string
	batchOutput string
	batchLimit  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve contacts for a list of companies",
	Long: `Reads company inputs from a CSV (name[,address[,district]]) or a JSON
array and resolves them sequentially. Interrupting the run with Ctrl-C
finishes the in-flight company and writes the partial results.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		inputs, err := readInputs(batchInput)
		if err != nil {
			return err
		}
		if batchLimit > 0 && batchLimit < len(inputs) {
			inputs = inputs[:batchLimit]
		}
		if len(inputs) == 0 {
			return eris.New("batch: no inputs")
		}

		store, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		orch, err := buildOrchestrator(store)
		if err != nil {
			return err
		}

		runner := batch.NewRunner(orch,
			batch.WithSnapshotDir(cfg.Batch.SnapshotDir),
			batch.WithSnapshotCadence(
				cfg.Batch.SnapshotItems,
				time.Duration(cfg.Batch.SnapshotIntervalSecs)*time.Second,
			),
			batch.WithOnProgress(func(p model.Progress) {
				zap.S().Infow("progress",
					"index", p.Index,
					"total", p.Total,
					"name", p.CurrentName,
					"source", p.CurrentSource,
					"found", p.Record != nil && p.Record.Found,
				)
			}),
		)

		records, runErr := runner.Run(ctx, inputs)
		if runErr != nil {
			zap.S().Warnw("batch run interrupted", "completed", len(records), "error", runErr)
		}

		if err := writeRecords(batchOutput, records); err != nil {
			return err
		}
		zap.S().Infow("batch done", "run_id", runner.RunID(), "records", len(records))
		return nil
	},
}

// readInputs loads company inputs from a JSON array or a CSV file.
func readInputs(path string) ([]model.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var inputs []model.Input
		if err := json.NewDecoder(f).Decode(&inputs); err != nil {
			return nil, eris.Wrap(err, "batch: parse json input")
		}
		return inputs, nil
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var inputs []model.Input
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: parse csv input")
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		in := model.Input{Name: strings.TrimSpace(row[0])}
		if len(row) > 1 {
			in.Address = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			in.District = strings.TrimSpace(row[2])
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func writeRecords(path string, records []*model.ContactRecord) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "batch: create output")
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "batch: write output")
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input file: CSV or JSON array (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write results JSON to this file instead of stdout")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "resolve at most this many companies")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

package main

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/pipeline"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect interaction datasets",
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load a dataset and print row, learner and out-of-range counts",
	RunE:  runDatasetStats,
}

func init() {
	f := datasetStatsCmd.Flags()
	f.String("csv", "", "SkillBuilder-layout CSV file")
	f.String("pg-dsn", "", "Postgres DSN to read interactions from")
	f.String("query", "", "interaction query (default reads kt_interaction)")
	f.Int("seq-len", 100, "sequence length after truncation and padding")
	f.Int("num-questions", 0, "question count; 0 derives it from the data")
	f.String("clamp-policy", string(dataset.PolicyClamp), "out-of-range question ids: reject, clamp or reindex")
	datasetCmd.AddCommand(datasetStatsCmd)
}

func runDatasetStats(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	str := func(n string) string { v, _ := f.GetString(n); return v }
	num := func(n string) int { v, _ := f.GetInt(n); return v }

	policy, err := dataset.ParsePolicy(str("clamp-policy"))
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ds, err := pipeline.NewRunner(log, nil, nil).LoadDataset(cmd.Context(),
		pipeline.Source{CSVPath: str("csv"), PostgresDSN: str("pg-dsn"), Query: str("query")},
		dataset.Options{SeqLen: num("seq-len"), NumQuestions: num("num-questions"), Policy: policy},
	)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ds.Stats)
}

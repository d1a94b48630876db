package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/pipeline"
	"github.com/yungbote/neurobridge-kt/internal/kt/train"
	"github.com/yungbote/neurobridge-kt/internal/platform/shutdown"
	"github.com/yungbote/neurobridge-kt/internal/temporalx"
	"github.com/yungbote/neurobridge-kt/internal/temporalx/kttrain"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a DKT or DKT+ model and checkpoint the best epoch",
	Example: `  ktctl train --variant dkt+ --csv skill_builder.csv --out kt_models/ckpts/dkt+/SkillBuilder
  ktctl train --variant dkt --pg-dsn postgres://... --out gs://bucket/ckpts/dkt --registry-driver postgres`,
	RunE: runTrain,
}

var trainSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the training job to Temporal instead of running it here",
	RunE:  runTrainSubmit,
}

func init() {
	for _, c := range []*cobra.Command{trainCmd, trainSubmitCmd} {
		f := c.Flags()
		f.String("variant", "dkt+", "model variant: dkt or dkt+")
		f.String("csv", "", "SkillBuilder-layout CSV file")
		f.String("pg-dsn", "", "Postgres DSN to read interactions from")
		f.String("query", "", "interaction query (default reads kt_interaction)")
		f.String("out", "", "checkpoint output directory, local or gs://")
		f.String("model-key", "", "registry key (default the variant)")
		f.Bool("activate", true, "mark recorded snapshots active")

		f.Int("seq-len", 100, "sequence length after truncation and padding")
		f.Int("num-questions", 0, "question count; 0 derives it from the data")
		f.String("clamp-policy", string(dataset.PolicyReject), "out-of-range question ids: reject, clamp or reindex")
		f.Float64("train-ratio", pipeline.DefaultTrainRatio, "fraction of learners used for training")

		f.Int("epochs", 10, "training epochs")
		f.Int("batch-size", 64, "sequences per batch")
		f.Float64("lr", 1e-3, "Adam learning rate")
		f.Float64("grad-clip", 0, "global gradient norm cap; 0 disables")
		f.Uint64("seed", 1, "random seed")
		f.Int("workers", 0, "gradient workers per batch (default GOMAXPROCS)")
		f.Int("emb-size", 100, "embedding size")
		f.Int("hidden-size", 100, "LSTM hidden size")
		f.Float64("lambda-r", 0.01, "reconstruction loss weight (dkt+)")
		f.Float64("lambda-w1", 0.003, "L1 smoothness weight (dkt+)")
		f.Float64("lambda-w2", 3.0, "squared L2 smoothness weight (dkt+)")
	}
	trainCmd.AddCommand(trainSubmitCmd)
}

func trainRequest(cmd *cobra.Command) (pipeline.Request, error) {
	f := cmd.Flags()
	str := func(n string) string { v, _ := f.GetString(n); return v }
	num := func(n string) int { v, _ := f.GetInt(n); return v }
	flt := func(n string) float64 { v, _ := f.GetFloat64(n); return v }

	v, err := model.ParseVariant(str("variant"))
	if err != nil {
		return pipeline.Request{}, err
	}
	policy, err := dataset.ParsePolicy(str("clamp-policy"))
	if err != nil {
		return pipeline.Request{}, err
	}
	if str("out") == "" {
		return pipeline.Request{}, fmt.Errorf("--out is required")
	}

	cfg := train.DefaultConfig(v)
	cfg.Epochs = num("epochs")
	cfg.BatchSize = num("batch-size")
	cfg.LR = flt("lr")
	cfg.GradClip = flt("grad-clip")
	cfg.Seed, _ = f.GetUint64("seed")
	if w := num("workers"); w > 0 {
		cfg.Workers = w
	}
	cfg.Hyper.EmbSize = num("emb-size")
	cfg.Hyper.HiddenSize = num("hidden-size")
	cfg.Hyper.LambdaR = flt("lambda-r")
	cfg.Hyper.LambdaW1 = flt("lambda-w1")
	cfg.Hyper.LambdaW2 = flt("lambda-w2")
	if key := str("model-key"); key != "" {
		cfg.ModelKey = key
	}
	activate, _ := f.GetBool("activate")

	return pipeline.Request{
		Source: pipeline.Source{CSVPath: str("csv"), PostgresDSN: str("pg-dsn"), Query: str("query")},
		Dataset: dataset.Options{
			SeqLen:       num("seq-len"),
			NumQuestions: num("num-questions"),
			Policy:       policy,
		},
		TrainRatio: flt("train-ratio"),
		Train:      cfg,
		OutputURI:  str("out"),
		Activate:   activate,
	}, nil
}

func runTrain(cmd *cobra.Command, _ []string) error {
	req, err := trainRequest(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(cmd.Context())
	defer stop()

	repo, db, err := openRegistry(cmd, log)
	if err != nil {
		return err
	}
	defer closeDB(db)()
	objects, closeObjects, err := objectsFor(ctx, log, req.OutputURI)
	if err != nil {
		return err
	}
	defer closeObjects()

	res, err := pipeline.NewRunner(log, objects, repo).Train(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runTrainSubmit(cmd *cobra.Command, _ []string) error {
	req, err := trainRequest(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := temporalx.LoadConfig()
	if err != nil {
		return err
	}
	tc, err := temporalx.NewClient(cmd.Context(), log, cfg)
	if err != nil {
		return err
	}
	defer tc.Close()

	id, runID, err := kttrain.Submit(cmd.Context(), tc, cfg.TaskQueue, kttrain.Input{Request: req})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted workflow_id=%s run_id=%s task_queue=%s\n", id, runID, cfg.TaskQueue)
	return nil
}

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/router"
	"github.com/yungbote/neurobridge-kt/internal/inference/selector"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

var predictCmd = &cobra.Command{
	Use:     "predict",
	Short:   "Predict from local checkpoints without starting the server",
	Example: `  ktctl predict --q 1,5,3,10 --r 1,0,1,1 --c 0.7,0.3,0.5,0.8 --d 0.2,0.6,0.4,0.1 --top-k 5`,
	RunE:    runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.String("enhanced-dir", "kt_models/ckpts/dkt+/SkillBuilder", "DKT+ checkpoint directory")
	f.String("baseline-dir", "kt_models/ckpts/dkt/ASSIST2009", "DKT checkpoint directory")
	f.String("q", "", "comma-separated question ids")
	f.String("r", "", "comma-separated correctness (0/1)")
	f.String("c", "", "comma-separated confidence")
	f.String("d", "", "comma-separated difficulty")
	f.Int("top-k", 10, "print the k most likely questions; 0 prints all")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	str := func(n string) string { v, _ := f.GetString(n); return v }

	in := model.Input{}
	var err error
	if in.Questions, err = parseInts(str("q")); err != nil {
		return fmt.Errorf("--q: %w", err)
	}
	if in.Correct, err = parseInts(str("r")); err != nil {
		return fmt.Errorf("--r: %w", err)
	}
	if in.Confidence, err = parseFloats(str("c")); err != nil {
		return fmt.Errorf("--c: %w", err)
	}
	if in.Difficulty, err = parseFloats(str("d")); err != nil {
		return fmt.Errorf("--d: %w", err)
	}
	if err := selector.ValidateRequest(in); err != nil {
		return err
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx := cmd.Context()

	models := config.ModelsConfig{
		Enhanced: config.ModelSource{Dir: str("enhanced-dir")},
		Baseline: config.ModelSource{Dir: str("baseline-dir")},
	}
	objects, closeObjects, err := objectsFor(ctx, log, models.Enhanced.Dir, models.Baseline.Dir)
	if err != nil {
		return err
	}
	defer closeObjects()

	r, err := router.Load(ctx, log, models, router.Deps{Objects: objects})
	if err != nil {
		return err
	}
	enh, _ := r.Engine(model.VariantEnhanced)
	base, _ := r.Engine(model.VariantBaseline)
	sel, err := selector.New(log, enh, base, config.SelectorConfig{}, nil)
	if err != nil {
		return err
	}
	p, err := sel.Predict(ctx, in)
	if err != nil {
		return err
	}

	k, _ := f.GetInt("top-k")
	return printTopK(cmd, p, k)
}

func printTopK(cmd *cobra.Command, p selector.Prediction, k int) error {
	order := make([]int, len(p.Probabilities))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p.Probabilities[order[a]] > p.Probabilities[order[b]] })
	if k <= 0 || k > len(order) {
		k = len(order)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model_used: %s\n", p.ModelUsed)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tQUESTION\tP(CORRECT)")
	for rank, q := range order[:k] {
		fmt.Fprintf(tw, "%d\t%d\t%.4f\n", rank+1, p.QuestionIDs[q], p.Probabilities[q])
	}
	return tw.Flush()
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range splitList(s) {
		x, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

var ErrQuestionOutOfRange = errors.New("question id out of range")

// Policy decides what happens to skill ids outside [0, NumQuestions).
type Policy string

const (
	// PolicyReject fails the build on the first out-of-range id.
	PolicyReject Policy = "reject"
	// PolicyClamp clamps ids into range and logs a warning per learner.
	// Clamped ids alias distinct skills, so treat it as a diagnostic mode.
	PolicyClamp Policy = "clamp"
	// PolicyReindex maps raw skill ids onto dense ids in first-seen order.
	PolicyReindex Policy = "reindex"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReject, nil
	case PolicyReject, PolicyClamp, PolicyReindex:
		return p, nil
	default:
		return "", fmt.Errorf("unknown question id policy %q (want reject, clamp or reindex)", s)
	}
}

const DefaultSeqLen = 100

type Options struct {
	SeqLen int `json:"seq_len"`
	// NumQuestions overrides the number of distinct skill ids.
	NumQuestions int    `json:"num_questions,omitempty"`
	Policy       Policy `json:"clamp_policy,omitempty"`
}

// Sequence is one learner's history padded or truncated to a fixed length.
// Padding steps carry model.PadQuestion and zero values.
type Sequence struct {
	LearnerID  string
	Questions  []int
	Correct    []int
	Confidence []float64
	Difficulty []float64
	Length     int
}

type Stats struct {
	Rows         int `json:"rows"`
	Skipped      int `json:"skipped"`
	Learners     int `json:"learners"`
	Truncated    int `json:"truncated"`
	OutOfRange   int `json:"out_of_range"`
	Clamped      int `json:"clamped"`
	NumQuestions int `json:"num_questions"`
}

type Dataset struct {
	NumQuestions int
	Sequences    []Sequence
	Stats        Stats
	// SkillIndex maps raw skill ids to question ids under PolicyReindex.
	SkillIndex map[int]int
}

// Build groups rows by learner in first-seen order and cuts each group to
// SeqLen steps.
func Build(rows []Row, opts Options, log *logger.Logger) (*Dataset, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.SeqLen <= 0 {
		opts.SeqLen = DefaultSeqLen
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReject
	}

	ds := &Dataset{Stats: Stats{Rows: len(rows)}}
	distinct := map[int]int{}
	for _, r := range rows {
		if r.Correct != 0 && r.Correct != 1 {
			return nil, fmt.Errorf("learner %s: correct=%d is not 0 or 1", r.LearnerID, r.Correct)
		}
		if _, ok := distinct[r.SkillID]; !ok {
			distinct[r.SkillID] = len(distinct)
		}
	}

	ds.NumQuestions = len(distinct)
	if opts.NumQuestions > 0 {
		if opts.Policy == PolicyReindex && opts.NumQuestions < len(distinct) {
			return nil, fmt.Errorf("num_questions=%d is smaller than the %d distinct skills", opts.NumQuestions, len(distinct))
		}
		ds.NumQuestions = opts.NumQuestions
	}
	if ds.NumQuestions == 0 {
		return nil, errors.New("dataset has no interactions")
	}
	if opts.Policy == PolicyReindex {
		ds.SkillIndex = distinct
	}

	order, groups := groupByLearner(rows)
	ds.Sequences = make([]Sequence, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if len(g) > opts.SeqLen {
			ds.Stats.Truncated++
			g = g[:opts.SeqLen]
		}
		seq := newSequence(id, opts.SeqLen)
		seq.Length = len(g)
		clamped := 0
		for t, r := range g {
			q := r.SkillID
			if ds.SkillIndex != nil {
				q = ds.SkillIndex[q]
			}
			if q < 0 || q >= ds.NumQuestions {
				ds.Stats.OutOfRange++
				if opts.Policy == PolicyReject {
					return nil, fmt.Errorf("%w: learner %s step %d: skill %d outside [0,%d)", ErrQuestionOutOfRange, id, t, r.SkillID, ds.NumQuestions)
				}
				q = min(max(q, 0), ds.NumQuestions-1)
				clamped++
			}
			seq.Questions[t] = q
			seq.Correct[t] = r.Correct
			seq.Confidence[t] = r.Confidence
			seq.Difficulty[t] = r.Difficulty
		}
		if clamped > 0 {
			ds.Stats.Clamped += clamped
			log.Warn("clamped out-of-range question ids", "learner_id", id, "count", clamped, "num_questions", ds.NumQuestions)
		}
		ds.Sequences = append(ds.Sequences, seq)
	}
	ds.Stats.Learners = len(ds.Sequences)
	ds.Stats.NumQuestions = ds.NumQuestions
	return ds, nil
}

func groupByLearner(rows []Row) ([]string, map[string][]Row) {
	var order []string
	groups := map[string][]Row{}
	for _, r := range rows {
		if _, ok := groups[r.LearnerID]; !ok {
			order = append(order, r.LearnerID)
		}
		groups[r.LearnerID] = append(groups[r.LearnerID], r)
	}
	return order, groups
}

func newSequence(id string, n int) Sequence {
	s := Sequence{
		LearnerID:  id,
		Questions:  make([]int, n),
		Correct:    make([]int, n),
		Confidence: make([]float64, n),
		Difficulty: make([]float64, n),
	}
	for i := range s.Questions {
		s.Questions[i] = model.PadQuestion
	}
	return s
}

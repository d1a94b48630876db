package dataset

import (
	"math/rand/v2"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

// Shifted aligns a padded sequence for next-step prediction: step t pairs
// the current interaction (Q, R, C, D) with the next one (QShift, RShift).
// Mask[t] is true when the next interaction is real.
type Shifted struct {
	LearnerID string
	Q, R      []int
	C, D      []float64
	QShift    []int
	RShift    []int
	Mask      []bool
}

func Shift(s Sequence) Shifted {
	n := len(s.Questions) - 1
	if n < 0 {
		n = 0
	}
	out := Shifted{
		LearnerID: s.LearnerID,
		Q:         make([]int, n),
		R:         make([]int, n),
		C:         make([]float64, n),
		D:         make([]float64, n),
		QShift:    make([]int, n),
		RShift:    make([]int, n),
		Mask:      make([]bool, n),
	}
	for t := 0; t < n; t++ {
		out.Q[t], out.R[t] = s.Questions[t], s.Correct[t]
		out.C[t], out.D[t] = s.Confidence[t], s.Difficulty[t]
		out.QShift[t], out.RShift[t] = s.Questions[t+1], s.Correct[t+1]
		out.Mask[t] = s.Questions[t+1] != model.PadQuestion
	}
	return out
}

func ShiftAll(seqs []Sequence) []Shifted {
	out := make([]Shifted, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, Shift(s))
	}
	return out
}

// Span is one past the last masked step. Padding only occurs at the tail,
// so running the model over the first Span steps covers every step that
// contributes to the loss.
func (s Shifted) Span() int {
	span := 0
	for t, ok := range s.Mask {
		if ok {
			span = t + 1
		}
	}
	return span
}

// Masked counts steps with a real next interaction.
func (s Shifted) Masked() int {
	n := 0
	for _, ok := range s.Mask {
		if ok {
			n++
		}
	}
	return n
}

// Input returns the model input for the first Span steps.
func (s Shifted) Input() model.Input {
	n := s.Span()
	return model.Input{Questions: s.Q[:n], Correct: s.R[:n], Confidence: s.C[:n], Difficulty: s.D[:n]}
}

// Split shuffles seqs with rng and cuts them into train and eval parts.
// trainRatio is clamped to [0, 1].
func Split(seqs []Sequence, trainRatio float64, rng *rand.Rand) (train, eval []Sequence) {
	shuffled := append([]Sequence(nil), seqs...)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	}
	trainRatio = min(max(trainRatio, 0), 1)
	cut := int(float64(len(shuffled)) * trainRatio)
	return shuffled[:cut], shuffled[cut:]
}

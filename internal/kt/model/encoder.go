package model

import "fmt"

// PadQuestion marks padding steps in fixed-length sequences.
const PadQuestion = -1

// CombinedIndex maps a (question, correctness) pair onto one of 2·Q
// interaction classes: q + Q·r. Anything outside [0, 2Q) is an error.
func CombinedIndex(q, r, numQuestions int) (int, error) {
	if q < 0 || q >= numQuestions {
		return 0, fmt.Errorf("%w: question %d outside [0,%d)", ErrIndexOutOfRange, q, numQuestions)
	}
	if r != 0 && r != 1 {
		return 0, fmt.Errorf("%w: correctness %d is not 0 or 1", ErrIndexOutOfRange, r)
	}
	x := q + numQuestions*r
	if x < 0 || x >= 2*numQuestions {
		return 0, fmt.Errorf("%w: %d outside [0,%d)", ErrIndexOutOfRange, x, 2*numQuestions)
	}
	return x, nil
}

// encode validates the whole sequence before any lookup so a single bad
// step fails the pass.
func encode(in Input, numQuestions int) ([]int, error) {
	if in.Len() == 0 {
		return nil, ErrEmptySequence
	}
	if len(in.Correct) != in.Len() {
		return nil, fmt.Errorf("correctness has %d values, want %d", len(in.Correct), in.Len())
	}
	idx := make([]int, in.Len())
	for t := range idx {
		x, err := CombinedIndex(in.Questions[t], in.Correct[t], numQuestions)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		idx[t] = x
	}
	return idx, nil
}

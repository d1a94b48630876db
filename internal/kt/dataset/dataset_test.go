package dataset

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

const sampleCSV = "\ufeffuser_id,skill_id,correct,confidence,difficulty_combined\n" +
	"u1,0,1,0.7,0.2\n" +
	"u2,2.0,0,0.1,0.9\n" +
	"u1,1,0,0.3,0.6\n" +
	"u1,,1,0.5,0.5\n" +
	"u2,1,1,nan,0.4\n" +
	"u1,2,1,0.8,0.1\n"

func TestReadCSV(t *testing.T) {
	rows, skipped, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 5)
	assert.Equal(t, Row{LearnerID: "u2", SkillID: 2, Correct: 0, Confidence: 0.1, Difficulty: 0.9}, rows[1])
	assert.Equal(t, 0.0, rows[3].Confidence)
}

func TestReadCSVMinimalColumns(t *testing.T) {
	rows, _, err := ReadCSV(strings.NewReader("skill_id,correct\n3,1\n4,0\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0", rows[0].LearnerID)
	assert.Zero(t, rows[1].Difficulty)

	_, _, err = ReadCSV(strings.NewReader("user_id,correct\nu,1\n"))
	require.Error(t, err)
	_, _, err = ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	_, _, err = ReadCSV(strings.NewReader("skill_id,correct\n1.5,1\n"))
	require.Error(t, err)
}

func TestBuildGroupsPadsAndTruncates(t *testing.T) {
	rows, _, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	ds, err := Build(rows, Options{SeqLen: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.NumQuestions)
	require.Len(t, ds.Sequences, 2)

	u1 := ds.Sequences[0]
	assert.Equal(t, "u1", u1.LearnerID)
	assert.Equal(t, []int{0, 1}, u1.Questions)
	assert.Equal(t, 2, u1.Length)
	assert.Equal(t, 1, ds.Stats.Truncated)

	ds, err = Build(rows, Options{SeqLen: 4}, nil)
	require.NoError(t, err)
	u2 := ds.Sequences[1]
	assert.Equal(t, []int{2, 1, model.PadQuestion, model.PadQuestion}, u2.Questions)
	assert.Equal(t, []int{0, 1, 0, 0}, u2.Correct)
	assert.Equal(t, []float64{0.9, 0.4, 0, 0}, u2.Difficulty)
	assert.Equal(t, 2, u2.Length)
}

func TestBuildOutOfRangePolicies(t *testing.T) {
	rows := []Row{
		{LearnerID: "a", SkillID: 10, Correct: 1},
		{LearnerID: "a", SkillID: 20, Correct: 0},
		{LearnerID: "b", SkillID: 30, Correct: 1},
	}

	_, err := Build(rows, Options{}, nil)
	require.ErrorIs(t, err, ErrQuestionOutOfRange)

	ds, err := Build(rows, Options{Policy: PolicyClamp}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Stats.Clamped)
	assert.Equal(t, 3, ds.Stats.OutOfRange)
	assert.Equal(t, 2, ds.Sequences[0].Questions[0])

	ds, err = Build(rows, Options{Policy: PolicyReindex}, nil)
	require.NoError(t, err)
	assert.Zero(t, ds.Stats.OutOfRange)
	assert.Equal(t, []int{0, 1}, ds.Sequences[0].Questions[:2])
	assert.Equal(t, 2, ds.Sequences[1].Questions[0])
	assert.Equal(t, map[int]int{10: 0, 20: 1, 30: 2}, ds.SkillIndex)

	_, err = Build(rows, Options{Policy: PolicyReindex, NumQuestions: 2}, nil)
	require.Error(t, err)

	_, err = Build([]Row{{LearnerID: "a", SkillID: 0, Correct: 2}}, Options{}, nil)
	require.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)
	p, err = ParsePolicy(" Clamp ")
	require.NoError(t, err)
	assert.Equal(t, PolicyClamp, p)
	_, err = ParsePolicy("drop")
	require.Error(t, err)
}

func TestShift(t *testing.T) {
	seq := newSequence("x", 5)
	copy(seq.Questions, []int{3, 1, 2})
	copy(seq.Correct, []int{1, 0, 1})
	copy(seq.Confidence, []float64{0.1, 0.2, 0.3})
	seq.Length = 3

	s := Shift(seq)
	assert.Equal(t, []int{3, 1, 2, model.PadQuestion}, s.Q)
	assert.Equal(t, []int{1, 2, model.PadQuestion, model.PadQuestion}, s.QShift)
	assert.Equal(t, []int{0, 1, 0, 0}, s.RShift)
	assert.Equal(t, []bool{true, true, false, false}, s.Mask)
	assert.Equal(t, 2, s.Span())
	assert.Equal(t, 2, s.Masked())

	in := s.Input()
	assert.Equal(t, []int{3, 1}, in.Questions)
	assert.Equal(t, []float64{0.1, 0.2}, in.Confidence)

	single := newSequence("y", 3)
	single.Questions[0] = 4
	assert.Zero(t, Shift(single).Span())
}

func TestSplit(t *testing.T) {
	seqs := make([]Sequence, 10)
	for i := range seqs {
		seqs[i] = Sequence{LearnerID: string(rune('a' + i))}
	}
	tr1, ev1 := Split(seqs, 0.8, rand.New(rand.NewPCG(1, 1)))
	tr2, ev2 := Split(seqs, 0.8, rand.New(rand.NewPCG(1, 1)))
	assert.Len(t, tr1, 8)
	assert.Len(t, ev1, 2)
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, ev1, ev2)
	assert.Equal(t, "a", seqs[0].LearnerID)

	tr, ev := Split(seqs, 1.5, nil)
	assert.Len(t, tr, 10)
	assert.Empty(t, ev)
}

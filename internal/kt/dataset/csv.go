// Package dataset turns raw interaction logs into fixed-length learner
// sequences for training and evaluation.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Row is one logged interaction.
type Row struct {
	LearnerID  string
	SkillID    int
	Correct    int
	Confidence float64
	Difficulty float64
}

// column names of the SkillBuilder export
const (
	colUser       = "user_id"
	colSkill      = "skill_id"
	colCorrect    = "correct"
	colConfidence = "confidence"
	colDifficulty = "difficulty_combined"
)

// ReadCSV parses a SkillBuilder-style export. skill_id and correct are
// required columns; user_id, confidence and difficulty_combined default to
// a single learner "0" and zero signals when absent. Rows with an empty
// skill_id are skipped and counted.
func ReadCSV(r io.Reader) ([]Row, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("csv: empty input")
		}
		return nil, 0, fmt.Errorf("csv: read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	if _, ok := cols[colSkill]; !ok {
		return nil, 0, fmt.Errorf("csv: missing %q column", colSkill)
	}
	if _, ok := cols[colCorrect]; !ok {
		return nil, 0, fmt.Errorf("csv: missing %q column", colCorrect)
	}
	diffCol := colDifficulty
	if _, ok := cols[diffCol]; !ok {
		diffCol = "difficulty"
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	skipped := 0
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("csv: line %d: %w", line, err)
		}
		skill := field(rec, colSkill)
		if skill == "" || strings.EqualFold(skill, "nan") {
			skipped++
			continue
		}
		row := Row{LearnerID: field(rec, colUser)}
		if row.LearnerID == "" {
			row.LearnerID = "0"
		}
		if row.SkillID, err = parseInt(skill); err != nil {
			return nil, 0, fmt.Errorf("csv: line %d: skill_id: %w", line, err)
		}
		if row.Correct, err = parseInt(field(rec, colCorrect)); err != nil {
			return nil, 0, fmt.Errorf("csv: line %d: correct: %w", line, err)
		}
		if row.Confidence, err = parseFloat(field(rec, colConfidence)); err != nil {
			return nil, 0, fmt.Errorf("csv: line %d: confidence: %w", line, err)
		}
		if row.Difficulty, err = parseFloat(field(rec, diffCol)); err != nil {
			return nil, 0, fmt.Errorf("csv: line %d: %s: %w", line, diffCol, err)
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// parseInt accepts integers and integral floats such as "12.0".
func parseInt(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}

func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

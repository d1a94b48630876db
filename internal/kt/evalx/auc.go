// Package evalx scores predicted probabilities against observed answers.
package evalx

import (
	"errors"
	"fmt"
	"sort"
)

var ErrSingleClass = errors.New("auc undefined: labels contain a single class")

// AUC is the area under the ROC curve for binary labels (values > 0.5 are
// positive). Tied scores receive their average rank, matching the
// trapezoidal ROC integration.
func AUC(labels, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("auc: %d labels but %d scores", len(labels), len(scores))
	}
	n := len(scores)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	var pos, neg int
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		// ranks are 1-based; the tie group [i, j] shares their mean
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[order[k]] > 0.5 {
				pos++
				rankSum += avg
			} else {
				neg++
			}
		}
		i = j + 1
	}
	if pos == 0 || neg == 0 {
		return 0, ErrSingleClass
	}
	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg)), nil
}

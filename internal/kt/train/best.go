package train

// BestTracker remembers the best evaluation AUC seen so far. The initial
// best is zero, so the first defined AUC above zero always wins.
type BestTracker struct {
	best  float64
	epoch int
}

// Observe records auc for epoch and reports whether it strictly improves
// on the best so far. Ties do not count as improvements.
func (b *BestTracker) Observe(epoch int, auc float64) bool {
	if auc > b.best {
		b.best, b.epoch = auc, epoch
		return true
	}
	return false
}

func (b *BestTracker) Best() (auc float64, epoch int) { return b.best, b.epoch }

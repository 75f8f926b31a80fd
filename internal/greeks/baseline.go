package greeks

import "greeks-dashboard/internal/models"

// FindBaseline returns the metrics of the first slot with data and its position.
func FindBaseline(slots []models.AlignedSlot) (models.Metrics, int, bool) {
	for i, s := range slots {
		if s.HasData() {
			return s.Metrics, i, true
		}
	}
	return nil, -1, false
}

// Normalize rebases every slot against the first slot with data.
//
// Disabled, or with no slot carrying data, the input is returned as is with a
// nil baseline. Otherwise a new slice is returned and slots are not modified.
// A field is absent after rebasing when it is absent from either the slot or
// the baseline. Callers must pass unadjusted slots; feeding the output back
// in rebases against an all-zero baseline.
func Normalize(slots []models.AlignedSlot, enabled bool) ([]models.AlignedSlot, models.Metrics) {
	if !enabled {
		return slots, nil
	}
	baseline, _, ok := FindBaseline(slots)
	if !ok {
		return slots, nil
	}
	return Rebase(slots, baseline), baseline.Clone()
}

// Rebase subtracts baseline from every slot with data.
func Rebase(slots []models.AlignedSlot, baseline models.Metrics) []models.AlignedSlot {
	out := make([]models.AlignedSlot, len(slots))
	for i, s := range slots {
		out[i].Timestamp = s.Timestamp
		if !s.HasData() {
			continue
		}
		adjusted := make(models.Metrics, len(s.Metrics))
		for f, v := range s.Metrics {
			base, ok := baseline.Get(f)
			if !ok {
				continue
			}
			adjusted[f] = Sub2(v, base)
		}
		out[i].Metrics = adjusted
	}
	return out
}

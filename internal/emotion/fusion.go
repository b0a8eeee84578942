package emotion

// Fuse combines per-modality distributions into a single distribution.
//
// Each label is averaged over only the modalities that reported it, weighted
// by w. A label seen by a single modality keeps that modality's score
// unchanged. Results below floor are dropped.
func Fuse(inputs map[Modality]Distribution, w Weights, floor float64) Distribution {
	labels := make(map[Label]struct{})
	for _, m := range Modalities {
		for label := range inputs[m] {
			labels[label] = struct{}{}
		}
	}

	combined := make(Distribution, len(labels))
	for label := range labels {
		weightedSum := 0.0
		weightSum := 0.0
		// Canonical modality order keeps the float sums identical
		// regardless of how the caller built the input map.
		for _, m := range Modalities {
			score, ok := inputs[m][label]
			if !ok {
				continue
			}
			weightedSum += score * w[m]
			weightSum += w[m]
		}
		if weightSum <= 0 {
			continue
		}
		if score := weightedSum / weightSum; score >= floor {
			combined[label] = score
		}
	}
	return combined
}

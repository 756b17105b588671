// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package mca

import (
	"math/rand"
	"sort"
)

// CDF is a cumulative distribution over candidate indexes, built from
// non-negative scores. A zero score vector degenerates to uniform sampling.
type CDF []float64

// NewCDF builds the cumulative distribution for the given scores.
func NewCDF(scores []float64) CDF {
	if len(scores) == 0 {
		return nil
	}
	total := 0.0
	for _, score := range scores {
		total += score
	}
	cdf := make(CDF, len(scores))
	cumulative := 0.0
	for i, score := range scores {
		if total == 0 {
			cumulative += 1.0 / float64(len(scores))
		} else {
			cumulative += score / total
		}
		cdf[i] = cumulative
	}
	cdf[len(cdf)-1] = 1.0 // absorb rounding error
	return cdf
}

// Sample draws one index from the distribution using the given RNG. The
// lookup is a binary search; this runs in the composer's hot loop.
func (cdf CDF) Sample(rng *rand.Rand) int {
	if len(cdf) == 0 {
		return -1
	}
	p := rng.Float64()
	idx := sort.SearchFloat64s(cdf, p)
	if idx >= len(cdf) {
		idx = len(cdf) - 1
	}
	return idx
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package mca

import (
	"math"

	"github.com/sapcc/wsud-planner/internal/core"
)

// TechContribution is one technology's input into a strategy score.
type TechContribution struct {
	Abbr  string
	Scale core.Scale
	// Purposes this instance actually serves, i.e. non-zero entries of its
	// service vector {Qty, WQ, Rec}.
	Serves [3]bool
	// ServiceTotal and IAOTotal feed the impervious-area-offset influence.
	ServiceTotal float64
	IAOTotal     float64
}

// Scorer computes strategy scores. It is stateless and safe for concurrent
// use by all basin planners.
type Scorer struct {
	Matrix          *Matrix
	ScalePreference map[core.Scale]float64
	// Priorities are the normalised purpose weights {Q, WQ, Rec}.
	Priorities [3]float64
	// GroupWeights are the user's cross-group weights {tech, env, ecn, soc}.
	GroupWeights [4]float64
	// IAOInfluence in [0,1] inflates a tech's weight by its offset credits.
	IAOInfluence float64
}

// NewScorer assembles a scorer from the planner configuration.
func NewScorer(cfg *core.PlannerConfig, matrix *Matrix) *Scorer {
	return &Scorer{
		Matrix:          matrix,
		ScalePreference: cfg.ScalePreference,
		Priorities:      cfg.Priorities,
		GroupWeights: [4]float64{
			cfg.MCA.TechWeight, cfg.MCA.EnvWeight, cfg.MCA.EcnWeight, cfg.MCA.SocWeight,
		},
		IAOInfluence: cfg.MCA.IAOInfluencePercent / 100.0,
	}
}

// purposeWeight sums the priorities of the purposes that a tech serves,
// rescaled so that a tech serving everything gets weight 1.
func (s *Scorer) purposeWeight(serves [3]bool) float64 {
	weight, total := 0.0, 0.0
	for i := range serves {
		total += s.Priorities[i]
		if serves[i] {
			weight += s.Priorities[i]
		}
	}
	if total == 0 {
		return 1
	}
	return weight / total
}

// Score aggregates the contributions of all techs in one strategy into the
// per-group scores and the weighted total.
func (s *Scorer) Score(techs []TechContribution) (groups [4]float64, total float64) {
	if len(techs) == 0 {
		return groups, 0
	}

	for group := CriterionGroup(0); group < groupCount; group++ {
		weightedSum, weightSum := 0.0, 0.0
		for _, tech := range techs {
			score, known := s.Matrix.GroupScore(group, tech.Abbr)
			if !known {
				continue
			}
			weight := s.ScalePreference[tech.Scale] * s.purposeWeight(tech.Serves)
			if tech.ServiceTotal > 0 && tech.IAOTotal > 0 {
				weight *= 1 + s.IAOInfluence*tech.IAOTotal/tech.ServiceTotal
			}
			weightedSum += weight * score
			weightSum += weight
		}
		if weightSum > 0 {
			groups[group] = weightedSum / weightSum
		}
	}

	weightTotal := 0.0
	for group, weight := range s.GroupWeights {
		total += weight * groups[group]
		weightTotal += weight
	}
	if weightTotal > 0 {
		total /= weightTotal
	}
	return groups, total
}

// PenaltyConfig selects the penalty function applied against the required
// service vector.
type PenaltyConfig struct {
	Method  string // "SNP", "SLP" or "SPP"
	Toggles [3]bool
	Fa      float64
	Fb      float64
}

// Penalize discounts a score for over-service: provided and required are
// service P-value vectors; only amounts exceeding the target on toggled
// dimensions count.
func (p PenaltyConfig) Penalize(score float64, provided, required [3]float64) float64 {
	if p.Method == "SNP" {
		return score
	}
	overService := 0.0
	for i := range provided {
		if !p.Toggles[i] {
			continue
		}
		overService += math.Max(provided[i]-required[i], 0)
	}
	switch p.Method {
	case "SLP":
		return math.Max(score*(1-overService), 0)
	case "SPP":
		return math.Max(score-p.Fa*math.Pow(overService, p.Fb), 0)
	default:
		return score
	}
}

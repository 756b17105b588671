// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package mca

import (
	"strings"
	"testing"

	"github.com/sapcc/wsud-planner/internal/core"
)

func testScorer(t *testing.T) *Scorer {
	t.Helper()
	matrix, err := ParseMatrix(strings.NewReader(testMatrixCSV), core.MCAConfiguration{
		TechMetrics: 2, EnvMetrics: 1, EcnMetrics: 1, SocMetrics: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Scorer{
		Matrix: matrix,
		ScalePreference: map[core.Scale]float64{
			core.ScaleLot: 0.25, core.ScaleStreet: 0.25, core.ScaleNeigh: 0.25, core.ScaleSubbasin: 0.25,
		},
		Priorities:   [3]float64{0, 1, 0},
		GroupWeights: [4]float64{1, 1, 1, 1},
	}
}

func TestScoreSingleTech(t *testing.T) {
	scorer := testScorer(t)
	_, total := scorer.Score([]TechContribution{
		{Abbr: "BF", Scale: core.ScaleNeigh, Serves: [3]bool{false, true, false}, ServiceTotal: 100},
	})
	// single tech: the weighted mean degenerates to its own group scores
	expected := (0.7 + 0.9 + 0.5 + 0.7) / 4 // (Te: 0.8/2+0.6/2, En, Ecn, Soc)
	if diff := total - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected total %g, got %g", expected, total)
	}

	if _, total := scorer.Score(nil); total != 0 {
		t.Errorf("empty strategy must score 0, got %g", total)
	}
}

func TestIAOInfluenceRaisesWeight(t *testing.T) {
	scorer := testScorer(t)
	scorer.IAOInfluence = 0.5
	contributions := []TechContribution{
		{Abbr: "BF", Scale: core.ScaleNeigh, Serves: [3]bool{false, true, false}, ServiceTotal: 100, IAOTotal: 50},
		{Abbr: "WSUR", Scale: core.ScaleNeigh, Serves: [3]bool{false, true, false}, ServiceTotal: 100},
	}
	_, withInfluence := scorer.Score(contributions)

	scorer.IAOInfluence = 0
	_, without := scorer.Score(contributions)

	// BF's total (0.7) is below WSUR's (0.75); boosting BF's weight via its
	// offset credit must move the blend towards BF, i.e. lower it
	if withInfluence >= without {
		t.Errorf("IAO influence should pull the blended score towards BF: %g >= %g", withInfluence, without)
	}
}

func TestPenaltyFunctions(t *testing.T) {
	required := [3]float64{0.5, 0.5, 0}
	toggles := [3]bool{true, true, true}

	// SNP: no penalty at all
	snp := PenaltyConfig{Method: "SNP", Toggles: toggles}
	if got := snp.Penalize(0.8, [3]float64{1, 1, 1}, required); got != 0.8 {
		t.Errorf("SNP must not modify the score, got %g", got)
	}

	// SLP: linear discount by the total over-service
	slp := PenaltyConfig{Method: "SLP", Toggles: toggles}
	got := slp.Penalize(0.8, [3]float64{0.6, 0.5, 0}, required)
	if diff := got - 0.8*(1-0.1); diff > 1e-9 || diff < -1e-9 {
		t.Errorf("SLP: expected %g, got %g", 0.8*0.9, got)
	}

	// a dimension with its toggle off does not count
	partial := PenaltyConfig{Method: "SLP", Toggles: [3]bool{false, true, true}}
	if got := partial.Penalize(0.8, [3]float64{0.9, 0.5, 0}, required); got != 0.8 {
		t.Errorf("untoggled over-service must not penalize, got %g", got)
	}
}

func TestPenaltySPPOrdersOvershootingStrategiesLower(t *testing.T) {
	// scenario: strategies A and B score identically, but A exceeds the
	// runoff target by 0.1 while B hits it exactly
	spp := PenaltyConfig{Method: "SPP", Toggles: [3]bool{true, true, true}, Fa: 2, Fb: 1.2}
	required := [3]float64{0.5, 0.8, 0}

	scoreA := spp.Penalize(0.8, [3]float64{0.6, 0.8, 0}, required)
	scoreB := spp.Penalize(0.8, [3]float64{0.5, 0.8, 0}, required)
	if scoreA >= scoreB {
		t.Errorf("the overshooting strategy must rank strictly lower: %g >= %g", scoreA, scoreB)
	}
	if scoreB != 0.8 {
		t.Errorf("exact service must not be penalized, got %g", scoreB)
	}
	if scoreA < 0 {
		t.Errorf("penalized score must be clipped at zero, got %g", scoreA)
	}
}

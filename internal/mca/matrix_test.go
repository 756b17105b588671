// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package mca

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/wsud-planner/internal/core"
)

const testMatrixCSV = `Tech,Te1,Te2,EN1,ecn1,Social1
BF,0.8,0.6,0.9,0.5,0.7
WSUR,0.4,0.2,1.0,0.8,0.9
`

func TestParseMatrixWithDeclaredCounts(t *testing.T) {
	matrix, err := ParseMatrix(strings.NewReader(testMatrixCSV), core.MCAConfiguration{
		TechMetrics: 2, EnvMetrics: 1, EcnMetrics: 1, SocMetrics: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// two tech metrics, each rescaled by the metric count
	score, known := matrix.GroupScore(GroupTech, "BF")
	if !known {
		t.Fatal("BF missing from matrix")
	}
	assert.DeepEqual(t, "BF tech score", score, 0.8/2+0.6/2)

	score, _ = matrix.GroupScore(GroupEnv, "WSUR")
	assert.DeepEqual(t, "WSUR env score", score, 1.0)
}

func TestParseMatrixAutoDetectsColumns(t *testing.T) {
	// declared counts disagree with the file; the case-insensitive header
	// prefixes decide instead
	matrix, err := ParseMatrix(strings.NewReader(testMatrixCSV), core.MCAConfiguration{
		TechMetrics: 4, EnvMetrics: 4, EcnMetrics: 4, SocMetrics: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	score, _ := matrix.GroupScore(GroupSoc, "BF")
	assert.DeepEqual(t, "BF social score", score, 0.7)
	score, _ = matrix.GroupScore(GroupEcn, "WSUR")
	assert.DeepEqual(t, "WSUR economics score", score, 0.8)
}

func TestParseMatrixRejectsUnknownTech(t *testing.T) {
	_, err := ParseMatrix(strings.NewReader("Tech,Te1\nNOPE,0.5\n"), core.MCAConfiguration{TechMetrics: 1})
	if err == nil || !strings.Contains(err.Error(), "NOPE") {
		t.Errorf("expected error naming the offending record, got %v", err)
	}
}

func TestCDFSampling(t *testing.T) {
	cdf := NewCDF([]float64{1, 1, 2})
	assert.DeepEqual(t, "last entry", cdf[2], 1.0)

	// deterministic under a seeded RNG
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		if cdf.Sample(rng1) != cdf.Sample(rng2) {
			t.Fatal("sampling must be deterministic under the same seed")
		}
	}

	// zero scores degenerate to uniform, not to a crash
	uniform := NewCDF([]float64{0, 0})
	rng := rand.New(rand.NewSource(1))
	idx := uniform.Sample(rng)
	if idx < 0 || idx > 1 {
		t.Errorf("sample index %d out of range", idx)
	}

	if NewCDF(nil).Sample(rng) != -1 {
		t.Error("empty CDF must return -1")
	}
}

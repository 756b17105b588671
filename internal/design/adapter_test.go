// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package design

import (
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/wsud-planner/internal/core"
)

func pollutionOnlyConfig() *core.PlannerConfig {
	enabled := true
	return core.NewPlannerConfig(core.PlannerConfiguration{
		Rationale: core.RationaleConfiguration{Pollute: true, PollutePriority: 1},
		Targets:   core.TargetsConfiguration{TSS: 80, TP: 45, TN: 45},
		Techs: map[string]core.TechnologyConfiguration{
			"BF": {Enabled: enabled},
		},
	})
}

func TestAdapterDesign(t *testing.T) {
	cfg := pollutionOnlyConfig()
	cache := NewCurveCache()
	adapter := NewAdapter(cfg, cache)

	bf, exists := cfg.Registry.Get("BF")
	if !exists {
		t.Fatal("BF missing from registry")
	}
	curve, err := ParseCurve(strings.NewReader(testCurveText), "test")
	if err != nil {
		t.Fatal(err)
	}
	cache.Put(adapter.CurvePath(bf), curve)

	// 1000 sqm; the lined BF (exfiltration 0) selects the k=0 section via
	// min(36, 0), whose (80,45,45) row gives fraction 0.02; planning factor 1.3
	sizing, ok := adapter.Design(bf, 1000, core.Purposes{Pollution: true}, 36, bf.Exfil)
	if !ok {
		t.Fatal("expected feasible design")
	}
	if diff := sizing.Area - 26.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("planning area: expected 26, got %g", sizing.Area)
	}
	assert.DeepEqual(t, "EA factor", sizing.EAFactor, 1.3)

	// below the minimum system size of 5 sqm
	_, ok = adapter.Design(bf, 100, core.Purposes{Pollution: true}, 36, bf.Exfil)
	if ok {
		t.Error("design below min size must be infeasible")
	}

	// no purpose invoked
	_, ok = adapter.Design(bf, 1000, core.Purposes{}, 36, bf.Exfil)
	if ok {
		t.Error("design without purposes must be infeasible")
	}

	// zero impervious area
	_, ok = adapter.Design(bf, 0, core.Purposes{Pollution: true}, 36, bf.Exfil)
	if ok {
		t.Error("design without impervious target must be infeasible")
	}
}

func TestBenefitsTable(t *testing.T) {
	closeTo := func(name string, actual, expected float64) {
		t.Helper()
		if diff := actual - expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: expected %g, got %g", name, expected, actual)
		}
	}

	qty, wq := DefaultBenefitsTable.Offsets(0.5)
	closeTo("qty offset", qty, 0.41)
	closeTo("wq offset", wq, 0.29)

	// clamped above the table
	qty, _ = DefaultBenefitsTable.Offsets(2)
	closeTo("clamped qty offset", qty, 0.85)

	qtyArea, wqArea := DefaultBenefitsTable.IAOCredits(100, 1000, 0.5)
	// share = 100 / (1000*0.5) = 0.2
	closeTo("credit qty", qtyArea, 150.0)
	closeTo("credit wq", wqArea, 100.0)
}

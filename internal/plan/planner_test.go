// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/design"
	"github.com/sapcc/wsud-planner/internal/mca"
)

const plannerConfigYAML = `
block_table: unused-in-tests
curve_directory: curves
rationale:
  ration_pollute: true
  pollute_pri: 1.0
targets:
  targets_TSS: 80
  targets_TP: 45
  targets_TN: 45
service:
  service_swmWQ: 80
scales:
  lot: { check: true, rigour: 4 }
  street: { check: true, rigour: 4 }
  neigh: { check: true, rigour: 4 }
  subbas: { check: true, rigour: 4 }
mca:
  scoringmatrix_path: unused-in-tests
  bottomlines_tech_n: 1
  bottomlines_env_n: 1
  bottomlines_ecn_n: 1
  bottomlines_soc_n: 1
  bottomlines_tech_w: 1
  bottomlines_env_w: 1
  bottomlines_ecn_w: 1
  bottomlines_soc_w: 1
monte_carlo:
  maxMCiterations: 2000
  seed: 42
technologies:
  BF: { status: true }
`

const plannerCurveText = `
k 36
30,60,30,30,0.005
60,80,45,45,0.01
80,90,60,60,0.02
`

// singleBlockBasin is the pollution-only scenario: one block with 1000 sqm
// of manageable impervious area, 100 sqm of park space and 50 allotments
// too small for a feasible lot system.
func singleBlockBasin(t *testing.T) *blocks.Table {
	t.Helper()
	table, err := blocks.NewTable([]*blocks.Block{
		{ID: 1, BasinID: 1, DownID: -1, Outlet: true, Status: true,
			SoilK: 36, BlkEIA: 1000, PGAv: 100,
			ResAllots: 50, ResHouses: 50, ResLotEIA: 180, HasHouses: true, AvLtRES: 50},
	})
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func newTestPlanner(t *testing.T, table *blocks.Table, seed int64) *Planner {
	t.Helper()
	cfg, errs := core.NewConfigurationFromYAML([]byte(plannerConfigYAML))
	if !errs.IsEmpty() {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	cfg.MonteCarlo.Seed = seed

	matrix, err := mca.ParseMatrix(strings.NewReader(combinerMatrixCSV), core.MCAConfiguration{
		TechMetrics: 1, EnvMetrics: 1, EcnMetrics: 1, SocMetrics: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	planner := NewPlanner(cfg, table, matrix, nil, nil, nil)
	curve, err := design.ParseCurve(strings.NewReader(plannerCurveText), "test")
	if err != nil {
		t.Fatal(err)
	}
	bf, _ := cfg.Registry.Get("BF")
	adapter := design.NewAdapter(cfg, planner.CurveCache())
	planner.CurveCache().Put(adapter.CurvePath(bf), curve)
	return planner
}

func TestPlannerSingleBlockPollutionOnly(t *testing.T) {
	planner := newTestPlanner(t, singleBlockBasin(t), 42)
	results, err := planner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	strategies := results.PerBasin[1]
	if len(strategies) == 0 {
		t.Fatal("expected at least one basin strategy")
	}
	for _, strategy := range strategies {
		if strategy.PValues[1] < 0.8 {
			t.Errorf("emitted strategy misses the quality requirement: P_WQ = %g", strategy.PValues[1])
		}
		if strategy.Objective < 0 {
			t.Error("emitted strategy must pass the objective filter")
		}
		blockStrategy := strategy.InBlock[1]
		if blockStrategy == nil {
			t.Fatal("expected an in-block selection for block 1")
		}
		neighTech := blockStrategy.Techs[SlotNeigh]
		if neighTech == nil {
			t.Fatal("expected a neighbourhood system")
		}
		if neighTech.Type != "BF" || neighTech.Scale != core.ScaleNeigh {
			t.Errorf("expected a neighbourhood BF, got %s at scale %s", neighTech.Type, neighTech.Scale)
		}
		if neighTech.Area > 100 {
			t.Errorf("planning area %g exceeds the available park space", neighTech.Area)
		}
		// the lot systems are below BF's minimum size and must not appear
		if blockStrategy.Techs[SlotLotRES] != nil {
			t.Error("lot systems are infeasible in this scenario")
		}
	}
}

// strategyFingerprint renders the parts of the result that must be stable
// under replay.
func strategyFingerprint(results *Results) []any {
	var fingerprint []any
	for _, basinID := range []int{1} {
		for _, strategy := range results.PerBasin[basinID] {
			entry := []any{strategy.Iteration, strategy.Score, strategy.Objective, strategy.PValues}
			for _, blockID := range sortedKeys(strategy.InBlock) {
				blockStrategy := strategy.InBlock[blockID]
				entry = append(entry, blockID, blockStrategy.Bin, blockStrategy.Score)
			}
			fingerprint = append(fingerprint, entry)
		}
	}
	return fingerprint
}

func TestPlannerDeterministicReplay(t *testing.T) {
	resultsA, err := newTestPlanner(t, singleBlockBasin(t), 42).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	resultsB, err := newTestPlanner(t, singleBlockBasin(t), 42).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(strategyFingerprint(resultsA), strategyFingerprint(resultsB)) {
		t.Error("identical seed and inputs must replay to identical output")
	}

	resultsC, err := newTestPlanner(t, singleBlockBasin(t), 777).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(strategyFingerprint(resultsA), strategyFingerprint(resultsC)) {
		t.Error("a different seed must change the sampled strategies")
	}
}

func TestPlannerZeroIterationBudget(t *testing.T) {
	planner := newTestPlanner(t, singleBlockBasin(t), 42)
	planner.Cfg.MonteCarlo.MaxIterations = 0

	results, err := planner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results.PerBasin[1]) != 0 {
		t.Error("a zero iteration budget must emit an empty list for every basin")
	}
}

func TestPlannerAllObjectivesDisabled(t *testing.T) {
	planner := newTestPlanner(t, singleBlockBasin(t), 42)
	planner.Cfg.Rationale.Runoff = false
	planner.Cfg.Rationale.Pollute = false
	planner.Cfg.Rationale.Harvest = false

	results, err := planner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results.PerBasin[1]) != 0 {
		t.Error("with every objective disabled, every basin yields an empty strategy list")
	}
}

func TestPlannerCancellation(t *testing.T) {
	planner := newTestPlanner(t, singleBlockBasin(t), 42)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := planner.Run(ctx)
	if err == nil {
		t.Error("a cancelled context must surface as an error")
	}
}

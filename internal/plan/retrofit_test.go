// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/design"
)

const retrofitCurveText = `
k 36
30,60,30,30,0.005
60,80,45,45,0.01
80,90,60,60,0.02
`

func retrofitFixture(t *testing.T, retrofit core.RetrofitConfiguration) (*Machine, *blocks.Table) {
	t.Helper()
	cfg := core.NewPlannerConfig(core.PlannerConfiguration{
		Rationale: core.RationaleConfiguration{Pollute: true, PollutePriority: 1},
		Targets:   core.TargetsConfiguration{TSS: 80, TP: 45, TN: 45},
		Retrofit:  retrofit,
		Techs: map[string]core.TechnologyConfiguration{
			"BF": {Enabled: true},
		},
	})
	table, err := blocks.NewTable([]*blocks.Block{
		{ID: 1, BasinID: 1, DownID: -1, Outlet: true, Status: true,
			SoilK: 36, BlkEIA: 2000, ManageEIA: 2000, PGAv: 500, ResLotEIA: 180},
	})
	if err != nil {
		t.Fatal(err)
	}

	curves := design.NewCurveCache()
	adapter := design.NewAdapter(cfg, curves)
	curve, err := design.ParseCurve(strings.NewReader(retrofitCurveText), "test")
	if err != nil {
		t.Fatal(err)
	}
	bf, _ := cfg.Registry.Get("BF")
	curves.Put(adapter.CurvePath(bf), curve)

	return NewMachine(cfg, table, adapter, curves), table
}

// agedBF is a neighbourhood biofilter whose current size treats 400 sqm
// under today's targets (effective area 4 sqm at fraction 0.01), down 60%
// from the 1000 sqm it was built for.
func agedBF() *Asset {
	return &Asset{
		ID: 1, BlockID: 1, Site: "N", Type: "BF",
		YearBuilt: 1980, Qty: 1, GoalQty: 1,
		SysArea: 5.2, EAFactor: 1.3, Exfil: 36,
		ImpT: 1000, CurImpT: 1000,
	}
}

func TestRetrofitForcedDecommission(t *testing.T) {
	// scenario: 60% performance drop with decom_thresh=40 under the Forced
	// scenario must decommission the neighbourhood system
	machine, table := retrofitFixture(t, core.RetrofitConfiguration{
		Scenario: "F", ForceNeigh: true,
		NeighDecom: true, NeighRenew: true,
		DecomThreshold: 40, RenewalThreshold: 30,
		RenewalAlternative: "K",
		CurrentYear:        2000, PreviousYear: 1980,
	})
	asset := agedBF()
	machine.Apply([]*Asset{asset})

	if !asset.Decommissioned {
		t.Error("asset must be decommissioned")
	}
	block := table.Get(1)
	if block.HasNeighSys {
		t.Error("the neighbourhood slot must become free")
	}
	assert.DeepEqual(t, "no service from decommissioned asset", block.ServWQ, 0.0)
}

func TestRetrofitForcedWithoutForceFlagKeeps(t *testing.T) {
	machine, table := retrofitFixture(t, core.RetrofitConfiguration{
		Scenario: "F", ForceNeigh: false,
		NeighDecom: true, DecomThreshold: 40, RenewalThreshold: 30,
		RenewalAlternative: "K",
		CurrentYear:        2000, PreviousYear: 1980,
	})
	asset := agedBF()
	machine.Apply([]*Asset{asset})

	if asset.Decommissioned {
		t.Error("without the force flag the asset must be kept")
	}
	if !table.Get(1).HasNeighSys {
		t.Error("the neighbourhood slot must stay occupied")
	}
}

func TestRetrofitDoNothingOnlyTouchesAccounting(t *testing.T) {
	machine, table := retrofitFixture(t, core.RetrofitConfiguration{
		Scenario: "N", DecomThreshold: 40, RenewalThreshold: 30,
		RenewalAlternative: "K", CurrentYear: 2000,
	})
	asset := agedBF()
	originalArea, originalEAFactor := asset.SysArea, asset.EAFactor
	machine.Apply([]*Asset{asset})

	// physical attributes are untouched; only the treated-area accounting
	// is refreshed against today's targets
	assert.DeepEqual(t, "SysArea", asset.SysArea, originalArea)
	assert.DeepEqual(t, "EAFactor", asset.EAFactor, originalEAFactor)
	assert.DeepEqual(t, "Upgrades", asset.Upgrades, 0)
	if asset.Decommissioned {
		t.Error("DoNothing must never decommission")
	}

	block := table.Get(1)
	if !block.HasNeighSys {
		t.Error("the occupied slot must be marked for the mapper")
	}
	// effective area 4 sqm at fraction 0.01 treats 400 sqm
	if diff := block.ServWQ - 400.0; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected 400 sqm of provided service, got %g", block.ServWQ)
	}
}

func TestRetrofitWithRenewalRespectsCycle(t *testing.T) {
	// 15 years passed with a 20-year neighbourhood cycle: not due, so even a
	// decommission-worthy system is kept
	machine, table := retrofitFixture(t, core.RetrofitConfiguration{
		Scenario: "R", RenewalCycleDef: true,
		NeighDecom: true, NeighRenew: true,
		RenewalNeighYears: 20, RenewalLotYears: 10, RenewalStreetYears: 20,
		DecomThreshold: 40, RenewalThreshold: 30,
		RenewalAlternative: "K",
		CurrentYear:        1995, PreviousYear: 1980,
	})
	asset := agedBF()
	machine.Apply([]*Asset{asset})

	if asset.Decommissioned {
		t.Error("renewal is not due, the asset must be kept")
	}
	if !table.Get(1).HasNeighSys {
		t.Error("the neighbourhood slot must stay occupied")
	}
}

func TestParseAssets(t *testing.T) {
	input := strings.NewReader(strings.TrimSpace(`
SysID,Location,Scale,Type,Year,Qty,GoalQty,SysArea,EAFact,Exfil,ImpT
1,7,N,BF,1990,1,1,5.2,1.3,36,1000
`))
	assets, err := ParseAssets(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	assert.DeepEqual(t, "block", assets[0].BlockID, 7)
	assert.DeepEqual(t, "site", assets[0].Site, AssetSite("N"))
	assert.DeepEqual(t, "area", assets[0].SysArea, 5.2)
}

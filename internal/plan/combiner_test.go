// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/mca"
)

const combinerMatrixCSV = `Tech,Te1,En1,Ec1,So1
BF,0.8,0.9,0.5,0.7
WSUR,0.4,1.0,0.8,0.9
`

func combinerFixture(t *testing.T) (*Combiner, *blocks.Block) {
	t.Helper()
	cfg := core.NewPlannerConfig(core.PlannerConfiguration{
		Rationale: core.RationaleConfiguration{Pollute: true, PollutePriority: 1},
		Scales: core.ScalesConfiguration{
			Lot:      core.ScaleConfiguration{Enabled: true, Rigour: 2},
			Subbasin: core.ScaleConfiguration{Enabled: true, Rigour: 4},
		},
		MCA: core.MCAConfiguration{
			TechWeight: 1, EnvWeight: 1, EcnWeight: 1, SocWeight: 1,
		},
	})
	matrix, err := mca.ParseMatrix(strings.NewReader(combinerMatrixCSV), core.MCAConfiguration{
		TechMetrics: 1, EnvMetrics: 1, EcnMetrics: 1, SocMetrics: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	block := &blocks.Block{
		ID: 1, BasinID: 1, DownID: -1, Outlet: true, Status: true,
		ManageEIA: 1000, BlkWD: 500, ResAllots: 10, ResLotEIA: 50,
		ResFrontT: 100, AvStRES: 40,
	}
	return NewCombiner(cfg, mca.NewScorer(cfg, matrix)), block
}

func neighTech(service float64) *WaterTech {
	tech := &WaterTech{Type: "BF", Scale: core.ScaleNeigh, BlockID: 1, Area: 20, EAFactor: 1.3, Increment: 1}
	tech.Service[ServiceWQ] = service
	return tech
}

func TestCombineBinsByServiceLevel(t *testing.T) {
	combiner, block := combinerFixture(t)
	rng := rand.New(rand.NewSource(1))

	candidates := BlockCandidates{
		Lot:   map[core.LandUse][]*WaterTech{},
		Neigh: []*WaterTech{neighTech(1000), neighTech(500)},
	}
	binned := combiner.Combine(block, candidates, rng)

	if len(binned[1.0]) != 1 {
		t.Fatalf("expected 1 strategy in the full-service bin, got %d", len(binned[1.0]))
	}
	if len(binned[0.5]) != 1 {
		t.Fatalf("expected 1 strategy in the half-service bin, got %d", len(binned[0.5]))
	}
	strategy := binned[1.0][0]
	if strategy.Score <= 0 {
		t.Error("strategy must carry a positive MCA score")
	}
	if strategy.Service[ServiceWQ] != 1000 {
		t.Errorf("expected 1000 sqm of quality service, got %g", strategy.Service[ServiceWQ])
	}
}

func TestCombineRejectsOvertreatment(t *testing.T) {
	combiner, block := combinerFixture(t)
	rng := rand.New(rand.NewSource(1))

	// service beyond ManageEIA must be filtered out entirely
	candidates := BlockCandidates{
		Lot:   map[core.LandUse][]*WaterTech{},
		Neigh: []*WaterTech{neighTech(2000)},
	}
	binned := combiner.Combine(block, candidates, rng)
	for bin, list := range binned {
		if len(list) != 0 {
			t.Errorf("bin %g: expected no strategies, got %d", bin, len(list))
		}
	}
}

func TestCombineRejectsResidentialOvertreatment(t *testing.T) {
	combiner, block := combinerFixture(t)
	rng := rand.New(rand.NewSource(1))

	// lot system treating every allotment plus a street system together
	// exceed the residential zone's effective impervious area
	lotTech := &WaterTech{Type: "BF", Scale: core.ScaleLot, LandUse: core.LandUseRES, BlockID: 1, Area: 5, EAFactor: 1.3, Increment: 1}
	lotTech.Service[ServiceQty] = 50
	lotTech.Service[ServiceWQ] = 50
	streetTech := &WaterTech{Type: "BF", Scale: core.ScaleStreet, BlockID: 1, Area: 10, EAFactor: 1.3, Increment: 1, LotIncrement: 1}
	streetTech.Service[ServiceQty] = 200
	streetTech.Service[ServiceWQ] = 200

	candidates := BlockCandidates{
		Lot:    map[core.LandUse][]*WaterTech{core.LandUseRES: {lotTech}},
		Street: []*WaterTech{streetTech},
	}
	binned := combiner.Combine(block, candidates, rng)

	// the combination of both is rejected (500 + 200 > 50*10 + 60), but the
	// single-slot strategies survive
	for _, list := range binned {
		for _, strategy := range list {
			if strategy.Techs[SlotLotRES] != nil && strategy.Techs[SlotStreet] != nil {
				t.Error("lot+street overtreatment must be rejected")
			}
		}
	}
}

func TestCombineEmptyBlock(t *testing.T) {
	combiner, _ := combinerFixture(t)
	rng := rand.New(rand.NewSource(1))

	emptyBlock := &blocks.Block{ID: 2, Status: true}
	binned := combiner.Combine(emptyBlock, BlockCandidates{Lot: map[core.LandUse][]*WaterTech{}}, rng)
	if len(binned) != 0 {
		t.Errorf("a block without impervious area or demand yields no combinations, got %v", binned)
	}
}

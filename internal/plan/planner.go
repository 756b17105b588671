// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/climate"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/design"
	"github.com/sapcc/wsud-planner/internal/mca"
	"github.com/sapcc/wsud-planner/internal/storage"
)

// Planner drives preprocessing, retrofit, opportunity mapping, in-block
// combination and basin composition, and collects the output strategies.
type Planner struct {
	Cfg   *core.PlannerConfig
	Table *blocks.Table

	curves   *design.CurveCache
	adapter  *design.Adapter
	sizer    *storage.Sizer
	scorer   *mca.Scorer
	mapper   *Mapper
	combiner *Combiner
	composer *Composer
	machine  *Machine
	assets   []*Asset
}

// NewPlanner assembles a planner from pre-loaded inputs. Pass nil climate
// series when harvesting is not a rationale.
func NewPlanner(cfg *core.PlannerConfig, table *blocks.Table, matrix *mca.Matrix, rain, evapScale []float64, assets []*Asset) *Planner {
	p := &Planner{Cfg: cfg, Table: table, assets: assets}
	p.curves = design.NewCurveCache()
	p.adapter = design.NewAdapter(cfg, p.curves)
	if cfg.Rationale.Harvest {
		p.sizer = storage.NewSizer(cfg, table, rain, evapScale)
	}
	p.scorer = mca.NewScorer(cfg, matrix)
	p.mapper = NewMapper(cfg, table, p.adapter, p.sizer, design.DefaultBenefitsTable)
	p.combiner = NewCombiner(cfg, p.scorer)
	p.composer = NewComposer(cfg, table, p.scorer)
	p.machine = NewMachine(cfg, table, p.adapter, p.curves)
	return p
}

// LoadPlanner reads all input files named by the configuration and
// assembles the planner.
func LoadPlanner(cfg *core.PlannerConfig) (*Planner, error) {
	table, err := blocks.LoadTable(cfg.BlockTablePath)
	if err != nil {
		return nil, err
	}
	matrix, err := mca.LoadMatrix(cfg.MCA.ScoringMatrixPath, cfg.MCA)
	if err != nil {
		return nil, err
	}

	var rain, evapScale []float64
	if cfg.Rationale.Harvest {
		rain, err = climate.LoadSeries(cfg.Climate.RainFile, cfg.Climate.RainStepMinutes, cfg.Recycling.RainYears)
		if err != nil {
			return nil, err
		}
		evap, err := climate.LoadSeries(cfg.Climate.EvapFile, cfg.Climate.EvapStepMinutes, cfg.Recycling.RainYears)
		if err != nil {
			return nil, err
		}
		evapScale = climate.ScalingFactors(evap)
	}

	var assets []*Asset
	if cfg.ExistingSystemsPath != "" {
		assets, err = LoadAssets(cfg.ExistingSystemsPath)
		if err != nil {
			return nil, err
		}
	}

	return NewPlanner(cfg, table, matrix, rain, evapScale, assets), nil
}

// CurveCache exposes the design-curve cache, e.g. to preload parsed curves.
func (p *Planner) CurveCache() *design.CurveCache {
	return p.curves
}

// Results holds the ranked output strategies per basin. Basins without a
// feasible plan are present with an empty list.
type Results struct {
	PerBasin map[int][]*BasinStrategy
}

// Run executes one full planner run. Basins are planned concurrently; each
// basin planner owns disjoint blocks and shares only read-only tables, with
// its own RNG seeded from the global seed plus the basin ID so that replay
// with the same seed is byte-identical regardless of scheduling.
func (p *Planner) Run(ctx context.Context) (*Results, error) {
	// preprocessing: derived block fields
	for _, block := range p.Table.All() {
		if !block.Status {
			continue
		}
		s := p.Cfg.Service
		block.ComputeManageEIA(*s.Res, *s.Hdr, *s.Com, *s.LI, *s.HI)
	}

	// retrofit pass: patches occupancy flags and served-service accounting
	if len(p.assets) > 0 {
		p.machine.Apply(p.assets)
	}

	results := &Results{PerBasin: make(map[int][]*BasinStrategy)}
	basinIDs := p.Table.BasinIDs()

	workers := p.Cfg.MonteCarlo.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(basinIDs) {
		workers = len(basinIDs)
	}
	if workers < 1 {
		workers = 1
	}

	basinChan := make(chan int)
	var mutex sync.Mutex
	var waitGroup sync.WaitGroup

	for i := 0; i < workers; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for basinID := range basinChan {
				strategies := p.planBasin(ctx, basinID)
				mutex.Lock()
				results.PerBasin[basinID] = strategies
				mutex.Unlock()
			}
		}()
	}

	for _, basinID := range basinIDs {
		if ctx.Err() != nil {
			break // cooperative cancellation between basins
		}
		basinChan <- basinID
	}
	close(basinChan)
	waitGroup.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planner run cancelled: %w", err)
	}
	return results, nil
}

// planBasin performs opportunity mapping, combination and composition for
// one basin.
func (p *Planner) planBasin(ctx context.Context, basinID int) []*BasinStrategy {
	logg.Info("planning basin %d", basinID)
	rng := rand.New(rand.NewSource(p.Cfg.MonteCarlo.Seed + int64(basinID))) //nolint:gosec // reproducibility requires a seeded PRNG

	orderedIDs, _ := p.Table.BasinBlocks(basinID)
	candidates := make(map[int]BlockCandidates, len(orderedIDs))
	binned := make(map[int]BinnedStrategies, len(orderedIDs))

	candidateCount := 0
	for _, blockID := range orderedIDs {
		block := p.Table.Get(blockID)
		blockCandidates := p.mapper.Assess(block)
		candidates[blockID] = blockCandidates
		binned[blockID] = p.combiner.Combine(block, blockCandidates, rng)

		for _, list := range blockCandidates.Lot {
			candidateCount += len(list)
		}
		candidateCount += len(blockCandidates.Street) + len(blockCandidates.Neigh)
		for _, list := range blockCandidates.Subbasin {
			candidateCount += len(list)
		}
	}
	metricCandidates.Add(float64(candidateCount))

	strategies := p.composer.Compose(ctx, basinID, candidates, binned, rng)
	metricBasinsPlanned.Inc()
	metricStrategiesEmitted.Add(float64(len(strategies)))
	logg.Info("basin %d: %d candidate techs, %d strategies emitted", basinID, candidateCount, len(strategies))
	return strategies
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/mca"
)

// Composer runs the Monte-Carlo basin composition search: it repeatedly
// samples site subsets, walks the basin upstream-first while enforcing
// remaining-service accounting, and ranks the resulting basin strategies.
type Composer struct {
	cfg    *core.PlannerConfig
	table  *blocks.Table
	scorer *mca.Scorer
}

// NewComposer assembles the basin composer.
func NewComposer(cfg *core.PlannerConfig, table *blocks.Table, scorer *mca.Scorer) *Composer {
	return &Composer{cfg: cfg, table: table, scorer: scorer}
}

// remainingService assesses the already-served share of the given blocks on
// one service dimension. It returns the normalised remaining requirement
// (delta P), the remaining absolute amount, the treated amount, and the
// total amount.
func (c *Composer) remainingService(dim int, ids []int) (deltaP, remain, treated, total float64) {
	switch dim {
	case ServiceRec:
		total = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.SubstitutableDemand() }, blocks.ReduceSum)
		treated = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.ServRec + b.ServUpRec }, blocks.ReduceSum)
	case ServiceQty:
		total = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.ManageEIA }, blocks.ReduceSum)
		treated = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.ServQty + b.ServUpQty }, blocks.ReduceSum)
	default:
		total = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.ManageEIA }, blocks.ReduceSum)
		treated = c.table.Reduce(ids, func(b *blocks.Block) float64 { return b.ServWQ + b.ServUpWQ }, blocks.ReduceSum)
	}

	if c.cfg.ObjectiveEnabled(dim) {
		remain = math.Max(total-treated, 0)
	}

	// a basin without any impervious area or demand on a dimension is
	// vacuously served on that dimension
	prevService := 1.0
	if total != 0 {
		prevService = treated / total
	}
	if 1-prevService > 0 {
		required := c.cfg.ServiceVector[dim]
		if !c.cfg.ObjectiveEnabled(dim) {
			required = 0
		}
		deltaP = math.Max(required-prevService, 0) / (1 - prevService)
	}
	return deltaP, remain, treated, total
}

// walkState carries the cumulative treated amounts of one walked position's
// subtree.
type walkState struct {
	treatedQty float64
	treatedWQ  float64
	treatedRec float64
}

// Compose runs the Monte-Carlo search for one basin and returns the ranked
// final strategies. An empty result is not an error: it means no feasible
// plan exists within the iteration budget.
func (c *Composer) Compose(ctx context.Context, basinID int, candidates map[int]BlockCandidates, binned map[int]BinnedStrategies, rng *rand.Rand) []*BasinStrategy {
	orderedIDs, outletID := c.table.BasinBlocks(basinID)
	if len(orderedIDs) == 0 {
		return nil
	}

	dpQty, remainQty, _, _ := c.remainingService(ServiceQty, orderedIDs)
	dpWQ, remainWQ, _, _ := c.remainingService(ServiceWQ, orderedIDs)
	dpRec, remainRec, _, _ := c.remainingService(ServiceRec, orderedIDs)
	basinRemain := [3]float64{remainQty, remainWQ, remainRec}
	requiredService := [3]float64{dpQty, dpWQ, dpRec}

	if basinRemain == ([3]float64{}) || dpQty+dpWQ+dpRec == 0 {
		logg.Debug("basin %d has no remaining service requirements, skipping", basinID)
		return nil
	}

	// blocks that can host a sub-basin system, in upstream order
	var partakeIDs []int
	for _, id := range orderedIDs {
		if candidates[id].HasSubbasin() {
			partakeIDs = append(partakeIDs, id)
		}
	}

	iterations := c.cfg.MonteCarlo.MaxIterations
	if len(orderedIDs) == 1 {
		iterations /= 10
	}

	var sampled []*BasinStrategy
	for iteration := 0; iteration < iterations; iteration++ {
		if iteration%64 == 0 && ctx.Err() != nil {
			logg.Info("basin %d: cancelled after %d iterations", basinID, iteration)
			return nil
		}
		metricIterations.Inc()
		subbasChosen, inblockChosen := c.sampleLocations(partakeIDs, orderedIDs, rng)
		strategy := c.populate(basinID, iteration, orderedIDs, outletID, subbasChosen, inblockChosen, candidates, binned, basinRemain, rng)

		strategy.Objective = c.objective(strategy.PValues, requiredService)
		strategy.GroupScores, strategy.Score = c.scorer.Score(strategy.Contributions())
		penalty := mca.PenaltyConfig{
			Method: c.cfg.MCA.ScoreStrategy,
			Toggles: [3]bool{
				c.cfg.MCA.PenaltyQty, c.cfg.MCA.PenaltyWQ, c.cfg.MCA.PenaltyRec,
			},
			Fa: c.cfg.MCA.PenaltyFa,
			Fb: c.cfg.MCA.PenaltyFb,
		}
		strategy.Score = penalty.Penalize(strategy.Score, strategy.PValues, requiredService)

		sampled = append(sampled, strategy)
	}

	return c.rank(sampled, rng)
}

// sampleLocations draws a uniformly sized random subset of sub-basin sites,
// then of the remaining blocks for in-block strategies.
func (c *Composer) sampleLocations(partakeIDs, basinIDs []int, rng *rand.Rand) (subbasChosen, inblockChosen map[int]bool) {
	partakePool := slices.Clone(partakeIDs)
	blockPool := slices.Clone(basinIDs)

	subbasChosen = make(map[int]bool)
	numSubbas := rng.Intn(len(partakePool) + 1)
	for i := 0; i < numSubbas; i++ {
		idx := rng.Intn(len(partakePool))
		id := partakePool[idx]
		subbasChosen[id] = true
		partakePool = slices.Delete(partakePool, idx, idx+1)
		if blockIdx := slices.Index(blockPool, id); blockIdx >= 0 {
			blockPool = slices.Delete(blockPool, blockIdx, blockIdx+1)
		}
	}

	inblockChosen = make(map[int]bool)
	numBlocks := rng.Intn(len(blockPool) + 1)
	for i := 0; i < numBlocks; i++ {
		idx := rng.Intn(len(blockPool))
		inblockChosen[blockPool[idx]] = true
		blockPool = slices.Delete(blockPool, idx, idx+1)
	}
	return subbasChosen, inblockChosen
}

// populate walks the basin from the most-upstream blocks to the outlet,
// placing sampled selections while keeping the remaining-service accounting
// deterministic for the given random samples.
func (c *Composer) populate(basinID, iteration int, orderedIDs []int, outletID int, subbasChosen, inblockChosen map[int]bool, candidates map[int]BlockCandidates, binned map[int]BinnedStrategies, basinRemain [3]float64, rng *rand.Rand) *BasinStrategy {
	strategy := &BasinStrategy{
		BasinID:   basinID,
		Iteration: iteration,
		InBlock:   make(map[int]*BlockStrategy),
		Subbasin:  make(map[int]*WaterTech),
	}

	redundancy := c.cfg.Service.Redundancy / 100.0
	bracket := 1.0 / float64(c.cfg.Scales.Subbasin.Rigour)

	states := make(map[int]*walkState, len(orderedIDs))
	// positions already walked whose subtree totals have not been folded
	// into a downstream position yet
	tracker := []int{}

	for _, blockID := range orderedIDs {
		block := c.table.Get(blockID)
		upstreamIDs := c.table.UpstreamIDs(blockID)
		scopeIDs := append(slices.Clone(upstreamIDs), blockID)

		// fold in the subtree totals of all consumed upstream positions; the
		// tracker guarantees each subtree is counted exactly once
		var state walkState
		var consumed []int
		remainingTracker := tracker[:0:0]
		for _, walkedID := range tracker {
			if c.table.IsUpstreamOf(walkedID, blockID) {
				state.treatedQty += states[walkedID].treatedQty
				state.treatedWQ += states[walkedID].treatedWQ
				state.treatedRec += states[walkedID].treatedRec
				consumed = append(consumed, walkedID)
			} else {
				remainingTracker = append(remainingTracker, walkedID)
			}
		}
		tracker = remainingTracker

		_, totalQty, _, _ := c.remainingService(ServiceQty, scopeIDs)
		_, totalWQ, _, _ := c.remainingService(ServiceWQ, scopeIDs)
		totalRec := c.demandScope(blockID, scopeIDs, orderedIDs)

		remainQty := math.Max(totalQty-state.treatedQty, 0)
		remainWQ := math.Max(totalWQ-state.treatedWQ, 0)
		remainRec := c.remainingRecycling(scopeIDs, consumed, states, totalRec)

		var degrees []float64
		if c.cfg.Rationale.Runoff && totalQty != 0 {
			degrees = append(degrees, remainQty/totalQty)
		}
		if c.cfg.Rationale.Pollute && totalWQ != 0 {
			degrees = append(degrees, remainWQ/totalWQ)
		}
		if c.cfg.Rationale.Harvest && totalRec != 0 {
			degrees = append(degrees, remainRec/totalRec)
		}
		maxDegree := redundancy
		if len(degrees) > 0 {
			maxDegree = slices.Min(degrees) + redundancy
		}

		if subbasChosen[blockID] {
			tech := c.pickSubbasin(candidates[blockID].Subbasin, maxDegree, bracket, rng)
			if tech != nil {
				strategy.Subbasin[blockID] = tech
				state.treatedQty += tech.Service[ServiceQty] + tech.IAO[0]
				state.treatedWQ += tech.Service[ServiceWQ] + tech.IAO[1]
				state.treatedRec += tech.Service[ServiceRec]
				remainQty = math.Max(remainQty-tech.Service[ServiceQty], 0)
				remainWQ = math.Max(remainWQ-tech.Service[ServiceWQ], 0)
				remainRec = math.Max(remainRec-tech.Service[ServiceRec], 0)
			}
		}

		if inblockChosen[blockID] && !subbasChosen[blockID] {
			blockImp := block.ManageEIA
			blockDemand := block.SubstitutableDemand()
			pick := blockImp != 0 && !(blockDemand == 0 && c.cfg.Rationale.Harvest)
			if pick {
				blockDegrees := []float64{1}
				if c.cfg.Rationale.Runoff {
					blockDegrees = append(blockDegrees, remainQty/blockImp)
				}
				if c.cfg.Rationale.Pollute {
					blockDegrees = append(blockDegrees, remainWQ/blockImp)
				}
				if c.cfg.Rationale.Harvest && blockDemand != 0 {
					blockDegrees = append(blockDegrees, remainRec/blockDemand)
				}
				blockMaxDegree := slices.Min(blockDegrees) + redundancy

				chosen := c.pickInBlock(binned[blockID], blockMaxDegree, bracket, rng)
				if chosen != nil {
					strategy.InBlock[blockID] = chosen
					state.treatedQty += chosen.Service[ServiceQty] + chosen.IAO[0]
					state.treatedWQ += chosen.Service[ServiceWQ] + chosen.IAO[1]
					state.treatedRec += chosen.Service[ServiceRec]
				}
			}
		}

		state.treatedRec = math.Min(state.treatedRec, totalRec)
		states[blockID] = &state
		tracker = append(tracker, blockID)
	}

	outletState := states[outletID]
	if outletState == nil {
		outletState = &walkState{}
	}
	provided := [3]float64{outletState.treatedQty, outletState.treatedWQ, outletState.treatedRec}
	for dim := range strategy.PValues {
		if basinRemain[dim] == 0 {
			strategy.PValues[dim] = 1 // vacuously satisfied
		} else {
			strategy.PValues[dim] = provided[dim] / basinRemain[dim]
		}
	}
	return strategy
}

// demandScope returns the recycling demand total scoped by the configured
// hydraulic strategy.
func (c *Composer) demandScope(blockID int, upstreamScope, basinIDs []int) float64 {
	var ids []int
	switch c.cfg.Recycling.HSStrategy {
	case "ud":
		ids = append(slices.Clone(c.table.DownstreamIDs(blockID)), blockID)
	case "uu":
		ids = upstreamScope
	default: // "ua"
		ids = basinIDs
	}
	_, _, _, total := c.remainingService(ServiceRec, ids)
	return total
}

// remainingRecycling subtracts the supply of upstream positions from the
// scoped demand. Under the upstream-downstream strategy, supply already
// consumed by blocks between the upstream position and here does not count
// against the local demand.
func (c *Composer) remainingRecycling(scopeIDs, consumed []int, states map[int]*walkState, totalRec float64) float64 {
	if c.cfg.Recycling.HSStrategy != "ud" {
		suppliedRec := 0.0
		for _, id := range consumed {
			suppliedRec += states[id].treatedRec
		}
		return math.Max(totalRec-suppliedRec, 0)
	}

	totalSupply := 0.0
	shareSet := make(map[int]bool)
	inScope := make(map[int]bool, len(scopeIDs))
	for _, id := range scopeIDs {
		inScope[id] = true
	}
	for _, id := range consumed {
		totalSupply += states[id].treatedRec
		for _, downID := range append(slices.Clone(c.table.DownstreamIDs(id)), id) {
			if inScope[downID] {
				shareSet[downID] = true
			}
		}
	}
	var shareIDs []int
	for id := range shareSet {
		shareIDs = append(shareIDs, id)
	}
	sort.Ints(shareIDs)
	betweenDemand := c.table.Reduce(shareIDs, func(b *blocks.Block) float64 { return b.SubstitutableDemand() }, blocks.ReduceSum)
	return totalRec - math.Max(totalSupply-betweenDemand, 0)
}

// pickSubbasin samples uniformly among sub-basin candidates whose design
// increment falls inside the allowed window.
func (c *Composer) pickSubbasin(bins map[float64][]*WaterTech, maxDegree, bracket float64, rng *rand.Rand) *WaterTech {
	var options []*WaterTech
	for _, incr := range c.cfg.SubbasinIncrements {
		if incr-bracket/2 >= maxDegree {
			continue
		}
		options = append(options, bins[incr]...)
	}
	if len(options) == 0 {
		return nil
	}
	return options[rng.Intn(len(options))]
}

// pickInBlock samples an in-block strategy with probability proportional to
// its MCA score, restricted to bins within the allowed window.
func (c *Composer) pickInBlock(binned BinnedStrategies, maxDegree, bracket float64, rng *rand.Rand) *BlockStrategy {
	var options []*BlockStrategy
	for _, incr := range c.cfg.SubbasinIncrements {
		if incr-bracket/2 >= maxDegree {
			continue
		}
		options = append(options, binned[incr]...)
	}
	if len(options) == 0 {
		return nil
	}
	scores := make([]float64, len(options))
	for i, option := range options {
		scores[i] = option.Score
	}
	idx := mca.NewCDF(scores).Sample(rng)
	return options[idx]
}

// objective is Σ(provided − required) across the service dimensions, or −1
// when any enabled dimension falls short.
func (c *Composer) objective(provided, required [3]float64) float64 {
	performance := 0.0
	for dim := range provided {
		enabled := 0.0
		if c.cfg.ObjectiveEnabled(dim) {
			enabled = 1
		}
		diff := provided[dim]*enabled - required[dim]*enabled
		if diff < 0 {
			return -1
		}
		performance += diff
	}
	return performance
}

// rank filters out strategies that miss the objective, narrows the list per
// the configured rank mode, and emits the finalists.
func (c *Composer) rank(sampled []*BasinStrategy, rng *rand.Rand) []*BasinStrategy {
	var acceptable []*BasinStrategy
	for _, strategy := range sampled {
		if strategy.Objective >= 0 {
			acceptable = append(acceptable, strategy)
		}
	}
	// the best strategy meets the requirement with the least overshoot
	sort.SliceStable(acceptable, func(i, j int) bool {
		return acceptable[i].Objective < acceptable[j].Objective
	})

	switch c.cfg.MCA.RankType {
	case "RK":
		if len(acceptable) > c.cfg.MCA.TopRankLimit {
			acceptable = acceptable[:c.cfg.MCA.TopRankLimit]
		}
	case "CI":
		keep := int(float64(len(acceptable)) * (1.0 - c.cfg.MCA.ConfInt/100.0))
		if len(acceptable) > keep {
			acceptable = acceptable[:keep]
		}
	}

	sort.SliceStable(acceptable, func(i, j int) bool {
		return acceptable[i].Score > acceptable[j].Score
	})

	numSelect := c.cfg.MCA.NumOutputStrats
	if numSelect > len(acceptable) {
		numSelect = len(acceptable)
	}

	switch c.cfg.MCA.PickingMethod {
	case "RND":
		var final []*BasinStrategy
		pool := slices.Clone(acceptable)
		for i := 0; i < numSelect; i++ {
			scores := make([]float64, len(pool))
			for j, strategy := range pool {
				scores[j] = strategy.Score
			}
			idx := mca.NewCDF(scores).Sample(rng)
			final = append(final, pool[idx])
			pool = slices.Delete(pool, idx, idx+1)
		}
		return final
	default: // "TOP"
		return slices.Clone(acceptable[:numSelect])
	}
}

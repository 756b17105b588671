// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package blocks

import (
	"fmt"
	"slices"
	"sort"
)

// Table holds all blocks of the catchment plus the precomputed drainage
// topology. The downID references form a forest per basin, terminating at
// exactly one outlet block; upstream and downstream closures are computed
// once and kept sorted, so that the hot planning loops check membership by
// binary search.
type Table struct {
	blocks []*Block
	byID   map[int]*Block

	upstream   map[int][]int // transitive closure, excluding the block itself
	downstream map[int][]int // path to the outlet, excluding the block itself

	basinIDs []int
}

// NewTable validates the topology of the given blocks and precomputes the
// upstream/downstream closures.
func NewTable(blockList []*Block) (*Table, error) {
	t := &Table{
		blocks:     blockList,
		byID:       make(map[int]*Block, len(blockList)),
		upstream:   make(map[int][]int, len(blockList)),
		downstream: make(map[int][]int, len(blockList)),
	}
	for _, block := range blockList {
		if _, duplicate := t.byID[block.ID]; duplicate {
			return nil, fmt.Errorf("duplicate BlockID %d in block table", block.ID)
		}
		t.byID[block.ID] = block
	}

	outletsPerBasin := make(map[int]int)
	for _, block := range blockList {
		if block.DownID != -1 {
			if _, exists := t.byID[block.DownID]; !exists {
				return nil, fmt.Errorf("block %d drains to unknown block %d", block.ID, block.DownID)
			}
		}
		if block.Outlet {
			outletsPerBasin[block.BasinID]++
		}
		if !slices.Contains(t.basinIDs, block.BasinID) {
			t.basinIDs = append(t.basinIDs, block.BasinID)
		}
	}
	sort.Ints(t.basinIDs)
	for _, basinID := range t.basinIDs {
		if outletsPerBasin[basinID] != 1 {
			return nil, fmt.Errorf("basin %d has %d outlet blocks, expected exactly 1", basinID, outletsPerBasin[basinID])
		}
	}

	// downstream closure, with cycle detection
	for _, block := range blockList {
		visited := map[int]bool{block.ID: true}
		var path []int
		curID := block.DownID
		for curID != -1 {
			if visited[curID] {
				return nil, fmt.Errorf("drainage cycle detected at block %d", curID)
			}
			visited[curID] = true
			path = append(path, curID)
			curID = t.byID[curID].DownID
		}
		t.downstream[block.ID] = path
	}

	// upstream closure is the inverse of the downstream closure
	for _, block := range blockList {
		for _, downID := range t.downstream[block.ID] {
			t.upstream[downID] = append(t.upstream[downID], block.ID)
		}
	}
	for id := range t.byID {
		sort.Ints(t.upstream[id])
	}

	return t, nil
}

// Get returns the block with the given ID, or nil.
func (t *Table) Get(id int) *Block {
	return t.byID[id]
}

// All returns all blocks in table order.
func (t *Table) All() []*Block {
	return t.blocks
}

// BasinIDs returns all basin IDs in ascending order.
func (t *Table) BasinIDs() []int {
	return t.basinIDs
}

// UpstreamIDs returns all blocks that drain through the given block,
// excluding the block itself. The result is sorted and must not be modified.
func (t *Table) UpstreamIDs(id int) []int {
	return t.upstream[id]
}

// DownstreamIDs returns the drainage path from the given block to the
// catchment outlet, excluding the block itself.
func (t *Table) DownstreamIDs(id int) []int {
	return t.downstream[id]
}

// IsUpstreamOf reports whether candidate drains through blockID.
func (t *Table) IsUpstreamOf(candidate, blockID int) bool {
	_, found := slices.BinarySearch(t.upstream[blockID], candidate)
	return found
}

// BasinBlocks returns all block IDs of the given basin ordered most-upstream
// first (ascending length of upstream string), plus the outlet block ID.
// The walking order is a topological order of the drainage forest.
func (t *Table) BasinBlocks(basinID int) (orderedIDs []int, outletID int) {
	type entry struct {
		upstreamCount int
		id            int
	}
	var entries []entry
	for _, block := range t.blocks {
		if block.BasinID != basinID {
			continue
		}
		entries = append(entries, entry{len(t.upstream[block.ID]), block.ID})
		if block.Outlet {
			outletID = block.ID
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].upstreamCount != entries[j].upstreamCount {
			return entries[i].upstreamCount < entries[j].upstreamCount
		}
		return entries[i].id < entries[j].id
	})
	for _, e := range entries {
		orderedIDs = append(orderedIDs, e.id)
	}
	return orderedIDs, outletID
}

// ReduceMode selects how Reduce aggregates block attribute values.
type ReduceMode int

const (
	ReduceSum ReduceMode = iota
	ReduceAverage
	ReduceMax
	ReduceMin
	ReduceMinNonzero
)

// Values collects the given attribute from all listed blocks, skipping
// blocks that are not in the simulation.
func (t *Table) Values(ids []int, attr func(*Block) float64) []float64 {
	var values []float64
	for _, id := range ids {
		block := t.byID[id]
		if block == nil || !block.Status {
			continue
		}
		values = append(values, attr(block))
	}
	return values
}

// Reduce aggregates the given attribute over all listed blocks.
func (t *Table) Reduce(ids []int, attr func(*Block) float64, mode ReduceMode) float64 {
	values := t.Values(ids, attr)
	if len(values) == 0 {
		return 0
	}
	switch mode {
	case ReduceSum:
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	case ReduceAverage:
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case ReduceMax:
		return slices.Max(values)
	case ReduceMin:
		return slices.Min(values)
	case ReduceMinNonzero:
		result := 0.0
		for _, v := range values {
			if v != 0 && (result == 0 || v < result) {
				result = v
			}
		}
		return result
	default:
		panic(fmt.Sprintf("invalid reduce mode: %d", mode))
	}
}

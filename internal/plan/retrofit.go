// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/design"
)

// AssetSite locates an existing asset within a block: a scale letter, with
// the land-use category appended for lot-scale sites ("L_RES" … "L_COM",
// "S", "N", "B").
type AssetSite string

var lotAssetSites = []AssetSite{"L_RES", "L_HDR", "L_LI", "L_HI", "L_COM"}

// Asset is one pre-existing system found in the catchment.
type Asset struct {
	ID      int
	BlockID int
	Site    AssetSite
	Type    string

	YearBuilt int
	Qty       float64 // number of units currently implemented (lot scale)
	GoalQty   float64 // number of units the original plan aimed for

	SysArea  float64 // planning area [sqm]
	EAFactor float64
	Exfil    float64

	ImpT     float64 // unit impervious area treated [sqm]
	CurImpT  float64
	Upgrades int

	Decommissioned bool
}

// Decision is the outcome for one asset. The ordering matters: the machine
// combines independent signals by taking the maximum.
type Decision int

const (
	DecisionKeep Decision = iota + 1
	DecisionRenew
	DecisionDecommission
)

// Machine applies the configured retrofit scenario to existing assets and
// patches the per-block service accounting and occupancy flags that the
// opportunity mapper builds on.
type Machine struct {
	cfg     *core.PlannerConfig
	table   *blocks.Table
	adapter *design.Adapter
	curves  *design.CurveCache
}

// NewMachine assembles the retrofit decision machine.
func NewMachine(cfg *core.PlannerConfig, table *blocks.Table, adapter *design.Adapter, curves *design.CurveCache) *Machine {
	return &Machine{cfg: cfg, table: table, adapter: adapter, curves: curves}
}

// Apply runs the scenario over all assets, grouped by block. Assets are
// modified in place; decommissioned ones are flagged rather than removed.
func (m *Machine) Apply(assets []*Asset) {
	assetsPerBlock := make(map[int][]*Asset)
	for _, asset := range assets {
		assetsPerBlock[asset.BlockID] = append(assetsPerBlock[asset.BlockID], asset)
	}

	for _, block := range m.table.All() {
		if !block.Status {
			continue
		}
		blockAssets := assetsPerBlock[block.ID]
		if len(blockAssets) == 0 {
			continue
		}
		switch m.cfg.Retrofit.Scenario {
		case "N":
			m.applyDoNothing(block, blockAssets)
		case "R":
			m.applyWithRenewal(block, blockAssets)
		case "F":
			m.applyForced(block, blockAssets)
		}
	}
}

func locateAsset(assets []*Asset, site AssetSite) *Asset {
	for _, asset := range assets {
		if asset.Site == site && !asset.Decommissioned {
			return asset
		}
	}
	return nil
}

func setOccupied(block *blocks.Block, site AssetSite, occupied bool) {
	switch site {
	case "L_RES":
		block.HasLotRESSys = occupied
	case "L_HDR":
		block.HasLotHDRSys = occupied
	case "L_LI":
		block.HasLotLISys = occupied
	case "L_HI":
		block.HasLotHISys = occupied
	case "L_COM":
		block.HasLotCOMSys = occupied
	case "S":
		block.HasStreetSys = occupied
	case "N":
		block.HasNeighSys = occupied
	case "B":
		block.HasBasinSys = occupied
	}
}

// reassessTreatedImp asks the design adapter how much impervious area the
// asset's current physical size treats under today's targets.
func (m *Machine) reassessTreatedImp(block *blocks.Block, asset *Asset) float64 {
	tech, known := m.cfg.Registry.Get(asset.Type)
	if !known {
		return 0 // type no longer designable under this configuration
	}
	if tech.Sizer != core.SizeByCurve {
		return 0
	}
	curve, err := m.curves.Get(m.adapter.CurvePath(tech))
	if err != nil {
		logg.Debug("retrofit: no design curve for existing %s system: %s", asset.Type, err.Error())
		return 0
	}
	targets := [4]float64{
		m.cfg.TargetsVector[0], m.cfg.TargetsVector[1],
		m.cfg.TargetsVector[2], m.cfg.TargetsVector[3],
	}
	fraction := curve.RequiredFraction(math.Min(block.SoilK, asset.Exfil), targets)
	if math.IsInf(fraction, +1) || fraction <= 0 {
		return 0
	}
	effectiveArea := asset.SysArea / asset.EAFactor
	return effectiveArea / fraction
}

// decide runs the two independent signals (age, performance drift) and
// combines them: Keep < Renew < Decommission, worst case wins.
func (m *Machine) decide(block *blocks.Block, asset *Asset) (Decision, float64) {
	renewAllowed, decomAllowed := m.scaleConditions(asset.Site)

	decision := DecisionKeep

	tech, known := m.cfg.Registry.Get(asset.Type)
	avgLife := 20.0
	if known {
		avgLife = tech.AvgLife
	}
	age := float64(m.cfg.Retrofit.CurrentYear - asset.YearBuilt)
	switch {
	case decomAllowed && age > avgLife:
		decision = max(decision, DecisionDecommission)
	case renewAllowed && age > avgLife/2:
		decision = max(decision, DecisionRenew)
	}

	oldImp := asset.ImpT
	var newImp, drift float64
	if oldImp == 0 {
		// happens when an earlier cycle already found the targets unmeetable
		drift, newImp = 1.0, 0
	} else {
		newImp = m.reassessTreatedImp(block, asset)
		drift = (oldImp - newImp) / oldImp
	}
	switch {
	case decomAllowed && drift >= m.cfg.Retrofit.DecomThreshold/100.0:
		decision = max(decision, DecisionDecommission)
	case renewAllowed && drift >= m.cfg.Retrofit.RenewalThreshold/100.0:
		decision = max(decision, DecisionRenew)
	}

	return decision, newImp
}

func (m *Machine) scaleConditions(site AssetSite) (renewAllowed, decomAllowed bool) {
	r := m.cfg.Retrofit
	switch site {
	case "S":
		return r.StreetRenew, r.StreetDecom
	case "N":
		return r.NeighRenew, r.NeighDecom
	case "B":
		return r.SubbasinRenew, r.SubbasinDecom
	default:
		return r.LotRenew, r.LotDecom
	}
}

// redesign sizes the asset's type anew for the impervious area it
// originally treated, under today's targets.
func (m *Machine) redesign(block *blocks.Block, asset *Asset, originalImp float64) (design.Sizing, bool) {
	tech, known := m.cfg.Registry.Get(asset.Type)
	if !known {
		return design.Sizing{}, false
	}
	return m.adapter.Design(tech, originalImp, core.Purposes{Pollution: tech.CanPollute}, block.SoilK, asset.Exfil)
}

// availableRetrofitSpace mirrors the opportunity mapper's space budgets.
func availableRetrofitSpace(block *blocks.Block, site AssetSite, techType string) float64 {
	if site == "S" {
		return block.AvStRES
	}
	usesSVU := false
	switch techType {
	case "BF", "WSUR", "PB", "RT", "SW", "IS":
		usesSVU = true
	}
	return block.OpenSpaceBudget(usesSVU)
}

// applyDoNothing leaves every asset in place: their treated impervious area
// is re-assessed against today's targets and recorded as provided service,
// and their sites are marked occupied.
func (m *Machine) applyDoNothing(block *blocks.Block, assets []*Asset) {
	inBlockTreated := 0.0

	for _, site := range append(append([]AssetSite{}, lotAssetSites...), "S", "N") {
		asset := locateAsset(assets, site)
		if asset == nil {
			setOccupied(block, site, false)
			continue
		}
		setOccupied(block, site, true)
		treated := m.reassessTreatedImp(block, asset)
		if site == "L_RES" {
			treated = math.Min(treated, block.ResLotEIA)
		}
		inBlockTreated += treated * asset.GoalQty
		asset.ImpT = treated
		asset.CurImpT = treated * asset.Qty
	}

	block.ServWQ = inBlockTreated
	block.ServQty = 0
	block.ServRec = 0

	if asset := locateAsset(assets, "B"); asset != nil {
		setOccupied(block, "B", true)
		treated := m.reassessTreatedImp(block, asset)
		block.ServUpWQ = treated
		asset.ImpT = treated
		asset.CurImpT = treated * asset.Qty
	} else {
		setOccupied(block, "B", false)
		block.ServUpWQ = 0
	}
	block.ServUpQty = 0
	block.ServUpRec = 0
}

// applyForced retrofits at the force-flagged scales regardless of renewal
// cycles. Lot-scale assets are always kept.
func (m *Machine) applyForced(block *blocks.Block, assets []*Asset) {
	inBlockTreated := 0.0

	for _, site := range append(append([]AssetSite{}, lotAssetSites...), "S", "N") {
		asset := locateAsset(assets, site)
		if asset == nil {
			setOccupied(block, site, false)
			continue
		}

		decision, newImp := m.decide(block, asset)
		switch {
		case strings.HasPrefix(string(site), "L_"):
			decision = DecisionKeep // retrofit cannot be forced onto lots
		case site == "S" && !m.cfg.Retrofit.ForceStreet:
			decision = DecisionKeep
		case site == "N" && !m.cfg.Retrofit.ForceNeigh:
			decision = DecisionKeep
		}

		inBlockTreated += m.settleInBlock(block, asset, site, decision, newImp)
	}

	block.ServWQ = inBlockTreated
	block.ServQty = 0
	block.ServRec = 0

	if asset := locateAsset(assets, "B"); asset != nil {
		decision, newImp := m.decide(block, asset)
		if !m.cfg.Retrofit.ForceSubbasin {
			decision = DecisionKeep
		}
		m.settleSubbasin(block, asset, decision, newImp)
	} else {
		setOccupied(block, "B", false)
	}
}

// applyWithRenewal retrofits only when the renewal cycle for the asset's
// scale comes due in the current planning period.
func (m *Machine) applyWithRenewal(block *blocks.Block, assets []*Asset) {
	if !m.cfg.Retrofit.RenewalCycleDef {
		m.applyDoNothing(block, assets)
		return
	}
	timePassed := float64(m.cfg.Retrofit.CurrentYear - m.cfg.Retrofit.PreviousYear)
	inBlockTreated := 0.0

	for _, site := range append(append([]AssetSite{}, lotAssetSites...), "S", "N") {
		asset := locateAsset(assets, site)
		if asset == nil {
			setOccupied(block, site, false)
			continue
		}

		var renewalYears float64
		switch site {
		case "S":
			renewalYears = m.cfg.Retrofit.RenewalStreetYears
		case "N":
			renewalYears = m.cfg.Retrofit.RenewalNeighYears
		default:
			renewalYears = m.cfg.Retrofit.RenewalLotYears
		}
		cycleDue := renewalYears > 0 && math.Mod(timePassed, renewalYears) == 0

		if cycleDue && site == "L_RES" {
			m.applyBuildingStockRenewal(asset)
		}

		decision, newImp := m.decide(block, asset)
		if !cycleDue {
			decision = DecisionKeep
		}
		if decision == DecisionRenew && strings.HasPrefix(string(site), "L_") {
			// lot-scale systems are not renewed; they persist until the plan
			// is abandoned
			decision = DecisionKeep
		}

		inBlockTreated += m.settleInBlock(block, asset, site, decision, newImp)
	}

	block.ServWQ = inBlockTreated
	block.ServQty = 0
	block.ServRec = 0

	if asset := locateAsset(assets, "B"); asset != nil {
		cycleDue := m.cfg.Retrofit.RenewalNeighYears > 0 &&
			math.Mod(timePassed, m.cfg.Retrofit.RenewalNeighYears) == 0
		decision, newImp := m.decide(block, asset)
		if !cycleDue {
			decision = DecisionKeep
		}
		m.settleSubbasin(block, asset, decision, newImp)
	} else {
		setOccupied(block, "B", false)
	}
}

// settleInBlock executes the decision for a lot/street/neighbourhood asset
// and returns the treated impervious area it contributes.
func (m *Machine) settleInBlock(block *blocks.Block, asset *Asset, site AssetSite, decision Decision, newImp float64) float64 {
	switch decision {
	case DecisionRenew:
		oldImp := asset.ImpT
		sizing, ok := m.redesign(block, asset, oldImp)
		available := availableRetrofitSpace(block, site, asset.Type)
		switch {
		case ok && sizing.Area <= available:
			setOccupied(block, site, true)
			m.upgradeAsset(asset, sizing, oldImp)
			return oldImp
		case m.cfg.Retrofit.RenewalAlternative == "D":
			logg.Debug("retrofit: renewed %s system in block %d does not fit, decommissioning", asset.Type, block.ID)
			setOccupied(block, site, false)
			asset.Decommissioned = true
			return 0
		default:
			logg.Debug("retrofit: renewed %s system in block %d does not fit, keeping old design", asset.Type, block.ID)
			setOccupied(block, site, true)
			asset.ImpT = newImp
			asset.CurImpT = newImp * asset.Qty
			return newImp
		}

	case DecisionDecommission:
		setOccupied(block, site, false)
		asset.Decommissioned = true
		return 0

	default: // Keep
		setOccupied(block, site, true)
		treated := newImp
		if site == "L_RES" {
			treated = math.Min(treated, block.ResLotEIA)
		}
		asset.ImpT = treated
		asset.CurImpT = treated * asset.Qty
		return treated
	}
}

func (m *Machine) settleSubbasin(block *blocks.Block, asset *Asset, decision Decision, newImp float64) {
	switch decision {
	case DecisionRenew:
		oldImp := asset.ImpT
		sizing, ok := m.redesign(block, asset, oldImp)
		available := availableRetrofitSpace(block, "B", asset.Type)
		switch {
		case ok && sizing.Area <= available:
			setOccupied(block, "B", true)
			m.upgradeAsset(asset, sizing, oldImp)
			// the redesigned system is larger and handles the same area
			block.ServUpWQ = oldImp
		case m.cfg.Retrofit.RenewalAlternative == "D":
			setOccupied(block, "B", false)
			asset.Decommissioned = true
			block.ServUpWQ = 0
		default:
			setOccupied(block, "B", true)
			asset.ImpT = newImp
			asset.CurImpT = newImp * asset.Qty
			block.ServUpWQ = newImp
		}
	case DecisionDecommission:
		setOccupied(block, "B", false)
		asset.Decommissioned = true
		block.ServUpWQ = 0
	default:
		setOccupied(block, "B", true)
		asset.ImpT = newImp
		asset.CurImpT = newImp * asset.Qty
		block.ServUpWQ = newImp
	}
	block.ServUpQty = 0
	block.ServUpRec = 0
}

func (m *Machine) upgradeAsset(asset *Asset, sizing design.Sizing, impT float64) {
	asset.SysArea = sizing.Area
	asset.EAFactor = sizing.EAFactor
	asset.ImpT = impT
	asset.CurImpT = impT * asset.GoalQty
	asset.Upgrades++
}

// applyBuildingStockRenewal models building-stock turnover for
// lot-residential assets: a configured share of houses disappears per
// elapsed renewal cycle, shrinking both the current and the goal quantity.
func (m *Machine) applyBuildingStockRenewal(asset *Asset) {
	r := m.cfg.Retrofit
	if r.RenewalLotYears <= 0 {
		return
	}
	cycles := math.Floor(float64(r.CurrentYear-r.PreviousYear) / r.RenewalLotYears)
	lost := asset.Qty * r.RenewalLotPercent / 100.0 * cycles
	asset.GoalQty = math.Trunc(asset.GoalQty - lost)
	asset.Qty = math.Trunc(asset.Qty - lost)
}

// LoadAssets reads the existing-systems table from the CSV file at the
// given path.
func LoadAssets(path string) ([]*Asset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read existing systems: %w", err)
	}
	defer file.Close()
	return ParseAssets(file)
}

// ParseAssets reads the existing-systems table. Expected columns: SysID,
// Location, Scale, Type, Year, Qty, GoalQty, SysArea, EAFact, Exfil, ImpT.
func ParseAssets(reader io.Reader) ([]*Asset, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("read existing systems header: %w", err)
	}
	column := make(map[string]int, len(headers))
	for idx, header := range headers {
		column[header] = idx
	}
	for _, required := range []string{"SysID", "Location", "Scale", "Type"} {
		if _, exists := column[required]; !exists {
			return nil, fmt.Errorf("existing systems table has no %s column", required)
		}
	}

	var assets []*Asset
	for lineNo := 2; ; lineNo++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read existing systems line %d: %w", lineNo, err)
		}
		get := func(name string) string {
			idx, exists := column[name]
			if !exists || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		getFloat := func(name string, fallback float64) (float64, error) {
			text := get(name)
			if text == "" {
				return fallback, nil
			}
			return strconv.ParseFloat(text, 64)
		}

		asset := &Asset{Site: AssetSite(get("Scale")), Type: get("Type"), EAFactor: 1}
		for _, field := range []struct {
			name   string
			target *float64
		}{
			{"Qty", &asset.Qty}, {"GoalQty", &asset.GoalQty},
			{"SysArea", &asset.SysArea}, {"EAFact", &asset.EAFactor},
			{"Exfil", &asset.Exfil}, {"ImpT", &asset.ImpT},
		} {
			value, err := getFloat(field.name, *field.target)
			if err != nil {
				return nil, fmt.Errorf("existing systems line %d: malformed value in column %s", lineNo, field.name)
			}
			*field.target = value
		}
		for _, field := range []struct {
			name   string
			target *int
		}{
			{"SysID", &asset.ID}, {"Location", &asset.BlockID}, {"Year", &asset.YearBuilt},
		} {
			value, err := getFloat(field.name, 0)
			if err != nil {
				return nil, fmt.Errorf("existing systems line %d: malformed value in column %s", lineNo, field.name)
			}
			*field.target = int(value)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package blocks

// Block is one unit of the catchment grid. Fields mirror the block table
// columns; everything derived is computed once during preprocessing.
type Block struct {
	ID      int
	BasinID int
	// DownID names the neighbouring block that this block's outflow drains
	// to, or -1 when it drains to the catchment outlet.
	DownID int
	Outlet bool
	Status bool
	Active bool

	SoilK float64 // soil infiltration rate [mm/hr]

	// open space per category [sqm]
	PGAv    float64 // parks & gardens
	REFAv   float64 // reserves & floodways
	SVUAvSW float64 // service & utility, stormwater share
	SVUAvWS float64 // service & utility, water supply share
	SVUAvWW float64 // service & utility, wastewater share
	AvStRES float64 // residential street verge
	AvLtRES float64 // residential lot pervious
	AvHDRes float64 // high-density residential outdoor space
	AvLtLI  float64 // light industry lot space
	AvLtHI  float64 // heavy industry lot space
	AvLtCOM float64 // commercial lot space

	// land-use counts
	ResAllots  float64
	ResHouses  float64
	HDRFlats   float64
	LIEstates  float64
	HIEstates  float64
	COMEstates float64

	// impervious areas [sqm]
	ResLotEIA float64 // effective impervious area of one residential allotment
	ResFrontT float64 // total residential frontage impervious area
	HDREIA    float64
	LIAeEIA   float64 // per LI estate
	HIAeEIA   float64 // per HI estate
	COMAeEIA  float64 // per COM estate
	BlkEIA    float64
	BlkTIA    float64

	// roof areas available for harvesting [sqm]
	ResRoof  float64
	HDRRoofA float64

	// land-use presence flags
	HasHouses bool
	HasFlats  bool
	HasLI     bool
	HasHI     bool
	HasCOM    bool

	// water demand by end use [kL/day], except BlkWD and the public
	// irrigation demand which are annual totals [kL/yr]
	WdResKitchen float64
	WdResShower  float64
	WdResToilet  float64
	WdResLaundry float64
	WdResIrrig   float64
	WdHDRKitchen float64
	WdHDRShower  float64
	WdHDRToilet  float64
	WdHDRLaundry float64
	WdHDRIrrig   float64
	WdNonResIn   float64 // total non-residential indoor demand [kL/yr]
	WdPublicIrr  float64 // public open space irrigation [kL/yr]
	BlkWD        float64 // total block demand [kL/yr]

	// occupancy flags: true when the retrofit stage found an existing
	// system at that scale/land-use, blocking new opportunities there
	HasLotRESSys bool
	HasLotHDRSys bool
	HasLotLISys  bool
	HasLotHISys  bool
	HasLotCOMSys bool
	HasStreetSys bool
	HasNeighSys  bool
	HasBasinSys  bool

	// derived during preprocessing
	HasRes    bool
	ManageEIA float64

	// service already provided by pre-existing assets (retrofit output)
	ServQty   float64
	ServWQ    float64
	ServRec   float64
	ServUpQty float64
	ServUpWQ  float64
	ServUpRec float64
}

// ComputeManageEIA derives the effective impervious area that the planner is
// asked to service, given which land uses are in scope.
func (b *Block) ComputeManageEIA(res, hdr, com, li, hi bool) {
	eia := b.BlkEIA
	if !res {
		impRes := b.ResLotEIA * b.ResAllots
		impStreetRes := b.ResFrontT - b.AvStRES
		eia -= impRes + impStreetRes
	}
	if !hdr {
		eia -= b.HDREIA
	}
	if !com {
		eia -= b.COMAeEIA * b.COMEstates
	}
	if !li {
		eia -= b.LIAeEIA * b.LIEstates
	}
	if !hi {
		eia -= b.HIAeEIA * b.HIEstates
	}
	b.ManageEIA = eia
	b.HasRes = b.HasHouses || b.HasFlats
}

// SubstitutableDemand is the annual demand that recycled water may offset:
// the block total minus indoor non-residential use.
func (b *Block) SubstitutableDemand() float64 {
	return b.BlkWD - b.WdNonResIn
}

// OpenSpaceBudget is the combined open-space area available to
// neighbourhood and sub-basin scale systems of the given type family.
// Stormwater infrastructure may use the stormwater and water-supply shares
// of service & utility land; everything else only parks and reserves.
func (b *Block) OpenSpaceBudget(usesSVU bool) float64 {
	budget := b.PGAv + b.REFAv
	if usesSVU {
		budget += b.SVUAvSW + b.SVUAvWS
	}
	return budget
}

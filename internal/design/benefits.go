// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package design

// BenefitRow maps the harvested share of runoff (annual supply divided by
// annual runoff from the treated impervious area) to the impervious-area
// offset fractions credited for quantity and quality.
type BenefitRow struct {
	HarvestShare float64
	QtyOffset    float64
	WQOffset     float64
}

// BenefitsTable awards impervious-area offsets to harvesting systems for
// diverting runoff from the drainage network.
type BenefitsTable []BenefitRow

// DefaultBenefitsTable is used when no regional table is configured. Rows
// must be sorted ascending by harvest share.
var DefaultBenefitsTable = BenefitsTable{
	{HarvestShare: 0.0, QtyOffset: 0.00, WQOffset: 0.00},
	{HarvestShare: 0.2, QtyOffset: 0.15, WQOffset: 0.10},
	{HarvestShare: 0.4, QtyOffset: 0.32, WQOffset: 0.22},
	{HarvestShare: 0.6, QtyOffset: 0.50, WQOffset: 0.36},
	{HarvestShare: 0.8, QtyOffset: 0.68, WQOffset: 0.52},
	{HarvestShare: 1.0, QtyOffset: 0.85, WQOffset: 0.70},
}

// Offsets interpolates the offset fractions for the given harvest share,
// clamped to the table's range.
func (t BenefitsTable) Offsets(harvestShare float64) (qty, wq float64) {
	if len(t) == 0 {
		return 0, 0
	}
	if harvestShare <= t[0].HarvestShare {
		return t[0].QtyOffset, t[0].WQOffset
	}
	for i := 1; i < len(t); i++ {
		lo, hi := t[i-1], t[i]
		if harvestShare <= hi.HarvestShare {
			span := hi.HarvestShare - lo.HarvestShare
			if span == 0 {
				return lo.QtyOffset, lo.WQOffset
			}
			f := (harvestShare - lo.HarvestShare) / span
			return lo.QtyOffset + f*(hi.QtyOffset-lo.QtyOffset),
				lo.WQOffset + f*(hi.WQOffset-lo.WQOffset)
		}
	}
	last := t[len(t)-1]
	return last.QtyOffset, last.WQOffset
}

// IAOCredits computes the impervious-area offsets [sqm] for a harvesting
// system that supplies the given annual volume [kL/yr] from the given
// treated impervious area [sqm]. unitRunoff is the annual runoff yield per
// square metre of impervious surface [kL/sqm/yr].
func (t BenefitsTable) IAOCredits(annualSupply, treatedImp, unitRunoff float64) (qty, wq float64) {
	if annualSupply <= 0 || treatedImp <= 0 || unitRunoff <= 0 {
		return 0, 0
	}
	share := annualSupply / (treatedImp * unitRunoff)
	if share > 1 {
		share = 1
	}
	qtyFrac, wqFrac := t.Offsets(share)
	return qtyFrac * treatedImp, wqFrac * treatedImp
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package blocks

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// fieldSetters maps block table column headers onto Block fields. Columns
// not listed here are ignored; listed columns that are absent default to 0,
// except downID, which defaults to -1 (drains to the catchment outlet).
var fieldSetters = map[string]func(*Block, float64){
	"BlockID":     func(b *Block, v float64) { b.ID = int(v) },
	"BasinID":     func(b *Block, v float64) { b.BasinID = int(v) },
	"downID":      func(b *Block, v float64) { b.DownID = int(v) },
	"Outlet":      func(b *Block, v float64) { b.Outlet = v != 0 },
	"Status":      func(b *Block, v float64) { b.Status = v != 0 },
	"Active":      func(b *Block, v float64) { b.Active = v != 0 },
	"Soil_k":      func(b *Block, v float64) { b.SoilK = v },
	"PG_av":       func(b *Block, v float64) { b.PGAv = v },
	"REF_av":      func(b *Block, v float64) { b.REFAv = v },
	"SVU_avSW":    func(b *Block, v float64) { b.SVUAvSW = v },
	"SVU_avWS":    func(b *Block, v float64) { b.SVUAvWS = v },
	"SVU_avWW":    func(b *Block, v float64) { b.SVUAvWW = v },
	"avSt_RES":    func(b *Block, v float64) { b.AvStRES = v },
	"avLt_RES":    func(b *Block, v float64) { b.AvLtRES = v },
	"av_HDRes":    func(b *Block, v float64) { b.AvHDRes = v },
	"avLt_LI":     func(b *Block, v float64) { b.AvLtLI = v },
	"avLt_HI":     func(b *Block, v float64) { b.AvLtHI = v },
	"avLt_COM":    func(b *Block, v float64) { b.AvLtCOM = v },
	"ResAllots":   func(b *Block, v float64) { b.ResAllots = v },
	"ResHouses":   func(b *Block, v float64) { b.ResHouses = v },
	"HDRFlats":    func(b *Block, v float64) { b.HDRFlats = v },
	"LIestates":   func(b *Block, v float64) { b.LIEstates = v },
	"HIestates":   func(b *Block, v float64) { b.HIEstates = v },
	"COMestates":  func(b *Block, v float64) { b.COMEstates = v },
	"ResLotEIA":   func(b *Block, v float64) { b.ResLotEIA = v },
	"ResFrontT":   func(b *Block, v float64) { b.ResFrontT = v },
	"HDR_EIA":     func(b *Block, v float64) { b.HDREIA = v },
	"LIAeEIA":     func(b *Block, v float64) { b.LIAeEIA = v },
	"HIAeEIA":     func(b *Block, v float64) { b.HIAeEIA = v },
	"COMAeEIA":    func(b *Block, v float64) { b.COMAeEIA = v },
	"Blk_EIA":     func(b *Block, v float64) { b.BlkEIA = v },
	"Blk_TIA":     func(b *Block, v float64) { b.BlkTIA = v },
	"ResRoof":     func(b *Block, v float64) { b.ResRoof = v },
	"HDRRoofA":    func(b *Block, v float64) { b.HDRRoofA = v },
	"HasHouses":   func(b *Block, v float64) { b.HasHouses = v != 0 },
	"HasFlats":    func(b *Block, v float64) { b.HasFlats = v != 0 },
	"Has_LI":      func(b *Block, v float64) { b.HasLI = v != 0 },
	"Has_HI":      func(b *Block, v float64) { b.HasHI = v != 0 },
	"Has_Com":     func(b *Block, v float64) { b.HasCOM = v != 0 },
	"wd_RES_K":    func(b *Block, v float64) { b.WdResKitchen = v },
	"wd_RES_S":    func(b *Block, v float64) { b.WdResShower = v },
	"wd_RES_T":    func(b *Block, v float64) { b.WdResToilet = v },
	"wd_RES_L":    func(b *Block, v float64) { b.WdResLaundry = v },
	"wd_RES_I":    func(b *Block, v float64) { b.WdResIrrig = v },
	"wd_HDR_K":    func(b *Block, v float64) { b.WdHDRKitchen = v },
	"wd_HDR_S":    func(b *Block, v float64) { b.WdHDRShower = v },
	"wd_HDR_T":    func(b *Block, v float64) { b.WdHDRToilet = v },
	"wd_HDR_L":    func(b *Block, v float64) { b.WdHDRLaundry = v },
	"wd_HDR_I":    func(b *Block, v float64) { b.WdHDRIrrig = v },
	"wd_Nres_IN":  func(b *Block, v float64) { b.WdNonResIn = v },
	"wd_PubOUT":   func(b *Block, v float64) { b.WdPublicIrr = v },
	"Blk_WD":      func(b *Block, v float64) { b.BlkWD = v },
	"HasL_RESSys": func(b *Block, v float64) { b.HasLotRESSys = v != 0 },
	"HasL_HDRSys": func(b *Block, v float64) { b.HasLotHDRSys = v != 0 },
	"HasL_LISys":  func(b *Block, v float64) { b.HasLotLISys = v != 0 },
	"HasL_HISys":  func(b *Block, v float64) { b.HasLotHISys = v != 0 },
	"HasL_COMSys": func(b *Block, v float64) { b.HasLotCOMSys = v != 0 },
	"HasSSys":     func(b *Block, v float64) { b.HasStreetSys = v != 0 },
	"HasNSys":     func(b *Block, v float64) { b.HasNeighSys = v != 0 },
	"HasBSys":     func(b *Block, v float64) { b.HasBasinSys = v != 0 },
}

// LoadTable reads a block table from the CSV file at the given path.
func LoadTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read block table: %w", err)
	}
	defer file.Close()
	return ParseTable(file)
}

// ParseTable reads a block table in CSV format. The first row carries the
// column headers; missing optional columns default to 0 (downID to -1). Malformed numerics
// and broken topology references abort with a diagnostic naming the record.
func ParseTable(reader io.Reader) (*Table, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("read block table header: %w", err)
	}
	hasBlockID := false
	for _, header := range headers {
		if header == "BlockID" {
			hasBlockID = true
		}
	}
	if !hasBlockID {
		return nil, fmt.Errorf("block table has no BlockID column")
	}

	var blockList []*Block
	for lineNo := 2; ; lineNo++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read block table line %d: %w", lineNo, err)
		}

		block := &Block{DownID: -1}
		for idx, header := range headers {
			setter, known := fieldSetters[header]
			if !known || idx >= len(record) {
				continue
			}
			text := record[idx]
			if text == "" {
				continue
			}
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("block table line %d: malformed value %q in column %s", lineNo, text, header)
			}
			setter(block, value)
		}
		if block.ID <= 0 {
			return nil, fmt.Errorf("block table line %d: BlockID must be a positive integer", lineNo)
		}
		blockList = append(blockList, block)
	}

	return NewTable(blockList)
}

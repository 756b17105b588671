// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"os"

	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
	yaml "gopkg.in/yaml.v2"
)

// PlannerConfiguration contains all the configuration data for a single
// planner run. It is instantiated from YAML and then transformed into type
// PlannerConfig during the startup phase.
type PlannerConfiguration struct {
	BlockTablePath      string `yaml:"block_table"`
	CurveDirectory      string `yaml:"curve_directory"`
	ExistingSystemsPath string `yaml:"existing_systems"`

	Rationale  RationaleConfiguration             `yaml:"rationale"`
	Targets    TargetsConfiguration               `yaml:"targets"`
	Service    ServiceConfiguration               `yaml:"service"`
	Scales     ScalesConfiguration                `yaml:"scales"`
	Recycling  RecyclingConfiguration             `yaml:"recycling"`
	Retrofit   RetrofitConfiguration              `yaml:"retrofit"`
	MCA        MCAConfiguration                   `yaml:"mca"`
	MonteCarlo MonteCarloConfiguration            `yaml:"monte_carlo"`
	Climate    ClimateConfiguration               `yaml:"climate"`
	Techs      map[string]TechnologyConfiguration `yaml:"technologies"`
}

// RationaleConfiguration selects which of the three service objectives are
// planned for, and how strongly each influences the multi-criteria scores.
type RationaleConfiguration struct {
	Runoff  bool `yaml:"ration_runoff"`
	Pollute bool `yaml:"ration_pollute"`
	Harvest bool `yaml:"ration_harvest"`

	RunoffPriority  float64 `yaml:"runoff_pri"`
	PollutePriority float64 `yaml:"pollute_pri"`
	HarvestPriority float64 `yaml:"harvest_pri"`
}

// TargetsConfiguration holds the design targets in percent.
type TargetsConfiguration struct {
	Runoff      float64 `yaml:"targets_runoff"`
	TSS         float64 `yaml:"targets_TSS"`
	TP          float64 `yaml:"targets_TP"`
	TN          float64 `yaml:"targets_TN"`
	Reliability float64 `yaml:"targets_reliability"`
}

// ServiceConfiguration holds the basin-level required service fractions in
// percent, the land uses that are in scope, and the redundancy slack.
type ServiceConfiguration struct {
	SwmQty float64 `yaml:"service_swmQty"`
	SwmWQ  float64 `yaml:"service_swmWQ"`
	Rec    float64 `yaml:"service_rec"`

	Res *bool `yaml:"service_res"`
	Hdr *bool `yaml:"service_hdr"`
	Com *bool `yaml:"service_com"`
	LI  *bool `yaml:"service_li"`
	HI  *bool `yaml:"service_hi"`

	Redundancy float64 `yaml:"service_redundancy"`
}

// ScaleConfiguration enables one planning scale and sets its rigour (the
// number of equal steps used to discretise the [0,1] service fraction).
type ScaleConfiguration struct {
	Enabled bool `yaml:"check"`
	Rigour  int  `yaml:"rigour"`
}

// ScalesConfiguration collects the per-scale strategy settings.
type ScalesConfiguration struct {
	Lot      ScaleConfiguration `yaml:"lot"`
	Street   ScaleConfiguration `yaml:"street"`
	Neigh    ScaleConfiguration `yaml:"neigh"`
	Subbasin ScaleConfiguration `yaml:"subbas"`
}

// RecyclingConfiguration describes how harvested water may substitute
// potable demand.
type RecyclingConfiguration struct {
	DemRangeMinPercent float64 `yaml:"rec_demrange_min"`
	DemRangeMaxPercent float64 `yaml:"rec_demrange_max"`

	// Water quality supplied to each end use. A harvested source of class c
	// may serve any end use whose configured class is at or above c in the
	// order PO < NP < RW < SW < GW.
	FFPKitchen       WaterClass `yaml:"ffp_kitchen"`
	FFPShower        WaterClass `yaml:"ffp_shower"`
	FFPToilet        WaterClass `yaml:"ffp_toilet"`
	FFPLaundry       WaterClass `yaml:"ffp_laundry"`
	FFPGarden        WaterClass `yaml:"ffp_garden"`
	PublicIrrigation WaterClass `yaml:"public_irr_wq"`

	HSStrategy      string  `yaml:"hs_strategy"` // "ud", "uu" or "ua"
	SizingMethod    string  `yaml:"sb_method"`   // "Sim" or "Eqn"
	RainYears       float64 `yaml:"rain_length"`
	SWHBenefits     bool    `yaml:"swh_benefits"`
	SWHUnitRunoff   float64 `yaml:"swh_unitrunoff"` // [kL/sqm impervious/yr]
	RegionCity      string  `yaml:"regioncity"`
	RelTolerance    float64 `yaml:"rel_tolerance"`
	MaxSBIterations int     `yaml:"max_sb_iterations"`
}

// RetrofitConfiguration governs the decisions about pre-existing assets.
type RetrofitConfiguration struct {
	Scenario           string  `yaml:"retrofit_scenario"` // "N", "R" or "F"
	RenewalCycleDef    bool    `yaml:"renewal_cycle_def"`
	RenewalLotYears    float64 `yaml:"renewal_lot_years"`
	RenewalStreetYears float64 `yaml:"renewal_street_years"`
	RenewalNeighYears  float64 `yaml:"renewal_neigh_years"`
	RenewalLotPercent  float64 `yaml:"renewal_lot_perc"`

	ForceStreet   bool `yaml:"force_street"`
	ForceNeigh    bool `yaml:"force_neigh"`
	ForceSubbasin bool `yaml:"force_prec"`

	LotRenew      bool `yaml:"lot_renew"`
	LotDecom      bool `yaml:"lot_decom"`
	StreetRenew   bool `yaml:"street_renew"`
	StreetDecom   bool `yaml:"street_decom"`
	NeighRenew    bool `yaml:"neigh_renew"`
	NeighDecom    bool `yaml:"neigh_decom"`
	SubbasinRenew bool `yaml:"prec_renew"`
	SubbasinDecom bool `yaml:"prec_decom"`

	DecomThreshold   float64 `yaml:"decom_thresh"`   // percent
	RenewalThreshold float64 `yaml:"renewal_thresh"` // percent
	// Fallback when a redesigned system does not fit: "K" or "D".
	RenewalAlternative string `yaml:"renewal_alternative"`

	StartYear    int `yaml:"startyear"`
	PreviousYear int `yaml:"prevyear"`
	CurrentYear  int `yaml:"currentyear"`
}

// MCAConfiguration describes the multi-criteria assessment of strategies.
type MCAConfiguration struct {
	ScoringMatrixPath string `yaml:"scoringmatrix_path"`

	TechMetrics int `yaml:"bottomlines_tech_n"`
	EnvMetrics  int `yaml:"bottomlines_env_n"`
	EcnMetrics  int `yaml:"bottomlines_ecn_n"`
	SocMetrics  int `yaml:"bottomlines_soc_n"`

	TechWeight float64 `yaml:"bottomlines_tech_w"`
	EnvWeight  float64 `yaml:"bottomlines_env_w"`
	EcnWeight  float64 `yaml:"bottomlines_ecn_w"`
	SocWeight  float64 `yaml:"bottomlines_soc_w"`

	ScoreStrategy string  `yaml:"score_strat"` // "SNP", "SLP" or "SPP"
	PenaltyQty    bool    `yaml:"penaltyQty"`
	PenaltyWQ     bool    `yaml:"penaltyWQ"`
	PenaltyRec    bool    `yaml:"penaltyRec"`
	PenaltyFa     float64 `yaml:"penaltyFa"`
	PenaltyFb     float64 `yaml:"penaltyFb"`

	IAOInfluencePercent float64 `yaml:"iao_influence"`

	RankType        string  `yaml:"ranktype"` // "RK" or "CI"
	TopRankLimit    int     `yaml:"topranklimit"`
	ConfInt         float64 `yaml:"conf_int"`
	PickingMethod   string  `yaml:"pickingmethod"` // "TOP" or "RND"
	NumOutputStrats int     `yaml:"num_output_strats"`
}

// MonteCarloConfiguration bounds the basin composition search.
type MonteCarloConfiguration struct {
	MaxIterations int   `yaml:"maxMCiterations"`
	Seed          int64 `yaml:"seed"`
	// Number of basins planned concurrently. Zero means GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`
}

// ClimateConfiguration names the rainfall and evaporation series.
type ClimateConfiguration struct {
	RainFile        string  `yaml:"rainfile"`
	RainStepMinutes float64 `yaml:"rain_dt"`
	EvapFile        string  `yaml:"evapfile"`
	EvapStepMinutes float64 `yaml:"evap_dt"`
}

// TechnologyConfiguration customises one technology type from the registry.
type TechnologyConfiguration struct {
	Enabled bool `yaml:"status"`

	Lot      *bool `yaml:"lot"`
	Street   *bool `yaml:"street"`
	Neigh    *bool `yaml:"neigh"`
	Subbasin *bool `yaml:"prec"`

	Flow    *bool `yaml:"flow"`
	Pollute *bool `yaml:"pollute"`
	Recycle *bool `yaml:"recycle"`

	CurvePath string `yaml:"descur_path"` // empty = built-in curve set

	SpecEDD  float64 `yaml:"spec_EDD"`
	SpecFD   float64 `yaml:"spec_FD"`
	SpecMD   float64 `yaml:"spec_MD"`
	MaxDepth float64 `yaml:"maxdepth"`
	MinDead  float64 `yaml:"mindead"`

	MinSize float64 `yaml:"minsize"`
	MaxSize float64 `yaml:"maxsize"`
	AvgLife float64 `yaml:"avglife"`
	Exfil   float64 `yaml:"exfil"`
}

// NewConfiguration reads and validates the given configuration file.
// Errors are logged and will result in program termination, causing the
// function to not return.
func NewConfiguration(path string) *PlannerConfig {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		logg.Fatal("read configuration file: %s", err.Error())
	}
	cfg, errs := NewConfigurationFromYAML(configBytes)
	if !errs.IsEmpty() {
		for _, err := range errs {
			logg.Error(err.Error())
		}
		os.Exit(1)
	}
	return cfg
}

// NewConfigurationFromYAML is the testable core of NewConfiguration.
func NewConfigurationFromYAML(configBytes []byte) (*PlannerConfig, errext.ErrorSet) {
	var errs errext.ErrorSet
	var config PlannerConfiguration
	err := yaml.UnmarshalStrict(configBytes, &config)
	if err != nil {
		errs.Addf("parse configuration: %s", err.Error())
		return nil, errs
	}
	config.applyDefaults()
	errs.Append(config.validate())
	if !errs.IsEmpty() {
		return nil, errs
	}
	return NewPlannerConfig(config), nil
}

func (cfg *PlannerConfiguration) applyDefaults() {
	defaultTrue := func(b **bool) {
		if *b == nil {
			t := true
			*b = &t
		}
	}
	defaultTrue(&cfg.Service.Res)
	defaultTrue(&cfg.Service.Hdr)
	defaultTrue(&cfg.Service.Com)
	defaultTrue(&cfg.Service.LI)
	defaultTrue(&cfg.Service.HI)

	if cfg.Recycling.HSStrategy == "" {
		cfg.Recycling.HSStrategy = "ud"
	}
	if cfg.Recycling.SizingMethod == "" {
		cfg.Recycling.SizingMethod = "Sim"
	}
	if cfg.Recycling.DemRangeMaxPercent == 0 {
		cfg.Recycling.DemRangeMinPercent = 10.0
		cfg.Recycling.DemRangeMaxPercent = 100.0
	}
	if cfg.Recycling.RainYears == 0 {
		cfg.Recycling.RainYears = 2.0
	}
	if cfg.Recycling.RelTolerance == 0 {
		cfg.Recycling.RelTolerance = 1.0
	}
	if cfg.Recycling.MaxSBIterations == 0 {
		cfg.Recycling.MaxSBIterations = 100
	}
	for _, wq := range []*WaterClass{
		&cfg.Recycling.FFPKitchen, &cfg.Recycling.FFPShower,
		&cfg.Recycling.FFPToilet, &cfg.Recycling.FFPLaundry,
		&cfg.Recycling.FFPGarden, &cfg.Recycling.PublicIrrigation,
	} {
		if *wq == "" {
			*wq = ClassPotable
		}
	}

	if cfg.Retrofit.Scenario == "" {
		cfg.Retrofit.Scenario = "N"
	}
	if cfg.Retrofit.RenewalAlternative == "" {
		cfg.Retrofit.RenewalAlternative = "K"
	}

	if cfg.MCA.ScoreStrategy == "" {
		cfg.MCA.ScoreStrategy = "SNP"
	}
	if cfg.MCA.RankType == "" {
		cfg.MCA.RankType = "RK"
	}
	if cfg.MCA.PickingMethod == "" {
		cfg.MCA.PickingMethod = "TOP"
	}
	if cfg.MCA.TopRankLimit == 0 {
		cfg.MCA.TopRankLimit = 10
	}
	if cfg.MCA.NumOutputStrats == 0 {
		cfg.MCA.NumOutputStrats = 5
	}
	if cfg.MonteCarlo.MaxIterations == 0 {
		cfg.MonteCarlo.MaxIterations = 1000
	}
}

// validate reports all configuration errors at once instead of failing on
// the first one.
func (cfg PlannerConfiguration) validate() (errs errext.ErrorSet) {
	missing := func(key string) {
		errs.Addf("missing %s configuration value", key)
	}

	if cfg.BlockTablePath == "" {
		missing("block_table")
	}
	if cfg.CurveDirectory == "" {
		missing("curve_directory")
	}

	for _, scale := range []struct {
		name string
		cfg  ScaleConfiguration
	}{
		{"lot", cfg.Scales.Lot}, {"street", cfg.Scales.Street},
		{"neigh", cfg.Scales.Neigh}, {"subbas", cfg.Scales.Subbasin},
	} {
		if scale.cfg.Enabled && scale.cfg.Rigour < 1 {
			errs.Addf("scales.%s.rigour must be at least 1", scale.name)
		}
	}

	switch cfg.Recycling.HSStrategy {
	case "ud", "uu", "ua":
	default:
		errs.Addf("invalid hs_strategy: %q", cfg.Recycling.HSStrategy)
	}
	switch cfg.Recycling.SizingMethod {
	case "Sim", "Eqn":
	default:
		errs.Addf("invalid sb_method: %q", cfg.Recycling.SizingMethod)
	}
	if cfg.Rationale.Harvest {
		if cfg.Climate.RainFile == "" {
			missing("climate.rainfile")
		}
		if cfg.Climate.EvapFile == "" {
			missing("climate.evapfile")
		}
		if cfg.Recycling.DemRangeMinPercent > cfg.Recycling.DemRangeMaxPercent {
			errs.Addf("rec_demrange_min exceeds rec_demrange_max")
		}
	}

	switch cfg.Retrofit.Scenario {
	case "N", "R", "F":
	default:
		errs.Addf("invalid retrofit_scenario: %q", cfg.Retrofit.Scenario)
	}
	switch cfg.Retrofit.RenewalAlternative {
	case "K", "D":
	default:
		errs.Addf("invalid renewal_alternative: %q", cfg.Retrofit.RenewalAlternative)
	}

	switch cfg.MCA.ScoreStrategy {
	case "SNP", "SLP", "SPP":
	default:
		errs.Addf("invalid score_strat: %q", cfg.MCA.ScoreStrategy)
	}
	switch cfg.MCA.RankType {
	case "RK", "CI":
	default:
		errs.Addf("invalid ranktype: %q", cfg.MCA.RankType)
	}
	switch cfg.MCA.PickingMethod {
	case "TOP", "RND":
	default:
		errs.Addf("invalid pickingmethod: %q", cfg.MCA.PickingMethod)
	}

	for abbr, tech := range cfg.Techs {
		if _, exists := defaultTechnologies[abbr]; !exists {
			errs.Addf("technologies.%s: unknown technology code", abbr)
		}
		if tech.MinSize < 0 || (tech.MaxSize != 0 && tech.MaxSize < tech.MinSize) {
			errs.Addf("technologies.%s: invalid size bounds", abbr)
		}
	}

	return errs
}

// PlannerConfig is the compiled version of PlannerConfiguration. All derived
// vectors are computed once here and shared read-only by all basin planners.
type PlannerConfig struct {
	PlannerConfiguration

	// TargetsVector holds {Q%, TSS%, TP%, TN%, REL%}, already multiplied by
	// the respective rationale toggles.
	TargetsVector [5]float64
	// ServiceVector holds the required basin service fractions in [0,1].
	ServiceVector [3]float64
	// Priorities holds the normalised purpose weights {Q, WQ, Rec}.
	Priorities [3]float64

	LotIncrements      []float64
	StreetIncrements   []float64
	NeighIncrements    []float64
	SubbasinIncrements []float64

	// ScalePreference weighs techs per scale during in-group MCA scoring.
	ScalePreference map[Scale]float64

	Registry Registry
}

// NewPlannerConfig inflates a validated PlannerConfiguration.
func NewPlannerConfig(cfg PlannerConfiguration) *PlannerConfig {
	c := &PlannerConfig{PlannerConfiguration: cfg}

	ration := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	c.TargetsVector = [5]float64{
		ration(cfg.Rationale.Runoff) * cfg.Targets.Runoff,
		ration(cfg.Rationale.Pollute) * cfg.Targets.TSS,
		ration(cfg.Rationale.Pollute) * cfg.Targets.TP,
		ration(cfg.Rationale.Pollute) * cfg.Targets.TN,
		ration(cfg.Rationale.Harvest) * cfg.Targets.Reliability,
	}
	c.ServiceVector = [3]float64{
		cfg.Service.SwmQty / 100.0,
		cfg.Service.SwmWQ / 100.0,
		cfg.Service.Rec / 100.0,
	}

	c.Priorities = [3]float64{
		ration(cfg.Rationale.Runoff) * cfg.Rationale.RunoffPriority,
		ration(cfg.Rationale.Pollute) * cfg.Rationale.PollutePriority,
		ration(cfg.Rationale.Harvest) * cfg.Rationale.HarvestPriority,
	}
	prioritySum := c.Priorities[0] + c.Priorities[1] + c.Priorities[2]
	for i := range c.Priorities {
		if prioritySum == 0 {
			c.Priorities[i] = 1
		} else {
			c.Priorities[i] /= prioritySum
		}
	}

	c.LotIncrements = Increments(cfg.Scales.Lot.Rigour)
	c.StreetIncrements = Increments(cfg.Scales.Street.Rigour)
	c.NeighIncrements = Increments(cfg.Scales.Neigh.Rigour)
	c.SubbasinIncrements = Increments(cfg.Scales.Subbasin.Rigour)

	c.ScalePreference = map[Scale]float64{
		ScaleLot: 0.25, ScaleStreet: 0.25, ScaleNeigh: 0.25, ScaleSubbasin: 0.25,
	}

	c.Registry = BuildRegistry(cfg)
	return c
}

// Increments converts a rigour level n into the step vector
// {0, 1/n, 2/n, ..., 1}.
func Increments(rigour int) []float64 {
	if rigour < 1 {
		return []float64{0}
	}
	result := make([]float64, rigour+1)
	for i := 1; i <= rigour; i++ {
		result[i] = float64(i) / float64(rigour)
	}
	return result
}

// ObjectiveEnabled returns the rationale toggle for the given service
// dimension (0 = quantity, 1 = water quality, 2 = recycling).
func (c *PlannerConfig) ObjectiveEnabled(dim int) bool {
	switch dim {
	case 0:
		return c.Rationale.Runoff
	case 1:
		return c.Rationale.Pollute
	case 2:
		return c.Rationale.Harvest
	default:
		panic(fmt.Sprintf("invalid service dimension: %d", dim))
	}
}

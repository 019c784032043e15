package manualj

import (
	"fmt"
	"strings"
)

// DuctConfig is where the supply ducts run.
type DuctConfig string

const (
	DuctAttic       DuctConfig = "attic"
	DuctCrawlspace  DuctConfig = "crawlspace"
	DuctBasement    DuctConfig = "basement"
	DuctConditioned DuctConfig = "conditioned"
	DuctDuctless    DuctConfig = "ductless"
)

// Fuel is the heating energy source.
type Fuel string

const (
	FuelGas      Fuel = "gas"
	FuelPropane  Fuel = "propane"
	FuelOil      Fuel = "oil"
	FuelElectric Fuel = "electric"
	FuelHeatPump Fuel = "heat_pump"
)

// Vintage is the construction era; it selects default envelope values.
type Vintage string

const (
	VintagePre1980  Vintage = "pre_1980"
	Vintage1980s    Vintage = "1980_2000"
	Vintage2000s    Vintage = "2000_2010"
	VintageModern   Vintage = "post_2010"
	VintageHighPerf Vintage = "high_performance"
)

// Construction is the wall framing type; it sets thermal bridging.
type Construction string

const (
	WoodFrame  Construction = "wood"
	SteelFrame Construction = "steel"
	Masonry    Construction = "masonry"
)

// Foundation is the ground contact type of the lowest floor.
type Foundation string

const (
	Slab       Foundation = "slab"
	Crawlspace Foundation = "crawlspace"
	Basement   Foundation = "basement"
)

type envelope struct {
	wallR, ceilingR, floorR float64
	windowU, shgc, ach50    float64
}

var vintages = map[Vintage]envelope{
	VintagePre1980:  {wallR: 11, ceilingR: 19, floorR: 0, windowU: 0.55, shgc: 0.60, ach50: 10},
	Vintage1980s:    {wallR: 13, ceilingR: 30, floorR: 0, windowU: 0.50, shgc: 0.55, ach50: 7},
	Vintage2000s:    {wallR: 13, ceilingR: 38, floorR: 5, windowU: 0.35, shgc: 0.40, ach50: 5},
	VintageModern:   {wallR: 20, ceilingR: 49, floorR: 10, windowU: 0.30, shgc: 0.25, ach50: 3},
	VintageHighPerf: {wallR: 30, ceilingR: 60, floorR: 15, windowU: 0.20, shgc: 0.25, ach50: 1.5},
}

type bridging struct{ wall, roof float64 }

var bridgingFactors = map[Construction]bridging{
	WoodFrame:  {wall: 0.04, roof: 0.06},
	SteelFrame: {wall: 0.20, roof: 0.16},
	Masonry:    {wall: 0.10, roof: 0.08},
}

type ductFactor struct{ heating, cooling float64 }

var ductFactors = map[DuctConfig]ductFactor{
	DuctAttic:       {heating: 1.15, cooling: 1.25},
	DuctCrawlspace:  {heating: 1.10, cooling: 1.10},
	DuctBasement:    {heating: 1.05, cooling: 1.05},
	DuctConditioned: {heating: 1.00, cooling: 1.00},
	DuctDuctless:    {heating: 1.00, cooling: 1.00},
}

// Params are the system parameters and envelope overrides for one
// calculation. Zero numeric values take the vintage defaults.
type Params struct {
	Duct         DuctConfig   `json:"duct_config" yaml:"duct_config"`
	Fuel         Fuel         `json:"heating_fuel" yaml:"heating_fuel"`
	Vintage      Vintage      `json:"vintage" yaml:"vintage"`
	Construction Construction `json:"construction" yaml:"construction"`
	Foundation   Foundation   `json:"foundation" yaml:"foundation"`

	WallR    float64 `json:"wall_r,omitempty" yaml:"wall_r"`
	CeilingR float64 `json:"ceiling_r,omitempty" yaml:"ceiling_r"`
	// FloorR is slab edge or floor insulation. Negative means uninsulated.
	FloorR  float64 `json:"floor_r,omitempty" yaml:"floor_r"`
	WindowU float64 `json:"window_u,omitempty" yaml:"window_u"`
	SHGC    float64 `json:"shgc,omitempty" yaml:"shgc"`
	ACH50   float64 `json:"ach50,omitempty" yaml:"ach50"`

	CeilingHeightFt float64 `json:"ceiling_height_ft,omitempty" yaml:"ceiling_height_ft"`
	IndoorHeatingF  float64 `json:"indoor_heating_f,omitempty" yaml:"indoor_heating_f"`
	IndoorCoolingF  float64 `json:"indoor_cooling_f,omitempty" yaml:"indoor_cooling_f"`
	// HRVEffectiveness is the sensible recovery of a balanced ventilator,
	// 0 when there is none.
	HRVEffectiveness float64 `json:"hrv_effectiveness,omitempty" yaml:"hrv_effectiveness"`

	WindowAreaSqFt float64 `json:"window_area_sqft,omitempty" yaml:"window_area_sqft"`
	DoorAreaSqFt   float64 `json:"door_area_sqft,omitempty" yaml:"door_area_sqft"`

	SafetyFactor float64 `json:"safety_factor,omitempty" yaml:"safety_factor"`
	// CoolingDiversity (default 0.95) reflects that rooms facing different
	// directions do not see peak solar gain at the same hour.
	CoolingDiversity float64 `json:"cooling_diversity,omitempty" yaml:"cooling_diversity"`
	// HeatingDiversity defaults to 1.0: Manual J heating loss has no solar or
	// internal-gain timing, so every room peaks together at the design night
	// and the block load is the room sum. Values of 0.90 to 0.95 reproduce
	// the looser building-level practice.
	HeatingDiversity float64 `json:"heating_diversity,omitempty" yaml:"heating_diversity"`
}

// DefaultParams is a modern wood-frame slab house with attic ducts and a
// gas furnace.
func DefaultParams() Params {
	p := Params{}
	p.defaults()
	return p
}

func (p *Params) defaults() {
	if p.Duct == "" {
		p.Duct = DuctAttic
	}
	if p.Fuel == "" {
		p.Fuel = FuelGas
	}
	if p.Vintage == "" {
		p.Vintage = VintageModern
	}
	if p.Construction == "" {
		p.Construction = WoodFrame
	}
	if p.Foundation == "" {
		p.Foundation = Slab
	}
	env, ok := vintages[p.Vintage]
	if !ok {
		env = vintages[VintageModern]
	}
	if p.WallR <= 0 {
		p.WallR = env.wallR
	}
	if p.CeilingR <= 0 {
		p.CeilingR = env.ceilingR
	}
	switch {
	case p.FloorR < 0:
		p.FloorR = 0
	case p.FloorR == 0:
		p.FloorR = env.floorR
	}
	if p.WindowU <= 0 {
		p.WindowU = env.windowU
	}
	if p.SHGC <= 0 {
		p.SHGC = env.shgc
	}
	if p.ACH50 <= 0 {
		p.ACH50 = env.ach50
	}
	if p.CeilingHeightFt <= 0 {
		p.CeilingHeightFt = 8
	}
	if p.IndoorHeatingF <= 0 {
		p.IndoorHeatingF = 70
	}
	if p.IndoorCoolingF <= 0 {
		p.IndoorCoolingF = 75
	}
	if p.WindowAreaSqFt <= 0 {
		p.WindowAreaSqFt = 15
	}
	if p.DoorAreaSqFt <= 0 {
		p.DoorAreaSqFt = 20
	}
	if p.SafetyFactor <= 0 {
		p.SafetyFactor = 1.10
	}
	if p.CoolingDiversity <= 0 {
		p.CoolingDiversity = 0.95
	}
	if p.HeatingDiversity <= 0 {
		p.HeatingDiversity = 1.0
	}
}

// Validate rejects enumerations and ranges the calculator cannot use.
func (p Params) Validate() error {
	var errs []string
	if _, ok := ductFactors[p.Duct]; !ok && p.Duct != "" {
		errs = append(errs, fmt.Sprintf("unknown duct config %q", p.Duct))
	}
	switch p.Fuel {
	case "", FuelGas, FuelPropane, FuelOil, FuelElectric, FuelHeatPump:
	default:
		errs = append(errs, fmt.Sprintf("unknown heating fuel %q", p.Fuel))
	}
	if _, ok := vintages[p.Vintage]; !ok && p.Vintage != "" {
		errs = append(errs, fmt.Sprintf("unknown vintage %q", p.Vintage))
	}
	if _, ok := bridgingFactors[p.Construction]; !ok && p.Construction != "" {
		errs = append(errs, fmt.Sprintf("unknown construction %q", p.Construction))
	}
	switch p.Foundation {
	case "", Slab, Crawlspace, Basement:
	default:
		errs = append(errs, fmt.Sprintf("unknown foundation %q", p.Foundation))
	}
	if p.HRVEffectiveness < 0 || p.HRVEffectiveness >= 1 {
		errs = append(errs, "hrv effectiveness must be in [0,1)")
	}
	if p.CoolingDiversity > 1 || p.HeatingDiversity > 1 {
		errs = append(errs, "diversity factors must not exceed 1")
	}
	if p.SafetyFactor != 0 && p.SafetyFactor < 1 {
		errs = append(errs, "safety factor must be at least 1")
	}
	if p.IndoorHeatingF != 0 && p.IndoorCoolingF != 0 && p.IndoorHeatingF > p.IndoorCoolingF {
		errs = append(errs, "indoor heating setpoint above cooling setpoint")
	}
	if len(errs) > 0 {
		return fmt.Errorf("manualj: invalid params: %s", strings.Join(errs, "; "))
	}
	return nil
}

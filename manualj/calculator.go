// CLAUDE:SUMMARY Residential heating/cooling load calculator (ACCA Manual J, CLTD/CLF style): per-room components, named multipliers, duct loss, building safety and diversity, density checks.
// Package manualj computes room-by-room heating and cooling loads for a
// parsed building and sizes equipment for the total.
//
// Every room carries a component breakdown whose columns sum to the room
// totals. Duct loss is a per-room component; safety and diversity factors
// apply only to the building total.
//
// Usage:
//
//	res, err := manualj.Calculate(schema, record, manualj.Params{Duct: manualj.DuctAttic})
package manualj

import (
	"fmt"
	"math"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
)

const (
	sensibleAir = 1.08 // BTU/hr per CFM per degree F
	latentAir   = 0.68 // BTU/hr per CFM per grain

	occupantSensible = 230.0
	occupantLatent   = 200.0
	lightingWatts    = 1.0 // per sq ft
	wattsToBTUH      = 3.412
	doorU            = 0.40

	// Fraction of sensible internal gain credited against heating.
	internalHeatingCredit = 0.25
	// Summer infiltration relative to the winter rate.
	coolingInfiltration = 0.5
	crawlspaceTempShare = 0.5
	basementFloorU      = 0.025
	groundTempF         = 50.0

	unknownOrientationPenalty = 0.85
	defaultRoomConfidence     = 0.5
	highExposureGlassRatio    = 0.20
)

// Documented load density bands, BTU/hr per sq ft.
const (
	HeatingDensityMin = 10.0
	HeatingDensityMax = 25.0
	CoolingDensityMin = 15.0
	CoolingDensityMax = 35.0
)

// Room multipliers.
const (
	CornerHeating  = 1.15
	CornerCooling  = 1.20
	ExposureFactor = 1.10

	MultCorner       = "corner_room"
	MultHighExposure = "high_exposure"
)

// solarFactors are peak glass gains per sq ft per unit SHGC.
var solarFactors = map[blueprint.Orientation]float64{
	blueprint.North:     40,
	blueprint.NorthEast: 95,
	blueprint.East:      160,
	blueprint.SouthEast: 125,
	blueprint.South:     80,
	blueprint.SouthWest: 125,
	blueprint.West:      160,
	blueprint.NorthWest: 95,
}

// SolarFactor returns the orientation's factor. Unknown averages the four
// cardinal directions; ok is false in that case.
func SolarFactor(o blueprint.Orientation) (factor float64, ok bool) {
	if f, found := solarFactors[o]; found {
		return f, true
	}
	sum := solarFactors[blueprint.North] + solarFactors[blueprint.East] +
		solarFactors[blueprint.South] + solarFactors[blueprint.West]
	return sum / 4, false
}

// Cooling temperature difference offsets over the design difference, by
// daily range.
var (
	wallCLTD = map[string]float64{"L": 12, "M": 9, "H": 6}
	roofCLTD = map[string]float64{"L": 44, "M": 41, "H": 38}
)

var equipmentGains = map[blueprint.RoomType]float64{
	blueprint.Kitchen: 1600,
	blueprint.Living:  600,
	blueprint.Family:  600,
	blueprint.Office:  450,
	blueprint.Laundry: 300,
	blueprint.Bedroom: 150,
	blueprint.Dining:  100,
}

// gathering rooms share the occupants.
func gathering(t blueprint.RoomType) bool {
	switch t {
	case blueprint.Living, blueprint.Family, blueprint.Kitchen, blueprint.Dining:
		return true
	}
	return false
}

// nFactor converts ACH50 to natural air changes.
func nFactor(stories int) float64 {
	switch {
	case stories <= 1:
		return 20
	case stories == 2:
		return 16
	default:
		return 14
	}
}

// slabF is the slab edge heat loss factor, BTU/hr per ft per degree F.
func slabF(edgeR float64) float64 {
	switch {
	case edgeR >= 10:
		return 0.50
	case edgeR >= 5:
		return 0.54
	default:
		return 0.73
	}
}

func designGrains(rec climate.Record) float64 {
	if rec.DesignGrains != 0 {
		return math.Max(0, rec.DesignGrains)
	}
	switch rec.Moisture() {
	case 'A':
		return 40
	case 'C':
		return 15
	case 'B':
		return 5
	}
	return 20
}

// exposedPerimeter is the exterior wall run for a room with ext exterior
// walls. The first wall taken is the long side.
func exposedPerimeter(long, short float64, ext int) float64 {
	switch ext {
	case 0:
		return 0
	case 1:
		return long
	case 2:
		return long + short
	case 3:
		return 2*long + short
	default:
		return 2*long + 2*short
	}
}

type calc struct {
	p       Params
	stories int

	dH, dC     float64 // design temperature differences
	wallDT     float64 // cooling CLTD, walls and doors
	roofDT     float64 // cooling CLTD, ceiling
	grains     float64
	ach        float64
	cfa        float64
	ventCFM    float64
	occupants  float64
	gatherArea float64
	gatherAll  bool
	bridge     bridging
	duct       ductFactor
}

// Calculate runs the load calculation. It does not modify s.
func Calculate(s *blueprint.Schema, rec climate.Record, p Params) (*Result, error) {
	if s == nil || len(s.Rooms) == 0 {
		return nil, fmt.Errorf("manualj: no rooms to calculate")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("manualj: %w", err)
	}
	p.defaults()

	c := &calc{p: p, stories: max(1, s.Stories)}
	for _, r := range s.Rooms {
		c.stories = max(c.stories, r.Floor)
	}
	c.dH = math.Max(0, p.IndoorHeatingF-rec.HeatingDesignF)
	c.dC = math.Max(0, rec.CoolingDesignF-p.IndoorCoolingF)
	dr := rec.Range()
	c.wallDT = math.Max(0, rec.CoolingDesignF-p.IndoorCoolingF+wallCLTD[dr])
	c.roofDT = math.Max(0, rec.CoolingDesignF-p.IndoorCoolingF+roofCLTD[dr])
	c.grains = designGrains(rec)
	c.ach = p.ACH50 / nFactor(c.stories)
	c.bridge = bridgingFactors[p.Construction]
	c.duct = ductFactors[p.Duct]

	var warnings []string
	beds := 0
	for _, r := range s.Rooms {
		a := roomArea(r)
		if a <= 0 {
			continue
		}
		c.cfa += a
		if r.Type == blueprint.Bedroom {
			beds++
		}
		if gathering(r.Type) {
			c.gatherArea += a
		}
	}
	if c.cfa <= 0 {
		return nil, fmt.Errorf("manualj: rooms have no floor area")
	}
	// ASHRAE 62.2 whole-house rate.
	c.ventCFM = 0.03*c.cfa + 7.5*float64(beds+1)
	c.occupants = float64(beds + 1)
	if c.gatherArea == 0 {
		c.gatherAll = true
		c.gatherArea = c.cfa
	}

	res := &Result{Climate: rec, Params: p, AreaSqFt: c.cfa, VentilationCFM: c.ventCFM}
	var confWeighted float64
	unknown := 0
	for _, r := range s.Rooms {
		if roomArea(r) <= 0 {
			warnings = append(warnings, fmt.Sprintf("room %q skipped: no floor area", r.Name))
			continue
		}
		rl := c.room(r)
		if _, ok := SolarFactor(r.Orientation); !ok && r.Windows > 0 && r.ExteriorWalls > 0 {
			unknown++
		}
		res.Rooms = append(res.Rooms, rl)
		res.RoomHeatingSum += rl.Heating
		res.RoomCoolingSum += rl.Cooling
		res.CoolingSensible += rl.CoolingSensible
		res.CoolingLatent += rl.CoolingLatent
		confWeighted += rl.Confidence * rl.AreaSqFt
	}
	if err := res.CheckSums(); err != nil {
		return nil, err
	}

	res.Factors = []Factor{
		{Name: "safety", Heating: p.SafetyFactor, Cooling: p.SafetyFactor},
		{Name: "diversity", Heating: p.HeatingDiversity, Cooling: p.CoolingDiversity},
	}
	hf := p.SafetyFactor * p.HeatingDiversity
	cf := p.SafetyFactor * p.CoolingDiversity
	res.Heating = res.RoomHeatingSum * hf
	res.Cooling = res.RoomCoolingSum * cf
	res.CoolingSensible *= cf
	res.CoolingLatent *= cf
	res.HeatingDensity = res.Heating / c.cfa
	res.CoolingDensity = res.Cooling / c.cfa
	res.Confidence = confWeighted / c.cfa

	if unknown > 0 {
		warnings = append(warnings, fmt.Sprintf("%d room(s) with unknown orientation: solar gain averaged over N/E/S/W", unknown))
	}
	if res.HeatingDensity < HeatingDensityMin || res.HeatingDensity > HeatingDensityMax {
		warnings = append(warnings, fmt.Sprintf("heating density %.1f BTU/hr/sqft outside typical %.0f-%.0f",
			res.HeatingDensity, HeatingDensityMin, HeatingDensityMax))
	}
	if res.CoolingDensity < CoolingDensityMin || res.CoolingDensity > CoolingDensityMax {
		warnings = append(warnings, fmt.Sprintf("cooling density %.1f BTU/hr/sqft outside typical %.0f-%.0f",
			res.CoolingDensity, CoolingDensityMin, CoolingDensityMax))
	}

	res.Equipment = Size(res.Cooling, res.Heating, p.Fuel, rec.HeatingDesignF)
	warnings = append(warnings, res.Equipment.Warnings...)
	res.Warnings = warnings
	return res, nil
}

func roomArea(r blueprint.Room) float64 {
	if r.AreaSqFt > 0 {
		return r.AreaSqFt
	}
	return r.WidthFt * r.LengthFt
}

func (c *calc) room(r blueprint.Room) RoomLoad {
	area := roomArea(r)
	long, short := r.LengthFt, r.WidthFt
	if long <= 0 || short <= 0 {
		long = math.Sqrt(area)
		short = long
	}
	if short > long {
		long, short = short, long
	}
	rl := RoomLoad{Name: r.Name, AreaSqFt: area}

	ext := min(max(r.ExteriorWalls, 0), 4)
	perimeter := exposedPerimeter(long, short, ext)
	gross := perimeter * c.p.CeilingHeightFt
	var glass, doors float64
	if ext > 0 {
		glass = float64(max(r.Windows, 0)) * c.p.WindowAreaSqFt
		doors = float64(max(r.ExteriorDoors, 0)) * c.p.DoorAreaSqFt
		if glass+doors > gross {
			scale := gross / (glass + doors)
			glass *= scale
			doors *= scale
			rl.Notes = append(rl.Notes, "openings exceed wall area, scaled to fit")
		}
	} else if r.Windows > 0 || r.ExteriorDoors > 0 {
		rl.Notes = append(rl.Notes, "openings ignored on room without exterior walls")
	}
	net := math.Max(0, gross-glass-doors)

	floor := max(r.Floor, 1)
	top := floor >= c.stories
	ground := floor == 1

	wallU := 1 / (c.p.WallR + 1)
	walls := Component{Name: CompWalls, Heating: wallU * net * c.dH, Cooling: wallU * net * c.wallDT}

	ceiling := Component{Name: CompCeiling}
	if top {
		u := 1 / (c.p.CeilingR + 1)
		ceiling.Heating = u * area * c.dH
		ceiling.Cooling = u * area * c.roofDT
	}

	fl := Component{Name: CompFloor}
	if ground {
		switch c.p.Foundation {
		case Crawlspace:
			fl.Heating = area / (c.p.FloorR + 4) * c.dH * crawlspaceTempShare
		case Basement:
			fl.Heating = basementFloorU * area * math.Max(0, c.p.IndoorHeatingF-groundTempF)
		default:
			fl.Heating = slabF(c.p.FloorR) * perimeter * c.dH
		}
	}

	windows := Component{Name: CompWindows, Heating: c.p.WindowU * glass * c.dH, Cooling: c.p.WindowU * glass * c.dC}
	door := Component{Name: CompDoors, Heating: doorU * doors * c.dH, Cooling: doorU * doors * c.wallDT}

	sf, known := SolarFactor(r.Orientation)
	solar := Component{Name: CompSolar, Cooling: glass * c.p.SHGC * sf}

	bridge := Component{
		Name:    CompBridging,
		Heating: c.bridge.wall*walls.Heating + c.bridge.roof*ceiling.Heating,
		Cooling: c.bridge.wall*walls.Cooling + c.bridge.roof*ceiling.Cooling,
	}

	envH := walls.Heating + ceiling.Heating + fl.Heating + windows.Heating + door.Heating + bridge.Heating
	envC := walls.Cooling + ceiling.Cooling + windows.Cooling + door.Cooling + solar.Cooling + bridge.Cooling

	mult := Component{Name: CompMultipliers}
	fh, fc := 1.0, 1.0
	apply := func(name string, h, cl float64) {
		m := Multiplier{Name: name, HeatingFactor: h, CoolingFactor: cl,
			HeatingBTUH: envH * fh * (h - 1), CoolingBTUH: envC * fc * (cl - 1)}
		fh *= h
		fc *= cl
		mult.Heating += m.HeatingBTUH
		mult.Cooling += m.CoolingBTUH
		rl.Multipliers = append(rl.Multipliers, m)
	}
	if r.CornerRoom || ext >= 2 {
		apply(MultCorner, CornerHeating, CornerCooling)
	}
	if ext >= 3 || glass/area > highExposureGlassRatio {
		apply(MultHighExposure, ExposureFactor, ExposureFactor)
	}

	cfm := area * c.p.CeilingHeightFt * c.ach / 60
	summerCFM := cfm * coolingInfiltration
	infil := Component{Name: CompInfiltration, Heating: sensibleAir * cfm * c.dH, Cooling: sensibleAir * summerCFM * c.dC}

	share := c.ventCFM * area / c.cfa
	recovery := 1 - c.p.HRVEffectiveness
	vent := Component{Name: CompVentilation, Heating: sensibleAir * share * c.dH * recovery, Cooling: sensibleAir * share * c.dC * recovery}

	var people float64
	if c.gatherAll || gathering(r.Type) {
		people = c.occupants * area / c.gatherArea
	}
	gains := people*occupantSensible + lightingWatts*wattsToBTUH*area + equipmentGains[r.Type]

	heatingSub := envH + mult.Heating + infil.Heating + vent.Heating
	credit := math.Min(internalHeatingCredit*gains, heatingSub)
	internal := Component{Name: CompInternal, Heating: -credit, Cooling: gains}

	latent := Component{Name: CompLatent, Cooling: latentAir*(summerCFM+share)*c.grains + people*occupantLatent}

	sensible := envC + mult.Cooling + infil.Cooling + vent.Cooling + gains
	heating := heatingSub - credit
	duct := Component{Name: CompDuct, Heating: heating * (c.duct.heating - 1), Cooling: sensible * (c.duct.cooling - 1)}

	rl.Components = []Component{walls, ceiling, fl, windows, door, solar, bridge, mult, infil, vent, internal, latent, duct}
	rl.Heating = heating * c.duct.heating
	rl.CoolingSensible = sensible * c.duct.cooling
	rl.CoolingLatent = latent.Cooling
	rl.Cooling = rl.CoolingSensible + rl.CoolingLatent

	rl.Confidence = r.Confidence
	if rl.Confidence <= 0 {
		rl.Confidence = defaultRoomConfidence
	}
	if !known && glass > 0 {
		rl.Confidence *= unknownOrientationPenalty
		rl.Notes = append(rl.Notes, "orientation unknown: solar factor averaged over N/E/S/W")
	}
	return rl
}

package manualj

import (
	"math"
	"strings"
	"testing"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
)

func zone5B() climate.Record {
	return climate.Record{
		ZIP: "84101", State: "UT", County: "Salt Lake", Zone: "5B",
		HeatingDesignF: -1, CoolingDesignF: 86, Source: climate.SourceTable,
	}
}

func room(name string, t blueprint.RoomType, w, l float64, ext, windows int, o blueprint.Orientation) blueprint.Room {
	return blueprint.Room{
		Name: name, Type: t, WidthFt: w, LengthFt: l, AreaSqFt: w * l, Floor: 1,
		ExteriorWalls: ext, Windows: windows, Orientation: o, CornerRoom: ext >= 2,
		Confidence: 0.8, DimensionsSource: blueprint.SourceGeometry,
	}
}

// house is a 1,500 sq ft single-story plan with typical glazing.
func house() *blueprint.Schema {
	living := room("LIVING ROOM", blueprint.Living, 20, 16, 2, 3, blueprint.NorthWest)
	living.ExteriorDoors = 1
	s := &blueprint.Schema{
		ProjectID: "p1", ZIP: "84101",
		Rooms: []blueprint.Room{
			living,
			room("KITCHEN", blueprint.Kitchen, 14, 12, 1, 2, blueprint.North),
			room("DINING", blueprint.Dining, 16, 12, 2, 2, blueprint.NorthEast),
			room("HALL", blueprint.Hallway, 14, 4, 0, 0, blueprint.Unknown),
			room("BEDROOM 2", blueprint.Bedroom, 13, 14, 2, 2, blueprint.SouthWest),
			room("BATH", blueprint.Bathroom, 7, 14, 1, 1, blueprint.South),
			room("BEDROOM 3", blueprint.Bedroom, 14, 14, 1, 2, blueprint.South),
			room("PRIMARY BEDROOM", blueprint.Bedroom, 16, 18, 2, 3, blueprint.SouthEast),
		},
	}
	s.Recompute()
	return s
}

func scenarioParams() Params {
	return Params{Duct: DuctAttic, Fuel: FuelGas, WallR: 21, CeilingR: 49, ACH50: 3.5}
}

func hasWarning(ws []string, sub string) bool {
	for _, w := range ws {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}

func TestCalculate_Zone5BScenario(t *testing.T) {
	s := house()
	if s.TotalAreaSqFt != 1500 {
		t.Fatalf("fixture area = %v", s.TotalAreaSqFt)
	}
	res, err := Calculate(s, zone5B(), scenarioParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.CoolingDensity < 15 || res.CoolingDensity > 35 {
		t.Errorf("cooling density = %.2f, want 15-35", res.CoolingDensity)
	}
	if hasWarning(res.Warnings, "cooling density") {
		t.Errorf("unexpected cooling warning: %v", res.Warnings)
	}
	// A tight envelope may legitimately fall below the heating band; that is
	// a warning, never an error.
	if res.HeatingDensity < HeatingDensityMin && !hasWarning(res.Warnings, "heating density") {
		t.Errorf("heating density %.2f below band without warning", res.HeatingDensity)
	}
	if res.Heating <= 0 || res.Cooling <= 0 {
		t.Fatalf("heating=%v cooling=%v", res.Heating, res.Cooling)
	}
	if res.Equipment.RecommendedTons != 2.5 || !res.Equipment.WithinManualS {
		t.Errorf("equipment = %+v", res.Equipment)
	}
	if res.Params.WallR != 21 || res.Params.CeilingR != 49 || res.Params.ACH50 != 3.5 {
		t.Errorf("overrides not applied: %+v", res.Params)
	}
}

func TestCalculate_RoomSumInvariant(t *testing.T) {
	variants := []struct {
		name string
		p    Params
		rec  climate.Record
	}{
		{"scenario", scenarioParams(), zone5B()},
		{"steel crawlspace heat pump", Params{Construction: SteelFrame, Foundation: Crawlspace, Fuel: FuelHeatPump, Duct: DuctCrawlspace}, zone5B()},
		{"old masonry basement", Params{Vintage: VintagePre1980, Construction: Masonry, Foundation: Basement, HRVEffectiveness: 0.7}, climate.Record{Zone: "4A", HeatingDesignF: 15, CoolingDesignF: 92}},
		{"mild conditioned ducts", Params{Duct: DuctConditioned}, climate.Record{Zone: "3C", HeatingDesignF: 40, CoolingDesignF: 74}},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			s := house()
			s.Rooms[4].Floor = 2
			s.Recompute()
			res, err := Calculate(s, v.rec, v.p)
			if err != nil {
				t.Fatal(err)
			}
			for _, rl := range res.Rooms {
				var h, c float64
				for _, comp := range rl.Components {
					h += comp.Heating
					c += comp.Cooling
				}
				if math.Abs(h-rl.Heating) > 1e-6 || math.Abs(c-rl.Cooling) > 1e-6 {
					t.Errorf("%s: heating %v vs %v, cooling %v vs %v", rl.Name, h, rl.Heating, c, rl.Cooling)
				}
				if math.Abs(rl.CoolingSensible+rl.CoolingLatent-rl.Cooling) > 1e-6 {
					t.Errorf("%s: sensible+latent != cooling", rl.Name)
				}
			}
		})
	}
}

func TestCalculate_MonotonicInExteriorWalls(t *testing.T) {
	for _, o := range []blueprint.Orientation{blueprint.North, blueprint.West, blueprint.Unknown} {
		for _, corner := range []bool{false, true} {
			heating := func(ext int) float64 {
				r := room("OFFICE", blueprint.Office, 12, 15, ext, 1, o)
				r.CornerRoom = corner
				s := &blueprint.Schema{Rooms: []blueprint.Room{r}}
				s.Recompute()
				res, err := Calculate(s, zone5B(), scenarioParams())
				if err != nil {
					t.Fatal(err)
				}
				return res.Rooms[0].Heating
			}
			if one, two := heating(1), heating(2); two < one {
				t.Errorf("orientation %s corner=%v: heating fell from %.1f to %.1f", o, corner, one, two)
			}
		}
	}
}

func TestCalculate_UnknownOrientation(t *testing.T) {
	calc := func(o blueprint.Orientation) *Result {
		s := &blueprint.Schema{Rooms: []blueprint.Room{room("DEN", blueprint.Office, 12, 14, 1, 2, o)}}
		s.Recompute()
		res, err := Calculate(s, zone5B(), scenarioParams())
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	known, unknown := calc(blueprint.South), calc(blueprint.Unknown)
	if unknown.Rooms[0].Confidence >= known.Rooms[0].Confidence {
		t.Errorf("confidence unknown=%v known=%v", unknown.Rooms[0].Confidence, known.Rooms[0].Confidence)
	}
	if unknown.Confidence >= known.Confidence {
		t.Error("building confidence should drop")
	}
	if !hasWarning(unknown.Warnings, "unknown orientation") {
		t.Errorf("warnings = %v", unknown.Warnings)
	}
	solar, _ := unknown.Rooms[0].Component(CompSolar)
	want := 2 * 15 * 0.25 * (40 + 160 + 80 + 160) / 4.0
	if math.Abs(solar.Cooling-want) > 1e-9 {
		t.Errorf("solar = %v, want %v", solar.Cooling, want)
	}
	if f, ok := SolarFactor(blueprint.Unknown); ok || f != 110 {
		t.Errorf("SolarFactor(unknown) = %v, %v", f, ok)
	}
}

func TestCalculate_MultipliersRecorded(t *testing.T) {
	s := &blueprint.Schema{Rooms: []blueprint.Room{
		room("SUNROOM", blueprint.Living, 12, 12, 3, 4, blueprint.South),
		room("STUDY", blueprint.Office, 12, 12, 1, 1, blueprint.East),
	}}
	s.Recompute()
	res, err := Calculate(s, zone5B(), Params{})
	if err != nil {
		t.Fatal(err)
	}
	sun := res.Rooms[0]
	if len(sun.Multipliers) != 2 || sun.Multipliers[0].Name != MultCorner || sun.Multipliers[1].Name != MultHighExposure {
		t.Fatalf("multipliers = %+v", sun.Multipliers)
	}
	if sun.Multipliers[0].HeatingFactor != 1.15 || sun.Multipliers[0].CoolingFactor != 1.20 {
		t.Errorf("corner factors = %+v", sun.Multipliers[0])
	}
	mult, _ := sun.Component(CompMultipliers)
	if got := sun.Multipliers[0].HeatingBTUH + sun.Multipliers[1].HeatingBTUH; math.Abs(got-mult.Heating) > 1e-9 {
		t.Errorf("multiplier component %v != recorded %v", mult.Heating, got)
	}
	if len(res.Rooms[1].Multipliers) != 0 {
		t.Errorf("study multipliers = %+v", res.Rooms[1].Multipliers)
	}
}

func TestCalculate_BuildingFactorsAndDuct(t *testing.T) {
	s := house()
	attic, err := Calculate(s, zone5B(), Params{Duct: DuctAttic})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(attic.Heating-attic.RoomHeatingSum*1.10) > 1e-6 {
		t.Errorf("heating %v, room sum %v", attic.Heating, attic.RoomHeatingSum)
	}
	if math.Abs(attic.Cooling-attic.RoomCoolingSum*1.10*0.95) > 1e-6 {
		t.Errorf("cooling %v, room sum %v", attic.Cooling, attic.RoomCoolingSum)
	}
	living := attic.Rooms[0]
	duct, _ := living.Component(CompDuct)
	if want := living.Heating - living.Heating/1.15; math.Abs(duct.Heating-want) > 1e-6 {
		t.Errorf("attic duct heating = %v, want %v", duct.Heating, want)
	}

	inside, err := Calculate(s, zone5B(), Params{Duct: DuctConditioned})
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := inside.Rooms[0].Component(CompDuct); d.Heating != 0 || d.Cooling != 0 {
		t.Errorf("conditioned duct = %+v", d)
	}
	if inside.Heating >= attic.Heating {
		t.Error("attic ducts should add load")
	}
}

func TestCalculate_CeilingOnlyOnTopFloor(t *testing.T) {
	down := room("FAMILY", blueprint.Family, 15, 20, 2, 2, blueprint.South)
	up := room("BEDROOM", blueprint.Bedroom, 15, 20, 2, 2, blueprint.South)
	up.Floor = 2
	s := &blueprint.Schema{Rooms: []blueprint.Room{down, up}}
	s.Recompute()
	res, err := Calculate(s, zone5B(), Params{})
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := res.Rooms[0].Component(CompCeiling); c.Heating != 0 {
		t.Errorf("ground floor ceiling = %v", c.Heating)
	}
	if f, _ := res.Rooms[1].Component(CompFloor); f.Heating != 0 {
		t.Errorf("upper floor slab = %v", f.Heating)
	}
	if c, _ := res.Rooms[1].Component(CompCeiling); c.Heating <= 0 {
		t.Error("top floor ceiling missing")
	}
}

func TestCalculate_DensityWarnings(t *testing.T) {
	mild := climate.Record{Zone: "3C", HeatingDesignF: 60, CoolingDesignF: 78}
	res, err := Calculate(house(), mild, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(res.Warnings, "heating density") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestCalculate_Errors(t *testing.T) {
	if _, err := Calculate(&blueprint.Schema{}, zone5B(), Params{}); err == nil {
		t.Error("empty schema accepted")
	}
	if _, err := Calculate(house(), climate.Record{Zone: "5B", HeatingDesignF: 90, CoolingDesignF: 80}, Params{}); err == nil {
		t.Error("inverted climate accepted")
	}
	if _, err := Calculate(house(), zone5B(), Params{Duct: "roof"}); err == nil {
		t.Error("unknown duct accepted")
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	a, err := Calculate(house(), zone5B(), scenarioParams())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Calculate(house(), zone5B(), scenarioParams())
	if a.Heating != b.Heating || a.Cooling != b.Cooling {
		t.Errorf("runs differ: %v/%v vs %v/%v", a.Heating, a.Cooling, b.Heating, b.Cooling)
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		name    string
		cooling float64
		tons    float64
		within  bool
		warn    string
	}{
		{"in band", 26000, 2.5, true, ""},
		{"small house oversized", 10000, 1.5, false, "Manual S"},
		{"too large", 70000, 5, false, "multiple systems"},
		{"exact step", 36000, 3, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := Size(tt.cooling, 30000, FuelGas, 10)
			if eq.RecommendedTons != tt.tons || eq.WithinManualS != tt.within {
				t.Fatalf("equipment = %+v", eq)
			}
			if tt.warn != "" && !hasWarning(eq.Warnings, tt.warn) {
				t.Errorf("warnings = %v", eq.Warnings)
			}
			if tt.warn == "" && len(eq.Warnings) != 0 {
				t.Errorf("unexpected warnings %v", eq.Warnings)
			}
		})
	}
}

func TestSize_Heating(t *testing.T) {
	gas := Size(24000, 32000, FuelGas, -1).Heating
	if gas.Kind != "furnace" || gas.InputBTUH != 40000 || math.Abs(gas.OutputBTUH-38400) > 1e-6 {
		t.Errorf("gas = %+v", gas)
	}
	elec := Size(24000, 40000, FuelElectric, -1).Heating
	if elec.Kind != "electric_furnace" || elec.AuxiliaryKW != 0 || math.Abs(elec.OutputBTUH-15*3412) > 1e-6 {
		t.Errorf("electric = %+v", elec)
	}
	hp := Size(28000, 32000, FuelHeatPump, -1).Heating
	// 2.5 tons derated to 40% at -1F leaves 20,000 BTU/hr for strips.
	if hp.Kind != "heat_pump" || hp.AuxiliaryKW != 10 {
		t.Errorf("heat pump = %+v", hp)
	}
	if math.Abs(hp.OutputBTUH-(12000+10*3412)) > 1e-6 {
		t.Errorf("heat pump output = %v", hp.OutputBTUH)
	}
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	if p.Duct != DuctAttic || p.Fuel != FuelGas || p.SafetyFactor != 1.10 || p.CoolingDiversity != 0.95 || p.HeatingDiversity != 1.0 {
		t.Errorf("defaults = %+v", p)
	}
	if err := (Params{HRVEffectiveness: 1.2}).Validate(); err == nil {
		t.Error("hrv 1.2 accepted")
	}
	if err := (Params{Fuel: "coal"}).Validate(); err == nil {
		t.Error("coal accepted")
	}
}

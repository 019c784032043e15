package manualj

import (
	"fmt"
	"math"
)

// Manual S sanity band: installed cooling capacity relative to load.
const (
	ManualSMin = 0.95
	ManualSMax = 1.20
)

// CoolingSteps are the nominal condensing unit sizes in tons.
var CoolingSteps = []float64{1.5, 2, 2.5, 3, 3.5, 4, 5}

// SizeOption is one candidate cooling size.
type SizeOption struct {
	Tons         float64 `json:"tons"`
	CapacityBTUH float64 `json:"capacity_btuh"`
	Ratio        float64 `json:"ratio"`
	WithinBand   bool    `json:"within_manual_s_band"`
}

// HeatingEquipment is the recommended heat source.
type HeatingEquipment struct {
	Kind        string  `json:"kind"`
	Fuel        Fuel    `json:"fuel"`
	Efficiency  float64 `json:"efficiency"`
	InputBTUH   float64 `json:"input_btuh,omitempty"`
	OutputBTUH  float64 `json:"output_btuh"`
	AuxiliaryKW float64 `json:"auxiliary_kw,omitempty"`
}

// Equipment is the sizing recommendation for a building.
type Equipment struct {
	LoadTons        float64          `json:"load_tons"`
	RecommendedTons float64          `json:"recommended_tons"`
	CapacityBTUH    float64          `json:"capacity_btuh"`
	CapacityRatio   float64          `json:"capacity_ratio"`
	WithinManualS   bool             `json:"within_manual_s_band"`
	Options         []SizeOption     `json:"options"`
	Heating         HeatingEquipment `json:"heating"`
	Warnings        []string         `json:"warnings,omitempty"`
}

type furnaceLine struct {
	kind   string
	afue   float64
	inputs []float64
}

var furnaces = map[Fuel]furnaceLine{
	FuelGas:     {kind: "furnace", afue: 0.96, inputs: []float64{40000, 60000, 80000, 100000, 120000, 140000}},
	FuelPropane: {kind: "furnace", afue: 0.95, inputs: []float64{40000, 60000, 80000, 100000, 120000, 140000}},
	FuelOil:     {kind: "furnace", afue: 0.85, inputs: []float64{70000, 84000, 105000, 119000, 140000}},
}

var electricKW = []float64{5, 10, 15, 20, 25, 30}

// Size picks equipment for the building design loads. designHeatF is the
// outdoor heating design temperature, used to derate heat pumps.
func Size(coolingBTUH, heatingBTUH float64, fuel Fuel, designHeatF float64) Equipment {
	eq := Equipment{LoadTons: coolingBTUH / 12000}

	pick := -1
	for i, t := range CoolingSteps {
		if t*12000 >= ManualSMin*coolingBTUH {
			pick = i
			break
		}
	}
	if pick < 0 {
		pick = len(CoolingSteps) - 1
		eq.Warnings = append(eq.Warnings, fmt.Sprintf("cooling load %.1f tons exceeds the largest single system; consider multiple systems", eq.LoadTons))
	}
	for i, t := range CoolingSteps {
		if i < pick-1 || i > pick+1 {
			continue
		}
		opt := SizeOption{Tons: t, CapacityBTUH: t * 12000}
		if coolingBTUH > 0 {
			opt.Ratio = opt.CapacityBTUH / coolingBTUH
		}
		opt.WithinBand = opt.Ratio >= ManualSMin && opt.Ratio <= ManualSMax
		eq.Options = append(eq.Options, opt)
	}
	eq.RecommendedTons = CoolingSteps[pick]
	eq.CapacityBTUH = eq.RecommendedTons * 12000
	if coolingBTUH > 0 {
		eq.CapacityRatio = eq.CapacityBTUH / coolingBTUH
	}
	eq.WithinManualS = eq.CapacityRatio >= ManualSMin && eq.CapacityRatio <= ManualSMax
	if !eq.WithinManualS {
		eq.Warnings = append(eq.Warnings, fmt.Sprintf("Manual S: %.1f-ton capacity is %.0f%% of load, outside %.0f-%.0f%%",
			eq.RecommendedTons, eq.CapacityRatio*100, ManualSMin*100, ManualSMax*100))
	}

	var warn string
	eq.Heating, warn = sizeHeating(heatingBTUH, fuel, eq.CapacityBTUH, designHeatF)
	if warn != "" {
		eq.Warnings = append(eq.Warnings, warn)
	}
	return eq
}

func sizeHeating(load float64, fuel Fuel, coolingCapacity, designF float64) (HeatingEquipment, string) {
	switch fuel {
	case FuelElectric:
		h := HeatingEquipment{Kind: "electric_furnace", Fuel: fuel, Efficiency: 1}
		for _, kw := range electricKW {
			h.OutputBTUH = kw * wattsToBTUH * 1000
			h.InputBTUH = h.OutputBTUH
			if h.OutputBTUH >= load {
				return h, ""
			}
		}
		return h, fmt.Sprintf("heating load %.0f BTU/hr exceeds the largest electric furnace", load)
	case FuelHeatPump:
		// Capacity falls linearly from the 47F rating point.
		retention := math.Min(1, math.Max(0.3, 1-0.0125*(47-designF)))
		h := HeatingEquipment{Kind: "heat_pump", Fuel: fuel, Efficiency: retention}
		h.OutputBTUH = coolingCapacity * retention
		if gap := load - h.OutputBTUH; gap > 0 {
			h.AuxiliaryKW = math.Ceil(gap/(wattsToBTUH*1000)/5) * 5
			h.OutputBTUH += h.AuxiliaryKW * wattsToBTUH * 1000
		}
		return h, ""
	}
	line, ok := furnaces[fuel]
	if !ok {
		line = furnaces[FuelGas]
	}
	h := HeatingEquipment{Kind: line.kind, Fuel: fuel, Efficiency: line.afue}
	if fuel == "" {
		h.Fuel = FuelGas
	}
	for _, in := range line.inputs {
		h.InputBTUH = in
		h.OutputBTUH = in * line.afue
		if h.OutputBTUH >= load {
			return h, ""
		}
	}
	return h, fmt.Sprintf("heating load %.0f BTU/hr exceeds the largest %s furnace", load, h.Fuel)
}

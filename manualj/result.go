package manualj

import (
	"fmt"
	"math"

	"github.com/adixon02/AutoHVAC-sub002/climate"
)

// Component names in a room breakdown, in report order.
const (
	CompWalls        = "walls"
	CompCeiling      = "ceiling"
	CompFloor        = "floor"
	CompWindows      = "windows"
	CompDoors        = "doors"
	CompSolar        = "solar"
	CompBridging     = "thermal_bridging"
	CompMultipliers  = "multipliers"
	CompInfiltration = "infiltration"
	CompVentilation  = "ventilation"
	CompInternal     = "internal_gains"
	CompLatent       = "latent"
	CompDuct         = "duct_loss"
)

// Component is one line of a room's load breakdown in BTU/hr.
type Component struct {
	Name    string  `json:"name"`
	Heating float64 `json:"heating_btuh"`
	Cooling float64 `json:"cooling_btuh"`
}

// Multiplier is a named factor applied to a room's envelope load. The BTU
// fields are the load it added.
type Multiplier struct {
	Name          string  `json:"name"`
	HeatingFactor float64 `json:"heating_factor"`
	CoolingFactor float64 `json:"cooling_factor"`
	HeatingBTUH   float64 `json:"heating_btuh"`
	CoolingBTUH   float64 `json:"cooling_btuh"`
}

// RoomLoad is the calculated load for one room. Heating and Cooling equal
// the sums of the component column.
type RoomLoad struct {
	Name            string       `json:"name"`
	AreaSqFt        float64      `json:"area_sqft"`
	Heating         float64      `json:"heating_btuh"`
	Cooling         float64      `json:"cooling_btuh"`
	CoolingSensible float64      `json:"cooling_sensible_btuh"`
	CoolingLatent   float64      `json:"cooling_latent_btuh"`
	Components      []Component  `json:"components"`
	Multipliers     []Multiplier `json:"multipliers,omitempty"`
	Confidence      float64      `json:"confidence"`
	Notes           []string     `json:"notes,omitempty"`
}

// Component returns the named breakdown line.
func (r RoomLoad) Component(name string) (Component, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// SumCheckError reports a room whose components do not add up to its
// totals.
type SumCheckError struct {
	Room          string
	Heating, HSum float64
	Cooling, CSum float64
}

func (e *SumCheckError) Error() string {
	return fmt.Sprintf("manualj: room %q components do not sum to totals (heating %.3f vs %.3f, cooling %.3f vs %.3f)",
		e.Room, e.HSum, e.Heating, e.CSum, e.Cooling)
}

// CheckSums verifies the component sum invariant for every room.
func (r *Result) CheckSums() error {
	for _, rl := range r.Rooms {
		var h, c float64
		for _, comp := range rl.Components {
			h += comp.Heating
			c += comp.Cooling
		}
		if !closeTo(h, rl.Heating) || !closeTo(c, rl.Cooling) {
			return &SumCheckError{Room: rl.Name, Heating: rl.Heating, HSum: h, Cooling: rl.Cooling, CSum: c}
		}
	}
	return nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

// Factor is a building-level adjustment.
type Factor struct {
	Name    string  `json:"name"`
	Heating float64 `json:"heating"`
	Cooling float64 `json:"cooling"`
}

// Result is the load calculation for one building.
type Result struct {
	Rooms []RoomLoad `json:"rooms"`

	RoomHeatingSum float64  `json:"room_heating_sum_btuh"`
	RoomCoolingSum float64  `json:"room_cooling_sum_btuh"`
	Factors        []Factor `json:"building_factors"`

	Heating         float64 `json:"heating_btuh"`
	Cooling         float64 `json:"cooling_btuh"`
	CoolingSensible float64 `json:"cooling_sensible_btuh"`
	CoolingLatent   float64 `json:"cooling_latent_btuh"`

	AreaSqFt       float64 `json:"area_sqft"`
	HeatingDensity float64 `json:"heating_btuh_per_sqft"`
	CoolingDensity float64 `json:"cooling_btuh_per_sqft"`

	VentilationCFM float64        `json:"ventilation_cfm"`
	Equipment      Equipment      `json:"equipment"`
	Climate        climate.Record `json:"climate"`
	Params         Params         `json:"params"`
	Confidence     float64        `json:"confidence"`
	Warnings       []string       `json:"warnings,omitempty"`
}

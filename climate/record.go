// CLAUDE:SUMMARY Climate design data keyed by ZIP: the Record type, the Service interface and the ErrUnknownZIP miss.
// Package climate supplies outdoor design conditions for a building site.
//
// A Service resolves a US ZIP code to a Record. Table serves an embedded
// ZIP3 dataset, HTTPService a remote lookup, Chain combines the two and
// Cache memoises results in SQLite.
package climate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sources recorded on a Record.
const (
	SourceTable   = "table"
	SourceNearest = "nearest"
	SourceRemote  = "remote"
	SourceCache   = "cache"
)

// Record is the design data for one location. It is reference data: once
// returned by a Service it is never modified.
type Record struct {
	ZIP            string  `json:"zip"`
	County         string  `json:"county,omitempty"`
	State          string  `json:"state,omitempty"`
	Zone           string  `json:"climate_zone"`
	HeatingDesignF float64 `json:"heating_design_temp_f"`
	CoolingDesignF float64 `json:"cooling_design_temp_f"`
	// DailyRange is the summer daily temperature swing class: L, M or H.
	DailyRange string `json:"daily_range,omitempty"`
	// DesignGrains is the outdoor minus indoor humidity ratio at cooling
	// design, in grains of moisture per pound of dry air.
	DesignGrains float64 `json:"design_grains"`
	Latitude     float64 `json:"latitude,omitempty"`
	ElevationFt  float64 `json:"elevation_ft,omitempty"`
	Source       string  `json:"source"`
	// Warnings explain fallbacks taken to produce the record.
	Warnings []string `json:"warnings,omitempty"`
}

// Moisture returns the zone's moisture regime letter (A moist, B dry,
// C marine), or 0 when the zone has none.
func (r Record) Moisture() byte {
	z := strings.ToUpper(strings.TrimSpace(r.Zone))
	if z == "" {
		return 0
	}
	if c := z[len(z)-1]; c == 'A' || c == 'B' || c == 'C' {
		return c
	}
	return 0
}

// Range returns DailyRange, inferring H for dry zones and M otherwise.
func (r Record) Range() string {
	switch strings.ToUpper(r.DailyRange) {
	case "L":
		return "L"
	case "M":
		return "M"
	case "H":
		return "H"
	}
	if r.Moisture() == 'B' {
		return "H"
	}
	return "M"
}

// Validate checks that the record can drive a load calculation.
func (r Record) Validate() error {
	if r.Zone == "" {
		return fmt.Errorf("climate: record %s has no climate zone", r.ZIP)
	}
	if r.HeatingDesignF >= r.CoolingDesignF {
		return fmt.Errorf("climate: record %s: heating design %.0fF not below cooling design %.0fF",
			r.ZIP, r.HeatingDesignF, r.CoolingDesignF)
	}
	if r.HeatingDesignF < -60 || r.CoolingDesignF > 130 {
		return fmt.Errorf("climate: record %s: design temperatures out of range", r.ZIP)
	}
	return nil
}

// ErrUnknownZIP is returned when no data exists for a ZIP code. It is
// recoverable: callers fall back to a ZIP prefix or ask the user for a
// county.
type ErrUnknownZIP struct {
	ZIP string
}

func (e *ErrUnknownZIP) Error() string {
	return fmt.Sprintf("climate: unknown zip %q", e.ZIP)
}

// IsUnknownZIP reports whether err is an ErrUnknownZIP.
func IsUnknownZIP(err error) bool {
	var u *ErrUnknownZIP
	return errors.As(err, &u)
}

// Service looks up design conditions by ZIP code.
type Service interface {
	Lookup(ctx context.Context, zip string) (Record, error)
}

// NormalizeZIP trims a ZIP or ZIP+4 to its five digits.
func NormalizeZIP(zip string) (string, error) {
	zip = strings.TrimSpace(zip)
	if i := strings.IndexByte(zip, '-'); i >= 0 {
		zip = zip[:i]
	}
	if len(zip) != 5 {
		return "", &ErrUnknownZIP{ZIP: zip}
	}
	for _, c := range zip {
		if c < '0' || c > '9' {
			return "", &ErrUnknownZIP{ZIP: zip}
		}
	}
	return zip, nil
}

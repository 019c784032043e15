package climate

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

//go:embed data/zipdata.csv
var zipdata string

// Table is an in-memory dataset keyed by three-digit ZIP prefix, with
// exact five-digit entries taking precedence.
type Table struct {
	byKey map[string]Record
	zip3  []int // sorted prefixes
}

// DefaultTable loads the embedded dataset.
func DefaultTable() *Table {
	t, err := NewTable(strings.NewReader(zipdata))
	if err != nil {
		panic(fmt.Sprintf("climate: embedded dataset: %v", err))
	}
	return t
}

// NewTable parses a CSV dataset with the header
// key,state,county,zone,heating_f,cooling_f,daily_range,grains,latitude,elevation_ft.
func NewTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("climate: read table: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("climate: table has no rows")
	}
	t := &Table{byKey: make(map[string]Record, len(rows))}
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("climate: table line %d: %w", i+2, err)
		}
		key := row[0]
		if _, dup := t.byKey[key]; dup {
			return nil, fmt.Errorf("climate: table line %d: duplicate key %s", i+2, key)
		}
		t.byKey[key] = rec
		if len(key) == 3 {
			n, _ := strconv.Atoi(key)
			t.zip3 = append(t.zip3, n)
		}
	}
	sort.Ints(t.zip3)
	return t, nil
}

func parseRow(row []string) (Record, error) {
	if len(row) != 10 {
		return Record{}, fmt.Errorf("want 10 fields, got %d", len(row))
	}
	key := row[0]
	if len(key) != 3 && len(key) != 5 {
		return Record{}, fmt.Errorf("key %q is not a ZIP3 or ZIP5", key)
	}
	if _, err := strconv.Atoi(key); err != nil {
		return Record{}, fmt.Errorf("key %q: %w", key, err)
	}
	var nums [6]float64
	for i, f := range row[4:] {
		if i == 2 { // daily range
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Record{}, fmt.Errorf("field %d: %w", i+5, err)
		}
		nums[i] = v
	}
	rec := Record{
		State: row[1], County: row[2], Zone: row[3],
		HeatingDesignF: nums[0], CoolingDesignF: nums[1], DailyRange: row[6],
		DesignGrains: nums[3], Latitude: nums[4], ElevationFt: nums[5],
		Source: SourceTable,
	}
	if len(key) == 5 {
		rec.ZIP = key
	}
	return rec, rec.Validate()
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.byKey) }

// Lookup resolves zip by exact entry, then ZIP3 prefix, then the
// numerically nearest prefix sharing the first digit.
func (t *Table) Lookup(_ context.Context, zip string) (Record, error) {
	zip, err := NormalizeZIP(zip)
	if err != nil {
		return Record{}, err
	}
	if rec, ok := t.byKey[zip]; ok {
		return rec, nil
	}
	prefix := zip[:3]
	if rec, ok := t.byKey[prefix]; ok {
		rec.ZIP = zip
		return rec, nil
	}

	want, _ := strconv.Atoi(prefix)
	best, bestDist := -1, 0
	for _, n := range t.zip3 {
		if n/100 != want/100 {
			continue
		}
		d := n - want
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = n, d
		}
	}
	if best < 0 {
		return Record{}, &ErrUnknownZIP{ZIP: zip}
	}
	near := fmt.Sprintf("%03d", best)
	rec := t.byKey[near]
	rec.ZIP = zip
	rec.Source = SourceNearest
	rec.Warnings = []string{fmt.Sprintf("zip %s not in dataset; using nearest prefix %s (%s, %s)", zip, near, rec.County, rec.State)}
	return rec, nil
}

package climate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/store"
)

func TestTableLookup(t *testing.T) {
	tbl := climate.DefaultTable()
	ctx := context.Background()

	cases := []struct {
		name    string
		zip     string
		zone    string
		heating float64
		cooling float64
		source  string
		warn    bool
	}{
		{"zip3 prefix", "97701", "5B", -1, 86, climate.SourceTable, false},
		{"zip+4", "97701-1234", "5B", -1, 86, climate.SourceTable, false},
		{"exact override", "80424", "7", -13, 77, climate.SourceTable, false},
		{"prefix beside override", "80401", "5B", 3, 92, climate.SourceNearest, true},
		{"nearest prefix", "97801", "5B", -1, 86, climate.SourceNearest, true},
		{"nearest tie takes lower prefix", "97901", "5B", -1, 86, climate.SourceNearest, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec, err := tbl.Lookup(ctx, c.zip)
			if err != nil {
				t.Fatal(err)
			}
			if rec.Zone != c.zone || rec.HeatingDesignF != c.heating || rec.CoolingDesignF != c.cooling {
				t.Errorf("record = %+v", rec)
			}
			if rec.Source != c.source {
				t.Errorf("source = %q, want %q", rec.Source, c.source)
			}
			if got := len(rec.Warnings) > 0; got != c.warn {
				t.Errorf("warnings = %v", rec.Warnings)
			}
			if len(rec.ZIP) != 5 {
				t.Errorf("zip = %q", rec.ZIP)
			}
		})
	}
}

func TestTableNearestWarningNamesCounty(t *testing.T) {
	rec, err := climate.DefaultTable().Lookup(context.Background(), "97801")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Warnings[0], "977") || !strings.Contains(rec.Warnings[0], "Deschutes") {
		t.Errorf("warning = %q", rec.Warnings[0])
	}
}

func TestTableUnknown(t *testing.T) {
	tbl, err := climate.NewTable(strings.NewReader(
		"key,state,county,zone,heating_f,cooling_f,daily_range,grains,latitude,elevation_ft\n" +
			"977,OR,Deschutes,5B,-1,86,H,0,44.1,3600\n"))
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d", tbl.Len())
	}
	for _, zip := range []string{"10001", "abcde", "977", ""} {
		_, err := tbl.Lookup(context.Background(), zip)
		if !climate.IsUnknownZIP(err) {
			t.Errorf("Lookup(%q): err = %v, want ErrUnknownZIP", zip, err)
		}
	}
}

func TestNewTableRejectsBadRows(t *testing.T) {
	header := "key,state,county,zone,heating_f,cooling_f,daily_range,grains,latitude,elevation_ft\n"
	cases := map[string]string{
		"duplicate":        "977,OR,D,5B,-1,86,H,0,0,0\n977,OR,D,5B,-1,86,H,0,0,0\n",
		"bad key":          "97,OR,D,5B,-1,86,H,0,0,0\n",
		"heating >= cool":  "977,OR,D,5B,90,86,H,0,0,0\n",
		"no zone":          "977,OR,D,,-1,86,H,0,0,0\n",
		"non-numeric temp": "977,OR,D,5B,cold,86,H,0,0,0\n",
		"empty":            "",
	}
	for name, body := range cases {
		if _, err := climate.NewTable(strings.NewReader(header + body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRecordRangeAndMoisture(t *testing.T) {
	cases := []struct {
		rec      climate.Record
		moisture byte
		rng      string
	}{
		{climate.Record{Zone: "5B"}, 'B', "H"},
		{climate.Record{Zone: "4A"}, 'A', "M"},
		{climate.Record{Zone: "3C", DailyRange: "l"}, 'C', "L"},
		{climate.Record{Zone: "7"}, 0, "M"},
	}
	for _, c := range cases {
		if got := c.rec.Moisture(); got != c.moisture {
			t.Errorf("%s Moisture = %q, want %q", c.rec.Zone, got, c.moisture)
		}
		if got := c.rec.Range(); got != c.rng {
			t.Errorf("%s Range = %q, want %q", c.rec.Zone, got, c.rng)
		}
	}
}

func remoteRecord() climate.Record {
	return climate.Record{
		County: "Deschutes", State: "OR", Zone: "5B",
		HeatingDesignF: 2, CoolingDesignF: 88, DailyRange: "H",
	}
}

func TestHTTPServiceLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/climate/97701":
			json.NewEncoder(w).Encode(remoteRecord())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := climate.NewHTTPService(climate.HTTPConfig{BaseURL: srv.URL + "/", APIKey: "k", AllowPrivate: true})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Lookup(context.Background(), "97701")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ZIP != "97701" || rec.Source != climate.SourceRemote || rec.HeatingDesignF != 2 {
		t.Errorf("record = %+v", rec)
	}

	if _, err := svc.Lookup(context.Background(), "10001"); !climate.IsUnknownZIP(err) {
		t.Errorf("404: err = %v, want ErrUnknownZIP", err)
	}
}

func TestHTTPServiceRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := climate.NewHTTPService(climate.HTTPConfig{
		BaseURL: srv.URL, AllowPrivate: true, MaxRetries: 2, Backoff: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Lookup(context.Background(), "97701")
	var ext *blueprint.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if ext.Service != "climate" || ext.Attempts != 3 {
		t.Errorf("error = %+v", ext)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPServiceRejectsBadConfig(t *testing.T) {
	if _, err := climate.NewHTTPService(climate.HTTPConfig{}); err == nil {
		t.Error("empty base url accepted")
	}
	if _, err := climate.NewHTTPService(climate.HTTPConfig{BaseURL: "http://127.0.0.1:9"}); err == nil {
		t.Error("loopback base url accepted without AllowPrivate")
	}
}

type fakeService struct {
	rec   climate.Record
	err   error
	calls int
}

func (f *fakeService) Lookup(_ context.Context, zip string) (climate.Record, error) {
	f.calls++
	if f.err != nil {
		return climate.Record{}, f.err
	}
	rec := f.rec
	rec.ZIP = zip
	return rec, nil
}

func TestChainFallsBackWithWarning(t *testing.T) {
	remote := &fakeService{err: &blueprint.ExternalServiceError{Service: "climate", Attempts: 3, Cause: errors.New("503")}}
	chain := &climate.Chain{Remote: remote, Local: climate.DefaultTable()}

	rec, err := chain.Lookup(context.Background(), "97701")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Source != climate.SourceTable {
		t.Errorf("source = %q, want table", rec.Source)
	}
	if len(rec.Warnings) != 1 || !strings.Contains(rec.Warnings[0], "3 attempt") {
		t.Errorf("warnings = %v", rec.Warnings)
	}
}

func TestChainLogsFallbackAndHonoursCancel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	remote := &fakeService{err: errors.New("connection refused")}
	local := &fakeService{rec: remoteRecord()}
	chain := &climate.Chain{Remote: remote, Local: local, Logger: logger}

	rec, err := chain.Lookup(context.Background(), "97701")
	if err != nil {
		t.Fatal(err)
	}
	if local.calls != 1 || len(rec.Warnings) != 0 {
		t.Errorf("local calls = %d, warnings = %v", local.calls, rec.Warnings)
	}
	if out := buf.String(); !strings.Contains(out, "service=climate") || !strings.Contains(out, "zip=97701") {
		t.Errorf("fallback log = %q", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Lookup(ctx, "97701"); err == nil {
		t.Error("cancelled lookup fell back")
	}
	if local.calls != 1 {
		t.Errorf("local called after cancel: %d", local.calls)
	}
}

func TestChainPrefersRemote(t *testing.T) {
	remote := &fakeService{rec: remoteRecord()}
	chain := &climate.Chain{Remote: remote, Local: climate.DefaultTable()}
	rec, err := chain.Lookup(context.Background(), "97701")
	if err != nil {
		t.Fatal(err)
	}
	if rec.HeatingDesignF != 2 || len(rec.Warnings) != 0 {
		t.Errorf("record = %+v", rec)
	}
}

func TestChainUnknownEverywhere(t *testing.T) {
	remote := &fakeService{err: &climate.ErrUnknownZIP{ZIP: "00001"}}
	local := &fakeService{err: &climate.ErrUnknownZIP{ZIP: "00001"}}
	_, err := (&climate.Chain{Remote: remote, Local: local}).Lookup(context.Background(), "00001")
	if !climate.IsUnknownZIP(err) {
		t.Errorf("err = %v, want ErrUnknownZIP", err)
	}
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	next := &fakeService{rec: remoteRecord()}
	cache, err := climate.NewCache(store.OpenMemory(t), next,
		climate.WithTTL(time.Hour), climate.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	first, err := cache.Lookup(ctx, "97701")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Lookup(ctx, "97701-0001")
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Fatalf("next called %d times, want 1", next.calls)
	}
	if second.Source != climate.SourceCache || second.HeatingDesignF != first.HeatingDesignF {
		t.Errorf("cached = %+v", second)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Lookup(ctx, "97701"); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Errorf("expired entry not refreshed: calls = %d", next.calls)
	}

	if err := cache.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	cache.Lookup(ctx, "97701")
	if next.calls != 3 {
		t.Errorf("purged entry served: calls = %d", next.calls)
	}
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	next := &fakeService{err: &climate.ErrUnknownZIP{ZIP: "00001"}}
	cache, err := climate.NewCache(store.OpenMemory(t), next)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := cache.Lookup(context.Background(), "00001"); !climate.IsUnknownZIP(err) {
			t.Fatalf("err = %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}
}

func TestCacheWriteFailureUsesLogger(t *testing.T) {
	var buf bytes.Buffer
	db := store.OpenMemory(t)
	next := &fakeService{rec: remoteRecord()}
	cache, err := climate.NewCache(db, next, climate.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	rec, err := cache.Lookup(context.Background(), "97701")
	if err != nil {
		t.Fatal(err)
	}
	if rec.HeatingDesignF != remoteRecord().HeatingDesignF {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(buf.String(), "cache write failed") {
		t.Errorf("log = %q", buf.String())
	}
}

package samplepdf

import (
	"bytes"
	"testing"
)

func TestExampleHouseArea(t *testing.T) {
	var total float64
	for _, r := range ExampleHouse().Rooms {
		total += r.W * r.H
	}
	if total != 1500 {
		t.Fatalf("total = %v, want 1500", total)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ExampleHouse()); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
}

func TestWriteRejectsZeroScale(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Plan{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFeetInches(t *testing.T) {
	cases := map[float64]string{12.5: `12'-6"`, 50: `50'-0"`, 9.99: `10'-0"`}
	for in, want := range cases {
		if got := FeetInches(in); got != want {
			t.Errorf("FeetInches(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestWriteSheets(t *testing.T) {
	var buf bytes.Buffer
	cover := Plan{Title: "COVER SHEET"}
	if err := WriteSheets(&buf, cover, ExampleHouse()); err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(buf.Bytes(), []byte("/Type /Page\n")); n != 2 {
		t.Errorf("pages = %d, want 2", n)
	}

	bad := ExampleHouse()
	bad.PointsPerFoot = 0
	if err := WriteSheets(&buf, cover, bad); err == nil {
		t.Error("expected error for a plan without scale")
	}
	if err := WriteSheets(&buf); err == nil {
		t.Error("expected error for no sheets")
	}
}

package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{8, 16, 64} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("NanoID: unexpected character %q in %q", c, id)
			}
		}
	}
}

func TestJob_FormatAndOrder(t *testing.T) {
	a, b := Job(), Job()
	if !strings.HasPrefix(a, JobPrefix) || len(a) != len(JobPrefix)+36 {
		t.Fatalf("job id %q", a)
	}
	if a == b {
		t.Fatal("duplicate job id")
	}
	if a > b {
		t.Fatalf("job ids not time-ordered: %q > %q", a, b)
	}
}

func TestParseJobID(t *testing.T) {
	id := Job()
	got, err := ParseJobID(strings.ToUpper(id[:4]) + id[4:])
	if err == nil {
		t.Fatalf("uppercase prefix accepted: %q", got)
	}
	got, err = ParseJobID(id)
	if err != nil || got != id {
		t.Fatalf("ParseJobID(%q) = %q, %v", id, got, err)
	}
	for _, bad := range []string{"", "job_", "job_not-a-uuid", "0190f3a2-0000-7000-8000-000000000000", "../etc/passwd"} {
		if _, err := ParseJobID(bad); err == nil {
			t.Errorf("ParseJobID(%q) accepted", bad)
		}
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("evt_")
	if a, b := gen(), gen(); a != "evt_1" || b != "evt_2" {
		t.Fatalf("Sequence: %q %q", a, b)
	}
}

func TestProjectID_Stable(t *testing.T) {
	a := ProjectID([]byte("%PDF-1.4 plan"))
	b := ProjectID([]byte("%PDF-1.4 plan"))
	c := ProjectID([]byte("%PDF-1.4 other"))
	if a != b {
		t.Fatalf("same content, different ids: %q %q", a, b)
	}
	if a == c {
		t.Fatal("different content, same id")
	}
	if !strings.HasPrefix(a, ProjectPrefix) || len(a) != len(ProjectPrefix)+16 {
		t.Fatalf("project id %q", a)
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("x_", func() string { return "1" })
	if got := gen(); got != "x_1" {
		t.Fatalf("Prefixed: %q", got)
	}
}

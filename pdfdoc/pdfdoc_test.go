package pdfdoc

import (
	"path/filepath"
	"testing"

	"github.com/adixon02/AutoHVAC-sub002/samplepdf"
)

func collect(t *testing.T, data string) []Op {
	t.Helper()
	var ops []Op
	if err := Walk([]byte(data), func(op Op) error {
		ops = append(ops, op)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return ops
}

func TestWalk_PathOperators(t *testing.T) {
	ops := collect(t, "q 1 0 0 1 10 20 cm\n0.5 w 10 10 m 100 10 l S\n5 5 50 -40 re f Q")
	var names []string
	for _, op := range ops {
		names = append(names, op.Name)
	}
	want := []string{"q", "cm", "w", "m", "l", "S", "re", "f", "Q"}
	if len(names) != len(want) {
		t.Fatalf("ops = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("op[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	re := ops[6]
	if nums, ok := re.Nums(4); !ok || nums[3] != -40 {
		t.Fatalf("re operands = %+v", re.Operands)
	}
}

func TestWalk_StringsArraysComments(t *testing.T) {
	ops := collect(t, "% comment\nBT /F1 8 Tf (a \\(b\\) c) Tj [(x) -120 (y)] TJ <48 49> Tj ET [3 2] 0 d")
	var tj []string
	for _, op := range ops {
		if op.Name == "Tj" {
			tj = append(tj, op.Operands[0].Str)
		}
		if op.Name == "TJ" && len(op.Operands[0].Items) != 3 {
			t.Errorf("TJ array items = %d, want 3", len(op.Operands[0].Items))
		}
		if op.Name == "d" && op.Operands[0].Kind != OperandArray {
			t.Errorf("dash operand kind = %v", op.Operands[0].Kind)
		}
	}
	if len(tj) != 2 || tj[0] != "a (b) c" || tj[1] != "HI" {
		t.Fatalf("Tj strings = %q", tj)
	}
}

func TestWalk_InlineImage(t *testing.T) {
	ops := collect(t, "BI /W 2 /H 2 /BPC 8 /CS /G ID \x00\xffEI\x01 EI 1 2 m")
	if len(ops) != 2 || ops[0].Name != "EI" || ops[1].Name != "m" {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestWalk_Stop(t *testing.T) {
	n := 0
	err := Walk([]byte("1 2 m 3 4 l 5 6 l S"), func(op Op) error {
		n++
		if n == 2 {
			return ErrStop
		}
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestOpenSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.pdf")
	if err := samplepdf.WriteFile(path, samplepdf.ExampleHouse()); err != nil {
		t.Fatal(err)
	}
	doc, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	if doc.PageCount() != 1 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	size, err := doc.PageSize(1)
	if err != nil {
		t.Fatal(err)
	}
	if size.Width < size.Height {
		t.Errorf("expected landscape, got %vx%v", size.Width, size.Height)
	}
	content, err := doc.Content(1)
	if err != nil {
		t.Fatal(err)
	}
	var rects int
	Walk(content, func(op Op) error {
		if op.Name == "re" {
			rects++
		}
		return nil
	})
	if rects < len(samplepdf.ExampleHouse().Rooms) {
		t.Errorf("rects = %d, want >= %d", rects, len(samplepdf.ExampleHouse().Rooms))
	}
	if _, err := doc.PageSize(2); err == nil {
		t.Error("page 2 should be out of range")
	}
}

func TestOpenRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.pdf")
	if err := samplepdf.WriteFile(path, samplepdf.ExampleHouse()); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, WithMaxBytes(10)); err == nil {
		t.Fatal("expected size error")
	}
}

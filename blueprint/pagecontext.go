package blueprint

import (
	"fmt"
	"math"
	"sync"
)

// PageContext records the page and scale a job committed to. It is created
// per job and passed explicitly to every stage; once a value is set it can
// only change through an explicit override.
type PageContext struct {
	mu          sync.Mutex
	page        int
	ppf         float64
	scaleMethod string
}

// NewPageContext returns an empty context.
func NewPageContext() *PageContext {
	return &PageContext{}
}

// SetPage commits the active page (1-based).
func (pc *PageContext) SetPage(page int, override bool) error {
	if page < 1 {
		return fmt.Errorf("blueprint: invalid page %d", page)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.page != 0 && pc.page != page && !override {
		return inconsistency("page", pc.page, page)
	}
	pc.page = page
	return nil
}

// SetScale commits the active scale in points per foot.
func (pc *PageContext) SetScale(ppf float64, method string, override bool) error {
	if ppf <= 0 || math.IsNaN(ppf) || math.IsInf(ppf, 0) {
		return fmt.Errorf("blueprint: invalid scale %v", ppf)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.ppf != 0 && !sameScale(pc.ppf, ppf) && !override {
		return inconsistency("scale", pc.ppf, ppf)
	}
	pc.ppf = ppf
	pc.scaleMethod = method
	return nil
}

// Page returns the committed page, 0 when unset.
func (pc *PageContext) Page() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.page
}

// PointsPerFoot returns the committed scale, 0 when unset.
func (pc *PageContext) PointsPerFoot() float64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ppf
}

// ScaleMethod returns how the committed scale was obtained.
func (pc *PageContext) ScaleMethod() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.scaleMethod
}

// VerifyPage checks that a stage is working on the committed page.
func (pc *PageContext) VerifyPage(page int) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.page == 0 || pc.page != page {
		return inconsistency("page", pc.page, page)
	}
	return nil
}

// Verify checks that a stage is working on the committed page and scale.
func (pc *PageContext) Verify(page int, ppf float64) error {
	if err := pc.VerifyPage(page); err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.ppf == 0 || !sameScale(pc.ppf, ppf) {
		return inconsistency("scale", pc.ppf, ppf)
	}
	return nil
}

func sameScale(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func inconsistency(field string, committed, attempted any) *NeedsInputError {
	return NeedsInput(ReasonPageScaleInconsistent,
		"re-run the job with an explicit page and scale override",
		"%s changed mid-pipeline: committed %v, stage used %v", field, committed, attempted).
		With("field", field).
		With("committed", committed).
		With("attempted", attempted)
}

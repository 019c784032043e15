package pipeline

import (
	"slices"

	"github.com/adixon02/AutoHVAC-sub002/pdfdoc"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// PageScore is the floor-plan likelihood of one page.
type PageScore struct {
	Page       int     `json:"page"`
	Labels     int     `json:"labels"`
	Dimensions int     `json:"dimensions"`
	PathOps    int     `json:"path_ops"`
	Images     int     `json:"images"`
	Score      float64 `json:"score"`
}

const maxCountedOps = 5000

var pathOps = map[string]bool{"m": true, "l": true, "re": true, "c": true, "v": true, "y": true}

// SelectPage scores the first maxPages pages and returns the best one.
// Room labels weigh most, then dimension strings, then vector drawing
// volume; a page with only a raster image still beats a blank one. Ties go
// to the earlier page.
func SelectPage(doc *pdfdoc.Document, maxPages int) (int, []PageScore) {
	n := doc.PageCount()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	if n < 1 {
		return 1, nil
	}
	scores := make([]PageScore, 0, n)
	for page := 1; page <= n; page++ {
		scores = append(scores, scorePage(doc, page))
	}
	best := slices.MaxFunc(scores, func(a, b PageScore) int {
		switch {
		case a.Score > b.Score:
			return 1
		case a.Score < b.Score:
			return -1
		}
		return b.Page - a.Page
	})
	return best.Page, scores
}

func scorePage(doc *pdfdoc.Document, page int) PageScore {
	ps := PageScore{Page: page, Images: doc.ImageCount(page)}
	if content, err := doc.Content(page); err == nil {
		_ = pdfdoc.Walk(content, func(op pdfdoc.Op) error {
			if pathOps[op.Name] {
				ps.PathOps++
				if ps.PathOps >= maxCountedOps {
					return pdfdoc.ErrStop
				}
			}
			return nil
		})
	}
	if tp, ok := doc.TextPage(page); ok {
		size, err := doc.PageSize(page)
		if err == nil {
			spans, err := textract.NativeSpans(tp, size.Height)
			if err == nil {
				for _, s := range spans {
					switch s.Class {
					case textract.ClassLabel:
						ps.Labels++
					case textract.ClassDimension:
						ps.Dimensions++
					}
				}
			}
		}
	}
	ps.Score = 10*float64(ps.Labels) + 3*float64(ps.Dimensions) + float64(ps.PathOps)/100
	if ps.Images > 0 {
		ps.Score++
	}
	return ps
}

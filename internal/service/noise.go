package service

import "github.com/pauldavis/2brain/internal/domain"

const (
	nearEmptyLength    = 8
	shortContentLength = 64
)

// scoreContent is the default quality heuristic. It only looks at normalized
// content length so repeated runs over the same export score identically.
// Empty segments persist fine but are flagged as noise so indexing and
// embedding skip them. Adapter-supplied hints override this entirely.
func scoreContent(markdown string, segmentType domain.SegmentType) (float64, bool) {
	normalized := NormalizeMarkdown(markdown)

	switch {
	case normalized == "":
		return 0.0, true
	case len(normalized) < nearEmptyLength:
		return 0.25, true
	case len(normalized) < shortContentLength:
		return 0.6, false
	}

	if segmentType == domain.SegmentTypeMetadata {
		return 0.5, false
	}
	return 1.0, false
}

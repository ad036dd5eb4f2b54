package service

import (
	"strings"
	"testing"

	"github.com/pauldavis/2brain/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestScoreContent(t *testing.T) {
	tests := []struct {
		name        string
		markdown    string
		segmentType domain.SegmentType
		wantScore   float64
		wantNoise   bool
	}{
		{"empty", "", domain.SegmentTypeMessage, 0.0, true},
		{"whitespace only", "  \n\t ", domain.SegmentTypeMessage, 0.0, true},
		{"near empty", "ok", domain.SegmentTypeMessage, 0.25, true},
		{"short", "a short reply here", domain.SegmentTypeMessage, 0.6, false},
		{"full message", strings.Repeat("substantive content ", 10), domain.SegmentTypeMessage, 1.0, false},
		{"long metadata", strings.Repeat("reasoning trace ", 10), domain.SegmentTypeMetadata, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, noise := scoreContent(tt.markdown, tt.segmentType)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantNoise, noise)
		})
	}
}

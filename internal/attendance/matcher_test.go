package attendance

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCache(t *testing.T, refs ...StudentReference) *ReferenceCache {
	t.Helper()
	c, err := BuildReferenceCache(refs, 0)
	require.NoError(t, err)
	return c
}

func face(vals ...float32) DetectedFace {
	return DetectedFace{Rectangle: image.Rect(0, 0, 10, 10), Descriptor: descriptor(vals...)}
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, EuclideanDistance(descriptor(0, 0), descriptor(3, 4)), 1e-9)
	assert.True(t, EuclideanDistance(descriptor(1), descriptor(1, 2)) > 1e300)
}

func TestMatchEmptyRosterSkipsComparison(t *testing.T) {
	extractor := &scriptedExtractor{}
	calls := 0
	m := NewMatcher(extractor, WithDistance(func(a, b Descriptor) float64 {
		calls++
		return 0
	}))

	res := m.Match(context.Background(), Frame{Image: []byte("A")}, emptyCache(), time.Now())

	assert.Equal(t, OutcomeNoStudents, res.Outcome)
	assert.Empty(t, res.PresentIDs)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "No students enrolled")
	assert.Zero(t, calls)
	assert.Empty(t, extractor.Calls())
}

func TestMatchClosestWithinTolerance(t *testing.T) {
	cache := mustCache(t,
		StudentReference{ID: "far", Descriptor: descriptor(0.45, 0)},
		StudentReference{ID: "near", Descriptor: descriptor(0.1, 0)},
	)
	extractor := &scriptedExtractor{faces: map[string][]DetectedFace{"X": {face(0, 0)}}}
	m := NewMatcher(extractor)

	res := m.Match(context.Background(), Frame{Image: []byte("X")}, cache, time.Now())
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, []string{"near"}, res.PresentIDs)
}

func TestMatchTieGoesToFirstIndex(t *testing.T) {
	cache := mustCache(t,
		StudentReference{ID: "first", Descriptor: descriptor(0.2, 0)},
		StudentReference{ID: "second", Descriptor: descriptor(-0.2, 0)},
	)
	extractor := &scriptedExtractor{faces: map[string][]DetectedFace{"X": {face(0, 0)}}}

	res := NewMatcher(extractor).Match(context.Background(), Frame{Image: []byte("X")}, cache, time.Now())
	assert.Equal(t, []string{"first"}, res.PresentIDs)
}

func TestMatchOutsideToleranceIsUnknown(t *testing.T) {
	cache := mustCache(t, StudentReference{ID: "1", Descriptor: descriptor(1, 1)})
	extractor := &scriptedExtractor{faces: map[string][]DetectedFace{"X": {face(0, 0)}}}

	res := NewMatcher(extractor, WithTolerance(0.5)).Match(context.Background(), Frame{Image: []byte("X")}, cache, time.Now())
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Equal(t, 1, res.Unknown)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "Unrecognized face")
}

func TestMatchStudentCountedOncePerCycle(t *testing.T) {
	cache := mustCache(t, StudentReference{ID: "1", Descriptor: descriptor(0, 0)})
	extractor := &scriptedExtractor{faces: map[string][]DetectedFace{
		"X": {face(0, 0), face(0.01, 0), face(0, 0.02)},
	}}

	res := NewMatcher(extractor).Match(context.Background(), Frame{Image: []byte("X")}, cache, time.Now())
	assert.Equal(t, []string{"1"}, res.PresentIDs)
	assert.Equal(t, 3, res.Faces)
	assert.Len(t, res.Messages, 1)
}

func TestMatchFallbackStopsAtFirstSuccess(t *testing.T) {
	cache := mustCache(t, StudentReference{ID: "1", Descriptor: descriptor(0, 0)})
	extractor := &scriptedExtractor{byMode: map[DetectMode][]DetectedFace{
		ModeSecondary: {face(0, 0)},
		ModeFullSize:  {face(0, 0)},
	}}

	res := NewMatcher(extractor).Match(context.Background(), Frame{}, cache, time.Now())
	assert.Equal(t, ModeSecondary, res.Mode)
	assert.Equal(t, []DetectMode{ModePrimary, ModePermissive, ModeSecondary}, extractor.Calls())
	assert.Equal(t, []string{"1"}, res.PresentIDs)
}

func TestMatchExtractionErrorFallsThrough(t *testing.T) {
	cache := mustCache(t, StudentReference{ID: "1", Descriptor: descriptor(0, 0)})
	extractor := &scriptedExtractor{
		byMode: map[DetectMode][]DetectedFace{ModePermissive: {face(0, 0)}},
		errs:   map[DetectMode]error{ModePrimary: errors.New("decode failed")},
	}

	res := NewMatcher(extractor).Match(context.Background(), Frame{}, cache, time.Now())
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, ModePermissive, res.Mode)
}

func TestMatchNoFaceAfterAllFallbacks(t *testing.T) {
	cache := mustCache(t, StudentReference{ID: "1", Descriptor: descriptor(0, 0)})
	extractor := &scriptedExtractor{byMode: map[DetectMode][]DetectedFace{}}
	at := time.Date(2024, 5, 2, 9, 30, 15, 0, time.UTC)

	res := NewMatcher(extractor).Match(context.Background(), Frame{}, cache, at)
	assert.Equal(t, OutcomeNoFace, res.Outcome)
	assert.Equal(t, DefaultModes, extractor.Calls())
	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasPrefix(res.Messages[0], "[09:30:15] "))
}

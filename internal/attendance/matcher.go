package attendance

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTolerance ist die maximale Distanz, bei der ein Gesicht als Treffer gilt.
const DefaultTolerance = 0.5

// DistanceFunc berechnet die Distanz zweier Deskriptoren.
type DistanceFunc func(a, b Descriptor) float64

// EuclideanDistance berechnet die euklidische Distanz.
// Deskriptoren unterschiedlicher Länge sind unendlich weit entfernt.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Outcome ist das Gesamtergebnis eines Prüfzyklus.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeNoMatch    Outcome = "no_match"
	OutcomeNoFace     Outcome = "no_face"
	OutcomeNoStudents Outcome = "no_students"
)

// Result ist das Ergebnis eines Abgleichs.
type Result struct {
	Outcome    Outcome
	PresentIDs []string
	Faces      int
	Unknown    int
	Mode       DetectMode
	Messages   []string
}

// Matcher gleicht die Gesichter eines Frames mit dem Referenz-Cache ab.
type Matcher struct {
	extractor FaceExtractor
	tolerance float64
	distance  DistanceFunc
	modes     []DetectMode
	catalog   Catalog
}

// MatcherOption konfiguriert einen Matcher.
type MatcherOption func(*Matcher)

// WithTolerance setzt die Toleranzschwelle.
func WithTolerance(t float64) MatcherOption {
	return func(m *Matcher) {
		if t > 0 {
			m.tolerance = t
		}
	}
}

// WithDistance ersetzt die Distanzfunktion.
func WithDistance(fn DistanceFunc) MatcherOption {
	return func(m *Matcher) {
		if fn != nil {
			m.distance = fn
		}
	}
}

// WithModes ersetzt die Fallback-Reihenfolge der Erkennung.
func WithModes(modes ...DetectMode) MatcherOption {
	return func(m *Matcher) {
		if len(modes) > 0 {
			m.modes = modes
		}
	}
}

// WithCatalog setzt den Nachrichtenkatalog.
func WithCatalog(c Catalog) MatcherOption {
	return func(m *Matcher) {
		if c != nil {
			m.catalog = c
		}
	}
}

// NewMatcher erstellt einen Matcher mit euklidischer Distanz und Toleranz 0.5.
func NewMatcher(extractor FaceExtractor, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		extractor: extractor,
		tolerance: DefaultTolerance,
		distance:  EuclideanDistance,
		modes:     DefaultModes,
		catalog:   NewEnglishCatalog(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match erkennt Gesichter im Frame und ordnet sie Schülern aus dem Cache zu.
// Jeder Schüler wird pro Zyklus höchstens einmal gezählt.
func (m *Matcher) Match(ctx context.Context, frame Frame, cache *ReferenceCache, at time.Time) Result {
	stamp := "[" + at.Format("15:04:05") + "] "

	if cache.Len() == 0 {
		return Result{
			Outcome:  OutcomeNoStudents,
			Messages: []string{stamp + m.catalog.Message(MsgNoStudents, nil)},
		}
	}

	faces, mode := m.detect(ctx, frame)
	res := Result{Mode: mode, Faces: len(faces)}
	if len(faces) == 0 {
		res.Outcome = OutcomeNoFace
		res.Messages = []string{stamp + m.catalog.Message(MsgNoFace, nil)}
		return res
	}

	seen := make(map[string]struct{})
	for _, f := range faces {
		idx := m.closest(f.Descriptor, cache)
		if idx < 0 {
			res.Unknown++
			res.Messages = append(res.Messages, stamp+m.catalog.Message(MsgUnknownFace, nil))
			continue
		}
		id := cache.ID(idx)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res.PresentIDs = append(res.PresentIDs, id)
		res.Messages = append(res.Messages, stamp+m.catalog.Message(MsgPresenceConfirmed, map[string]interface{}{
			"StudentID": id,
		}))
	}

	res.Outcome = OutcomeNoMatch
	if len(res.PresentIDs) > 0 {
		res.Outcome = OutcomeMatched
	}
	return res
}

// detect durchläuft die Fallback-Kette und stoppt beim ersten Treffer.
func (m *Matcher) detect(ctx context.Context, frame Frame) ([]DetectedFace, DetectMode) {
	last := ModePrimary
	for _, mode := range m.modes {
		if ctx.Err() != nil {
			return nil, last
		}
		last = mode
		faces, err := m.extractor.Extract(ctx, frame, mode)
		if err != nil {
			log.WithError(err).WithField("mode", mode.String()).Warn("Face extraction failed, trying next detector")
			continue
		}
		if len(faces) > 0 {
			if mode != ModePrimary {
				log.Debugf("Faces found by fallback detector %s", mode)
			}
			return faces, mode
		}
	}
	return nil, last
}

// closest gibt den Index der nächsten Referenz innerhalb der Toleranz zurück, sonst -1.
// Bei gleicher Distanz gewinnt der kleinere Index.
func (m *Matcher) closest(d Descriptor, cache *ReferenceCache) int {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < cache.Len(); i++ {
		dist := m.distance(d, cache.Descriptor(i))
		if dist <= m.tolerance && dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

package attendance

import (
	"fmt"
	"math"
)

// ReferenceCache ist ein unveränderlicher Schnappschuss der Referenz-Deskriptoren.
// ids und descriptors sind parallel indiziert. Ein Reload ersetzt den ganzen Cache.
type ReferenceCache struct {
	ids         []string
	descriptors []Descriptor
	index       map[string]int
}

// BuildReferenceCache validiert die Schülerdaten und baut daraus einen neuen Cache.
// dim <= 0 deaktiviert die Längenprüfung (alle Deskriptoren müssen dann gleich lang sein).
func BuildReferenceCache(refs []StudentReference, dim int) (*ReferenceCache, error) {
	c := &ReferenceCache{
		ids:         make([]string, 0, len(refs)),
		descriptors: make([]Descriptor, 0, len(refs)),
		index:       make(map[string]int, len(refs)),
	}

	for i, ref := range refs {
		if ref.ID == "" {
			return nil, fmt.Errorf("student at position %d has an empty id", i)
		}
		if _, dup := c.index[ref.ID]; dup {
			return nil, fmt.Errorf("duplicate student id %q", ref.ID)
		}
		if len(ref.Descriptor) == 0 {
			return nil, fmt.Errorf("student %q has no face descriptor", ref.ID)
		}
		if dim <= 0 && len(c.descriptors) > 0 {
			dim = len(c.descriptors[0])
		}
		if dim > 0 && len(ref.Descriptor) != dim {
			return nil, fmt.Errorf("student %q: descriptor has %d values, expected %d", ref.ID, len(ref.Descriptor), dim)
		}
		for _, v := range ref.Descriptor {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("student %q: descriptor contains invalid values", ref.ID)
			}
		}

		d := make(Descriptor, len(ref.Descriptor))
		copy(d, ref.Descriptor)
		c.index[ref.ID] = len(c.ids)
		c.ids = append(c.ids, ref.ID)
		c.descriptors = append(c.descriptors, d)
	}

	return c, nil
}

// emptyCache ist der Zustand vor dem ersten erfolgreichen Reload.
func emptyCache() *ReferenceCache {
	return &ReferenceCache{index: map[string]int{}}
}

// Len gibt die Anzahl der Schüler im Cache zurück.
func (c *ReferenceCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// IDs gibt eine Kopie der Schüler-IDs in Cache-Reihenfolge zurück.
func (c *ReferenceCache) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Descriptor gibt den Deskriptor an Position i zurück.
func (c *ReferenceCache) Descriptor(i int) Descriptor {
	return c.descriptors[i]
}

// ID gibt die Schüler-ID an Position i zurück.
func (c *ReferenceCache) ID(i int) string {
	return c.ids[i]
}

// Contains prüft, ob ein Schüler im Cache enthalten ist.
func (c *ReferenceCache) Contains(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

// Equal vergleicht zwei Caches auf gleiche IDs, Deskriptoren und Reihenfolge.
func (c *ReferenceCache) Equal(other *ReferenceCache) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i := range c.ids {
		if c.ids[i] != other.ids[i] || len(c.descriptors[i]) != len(other.descriptors[i]) {
			return false
		}
		for j := range c.descriptors[i] {
			if c.descriptors[i][j] != other.descriptors[i][j] {
				return false
			}
		}
	}
	return true
}

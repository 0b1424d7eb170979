// Package collision holds the planning scene and the configuration-space feasibility queries the
// sampling planners and trajectory programs are built on.
package collision

import (
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/tamp/spatialmath"
)

// Limit bounds one configuration dimension.
type Limit struct {
	Min, Max float64
}

// Body is a spherical robot link whose workspace center is linear in the configuration:
// Offset + sum_i q[i]*Axes[i].
type Body struct {
	Name   string
	Radius float64
	Offset r3.Vector
	Axes   []r3.Vector
}

// Center returns the workspace position of the body at configuration q.
func (b *Body) Center(q []float64) r3.Vector {
	c := b.Offset
	for i, axis := range b.Axes {
		if i >= len(q) {
			break
		}
		c = c.Add(axis.Mul(q[i]))
	}
	return c
}

// Geometry returns the body placed at configuration q.
func (b *Body) Geometry(q []float64) spatialmath.Geometry {
	s, _ := spatialmath.NewSphere(b.Center(q), b.Radius, b.Name)
	return s
}

// Pair names two scene entities whose distance is checked.
type Pair struct {
	A, B string
	a, b entity
}

type entity struct {
	body     *Body
	obstacle spatialmath.Geometry
}

func (e entity) geometry(q []float64) spatialmath.Geometry {
	if e.body != nil {
		return e.body.Geometry(q)
	}
	return e.obstacle
}

// Distance is the signed distance between the two entities at configuration q.
func (p Pair) Distance(q []float64) (float64, error) {
	return p.a.geometry(q).DistanceFrom(p.b.geometry(q))
}

// Scene is the shared, read-only description of the world: configuration limits, robot bodies,
// static obstacles and named target configurations. It is never mutated after construction.
type Scene struct {
	start     []float64
	limits    []Limit
	bodies    []*Body
	obstacles []spatialmath.Geometry
	places    map[string][]float64
	entities  map[string]entity
}

// NewScene validates and assembles a scene. Bodies without axes map the first configuration
// coordinates to the workspace x, y and z directions.
func NewScene(
	start []float64,
	limits []Limit,
	bodies []*Body,
	obstacles []spatialmath.Geometry,
	places map[string][]float64,
) (*Scene, error) {
	dim := len(start)
	if dim == 0 {
		return nil, errors.New("scene start configuration is empty")
	}
	if len(limits) != dim {
		return nil, errors.Errorf("scene has %d limits for a %d dimensional configuration", len(limits), dim)
	}
	for i, l := range limits {
		if l.Min > l.Max {
			return nil, errors.Errorf("limit %d has min %f greater than max %f", i, l.Min, l.Max)
		}
	}

	s := &Scene{
		start:     append([]float64{}, start...),
		limits:    append([]Limit{}, limits...),
		obstacles: obstacles,
		places:    map[string][]float64{},
		entities:  map[string]entity{},
	}
	for _, b := range bodies {
		if b.Name == "" {
			return nil, errors.New("scene body has no name")
		}
		if _, ok := s.entities[b.Name]; ok {
			return nil, errors.Errorf("duplicate scene entity name %q", b.Name)
		}
		if len(b.Axes) == 0 {
			b.Axes = defaultAxes(dim)
		}
		if len(b.Axes) > dim {
			return nil, errors.Errorf("body %q has %d axes for a %d dimensional configuration", b.Name, len(b.Axes), dim)
		}
		s.bodies = append(s.bodies, b)
		s.entities[b.Name] = entity{body: b}
	}
	for _, o := range obstacles {
		if o.Label() == "" {
			return nil, errors.New("scene obstacle has no label")
		}
		if _, ok := s.entities[o.Label()]; ok {
			return nil, errors.Errorf("duplicate scene entity name %q", o.Label())
		}
		s.entities[o.Label()] = entity{obstacle: o}
	}
	for name, q := range places {
		if len(q) != dim {
			return nil, errors.Errorf("place %q has dimension %d, expected %d", name, len(q), dim)
		}
		s.places[name] = append([]float64{}, q...)
	}
	return s, nil
}

func defaultAxes(dim int) []r3.Vector {
	units := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	if dim < len(units) {
		return units[:dim]
	}
	return units
}

// Dim is the configuration dimension.
func (s *Scene) Dim() int {
	return len(s.start)
}

// Start returns a copy of the initial configuration.
func (s *Scene) Start() []float64 {
	return append([]float64{}, s.start...)
}

// Limits returns the configuration limits.
func (s *Scene) Limits() []Limit {
	return s.limits
}

// Bodies returns the robot bodies.
func (s *Scene) Bodies() []*Body {
	return s.bodies
}

// Obstacles returns the static obstacles.
func (s *Scene) Obstacles() []spatialmath.Geometry {
	return s.obstacles
}

// Place returns a copy of the named target configuration.
func (s *Scene) Place(name string) ([]float64, bool) {
	q, ok := s.places[name]
	if !ok {
		return nil, false
	}
	return append([]float64{}, q...), true
}

// Body looks up a robot body by name.
func (s *Scene) Body(name string) (*Body, bool) {
	e, ok := s.entities[name]
	if !ok || e.body == nil {
		return nil, false
	}
	return e.body, true
}

// LimitViolation returns the summed amount by which q leaves the configuration limits.
func (s *Scene) LimitViolation(q []float64) float64 {
	total := 0.
	for i, l := range s.limits {
		if q[i] < l.Min {
			total += l.Min - q[i]
		} else if q[i] > l.Max {
			total += q[i] - l.Max
		}
	}
	return total
}

// SampleUniform draws a configuration uniformly within the limits.
func (s *Scene) SampleUniform(rnd *rand.Rand) []float64 {
	q := make([]float64, len(s.limits))
	for i, l := range s.limits {
		q[i] = l.Min + rnd.Float64()*(l.Max-l.Min)
	}
	return q
}

// Pairs lists the entity pairs to check. With generic set every body is paired with every
// obstacle; explicit pairs are added on top, without duplicates.
func (s *Scene) Pairs(generic bool, explicit [][2]string) ([]Pair, error) {
	pairs := []Pair{}
	seen := map[[2]string]bool{}
	add := func(a, b string) error {
		if seen[[2]string{a, b}] || seen[[2]string{b, a}] {
			return nil
		}
		ea, ok := s.entities[a]
		if !ok {
			return errors.Errorf("unknown collision entity %q", a)
		}
		eb, ok := s.entities[b]
		if !ok {
			return errors.Errorf("unknown collision entity %q", b)
		}
		if ea.body == nil && eb.body == nil {
			return errors.Errorf("collision pair (%s, %s) has no robot body", a, b)
		}
		seen[[2]string{a, b}] = true
		pairs = append(pairs, Pair{A: a, B: b, a: ea, b: eb})
		return nil
	}
	if generic {
		for _, b := range s.bodies {
			for _, o := range s.obstacles {
				if err := add(b.Name, o.Label()); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, p := range explicit {
		if err := add(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

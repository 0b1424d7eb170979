package spatialmath

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// sphere is a collision geometry that represents a sphere.
type sphere struct {
	center r3.Vector
	radius float64
	label  string
}

// NewSphere instantiates a new sphere Geometry.
func NewSphere(center r3.Vector, radius float64, label string) (Geometry, error) {
	s := &sphere{center: center, radius: radius, label: label}
	if radius < 0 {
		return nil, newBadGeometryDimensionsError(s)
	}
	return s, nil
}

func (s *sphere) String() string {
	return fmt.Sprintf("Type: Sphere | Center: %v | Radius: %.3f", s.center, s.radius)
}

func (s *sphere) MarshalJSON() ([]byte, error) {
	return json.Marshal(GeometryConfig{
		Type:   SphereType,
		R:      s.radius,
		Center: []float64{s.center.X, s.center.Y, s.center.Z},
		Label:  s.label,
	})
}

func (s *sphere) Label() string {
	return s.label
}

func (s *sphere) Center() r3.Vector {
	return s.center
}

func (s *sphere) Translate(pt r3.Vector) Geometry {
	return &sphere{center: pt, radius: s.radius, label: s.label}
}

func (s *sphere) ClosestPoint(pt r3.Vector) r3.Vector {
	direction := pt.Sub(s.center)
	norm := direction.Norm()
	if norm <= s.radius {
		return pt
	}
	return s.center.Add(direction.Mul(s.radius / norm))
}

// CollidesWith checks if the given sphere collides with the given geometry and returns true if it does.
func (s *sphere) CollidesWith(g Geometry, buffer float64) (bool, float64, error) {
	d, err := s.DistanceFrom(g)
	if err != nil {
		return true, buffer, err
	}
	return d <= buffer, d, nil
}

func (s *sphere) DistanceFrom(g Geometry) (float64, error) {
	switch other := g.(type) {
	case *box:
		return sphereVsBoxDistance(s, other), nil
	case *sphere:
		return sphereVsSphereDistance(s, other), nil
	default:
		return math.Inf(-1), newCollisionTypeUnsupportedError(s, g)
	}
}

func sphereVsSphereDistance(a, b *sphere) float64 {
	return a.center.Sub(b.center).Norm() - (a.radius + b.radius)
}

// sphereVsBoxDistance takes a box and a sphere as arguments and returns a floating point number.
// If this number is nonpositive it represents the penetration depth of the two geometries, which are
// in collision. If it is positive it represents the separation distance between them.
func sphereVsBoxDistance(s *sphere, b *box) float64 {
	if b.contains(s.center) {
		return -b.pointPenetrationDepth(s.center) - s.radius
	}
	return s.center.Sub(b.ClosestPoint(s.center)).Norm() - s.radius
}

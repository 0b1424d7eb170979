package spatialmath

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// box is an axis aligned rectangular prism defined by its center and half size.
type box struct {
	centerPt r3.Vector
	halfSize [3]float64
	label    string
}

// NewBox instantiates a new axis aligned box Geometry. dims holds the full side lengths.
func NewBox(center, dims r3.Vector, label string) (Geometry, error) {
	b := &box{centerPt: center, halfSize: [3]float64{dims.X / 2, dims.Y / 2, dims.Z / 2}, label: label}
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, newBadGeometryDimensionsError(b)
	}
	return b, nil
}

func (b *box) String() string {
	return fmt.Sprintf("Type: Box | Center: %v | Dims: (%.3f, %.3f, %.3f)",
		b.centerPt, 2*b.halfSize[0], 2*b.halfSize[1], 2*b.halfSize[2])
}

func (b *box) MarshalJSON() ([]byte, error) {
	return json.Marshal(GeometryConfig{
		Type:   BoxType,
		X:      2 * b.halfSize[0],
		Y:      2 * b.halfSize[1],
		Z:      2 * b.halfSize[2],
		Center: []float64{b.centerPt.X, b.centerPt.Y, b.centerPt.Z},
		Label:  b.label,
	})
}

func (b *box) Label() string {
	return b.label
}

func (b *box) Center() r3.Vector {
	return b.centerPt
}

func (b *box) Translate(pt r3.Vector) Geometry {
	return &box{centerPt: pt, halfSize: b.halfSize, label: b.label}
}

// CollidesWith checks if the given box collides with the given geometry and returns true if it
// does. If there's no collision, the method will return the distance between the box and input
// geometry.
func (b *box) CollidesWith(g Geometry, buffer float64) (bool, float64, error) {
	d, err := b.DistanceFrom(g)
	if err != nil {
		return true, buffer, err
	}
	return d <= buffer, d, nil
}

func (b *box) DistanceFrom(g Geometry) (float64, error) {
	switch other := g.(type) {
	case *box:
		return boxVsBoxDistance(b, other), nil
	case *sphere:
		return sphereVsBoxDistance(other, b), nil
	default:
		return math.Inf(-1), newCollisionTypeUnsupportedError(b, g)
	}
}

// ClosestPoint returns the closest point on the box to the specified point.
func (b *box) ClosestPoint(pt r3.Vector) r3.Vector {
	lo, hi := b.bounds()
	return r3.Vector{
		X: math.Max(lo.X, math.Min(hi.X, pt.X)),
		Y: math.Max(lo.Y, math.Min(hi.Y, pt.Y)),
		Z: math.Max(lo.Z, math.Min(hi.Z, pt.Z)),
	}
}

// pointPenetrationDepth returns the minimum distance needed to move a pt inside the box to the edge of the box.
func (b *box) pointPenetrationDepth(pt r3.Vector) float64 {
	direction := pt.Sub(b.centerPt)
	projection := [3]float64{direction.X, direction.Y, direction.Z}
	//nolint: revive
	min := math.Inf(1)
	for i := 0; i < 3; i++ {
		if distance := b.halfSize[i] - math.Abs(projection[i]); distance < min {
			//nolint: revive
			min = distance
		}
	}
	return min
}

func (b *box) contains(pt r3.Vector) bool {
	lo, hi := b.bounds()
	return pt.X >= lo.X && pt.X <= hi.X && pt.Y >= lo.Y && pt.Y <= hi.Y && pt.Z >= lo.Z && pt.Z <= hi.Z
}

func (b *box) bounds() (r3.Vector, r3.Vector) {
	half := r3.Vector{X: b.halfSize[0], Y: b.halfSize[1], Z: b.halfSize[2]}
	return b.centerPt.Sub(half), b.centerPt.Add(half)
}

// boxVsBoxDistance returns the gap between two axis aligned boxes, or the negated smallest overlap
// along any axis when they interpenetrate.
func boxVsBoxDistance(a, b *box) float64 {
	delta := a.centerPt.Sub(b.centerPt)
	centers := [3]float64{delta.X, delta.Y, delta.Z}
	gaps := [3]float64{}
	colliding := true
	for i := 0; i < 3; i++ {
		gaps[i] = math.Abs(centers[i]) - a.halfSize[i] - b.halfSize[i]
		if gaps[i] > 0 {
			colliding = false
		}
	}
	if colliding {
		return math.Max(gaps[0], math.Max(gaps[1], gaps[2]))
	}
	sum := 0.
	for _, g := range gaps {
		if g > 0 {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

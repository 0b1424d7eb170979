// Package spatialmath defines the workspace collision geometries used by the planning scene.
package spatialmath

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Geometry is an entry point with which to access all types of collision geometries.
type Geometry interface {
	Label() string
	Center() r3.Vector
	// Translate returns a copy of the geometry with its center moved to pt.
	Translate(pt r3.Vector) Geometry
	// ClosestPoint returns the closest point on the geometry surface or interior to pt.
	ClosestPoint(pt r3.Vector) r3.Vector
	// CollidesWith checks whether the two geometries are closer than the buffer. The distance is
	// negative when the geometries interpenetrate.
	CollidesWith(g Geometry, buffer float64) (bool, float64, error)
	// DistanceFrom is the signed distance between the two geometries. Penetration is negative.
	DistanceFrom(g Geometry) (float64, error)
	json.Marshaler
	fmt.Stringer
}

// GeometryType defines what geometry creator representations are known.
type GeometryType string

// The set of allowed representations for collision geometries.
const (
	BoxType    = GeometryType("box")
	SphereType = GeometryType("sphere")
)

// GeometryConfig specifies the format of geometries specified through the configuration file.
type GeometryConfig struct {
	Type GeometryType `json:"type" yaml:"type" mapstructure:"type"`

	// parameters used for defining a box's rectangular cross section
	X float64 `json:"x,omitempty" yaml:"x,omitempty" mapstructure:"x"`
	Y float64 `json:"y,omitempty" yaml:"y,omitempty" mapstructure:"y"`
	Z float64 `json:"z,omitempty" yaml:"z,omitempty" mapstructure:"z"`

	// parameter used for defining a sphere's radius
	R float64 `json:"r,omitempty" yaml:"r,omitempty" mapstructure:"r"`

	Center []float64 `json:"center,omitempty" yaml:"center,omitempty" mapstructure:"center"`
	Label  string    `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
}

// ParseConfig converts a GeometryConfig into the correct Geometry type.
func (config *GeometryConfig) ParseConfig() (Geometry, error) {
	center, err := vectorFromSlice(config.Center)
	if err != nil {
		return nil, errors.Wrapf(err, "geometry %q", config.Label)
	}
	switch config.Type {
	case BoxType:
		return NewBox(center, r3.Vector{X: config.X, Y: config.Y, Z: config.Z}, config.Label)
	case SphereType:
		return NewSphere(center, config.R, config.Label)
	case "":
		return nil, errors.Errorf("geometry %q has no type", config.Label)
	default:
		return nil, newGeometryTypeUnsupportedError(string(config.Type))
	}
}

func vectorFromSlice(v []float64) (r3.Vector, error) {
	switch len(v) {
	case 0:
		return r3.Vector{}, nil
	case 1:
		return r3.Vector{X: v[0]}, nil
	case 2:
		return r3.Vector{X: v[0], Y: v[1]}, nil
	case 3:
		return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return r3.Vector{}, errors.Errorf("center must have at most 3 coordinates, got %d", len(v))
	}
}

func newBadGeometryDimensionsError(g Geometry) error {
	return fmt.Errorf("invalid dimension(s) for Geometry type %T", g)
}

func newCollisionTypeUnsupportedError(g1, g2 Geometry) error {
	return fmt.Errorf("collisions between %T and %T are not supported", g1, g2)
}

func newGeometryTypeUnsupportedError(geomType string) error {
	return errors.Errorf("unsupported Geometry type: %s", geomType)
}

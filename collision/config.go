package collision

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/tamp/spatialmath"
)

// BodyConfig describes a robot body in a scene file.
type BodyConfig struct {
	Name   string      `json:"name" yaml:"name" mapstructure:"name"`
	Radius float64     `json:"radius" yaml:"radius" mapstructure:"radius"`
	Offset []float64   `json:"offset,omitempty" yaml:"offset,omitempty" mapstructure:"offset"`
	Axes   [][]float64 `json:"axes,omitempty" yaml:"axes,omitempty" mapstructure:"axes"`
}

// SceneConfig is the serialized form of a Scene.
type SceneConfig struct {
	Start     []float64                    `json:"start" yaml:"start" mapstructure:"start"`
	Limits    [][]float64                  `json:"limits" yaml:"limits" mapstructure:"limits"`
	Bodies    []BodyConfig                 `json:"bodies" yaml:"bodies" mapstructure:"bodies"`
	Obstacles []spatialmath.GeometryConfig `json:"obstacles,omitempty" yaml:"obstacles,omitempty" mapstructure:"obstacles"`
	Places    map[string][]float64         `json:"places,omitempty" yaml:"places,omitempty" mapstructure:"places"`
}

// Build converts the config into a Scene.
func (cfg *SceneConfig) Build() (*Scene, error) {
	limits := make([]Limit, 0, len(cfg.Limits))
	for i, l := range cfg.Limits {
		if len(l) != 2 {
			return nil, errors.Errorf("limit %d must be a [min, max] pair", i)
		}
		limits = append(limits, Limit{Min: l[0], Max: l[1]})
	}

	bodies := make([]*Body, 0, len(cfg.Bodies))
	for _, bc := range cfg.Bodies {
		offset, err := vector(bc.Offset)
		if err != nil {
			return nil, errors.Wrapf(err, "body %q offset", bc.Name)
		}
		b := &Body{Name: bc.Name, Radius: bc.Radius, Offset: offset}
		for _, a := range bc.Axes {
			axis, err := vector(a)
			if err != nil {
				return nil, errors.Wrapf(err, "body %q axis", bc.Name)
			}
			b.Axes = append(b.Axes, axis)
		}
		bodies = append(bodies, b)
	}

	obstacles := make([]spatialmath.Geometry, 0, len(cfg.Obstacles))
	for i := range cfg.Obstacles {
		g, err := cfg.Obstacles[i].ParseConfig()
		if err != nil {
			return nil, err
		}
		obstacles = append(obstacles, g)
	}
	return NewScene(cfg.Start, limits, bodies, obstacles, cfg.Places)
}

func vector(v []float64) (r3.Vector, error) {
	out := [3]float64{}
	if len(v) > 3 {
		return r3.Vector{}, errors.Errorf("expected at most 3 coordinates, got %d", len(v))
	}
	copy(out[:], v)
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}

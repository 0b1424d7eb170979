package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/tamp/collision"
	"go.viam.com/tamp/symbolic"
)

// ErrSequentialGenericCollisions is returned when the sequential waypoint solver is combined with
// generic collisions, which it cannot factor.
var ErrSequentialGenericCollisions = errors.New("sequential waypoint solver does not support generic collisions")

// ProblemFile is the serialized form of a planning problem.
type ProblemFile struct {
	Options            map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
	Scene              collision.SceneConfig  `json:"scene" yaml:"scene"`
	Domain             *symbolic.Domain       `json:"domain,omitempty" yaml:"domain,omitempty"`
	Skeleton           []symbolic.Entry       `json:"skeleton,omitempty" yaml:"skeleton,omitempty"`
	ExplicitCollisions [][]string             `json:"explicit_collisions,omitempty" yaml:"explicit_collisions,omitempty"`
	ExplicitLift       []string               `json:"explicit_lift,omitempty" yaml:"explicit_lift,omitempty"`
}

// Problem is a validated planning problem.
type Problem struct {
	Options            *Options
	Scene              *collision.Scene
	Domain             *symbolic.Domain
	Skeleton           *symbolic.Skeleton
	ExplicitCollisions [][2]string
	ExplicitLift       []string
}

// FromAttributes decodes attributes onto the defaults and validates the result. Unknown keys are
// an error.
func FromAttributes(attributes map[string]interface{}) (*Options, error) {
	opts := NewOptions()
	if len(attributes) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "error creating decoder")
		}
		if err := decoder.Decode(attributes); err != nil {
			return nil, errors.Wrap(err, "error decoding options")
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Read reads a problem from the given file after expanding environment variables. Files ending in
// .yaml or .yml are read as YAML, everything else as JSON.
func Read(filePath string) (*Problem, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromBytes(filePath, buf)
}

// FromBytes parses a problem; originalPath picks the format.
func FromBytes(originalPath string, buf []byte) (*Problem, error) {
	var pf ProblemFile
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(buf, &pf); err != nil {
			return nil, errors.Wrapf(err, "cannot parse %s", originalPath)
		}
	default:
		if err := json.Unmarshal(buf, &pf); err != nil {
			return nil, errors.Wrapf(err, "cannot parse %s", originalPath)
		}
	}
	return pf.Build()
}

// Build validates the file contents and assembles the problem.
func (pf *ProblemFile) Build() (*Problem, error) {
	opts, err := FromAttributes(pf.Options)
	if err != nil {
		return nil, err
	}
	scene, err := pf.Scene.Build()
	if err != nil {
		return nil, errors.Wrap(err, "invalid scene")
	}
	p := &Problem{Options: opts, Scene: scene, Domain: pf.Domain, ExplicitLift: pf.ExplicitLift}
	for i, pair := range pf.ExplicitCollisions {
		if len(pair) != 2 {
			return nil, errors.Errorf("explicit collision %d must name two entities", i)
		}
		p.ExplicitCollisions = append(p.ExplicitCollisions, [2]string{pair[0], pair[1]})
	}
	if len(pf.Skeleton) > 0 {
		if p.Skeleton, err = symbolic.NewSkeleton(pf.Skeleton); err != nil {
			return nil, err
		}
	}
	if p.Domain == nil && p.Skeleton == nil {
		return nil, errors.New("problem needs a domain or a skeleton")
	}
	if p.Domain != nil {
		if err := p.Domain.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid domain")
		}
	}
	return p, nil
}

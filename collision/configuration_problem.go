package collision

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultCollisionTolerance is the penetration a configuration may have and still count as free.
const DefaultCollisionTolerance = .03

// Collision is a pair of entity names in collision and the signed distance between them.
type Collision struct {
	Name1, Name2 string
	Distance     float64
}

// QueryResult is the outcome of a single configuration query.
type QueryResult struct {
	IsFeasible     bool
	WithinLimits   bool
	Collisions     []Collision
	MinDistance    float64
	LimitViolation float64
}

// ConfigurationProblem answers feasibility queries against a scene. It is not safe for concurrent
// use; every sampling planner owns its own instance.
type ConfigurationProblem struct {
	scene                *Scene
	pairs                []Pair
	CollisionTolerance   float64
	ComputeAllCollisions bool
	evals                int
}

// NewConfigurationProblem returns a problem checking all body/obstacle pairs when computeCollisions is set.
func NewConfigurationProblem(scene *Scene, computeCollisions bool, collisionTolerance float64) *ConfigurationProblem {
	// generic pairs over a validated scene never fail to resolve
	pairs, _ := scene.Pairs(computeCollisions, nil)
	return &ConfigurationProblem{
		scene:                scene,
		pairs:                pairs,
		CollisionTolerance:   collisionTolerance,
		ComputeAllCollisions: computeCollisions,
	}
}

// SetExplicitCollisionPairs adds named pairs that are checked regardless of ComputeAllCollisions.
func (p *ConfigurationProblem) SetExplicitCollisionPairs(explicit [][2]string) error {
	pairs, err := p.scene.Pairs(p.ComputeAllCollisions, explicit)
	if err != nil {
		return err
	}
	p.pairs = pairs
	return nil
}

// Scene returns the scene the problem queries.
func (p *ConfigurationProblem) Scene() *Scene {
	return p.scene
}

// Evals is how many configurations have been queried.
func (p *ConfigurationProblem) Evals() int {
	return p.evals
}

// Query checks limits and every configured pair at q.
func (p *ConfigurationProblem) Query(q []float64) *QueryResult {
	p.evals++
	qr := &QueryResult{MinDistance: math.Inf(1)}
	qr.LimitViolation = p.scene.LimitViolation(q)
	qr.WithinLimits = qr.LimitViolation == 0
	for _, pair := range p.pairs {
		d, err := pair.Distance(q)
		if err != nil {
			d = math.Inf(-1)
		}
		if d < qr.MinDistance {
			qr.MinDistance = d
		}
		if d < -p.CollisionTolerance {
			qr.Collisions = append(qr.Collisions, Collision{Name1: pair.A, Name2: pair.B, Distance: d})
		}
	}
	qr.IsFeasible = qr.WithinLimits && len(qr.Collisions) == 0
	return qr
}

// CheckEdge validates the straight segment from a to b, querying interpolated configurations no
// further than resolution apart. The start configuration is assumed valid.
func (p *ConfigurationProblem) CheckEdge(a, b []float64, resolution float64) bool {
	dist := floats.Distance(a, b, 2)
	steps := 1
	if resolution > 0 {
		steps = int(math.Ceil(dist / resolution))
		if steps < 1 {
			steps = 1
		}
	}
	q := make([]float64, len(a))
	for i := 1; i <= steps; i++ {
		by := float64(i) / float64(steps)
		for j := range q {
			q[j] = a[j] + by*(b[j]-a[j])
		}
		if !p.Query(q).IsFeasible {
			return false
		}
	}
	return true
}

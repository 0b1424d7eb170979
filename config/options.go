// Package config defines the planner options and reads problem files.
package config

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/multierr"

	"go.viam.com/tamp/utils"
)

// Kinds of node a skeleton refines into.
const (
	SkeletonChildWaypoints   = "waypoints"
	SkeletonChildPoseBound   = "pose_bound"
	SkeletonChildFactorBound = "factor_bound"
)

// Environment variables overriding option defaults.
const (
	VerboseEnv    = "LGP_VERBOSE"
	NumThreadsEnv = "LGP_NUM_THREADS"
)

// Options is the immutable configuration of a planning tree. It is read once at tree construction.
type Options struct {
	Verbose    int    `json:"verbose" yaml:"verbose"`
	RandomSeed int64  `json:"random_seed" yaml:"random_seed"`
	NumThreads int    `json:"num_threads" yaml:"num_threads"`
	ReportDir  string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`

	SkeletonChild  string `json:"skeleton_child" yaml:"skeleton_child"`
	SearchMaxDepth int    `json:"search_max_depth" yaml:"search_max_depth"`

	WaypointBranching           float64 `json:"waypoint_branching" yaml:"waypoint_branching"`
	WaypointStopEvals           int     `json:"waypoint_stop_evals" yaml:"waypoint_stop_evals"`
	WaypointStepsPerCompute     int     `json:"waypoint_steps_per_compute" yaml:"waypoint_steps_per_compute"`
	UseSequentialWaypointSolver bool    `json:"use_sequential_waypoint_solver" yaml:"use_sequential_waypoint_solver"`
	WaypointIneqThreshold       float64 `json:"waypoint_ineq_threshold" yaml:"waypoint_ineq_threshold"`
	WaypointEqThreshold         float64 `json:"waypoint_eq_threshold" yaml:"waypoint_eq_threshold"`

	GenericCollisions  bool    `json:"generic_collisions" yaml:"generic_collisions"`
	CollScale          float64 `json:"coll_scale" yaml:"coll_scale"`
	CollisionTolerance float64 `json:"collision_tolerance" yaml:"collision_tolerance"`
	LiftHeight         float64 `json:"lift_height" yaml:"lift_height"`

	RRTStopEvals        int     `json:"rrt_stop_evals" yaml:"rrt_stop_evals"`
	RRTStepsPerCompute  int     `json:"rrt_steps_per_compute" yaml:"rrt_steps_per_compute"`
	RRTStepSize         float64 `json:"rrt_step_size" yaml:"rrt_step_size"`
	RRTForwardStepProb  float64 `json:"rrt_forward_step_prob" yaml:"rrt_forward_step_prob"`
	RRTSideStepProb     float64 `json:"rrt_side_step_prob" yaml:"rrt_side_step_prob"`
	RRTBackwardStepProb float64 `json:"rrt_backward_step_prob" yaml:"rrt_backward_step_prob"`
	PathSamples         int     `json:"path_samples" yaml:"path_samples"`

	PathStepsPerPhase   int     `json:"path_steps_per_phase" yaml:"path_steps_per_phase"`
	PathStepsPerCompute int     `json:"path_steps_per_compute" yaml:"path_steps_per_compute"`
	PathStopEvals       int     `json:"path_stop_evals" yaml:"path_stop_evals"`
	PathCtrlCosts       float64 `json:"path_ctrl_costs" yaml:"path_ctrl_costs"`
	PathIneqThreshold   float64 `json:"path_ineq_threshold" yaml:"path_ineq_threshold"`
	PathEqThreshold     float64 `json:"path_eq_threshold" yaml:"path_eq_threshold"`
	PathSumThreshold    float64 `json:"path_sum_threshold" yaml:"path_sum_threshold"`
}

// NewOptions returns the defaults, with LGP_VERBOSE and LGP_NUM_THREADS applied.
func NewOptions() *Options {
	return &Options{
		Verbose:    utils.GetenvInt(VerboseEnv, 0),
		NumThreads: utils.GetenvInt(NumThreadsEnv, utils.MaxInt(1, utils.MinInt(runtime.NumCPU()/2, 10))),

		SkeletonChild:  SkeletonChildWaypoints,
		SearchMaxDepth: 20,

		WaypointBranching:       10,
		WaypointStopEvals:       1000,
		WaypointStepsPerCompute: 100,
		WaypointIneqThreshold:   .5,
		WaypointEqThreshold:     2,

		CollScale:          10,
		CollisionTolerance: .03,
		LiftHeight:         .1,

		RRTStopEvals:       10000,
		RRTStepsPerCompute: 1000,
		RRTStepSize:        .05,
		RRTForwardStepProb: .5,
		PathSamples:        30,

		PathStepsPerPhase:   30,
		PathStepsPerCompute: 10,
		PathStopEvals:       1000,
		PathCtrlCosts:       1,
		PathIneqThreshold:   1,
		PathEqThreshold:     2,
		PathSumThreshold:    3,
	}
}

// Validate ensures all parts of the options are valid.
func (o *Options) Validate() error {
	var err error
	positiveInts := []struct {
		name string
		val  int
	}{
		{"num_threads", o.NumThreads},
		{"search_max_depth", o.SearchMaxDepth},
		{"waypoint_stop_evals", o.WaypointStopEvals},
		{"waypoint_steps_per_compute", o.WaypointStepsPerCompute},
		{"rrt_stop_evals", o.RRTStopEvals},
		{"rrt_steps_per_compute", o.RRTStepsPerCompute},
		{"path_steps_per_phase", o.PathStepsPerPhase},
		{"path_steps_per_compute", o.PathStepsPerCompute},
		{"path_stop_evals", o.PathStopEvals},
	}
	for _, p := range positiveInts {
		if p.val <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", p.name, p.val))
		}
	}
	if o.PathSamples < 2 {
		err = multierr.Append(err, fmt.Errorf("path_samples must be at least 2, got %d", o.PathSamples))
	}
	if o.WaypointBranching <= 0 {
		err = multierr.Append(err, fmt.Errorf("waypoint_branching must be positive, got %f", o.WaypointBranching))
	}
	if o.RRTStepSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("rrt_step_size must be positive, got %f", o.RRTStepSize))
	}
	bounded := []struct {
		name   string
		val    float64
		lo, hi float64
	}{
		{"coll_scale", o.CollScale, 0, math.Inf(1)},
		{"collision_tolerance", o.CollisionTolerance, 0, math.Inf(1)},
		{"path_ctrl_costs", o.PathCtrlCosts, 0, math.Inf(1)},
		{"rrt_forward_step_prob", o.RRTForwardStepProb, 0, 1},
		{"rrt_side_step_prob", o.RRTSideStepProb, 0, 1},
		{"rrt_backward_step_prob", o.RRTBackwardStepProb, 0, 1},
	}
	for _, b := range bounded {
		if b.val < b.lo || b.val > b.hi {
			err = multierr.Append(err, fmt.Errorf("%s must be within [%g, %g], got %f", b.name, b.lo, b.hi, b.val))
		}
	}
	switch o.SkeletonChild {
	case SkeletonChildWaypoints, SkeletonChildPoseBound, SkeletonChildFactorBound:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown skeleton_child %q", o.SkeletonChild))
	}
	if o.UseSequentialWaypointSolver && o.GenericCollisions {
		err = multierr.Append(err, ErrSequentialGenericCollisions)
	}
	return err
}

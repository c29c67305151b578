package game

import (
	"math"
	"time"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

const (
	// DefaultFriction is the cue ball deceleration in m/s²
	DefaultFriction = 0.8
	// restSpeed is the speed below which the cue ball stops
	restSpeed = 0.01
)

// SimulationEndedFunc receives the final positions and pocketed mask.
type SimulationEndedFunc func(positions [constants.BallCount]kinematic.Vector, pocketed uint16)

// HeadlessSimulator rolls the cue ball in a straight line with constant
// deceleration, reflecting off the cushions. It is the stand-in physics of
// headless peers; object balls never move.
type HeadlessSimulator struct {
	friction float64
	model    constants.TableModel
	onEnded  SimulationEndedFunc

	running   bool
	positions [constants.BallCount]kinematic.Vector
	velocity  kinematic.Vector
	pocketed  uint16
}

var _ Simulator = (*HeadlessSimulator)(nil)

type NewHeadlessSimulatorOptions struct {
	// Friction defaults to DefaultFriction
	Friction float64
}

func NewHeadlessSimulator(opts NewHeadlessSimulatorOptions) *HeadlessSimulator {
	friction := opts.Friction
	if friction <= 0 {
		friction = DefaultFriction
	}
	return &HeadlessSimulator{friction: friction}
}

// OnEnded sets the callback fired when a simulation comes to rest.
func (s *HeadlessSimulator) OnEnded(f SimulationEndedFunc) {
	s.onEnded = f
}

func (s *HeadlessSimulator) Start(state types.GameStateData) {
	s.running = true
	s.model = tableModel(&state)
	s.positions = state.BallPositions
	s.velocity = kinematic.Vector{X: state.CueBallVelocity.X, Z: state.CueBallVelocity.Z}
	s.pocketed = state.BallsPocketed
}

func (s *HeadlessSimulator) Stop() [constants.BallCount]kinematic.Vector {
	s.running = false
	s.velocity = kinematic.Zero
	return s.positions
}

func (s *HeadlessSimulator) Running() bool {
	return s.running
}

// Step advances the simulation by dt. The end callback fires from the step
// that brings the cue ball to rest, after Running reports false.
func (s *HeadlessSimulator) Step(dt time.Duration) {
	if !s.running {
		return
	}
	seconds := dt.Seconds()
	speed := s.velocity.Length()
	if speed > restSpeed && !isPocketed(s.pocketed, constants.CueBallIndex) {
		cue := &s.positions[constants.CueBallIndex]
		cue.X += s.velocity.X * float32(seconds)
		cue.Z += s.velocity.Z * float32(seconds)
		s.velocity.X = bounce(&cue.X, s.velocity.X, s.model.HalfLength-constants.BallRadius)
		s.velocity.Z = bounce(&cue.Z, s.velocity.Z, s.model.HalfWidth-constants.BallRadius)

		next := math.Max(speed-s.friction*seconds, 0)
		scale := float32(next / speed)
		s.velocity.X *= scale
		s.velocity.Z *= scale
		speed = next
	}
	if speed > restSpeed && !isPocketed(s.pocketed, constants.CueBallIndex) {
		return
	}
	s.running = false
	s.velocity = kinematic.Zero
	if s.onEnded != nil {
		s.onEnded(s.positions, s.pocketed)
	}
}

// bounce folds a coordinate back inside [-limit, limit] and returns the
// velocity component, negated when a cushion was hit.
func bounce(x *float32, v float32, limit float64) float32 {
	l := float32(limit)
	switch {
	case *x > l:
		*x = 2*l - *x
		return -v
	case *x < -l:
		*x = -2*l - *x
		return -v
	}
	return v
}

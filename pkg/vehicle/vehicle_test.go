package vehicle

import (
	"math"
	"testing"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/controls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ListenerMock struct {
	passed   []checkpoint.Tag
	finished [][]checkpoint.Pass
}

func (l *ListenerMock) CheckpointPassed(tag checkpoint.Tag, _ time.Duration) {
	l.passed = append(l.passed, tag)
}

func (l *ListenerMock) Finished(passes []checkpoint.Pass) {
	l.finished = append(l.finished, passes)
}

func newController(t *testing.T, cfg Config) (*Controller, *controls.Input, *Kinematic, *ListenerMock) {
	state := controls.State{}
	body := Kinematic{}
	listener := ListenerMock{}
	c, err := New(&state, &body, cfg, &listener)
	require.NoError(t, err)
	return c, controls.NewInput(&state), &body, &listener
}

func TestController_AccelerateAndClamp(t *testing.T) {
	c, input, body, _ := newController(t, Config{MaxSpeed: 5, AccelRate: 1, TurnSpeed: 50})

	input.Press(controls.Accelerate)

	require.NoError(t, c.Update(2))
	assert.InDelta(t, 2., c.Speed(), 1e-9)
	assert.InDelta(t, 2., body.Velocity.Z, 1e-9, "velocity must follow forward direction")

	require.NoError(t, c.Update(10))
	assert.InDelta(t, 5., c.Speed(), 1e-9)
}

func TestController_SpeedMonotonicWhileAccelerating(t *testing.T) {
	c, input, _, _ := newController(t, DefaultConfig())
	input.Press(controls.Accelerate)

	previous := c.Speed()
	for _, dt := range []float64{0, 0.016, 0.5, 0.033, 1, 3, 0.2, 7} {
		require.NoError(t, c.Update(dt))
		assert.GreaterOrEqual(t, c.Speed(), previous)
		assert.LessOrEqual(t, c.Speed(), DefaultConfig().MaxSpeed)
		previous = c.Speed()
	}
}

func TestController_DecayToZero(t *testing.T) {
	c, input, body, _ := newController(t, DefaultConfig())
	input.Press(controls.Accelerate)
	require.NoError(t, c.Update(4))

	input.Release(controls.Accelerate)
	previous := c.Speed()
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Update(0.7))
		assert.LessOrEqual(t, c.Speed(), previous)
		assert.GreaterOrEqual(t, c.Speed(), 0.)
		previous = c.Speed()
	}
	assert.Equal(t, 0., c.Speed())
	assert.Equal(t, 0., body.Velocity.Length())
}

func TestController_TurnRoundTrip(t *testing.T) {
	c, input, body, _ := newController(t, DefaultConfig())
	body.Heading = 30
	initial := body.Forward()

	input.Press(controls.TurnLeft)
	require.NoError(t, c.Update(0.25))
	assert.InDelta(t, 30-50*0.25, body.Heading, 1e-9)
	input.Release(controls.TurnLeft)

	input.Press(controls.TurnRight)
	require.NoError(t, c.Update(0.25))
	input.Release(controls.TurnRight)

	final := body.Forward()
	assert.InDelta(t, initial.X, final.X, 1e-9)
	assert.InDelta(t, initial.Z, final.Z, 1e-9)
}

func TestController_LeftWinsOverRight(t *testing.T) {
	c, input, body, _ := newController(t, DefaultConfig())

	input.Press(controls.TurnLeft)
	input.Press(controls.TurnRight)
	require.NoError(t, c.Update(0.1))

	assert.InDelta(t, 355., body.Heading, 1e-9)
}

func TestController_AccelerateWhileTurning(t *testing.T) {
	c, input, body, _ := newController(t, DefaultConfig())

	input.Press(controls.Accelerate)
	input.Press(controls.TurnRight)
	require.NoError(t, c.Update(1))

	assert.InDelta(t, 1., c.Speed(), 1e-9)
	assert.InDelta(t, 50., body.Heading, 1e-9)
}

func TestController_InvalidDeltaTime(t *testing.T) {
	c, input, _, _ := newController(t, DefaultConfig())
	input.Press(controls.Accelerate)

	for _, dt := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		err := c.Update(dt)
		assert.ErrorIs(t, err, ErrInvalidDeltaTime)
	}
	assert.Equal(t, 0., c.Speed())
	assert.Equal(t, time.Duration(0), c.Elapsed())
}

func TestController_NotInitialized(t *testing.T) {
	var c Controller
	assert.ErrorIs(t, c.Update(0.1), ErrNotInitialized)

	_, err := New(nil, &Kinematic{}, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	var nilController *Controller
	assert.ErrorIs(t, nilController.Update(0.1), ErrNotInitialized)
	assert.NotPanics(t, func() {
		nilController.OnCollisionEnter(string(checkpoint.LeftCheckpoint))
	})
}

func TestController_InvalidConfig(t *testing.T) {
	cases := []Config{
		{MaxSpeed: 0, AccelRate: 1, TurnSpeed: 50},
		{MaxSpeed: 5, AccelRate: -1, TurnSpeed: 50},
		{MaxSpeed: 5, AccelRate: 1, TurnSpeed: math.NaN()},
	}
	for _, cfg := range cases {
		_, err := New(&controls.State{}, &Kinematic{}, cfg, nil)
		assert.Error(t, err, "config %+v", cfg)
	}
}

func TestController_Checkpoints(t *testing.T) {
	c, _, _, listener := newController(t, DefaultConfig())

	c.OnCollisionEnter(string(checkpoint.EndPoint))
	assert.Empty(t, listener.finished, "end point before side checkpoints must be ignored")

	c.OnCollisionEnter(string(checkpoint.LeftCheckpoint))
	require.NoError(t, c.Update(1.5))
	c.OnCollisionEnter(string(checkpoint.RightCheckpoint))
	c.OnCollisionEnter(string(checkpoint.EndPoint))
	c.OnCollisionEnter(string(checkpoint.EndPoint))

	assert.Equal(t, []checkpoint.Tag{checkpoint.LeftCheckpoint, checkpoint.RightCheckpoint}, listener.passed)
	require.Len(t, listener.finished, 1)
	assert.Len(t, listener.finished[0], 3)
	assert.Equal(t, 1500*time.Millisecond, listener.finished[0][2].Elapsed)
	assert.True(t, c.Finished())

	snapshot := c.Snapshot()
	assert.True(t, snapshot.LeftPassed)
	assert.True(t, snapshot.RightPassed)
	assert.True(t, snapshot.Finished)
}

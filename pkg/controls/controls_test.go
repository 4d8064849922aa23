package controls

import (
	"testing"

	"github.com/cyrilix/robocar-protobuf/go/events"
	"github.com/stretchr/testify/assert"
)

type syncDispatcher struct {
	posted int
}

func (d *syncDispatcher) Post(fn func()) {
	d.posted++
	fn()
}

func TestInput_PressRelease(t *testing.T) {
	cases := []struct {
		name     string
		control  Control
		expected State
	}{
		{"accelerate", Accelerate, State{Accelerating: true}},
		{"turn left", TurnLeft, State{TurningLeft: true}},
		{"turn right", TurnRight, State{TurningRight: true}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state := State{}
			input := NewInput(&state)

			input.Press(c.control)
			assert.Equal(t, c.expected, state)

			input.Release(c.control)
			assert.Equal(t, State{}, state)
		})
	}
}

func TestInput_PressIsIdempotent(t *testing.T) {
	once := State{}
	NewInput(&once).Press(Accelerate)

	twice := State{}
	input := NewInput(&twice)
	input.Press(Accelerate)
	input.Press(Accelerate)

	assert.Equal(t, once, twice)
}

func TestInput_CombinedPresses(t *testing.T) {
	state := State{}
	input := NewInput(&state)

	input.Press(Accelerate)
	input.Press(TurnLeft)

	assert.Equal(t, State{Accelerating: true, TurningLeft: true}, state)

	input.Release(Accelerate)
	assert.Equal(t, State{TurningLeft: true}, state)
}

func TestInput_UnknownControl(t *testing.T) {
	state := State{}
	NewInput(&state).Press(Control(42))
	assert.Equal(t, State{}, state)
	assert.Equal(t, "control(42)", Control(42).String())
}

func TestCommandAdapter_WriteThrottle(t *testing.T) {
	state := State{}
	d := syncDispatcher{}
	a := NewCommandAdapter(NewInput(&state), &d, DefaultSteeringDeadZone)

	a.WriteThrottle(&events.ThrottleMessage{Throttle: 0.7, Confidence: 1})
	assert.True(t, state.Accelerating)

	a.WriteThrottle(&events.ThrottleMessage{Throttle: -0.2, Confidence: 1})
	assert.False(t, state.Accelerating)

	assert.Equal(t, 2, d.posted, "every command must go through the dispatcher")
}

func TestCommandAdapter_WriteSteering(t *testing.T) {
	cases := []struct {
		name     string
		steering float32
		expected State
	}{
		{"Turn left", -0.8, State{TurningLeft: true}},
		{"Turn right", 0.5, State{TurningRight: true}},
		{"Dead zone", 0.05, State{}},
		{"Centered", 0, State{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state := State{TurningLeft: true, TurningRight: true}
			a := NewCommandAdapter(NewInput(&state), &syncDispatcher{}, -DefaultSteeringDeadZone)

			a.WriteSteering(&events.SteeringMessage{Steering: c.steering, Confidence: 1})
			assert.Equal(t, c.expected, state)
		})
	}
}

package controls

import (
	"fmt"

	"github.com/cyrilix/robocar-protobuf/go/events"
	"go.uber.org/zap"
)

type Control int

const (
	Accelerate Control = iota
	TurnLeft
	TurnRight
)

func (c Control) String() string {
	switch c {
	case Accelerate:
		return "accelerate"
	case TurnLeft:
		return "turn-left"
	case TurnRight:
		return "turn-right"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

// State is written by Input and read by the vehicle controller. It is not safe
// for concurrent use: both must run on the simulation goroutine.
type State struct {
	Accelerating bool
	TurningLeft  bool
	TurningRight bool
}

func NewInput(state *State) *Input {
	return &Input{state: state}
}

// Input is the surface behind the on-screen accelerate and turn buttons
type Input struct {
	state *State
}

func (i *Input) Press(c Control) {
	i.set(c, true)
}

func (i *Input) Release(c Control) {
	i.set(c, false)
}

func (i *Input) set(c Control, on bool) {
	switch c {
	case Accelerate:
		i.state.Accelerating = on
	case TurnLeft:
		i.state.TurningLeft = on
	case TurnRight:
		i.state.TurningRight = on
	default:
		zap.S().Warnf("ignore unknown control %v", c)
		return
	}
	zap.S().Debugw("control changed", "control", c.String(), "pressed", on)
}

type SteeringController interface {
	WriteSteering(message *events.SteeringMessage)
}

type ThrottleController interface {
	WriteThrottle(message *events.ThrottleMessage)
}

// Dispatcher runs fn on the simulation goroutine
type Dispatcher interface {
	Post(fn func())
}

const DefaultSteeringDeadZone = 0.1

func NewCommandAdapter(input *Input, dispatcher Dispatcher, deadZone float32) *CommandAdapter {
	if deadZone < 0 {
		deadZone = -deadZone
	}
	return &CommandAdapter{
		input:      input,
		dispatcher: dispatcher,
		deadZone:   deadZone,
	}
}

/* CommandAdapter converts robocar throttle/steering commands received from mqtt topics into button presses */
type CommandAdapter struct {
	input      *Input
	dispatcher Dispatcher
	deadZone   float32
}

func (a *CommandAdapter) WriteThrottle(message *events.ThrottleMessage) {
	accelerate := message.GetThrottle() > 0
	a.dispatcher.Post(func() {
		if accelerate {
			a.input.Press(Accelerate)
		} else {
			a.input.Release(Accelerate)
		}
	})
}

func (a *CommandAdapter) WriteSteering(message *events.SteeringMessage) {
	steering := message.GetSteering()
	a.dispatcher.Post(func() {
		switch {
		case steering < -a.deadZone:
			a.input.Release(TurnRight)
			a.input.Press(TurnLeft)
		case steering > a.deadZone:
			a.input.Release(TurnLeft)
			a.input.Press(TurnRight)
		default:
			a.input.Release(TurnLeft)
			a.input.Release(TurnRight)
		}
	})
}

package vehicle

import (
	"math"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/controls"
	"github.com/cyrilix/robocar-arcourse/pkg/simulator"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidDeltaTime = errors.New("invalid delta time")
	ErrNotInitialized   = errors.New("vehicle controller not initialized")
)

type Config struct {
	MaxSpeed  float64 `yaml:"max_speed"`
	AccelRate float64 `yaml:"acc_amount"`
	TurnSpeed float64 `yaml:"turn_speed"`
}

func DefaultConfig() Config {
	return Config{MaxSpeed: 5, AccelRate: 1, TurnSpeed: 50}
}

func (c Config) Validate() error {
	if !(c.MaxSpeed > 0) {
		return errors.Errorf("max speed must be positive, got %v", c.MaxSpeed)
	}
	if !(c.AccelRate > 0) {
		return errors.Errorf("acceleration must be positive, got %v", c.AccelRate)
	}
	if c.TurnSpeed < 0 || math.IsNaN(c.TurnSpeed) {
		return errors.Errorf("turn speed must not be negative, got %v", c.TurnSpeed)
	}
	return nil
}

// Body is the physical car driven by the controller
type Body interface {
	Forward() simulator.Vector3
	SetVelocity(v simulator.Vector3)
	// Rotate turns the body around axis, degrees are clockwise seen from above
	Rotate(axis simulator.Vector3, degrees float64)
}

type Listener interface {
	CheckpointPassed(tag checkpoint.Tag, elapsed time.Duration)
	Finished(passes []checkpoint.Pass)
}

type Snapshot struct {
	Speed        float64           `json:"speed"`
	MaxSpeed     float64           `json:"maxSpeed"`
	Forward      simulator.Vector3 `json:"forward"`
	Accelerating bool              `json:"accelerating"`
	TurningLeft  bool              `json:"turningLeft"`
	TurningRight bool              `json:"turningRight"`
	LeftPassed   bool              `json:"leftPassed"`
	RightPassed  bool              `json:"rightPassed"`
	Finished     bool              `json:"finished"`
	Elapsed      float64           `json:"elapsed"`
}

func New(state *controls.State, body Body, cfg Config, listener Listener) (*Controller, error) {
	if state == nil || body == nil {
		return nil, ErrNotInitialized
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid vehicle config")
	}
	return &Controller{
		state:    state,
		body:     body,
		cfg:      cfg,
		listener: listener,
	}, nil
}

/* Controller integrates the car speed and heading once per frame from the control state */
type Controller struct {
	state    *controls.State
	body     Body
	cfg      Config
	listener Listener

	speed    float64
	elapsed  time.Duration
	sequence checkpoint.Sequence
}

func (c *Controller) Update(deltaTime float64) error {
	if c == nil || c.state == nil || c.body == nil {
		return ErrNotInitialized
	}
	if deltaTime < 0 || math.IsNaN(deltaTime) || math.IsInf(deltaTime, 0) {
		return errors.Wrapf(ErrInvalidDeltaTime, "delta time %v", deltaTime)
	}
	c.elapsed += time.Duration(deltaTime * float64(time.Second))

	step := c.cfg.AccelRate * deltaTime
	if c.state.Accelerating {
		c.speed = clamp(c.speed+step, 0, c.cfg.MaxSpeed)
	} else if c.speed > 0 {
		c.speed = clamp(c.speed-step, 0, c.cfg.MaxSpeed)
	}
	c.body.SetVelocity(c.body.Forward().Scale(c.speed))

	if c.state.TurningLeft {
		c.body.Rotate(simulator.Up, -c.cfg.TurnSpeed*deltaTime)
	} else if c.state.TurningRight {
		c.body.Rotate(simulator.Up, c.cfg.TurnSpeed*deltaTime)
	}
	return nil
}

func (c *Controller) OnCollisionEnter(tag string) {
	log := zap.S().With("tag", tag)
	if c == nil {
		log.Errorf("collision ignored: %v", ErrNotInitialized)
		return
	}
	switch c.sequence.Enter(checkpoint.Tag(tag), c.elapsed) {
	case checkpoint.Passed:
		log.Infof("%v passed", tag)
		if c.listener != nil {
			c.listener.CheckpointPassed(checkpoint.Tag(tag), c.elapsed)
		}
	case checkpoint.Finished:
		log.Info("Finish!")
		passes := c.sequence.Passes()
		log.Infof("run summary:\n%s", checkpoint.RenderSummary(passes))
		if c.listener != nil {
			c.listener.Finished(passes)
		}
	default:
		log.Debug("collision ignored")
	}
}

func (c *Controller) Speed() float64 {
	return c.speed
}

func (c *Controller) Finished() bool {
	return c.sequence.Finished()
}

func (c *Controller) Elapsed() time.Duration {
	return c.elapsed
}

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Speed:        c.speed,
		MaxSpeed:     c.cfg.MaxSpeed,
		Forward:      c.body.Forward(),
		Accelerating: c.state.Accelerating,
		TurningLeft:  c.state.TurningLeft,
		TurningRight: c.state.TurningRight,
		LeftPassed:   c.sequence.LeftPassed(),
		RightPassed:  c.sequence.RightPassed(),
		Finished:     c.sequence.Finished(),
		Elapsed:      c.elapsed.Seconds(),
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

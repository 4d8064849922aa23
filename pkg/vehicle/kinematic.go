package vehicle

import (
	"math"

	"github.com/cyrilix/robocar-arcourse/pkg/simulator"
)

// Kinematic is an in-memory Body. Only yaw is modeled: heading is in degrees
// around the up axis, 0 facing +Z.
type Kinematic struct {
	Heading  float64
	Velocity simulator.Vector3
}

func (k *Kinematic) Forward() simulator.Vector3 {
	rad := k.Heading * math.Pi / 180
	return simulator.Vector3{X: math.Sin(rad), Z: math.Cos(rad)}
}

func (k *Kinematic) SetVelocity(v simulator.Vector3) {
	k.Velocity = v
}

func (k *Kinematic) Rotate(axis simulator.Vector3, degrees float64) {
	k.Heading = math.Mod(k.Heading+degrees*axis.Y, 360)
	if k.Heading < 0 {
		k.Heading += 360
	}
}

package simulator

import "math"

type MsgType string

const (
	MsgTypeTick           = MsgType("tick")
	MsgTypeCollisionEnter = MsgType("collision_enter")
	MsgTypeImagesAdded    = MsgType("images_added")
	MsgTypeCameraFrame    = MsgType("camera_frame")
	MsgTypeSetVelocity    = MsgType("set_velocity")
	MsgTypeRotate         = MsgType("rotate")
	MsgTypeSpawn          = MsgType("spawn")
	MsgTypeReferenceImage = MsgType("reference_image")
)

type Msg struct {
	MsgType MsgType `json:"msg_type"`
}

// TickMsg is emitted by the engine once per rendered frame.
type TickMsg struct {
	MsgType   MsgType `json:"msg_type"`
	DeltaTime float64 `json:"delta_time"`
}

// CollisionEnterMsg is emitted when the car trigger collider enters another collider.
type CollisionEnterMsg struct {
	MsgType MsgType `json:"msg_type"`
	Tag     string  `json:"tag"`
}

type TrackedImageMsg struct {
	Name string  `json:"name"`
	PosX float64 `json:"pos_x"`
	PosY float64 `json:"pos_y"`
	PosZ float64 `json:"pos_z"`
}

// ImagesAddedMsg is a batch of reference images newly detected by the AR tracking service
type ImagesAddedMsg struct {
	MsgType MsgType           `json:"msg_type"`
	Images  []TrackedImageMsg `json:"images"`
}

type CameraFrameMsg struct {
	MsgType MsgType `json:"msg_type"`
	Image   []byte  `json:"image"`
}

// SetVelocityMsg assigns the linear velocity of the car rigid body. MsgType must be filled with "set_velocity"
type SetVelocityMsg struct {
	MsgType MsgType `json:"msg_type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

type RotateMsg struct {
	MsgType MsgType `json:"msg_type"`
	AxisX   float64 `json:"axis_x"`
	AxisY   float64 `json:"axis_y"`
	AxisZ   float64 `json:"axis_z"`
	Degrees float64 `json:"degrees"`
}

/*
	SpawnMsg instantiates a prefab in the scene.
	# prefab = "LeftCheckpoint" | "RightCheckpoint" | "EndPoint"
	# object_id = uuid generated by the gateway
*/
type SpawnMsg struct {
	MsgType  MsgType `json:"msg_type"`
	ObjectId string  `json:"object_id"`
	Prefab   string  `json:"prefab"`
	PosX     float64 `json:"pos_x"`
	PosY     float64 `json:"pos_y"`
	PosZ     float64 `json:"pos_z"`
	RotX     float64 `json:"rot_x"`
	RotY     float64 `json:"rot_y"`
	RotZ     float64 `json:"rot_z"`
	RotW     float64 `json:"rot_w"`
}

// ReferenceImageMsg registers one image of the tracking library, image is PNG encoded
type ReferenceImageMsg struct {
	MsgType MsgType `json:"msg_type"`
	Name    string  `json:"name"`
	Image   []byte  `json:"image"`
}

type Vector3 struct {
	X, Y, Z float64
}

var (
	Zero = Vector3{}
	Up   = Vector3{Y: 1}
)

func (v Vector3) Scale(f float64) Vector3 {
	return Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

type Quaternion struct {
	X, Y, Z, W float64
}

var Identity = Quaternion{W: 1}

package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/markers"
	"github.com/cyrilix/robocar-arcourse/pkg/simulator"
	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler receives engine events, it's called from the gateway read goroutine
type Handler interface {
	OnTick(deltaTime float64)
	OnCollisionEnter(tag string)
}

// FramePublisher receives the AR camera frames, jpeg encoded
type FramePublisher interface {
	PublishFrame(image []byte)
}

var errStopped = errors.New("gateway stopped")

type Option func(g *Gateway)

func WithFramePublisher(p FramePublisher) Option {
	return func(g *Gateway) {
		g.frames = p
	}
}

func New(address string, library *markers.Library, opts ...Option) *Gateway {
	l := zap.S().With("simulator", address)
	l.Info("run gateway to AR engine")

	g := Gateway{
		address:     address,
		library:     library,
		subscribers: make(map[int]markers.ImagesHandler),
		connected:   make(chan struct{}),
		cancel:      make(chan interface{}),
		log:         l,
	}
	for _, o := range opts {
		o(&g)
	}
	return &g
}

/* Gateway bridges the AR engine: it forwards frame ticks, collisions and tracked images,
and sends back car and scene commands */
type Gateway struct {
	address string
	handler Handler
	library *markers.Library
	frames  FramePublisher

	muConn sync.Mutex
	conn   io.ReadWriteCloser
	writer *bufio.Writer

	muSubscribers sync.Mutex
	subscribers   map[int]markers.ImagesHandler
	nextSubID     int

	// local mirror of the car transform, only used from the simulation goroutine
	body vehicle.Kinematic

	connected chan struct{}
	stopOnce  sync.Once
	cancel    chan interface{}
	log       *zap.SugaredLogger
}

// Connected is closed once the engine connection is established
func (g *Gateway) Connected() <-chan struct{} {
	return g.connected
}

// SetHandler must be called before Start
func (g *Gateway) SetHandler(h Handler) {
	g.handler = h
}

func (g *Gateway) Start() error {
	err := retry.Do(func() error {
		g.log.Info("connect to engine")
		conn, err := connect(g.address)
		if err != nil {
			return fmt.Errorf("unable to connect to engine at %v", g.address)
		}
		g.muConn.Lock()
		select {
		case <-g.cancel:
			g.muConn.Unlock()
			if err := conn.Close(); err != nil {
				g.log.Warnf("unable to close engine connection: %v", err)
			}
			return errStopped
		default:
		}
		g.conn = conn
		g.writer = bufio.NewWriter(conn)
		g.muConn.Unlock()
		close(g.connected)
		g.log.Info("connection success")
		return nil
	},
		retry.Delay(1*time.Second),
		retry.RetryIf(func(error) bool {
			select {
			case <-g.cancel:
				return false
			default:
				return true
			}
		}),
	)
	select {
	case <-g.cancel:
		return nil
	default:
	}
	if err != nil {
		return fmt.Errorf("unable to connect to engine: %v", err)
	}

	if err := g.sendLibrary(); err != nil {
		return err
	}

	err = g.listen(bufio.NewReader(g.conn))
	select {
	case <-g.cancel:
		return nil
	default:
	}
	if err == io.EOF {
		return nil
	}
	return err
}

func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		g.log.Info("close engine gateway")
		close(g.cancel)
		if err := g.Close(); err != nil {
			g.log.Warnf("unexpected error while engine connection is closed: %v", err)
		}
	})
}

func (g *Gateway) Close() error {
	g.muConn.Lock()
	defer g.muConn.Unlock()
	if g.conn == nil {
		g.log.Warn("no connection to close")
		return nil
	}
	if err := g.conn.Close(); err != nil {
		return fmt.Errorf("unable to close connection to engine: %v", err)
	}
	return nil
}

func (g *Gateway) sendLibrary() error {
	for _, img := range g.library.Images() {
		msg := simulator.ReferenceImageMsg{
			MsgType: simulator.MsgTypeReferenceImage,
			Name:    img.Name,
			Image:   img.Image,
		}
		if err := g.writeContent(&msg); err != nil {
			return fmt.Errorf("unable to send reference image %v: %v", img.Name, err)
		}
	}
	return nil
}

func (g *Gateway) listen(reader *bufio.Reader) error {
	for {
		rawLine, err := reader.ReadBytes('\n')
		if err == io.EOF {
			g.log.Info("Connection closed")
			return err
		}
		if err != nil {
			return fmt.Errorf("unable to read response: %v", err)
		}

		var msg simulator.Msg
		err = json.Unmarshal(rawLine, &msg)
		if err != nil {
			g.log.Errorf("unable to unmarshal engine msg '%v': %v", string(rawLine), err)
			continue
		}

		if g.handler == nil && (msg.MsgType == simulator.MsgTypeTick || msg.MsgType == simulator.MsgTypeCollisionEnter) {
			g.log.Debugf("no handler for msg type %v", msg.MsgType)
			continue
		}

		switch msg.MsgType {
		case simulator.MsgTypeTick:
			var tick simulator.TickMsg
			if err := json.Unmarshal(rawLine, &tick); err != nil {
				g.log.Errorf("unable to unmarshal tick msg '%v': %v", string(rawLine), err)
				continue
			}
			g.handler.OnTick(tick.DeltaTime)
		case simulator.MsgTypeCollisionEnter:
			var collision simulator.CollisionEnterMsg
			if err := json.Unmarshal(rawLine, &collision); err != nil {
				g.log.Errorf("unable to unmarshal collision msg '%v': %v", string(rawLine), err)
				continue
			}
			g.handler.OnCollisionEnter(collision.Tag)
		case simulator.MsgTypeImagesAdded:
			var added simulator.ImagesAddedMsg
			if err := json.Unmarshal(rawLine, &added); err != nil {
				g.log.Errorf("unable to unmarshal images msg '%v': %v", string(rawLine), err)
				continue
			}
			g.publishImages(added.Images)
		case simulator.MsgTypeCameraFrame:
			if g.frames == nil {
				continue
			}
			var frame simulator.CameraFrameMsg
			if err := json.Unmarshal(rawLine, &frame); err != nil {
				g.log.Errorf("unable to unmarshal frame msg: %v", err)
				continue
			}
			g.frames.PublishFrame(frame.Image)
		default:
			g.log.Debugf("ignore msg type %v", msg.MsgType)
		}
	}
}

func (g *Gateway) publishImages(msgs []simulator.TrackedImageMsg) {
	images := make([]markers.TrackedImage, 0, len(msgs))
	for _, m := range msgs {
		images = append(images, markers.TrackedImage{
			Name:     m.Name,
			Position: simulator.Vector3{X: m.PosX, Y: m.PosY, Z: m.PosZ},
		})
	}

	g.muSubscribers.Lock()
	handlers := make([]markers.ImagesHandler, 0, len(g.subscribers))
	for _, h := range g.subscribers {
		handlers = append(handlers, h)
	}
	g.muSubscribers.Unlock()

	for _, h := range handlers {
		h(images)
	}
}

func (g *Gateway) Subscribe(h markers.ImagesHandler) func() {
	g.muSubscribers.Lock()
	defer g.muSubscribers.Unlock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = h
	return func() {
		g.muSubscribers.Lock()
		defer g.muSubscribers.Unlock()
		delete(g.subscribers, id)
	}
}

func (g *Gateway) Instantiate(prefab checkpoint.Tag, position simulator.Vector3, rotation simulator.Quaternion) (markers.ObjectID, error) {
	id := uuid.NewString()
	msg := simulator.SpawnMsg{
		MsgType:  simulator.MsgTypeSpawn,
		ObjectId: id,
		Prefab:   string(prefab),
		PosX:     position.X,
		PosY:     position.Y,
		PosZ:     position.Z,
		RotX:     rotation.X,
		RotY:     rotation.Y,
		RotZ:     rotation.Z,
		RotW:     rotation.W,
	}
	if err := g.writeContent(&msg); err != nil {
		return "", err
	}
	return markers.ObjectID(id), nil
}

func (g *Gateway) Forward() simulator.Vector3 {
	return g.body.Forward()
}

func (g *Gateway) SetVelocity(v simulator.Vector3) {
	if v == g.body.Velocity {
		return
	}
	g.body.SetVelocity(v)
	msg := simulator.SetVelocityMsg{MsgType: simulator.MsgTypeSetVelocity, X: v.X, Y: v.Y, Z: v.Z}
	if err := g.writeContent(&msg); err != nil {
		g.log.Errorf("unable to send velocity: %v", err)
	}
}

func (g *Gateway) Rotate(axis simulator.Vector3, degrees float64) {
	g.body.Rotate(axis, degrees)
	msg := simulator.RotateMsg{
		MsgType: simulator.MsgTypeRotate,
		AxisX:   axis.X,
		AxisY:   axis.Y,
		AxisZ:   axis.Z,
		Degrees: degrees,
	}
	if err := g.writeContent(&msg); err != nil {
		g.log.Errorf("unable to send rotation: %v", err)
	}
}

func (g *Gateway) writeContent(msg interface{}) error {
	g.muConn.Lock()
	defer g.muConn.Unlock()
	if g.writer == nil {
		return fmt.Errorf("not connected to engine")
	}

	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshall msg \"%#v\": %v", msg, err)
	}
	_, err = g.writer.Write(append(content, '\n'))
	if err != nil {
		return fmt.Errorf("unable to write msg \"%#v\" to engine: %v", msg, err)
	}
	err = g.writer.Flush()
	if err != nil {
		return fmt.Errorf("unable to flush msg \"%#v\" to engine: %v", msg, err)
	}
	return nil
}

var connect = func(address string) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %v", address)
	}
	return conn, nil
}

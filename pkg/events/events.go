package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"github.com/cyrilix/robocar-protobuf/go/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	EventCheckpoint = "checkpoint"
	EventFinish     = "finish"

	frameRefName = "arcourse"
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type outgoing struct {
	topic string
	msg   proto.Message
}

// Topics left empty are not published
type Topics struct {
	Race     string
	Steering string
	Throttle string
	Frame    string
}

func NewMsgPublisher(p Publisher, topics Topics, bufferSize int) *MsgPublisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MsgPublisher{
		p:             p,
		topicRace:     topics.Race,
		topicSteering: topics.Steering,
		topicThrottle: topics.Throttle,
		topicFrame:    topics.Frame,
		msgChan:       make(chan outgoing, bufferSize),
	}
}

/* MsgPublisher publishes race events and car telemetry to mqtt topics. Calls never block the simulation goroutine,
messages are dropped when the buffer is full */
type MsgPublisher struct {
	p             Publisher
	topicRace     string
	topicSteering string
	topicThrottle string
	topicFrame    string

	msgChan chan outgoing
	dropped int64

	muCancel sync.Mutex
	cancel   chan interface{}
	wg       sync.WaitGroup
}

func (m *MsgPublisher) Start() {
	m.muCancel.Lock()
	defer m.muCancel.Unlock()
	if m.cancel != nil {
		return
	}
	m.cancel = make(chan interface{})
	m.wg.Add(1)
	go m.listen(m.cancel)
}

func (m *MsgPublisher) Stop() {
	m.muCancel.Lock()
	defer m.muCancel.Unlock()
	if m.cancel == nil {
		return
	}
	close(m.cancel)
	m.cancel = nil
	m.wg.Wait()
}

func (m *MsgPublisher) Dropped() int64 {
	return atomic.LoadInt64(&m.dropped)
}

func (m *MsgPublisher) CheckpointPassed(tag checkpoint.Tag, elapsed time.Duration) {
	m.publishRaceEvent(EventCheckpoint, map[string]interface{}{
		"tag":     string(tag),
		"elapsed": elapsed.Seconds(),
	})
}

func (m *MsgPublisher) Finished(passes []checkpoint.Pass) {
	checkpoints := make([]interface{}, 0, len(passes))
	for _, p := range passes {
		checkpoints = append(checkpoints, map[string]interface{}{
			"tag":     string(p.Tag),
			"elapsed": p.Elapsed.Seconds(),
		})
	}
	var total float64
	if len(passes) > 0 {
		total = passes[len(passes)-1].Elapsed.Seconds()
	}
	m.publishRaceEvent(EventFinish, map[string]interface{}{
		"elapsed":     total,
		"checkpoints": checkpoints,
	})
}

func (m *MsgPublisher) publishRaceEvent(eventType string, fields map[string]interface{}) {
	if m.topicRace == "" {
		return
	}
	fields["type"] = eventType
	fields["created_at"] = time.Now().Format(time.RFC3339Nano)
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		zap.S().Errorf("unable to build %v event: %v", eventType, err)
		return
	}
	m.enqueue(m.topicRace, msg)
}

// PublishSnapshot sends the car speed as throttle and the pressed turn button as steering
func (m *MsgPublisher) PublishSnapshot(s vehicle.Snapshot) {
	frameRef := newFrameRef(time.Now())
	if m.topicThrottle != "" {
		var throttle float32
		if s.MaxSpeed > 0 {
			throttle = float32(s.Speed / s.MaxSpeed)
		}
		m.enqueue(m.topicThrottle, &events.ThrottleMessage{
			Throttle:   throttle,
			Confidence: 1.0,
			FrameRef:   frameRef,
		})
	}
	if m.topicSteering != "" {
		var steering float32
		if s.TurningLeft {
			steering = -1.
		} else if s.TurningRight {
			steering = 1.
		}
		m.enqueue(m.topicSteering, &events.SteeringMessage{
			Steering:   steering,
			Confidence: 1.0,
			FrameRef:   frameRef,
		})
	}
}

func (m *MsgPublisher) PublishFrame(image []byte) {
	if m.topicFrame == "" {
		return
	}
	frameRef := newFrameRef(time.Now())
	zap.S().Debugf("publish frame '%v/%v'", frameRef.Name, frameRef.Id)
	m.enqueue(m.topicFrame, &events.FrameMessage{
		Id:    frameRef,
		Frame: image,
	})
}

func (m *MsgPublisher) enqueue(topic string, msg proto.Message) {
	select {
	case m.msgChan <- outgoing{topic: topic, msg: msg}:
	default:
		atomic.AddInt64(&m.dropped, 1)
		zap.S().Debugf("publisher buffer full, drop message for topic %v", topic)
	}
}

func (m *MsgPublisher) listen(cancel <-chan interface{}) {
	defer m.wg.Done()
	logr := zap.S().With("msg_type", "race")
	for {
		select {
		case <-cancel:
			logr.Debug("exit publisher loop")
			return
		case out := <-m.msgChan:
			payload, err := proto.Marshal(out.msg)
			if err != nil {
				logr.Errorf("unable to marshal protobuf message: %v", err)
				continue
			}
			if err := m.p.Publish(out.topic, payload); err != nil {
				logr.Errorf("unable to publish events message: %v", err)
			}
		}
	}
}

func newFrameRef(now time.Time) *events.FrameRef {
	return &events.FrameRef{
		Name:      frameRefName,
		Id:        fmt.Sprintf("%d%03d", now.Unix(), now.Nanosecond()/1000/1000),
		CreatedAt: timestamppb.New(now),
	}
}

func NewMqttPublisher(client mqtt.Client, qos byte, retain bool) *MqttPublisher {
	return &MqttPublisher{client: client, qos: qos, retain: retain}
}

type MqttPublisher struct {
	client mqtt.Client
	qos    byte
	retain bool
}

func (m *MqttPublisher) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, m.retain, payload)
	token.WaitTimeout(10 * time.Millisecond)
	if err := token.Error(); err != nil {
		return fmt.Errorf("unable to publish to topic %v: %v", topic, err)
	}
	return nil
}

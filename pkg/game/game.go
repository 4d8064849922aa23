package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyrilix/robocar-arcourse/pkg/controls"
	"github.com/cyrilix/robocar-arcourse/pkg/markers"
	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"go.uber.org/zap"
)

const actionsBufferSize = 64

// SnapshotSink receives the car state after each frame, it must not block
type SnapshotSink interface {
	PublishSnapshot(s vehicle.Snapshot)
}

type Config struct {
	Vehicle      vehicle.Config
	SpawnerOpts  []markers.Option
	Listener     vehicle.Listener
	Sinks        []SnapshotSink
	ActionBuffer int
}

func New(body vehicle.Body, tracker markers.Tracker, world markers.World, cfg Config) (*Game, error) {
	bufSize := cfg.ActionBuffer
	if bufSize <= 0 {
		bufSize = actionsBufferSize
	}
	g := Game{
		actions: make(chan func(), bufSize),
		cancel:  make(chan interface{}),
		sinks:   cfg.Sinks,
	}
	car, err := vehicle.New(&g.state, body, cfg.Vehicle, cfg.Listener)
	if err != nil {
		return nil, fmt.Errorf("unable to init car: %w", err)
	}
	g.car = car
	g.input = controls.NewInput(&g.state)
	g.spawner = markers.NewSpawner(&loopTracker{tracker: tracker, game: &g}, world, cfg.SpawnerOpts...)
	return &g, nil
}

/* Game owns the simulation goroutine: every change to the controls, the car and the scene is posted
to it and applied in order */
type Game struct {
	actions chan func()

	state   controls.State
	input   *controls.Input
	car     *vehicle.Controller
	spawner *markers.Spawner
	sinks   []SnapshotSink

	stopOnce sync.Once
	cancel   chan interface{}
}

// Post queues fn on the simulation goroutine, it's dropped once the game is stopped
func (g *Game) Post(fn func()) {
	select {
	case g.actions <- fn:
	case <-g.cancel:
	}
}

// Input may only be used from a func given to Post
func (g *Game) Input() *controls.Input {
	return g.input
}

func (g *Game) OnTick(deltaTime float64) {
	g.Post(func() {
		if err := g.car.Update(deltaTime); err != nil {
			zap.S().Errorf("drop frame: %v", err)
			return
		}
		snapshot := g.car.Snapshot()
		for _, s := range g.sinks {
			s.PublishSnapshot(snapshot)
		}
	})
}

func (g *Game) OnCollisionEnter(tag string) {
	g.Post(func() {
		g.car.OnCollisionEnter(tag)
	})
}

func (g *Game) Start() error {
	return g.Run(context.Background())
}

// Run processes posted actions until ctx is done or Stop is called. The marker
// spawner stays subscribed to the tracker for the duration of the call.
// The game is stopped when Run returns.
func (g *Game) Run(ctx context.Context) error {
	defer g.Stop()
	if err := g.spawner.Activate(); err != nil {
		return fmt.Errorf("unable to activate marker spawner: %w", err)
	}
	defer g.spawner.Deactivate()

	zap.S().Info("game started")
	for {
		select {
		case fn := <-g.actions:
			fn()
		case <-g.cancel:
			zap.S().Info("game stopped")
			return nil
		case <-ctx.Done():
			zap.S().Info("game stopped")
			return nil
		}
	}
}

func (g *Game) Stop() {
	g.stopOnce.Do(func() {
		close(g.cancel)
	})
}

// loopTracker moves tracked image batches onto the simulation goroutine
type loopTracker struct {
	tracker markers.Tracker
	game    *Game
}

func (t *loopTracker) Subscribe(h markers.ImagesHandler) func() {
	return t.tracker.Subscribe(func(added []markers.TrackedImage) {
		t.game.Post(func() {
			h(added)
		})
	})
}

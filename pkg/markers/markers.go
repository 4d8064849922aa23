package markers

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/simulator"
	"go.uber.org/zap"
)

// DefaultPrefabs maps reference image names to the checkpoint spawned for them
var DefaultPrefabs = map[string]checkpoint.Tag{
	"LeftChecker":  checkpoint.LeftCheckpoint,
	"RightChecker": checkpoint.RightCheckpoint,
	"EndPoint":     checkpoint.EndPoint,
}

type TrackedImage struct {
	Name     string
	Position simulator.Vector3
}

type ObjectID string

type World interface {
	Instantiate(prefab checkpoint.Tag, position simulator.Vector3, rotation simulator.Quaternion) (ObjectID, error)
}

type ImagesHandler func(added []TrackedImage)

type Tracker interface {
	// Subscribe registers h for batches of newly tracked images, the returned func removes it
	Subscribe(h ImagesHandler) (unsubscribe func())
}

type Option func(s *Spawner)

// Unique drops any recognition of a marker name that was already spawned
func Unique() Option {
	return func(s *Spawner) {
		s.unique = true
	}
}

func WithPrefabs(prefabs map[string]checkpoint.Tag) Option {
	return func(s *Spawner) {
		s.prefabs = prefabs
	}
}

func NewSpawner(tracker Tracker, world World, opts ...Option) *Spawner {
	s := Spawner{
		tracker: tracker,
		world:   world,
		prefabs: DefaultPrefabs,
		spawned: make(map[string][]ObjectID),
	}
	for _, o := range opts {
		o(&s)
	}
	return &s
}

/* Spawner instantiates checkpoint objects where the tracking service recognizes a marker */
type Spawner struct {
	tracker Tracker
	world   World
	prefabs map[string]checkpoint.Tag
	unique  bool

	muSub       sync.Mutex
	unsubscribe func()

	spawned map[string][]ObjectID
}

func (s *Spawner) Activate() error {
	s.muSub.Lock()
	defer s.muSub.Unlock()
	if s.unsubscribe != nil {
		return fmt.Errorf("spawner already active")
	}
	zap.S().Info("image tracking enabled")
	s.unsubscribe = s.tracker.Subscribe(s.OnImagesAdded)
	return nil
}

func (s *Spawner) Deactivate() {
	s.muSub.Lock()
	defer s.muSub.Unlock()
	if s.unsubscribe == nil {
		return
	}
	zap.S().Info("image tracking disabled")
	s.unsubscribe()
	s.unsubscribe = nil
}

// Run keeps the spawner subscribed until ctx is done
func (s *Spawner) Run(ctx context.Context) error {
	if err := s.Activate(); err != nil {
		return err
	}
	defer s.Deactivate()
	<-ctx.Done()
	return nil
}

func (s *Spawner) OnImagesAdded(added []TrackedImage) {
	for _, img := range added {
		log := zap.S().With("image", img.Name)
		log.Debugf("image recognized at %v", img.Position)

		prefab, ok := s.prefabs[img.Name]
		if !ok {
			log.Debug("no checkpoint for image")
			continue
		}
		if s.unique && len(s.spawned[img.Name]) > 0 {
			log.Debug("checkpoint already spawned")
			continue
		}
		id, err := s.world.Instantiate(prefab, img.Position, simulator.Identity)
		if err != nil {
			log.Errorf("unable to spawn %v: %v", prefab, err)
			continue
		}
		s.spawned[img.Name] = append(s.spawned[img.Name], id)
		log.Infof("%v spawned as %v", prefab, id)
	}
}

func (s *Spawner) Spawned() map[string][]ObjectID {
	spawned := make(map[string][]ObjectID, len(s.spawned))
	for name, ids := range s.spawned {
		spawned[name] = append([]ObjectID(nil), ids...)
	}
	return spawned
}

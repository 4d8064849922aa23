package config

import (
	"io"
	"os"

	"github.com/cyrilix/robocar-arcourse/pkg/checkpoint"
	"github.com/cyrilix/robocar-arcourse/pkg/markers"
	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Course is the tuning of a run, loaded from a yaml file
type Course struct {
	Vehicle vehicle.Config `yaml:"vehicle"`
	// Markers maps reference image names to checkpoint tags
	Markers         map[string]string `yaml:"markers"`
	UniqueMarkers   bool              `yaml:"unique_markers"`
	ReferenceImages string            `yaml:"reference_images"`
	MaxImageSize    int               `yaml:"max_image_size"`
}

func Default() *Course {
	m := make(map[string]string, len(markers.DefaultPrefabs))
	for name, tag := range markers.DefaultPrefabs {
		m[name] = string(tag)
	}
	return &Course{
		Vehicle:      vehicle.DefaultConfig(),
		Markers:      m,
		MaxImageSize: markers.DefaultMaxImageSize,
	}
}

// Load reads path over the defaults, an empty path returns the defaults
func Load(path string) (*Course, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open config %v", path)
	}
	defer f.Close()
	c, err := LoadYAML(f)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %v", path)
	}
	return c, nil
}

func LoadYAML(r io.Reader) (*Course, error) {
	c := Default()
	// markers from the file replace the default mapping instead of extending it
	c.Markers = nil
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "unable to decode yaml")
	}
	if c.Markers == nil {
		c.Markers = Default().Markers
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Course) Validate() error {
	if err := c.Vehicle.Validate(); err != nil {
		return err
	}
	if len(c.Markers) == 0 {
		return errors.New("no marker configured")
	}
	for name, tag := range c.Markers {
		if _, err := checkpoint.ParseTag(tag); err != nil {
			return errors.Wrapf(err, "marker %v", name)
		}
	}
	if c.MaxImageSize < 0 {
		return errors.Errorf("max image size must not be negative, got %v", c.MaxImageSize)
	}
	return nil
}

func (c *Course) Prefabs() map[string]checkpoint.Tag {
	prefabs := make(map[string]checkpoint.Tag, len(c.Markers))
	for name, tag := range c.Markers {
		prefabs[name] = checkpoint.Tag(tag)
	}
	return prefabs
}

func (c *Course) SpawnerOptions() []markers.Option {
	opts := []markers.Option{markers.WithPrefabs(c.Prefabs())}
	if c.UniqueMarkers {
		opts = append(opts, markers.Unique())
	}
	return opts
}

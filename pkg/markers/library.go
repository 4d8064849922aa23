package markers

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultMaxImageSize = 512

type ReferenceImage struct {
	Name string
	// PNG encoded, grayscale
	Image []byte
}

// Library is the set of reference images the tracking service looks for
type Library struct {
	images []ReferenceImage
}

// LoadLibrary reads every png/jpg file of dir, the file name without extension is the marker name
func LoadLibrary(dir string, maxSize int) (*Library, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list reference images in %v", dir)
	}

	lib := Library{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open reference image %v", e.Name())
		}
		normalized := imaging.Grayscale(imaging.Fit(img, maxSize, maxSize, imaging.Lanczos))

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, normalized, imaging.PNG); err != nil {
			return nil, errors.Wrapf(err, "unable to encode reference image %v", e.Name())
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		lib.images = append(lib.images, ReferenceImage{Name: name, Image: buf.Bytes()})
		zap.S().Debugf("reference image %v loaded", name)
	}
	sort.Slice(lib.images, func(i, j int) bool { return lib.images[i].Name < lib.images[j].Name })
	return &lib, nil
}

func (l *Library) Images() []ReferenceImage {
	if l == nil {
		return nil
	}
	return l.images
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.Images()))
	for _, img := range l.Images() {
		names = append(names, img.Name)
	}
	return names
}

// Package session holds the ordered image list of an open project, the
// annotation file paired with each image, and the current position.
package session

import (
	"fmt"
	"image"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/spectrai/internal/logging"
	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/processing"
	"github.com/menta2k/spectrai/pkg/types"
)

// Session is a single-threaded navigation state over a project folder
type Session struct {
	imagesDir string
	entries   []types.Entry
	orphans   []string
	index     int

	processor *processing.Processor
	images    *cache.Cache
	log       logrus.FieldLogger
}

type options struct {
	strict    bool
	cacheTTL  time.Duration
	processor *processing.Processor
	log       logrus.FieldLogger
}

// Option configures Open
type Option func(*options)

// WithStrictPairing makes annotation files without a matching image an error (default true)
func WithStrictPairing(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithCacheTTL sets how long decoded images are kept; 0 disables caching
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// WithProcessor sets the image processor used by LoadCurrent
func WithProcessor(p *processing.Processor) Option {
	return func(o *options) { o.processor = p }
}

// WithLogger sets the session logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// Open scans imagesDir for .png/.jpg/.jpeg files and annotationsDir for .txt
// files and pairs them by base file name.
func Open(imagesDir, annotationsDir string, opts ...Option) (*Session, error) {
	o := options{strict: true, cacheTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.processor == nil {
		o.processor = processing.NewProcessor()
	}
	if o.log == nil {
		o.log = logging.Discard()
	}

	if !utils.DirExists(imagesDir) {
		return nil, types.Errorf(types.ErrValidation, "session.Open", imagesDir, "images directory does not exist")
	}

	images, err := utils.ListFiles(imagesDir, utils.ImageExtensions...)
	if err != nil {
		return nil, types.NewError(types.ErrImageLoad, "session.Open", imagesDir, err)
	}
	annotations, err := utils.ListFiles(annotationsDir, "txt")
	if err != nil {
		return nil, types.NewError(types.ErrPersist, "session.Open", annotationsDir, err)
	}

	annotations = slices.DeleteFunc(annotations, func(p string) bool {
		return filepath.Base(p) == annotation.ClassesFile
	})

	entries, orphans, err := pair(images, annotations, annotationsDir)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		if o.strict {
			return nil, types.Errorf(types.ErrValidation, "session.Open", annotationsDir,
				"annotation files without a matching image: %s", strings.Join(baseNames(orphans), ", "))
		}
		o.log.WithField("files", baseNames(orphans)).Warn("annotation files without a matching image")
	}

	s := &Session{
		imagesDir: imagesDir,
		entries:   entries,
		orphans:   orphans,
		processor: o.processor,
		log:       o.log,
	}
	if o.cacheTTL > 0 {
		s.images = cache.New(o.cacheTTL, 2*o.cacheTTL)
	}

	s.log.WithFields(logrus.Fields{"images": len(entries), "dir": imagesDir}).Info("session opened")
	return s, nil
}

// pair matches annotations to images by base name. Images without an
// annotation get the derived path in annotationsDir.
func pair(images, annotations []string, annotationsDir string) ([]types.Entry, []string, error) {
	byBase := make(map[string]string, len(annotations))
	for _, a := range annotations {
		byBase[utils.BaseName(a)] = a
	}

	seen := make(map[string]string, len(images))
	entries := make([]types.Entry, 0, len(images))
	for _, img := range images {
		base := utils.BaseName(img)
		if prev, dup := seen[base]; dup {
			return nil, nil, types.Errorf(types.ErrValidation, "session.Open", img,
				"image base name %q is shared with %s", base, filepath.Base(prev))
		}
		seen[base] = img

		ann, ok := byBase[base]
		if !ok {
			ann = filepath.Join(annotationsDir, base+".txt")
		}
		delete(byBase, base)
		entries = append(entries, types.Entry{ImagePath: img, AnnotationPath: ann})
	}

	orphans := make([]string, 0, len(byBase))
	for _, a := range byBase {
		orphans = append(orphans, a)
	}
	sort.Strings(orphans)
	return entries, orphans, nil
}

// Advance moves to the next image; at the last image it stays put
func (s *Session) Advance() {
	if s.index < len(s.entries)-1 {
		s.index++
	}
}

// Retreat moves to the previous image; at the first image it stays put
func (s *Session) Retreat() {
	if s.index > 0 {
		s.index--
	}
}

// Seek jumps to i, clamped into the valid range
func (s *Session) Seek(i int) {
	if len(s.entries) == 0 {
		s.index = 0
		return
	}
	s.index = max(0, min(i, len(s.entries)-1))
}

// Index returns the current position
func (s *Session) Index() int {
	return s.index
}

// Len returns the number of images
func (s *Session) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the image/annotation pairs in order
func (s *Session) Entries() []types.Entry {
	return append([]types.Entry(nil), s.entries...)
}

// Orphans lists annotation files that matched no image (non-strict sessions only)
func (s *Session) Orphans() []string {
	return append([]string(nil), s.orphans...)
}

// Current returns the current image/annotation pair
func (s *Session) Current() (types.Entry, error) {
	if len(s.entries) == 0 {
		return types.Entry{}, types.Errorf(types.ErrIndexOutOfRange, "session.Current", s.imagesDir, "no images in session")
	}
	return s.entries[s.index], nil
}

// CurrentImagePath returns the image path at the current index
func (s *Session) CurrentImagePath() (string, error) {
	e, err := s.Current()
	if err != nil {
		return "", err
	}
	return e.ImagePath, nil
}

// CurrentAnnotationPath returns the annotation path paired with the current image
func (s *Session) CurrentAnnotationPath() (string, error) {
	e, err := s.Current()
	if err != nil {
		return "", err
	}
	return e.AnnotationPath, nil
}

// CurrentImage decodes the current image at full resolution
func (s *Session) CurrentImage() (*image.NRGBA, error) {
	path, err := s.CurrentImagePath()
	if err != nil {
		return nil, err
	}
	return s.loadImage(path)
}

// LoadCurrent decodes the current image and scales it into the viewport
func (s *Session) LoadCurrent(vp types.Viewport) (*processing.Frame, error) {
	img, err := s.CurrentImage()
	if err != nil {
		return nil, err
	}
	frame, err := s.processor.Fit(img, vp)
	if err != nil {
		return nil, fmt.Errorf("failed to fit image: %w", err)
	}
	return frame, nil
}

func (s *Session) loadImage(path string) (*image.NRGBA, error) {
	if s.images != nil {
		if img, ok := s.images.Get(path); ok {
			return img.(*image.NRGBA), nil
		}
	}

	img, err := s.processor.LoadImage(path)
	if err != nil {
		s.log.WithField("image", path).WithError(err).Error("failed to load image")
		return nil, err
	}
	if s.images != nil {
		s.images.SetDefault(path, img)
	}
	return img, nil
}

// Invalidate drops any cached decode of path
func (s *Session) Invalidate(path string) {
	if s.images != nil {
		s.images.Delete(path)
	}
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

// Package spectrai annotates spectrogram images with YOLO bounding boxes.
//
// A project folder holds spectrogram images, one annotation file per image and
// a spectrai.yaml project file with the ordered class names. The Annotator
// opens a project, walks its images in order and edits the boxes of the
// current image through explicit command handlers. An optional detector
// backend proposes boxes for the current image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/spectrai"
//		"github.com/menta2k/spectrai/internal/config"
//		"github.com/menta2k/spectrai/pkg/types"
//		"github.com/menta2k/spectrai/pkg/yolo"
//	)
//
//	func main() {
//		cfg := config.Default()
//		backend, err := yolo.NewClient(cfg.Detection.Command, cfg.Detection.Timeout)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		a, err := spectrai.Open("./dolphins", cfg, spectrai.WithDetector(backend))
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Propose boxes, fix the first one and persist
//		if _, err := a.Detect(context.Background()); err != nil {
//			log.Fatal(err)
//		}
//		if err := a.SetClass(0, 1); err != nil {
//			log.Fatal(err)
//		}
//		if err := a.Save(); err != nil {
//			log.Fatal(err)
//		}
//
//		state, _ := a.Next()
//		fmt.Printf("%d/%d %s\n", state.Index+1, state.Total, state.ImagePath)
//	}
//
// The package is built from these components:
//
// 1. Session (pkg/session): ordered image list, pairing and navigation
// 2. Annotation (pkg/annotation): YOLO text files and pixel/normalized conversion
// 3. Detection (pkg/detection): detector boundary with yolo, ollama and llamacpp backends
// 4. Labels (pkg/labels): class names and the naming prompt
// 5. Processing (pkg/processing): viewport fitting and box overlays
//
// All operations are synchronous and the Annotator is not safe for concurrent use.
package spectrai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/spectrai/internal/config"
	"github.com/menta2k/spectrai/internal/logging"
	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/client"
	"github.com/menta2k/spectrai/pkg/detection"
	"github.com/menta2k/spectrai/pkg/labels"
	"github.com/menta2k/spectrai/pkg/processing"
	"github.com/menta2k/spectrai/pkg/project"
	"github.com/menta2k/spectrai/pkg/session"
	"github.com/menta2k/spectrai/pkg/types"
)

// Version of the spectrai library
const Version = "0.3.0"

// Annotator edits the boxes of one project, one image at a time
type Annotator struct {
	cfg       *config.Config
	project   *project.Project
	session   *session.Session
	labels    *labels.Set
	detector  *detection.Adapter
	processor *processing.Processor
	log       logrus.FieldLogger

	boxes []types.Box
	dirty bool
	// loadErr locks the current entry when its annotation file is unreadable
	loadErr error
}

// Option configures Open
type Option func(*Annotator)

// WithDetector sets the detector backend used by Detect
func WithDetector(d client.Detector) Option {
	return func(a *Annotator) { a.detector = detection.NewAdapter(d) }
}

// WithLogger sets the logger shared by the annotator and its components
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Annotator) { a.log = l }
}

// Open loads the project in projectRoot and positions on its first image.
// A nil cfg uses config.Default().
func Open(projectRoot string, cfg *config.Config, opts ...Option) (*Annotator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &Annotator{
		cfg:       cfg,
		processor: processing.NewProcessor(),
		log:       logging.Discard(),
		detector:  detection.NewAdapter(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.detector.WithLogger(a.log.WithField("component", "detection"))

	bg, err := processing.ParseHexColor(cfg.Display.Background)
	if err != nil {
		return nil, err
	}
	a.processor.WithBackground(bg)

	p, err := project.Load(projectRoot)
	if err != nil {
		return nil, err
	}
	set, err := p.LabelSet()
	if err != nil {
		return nil, err
	}
	s, err := p.OpenSession(
		session.WithStrictPairing(cfg.Session.StrictPairing),
		session.WithCacheTTL(cfg.Session.CacheTTL),
		session.WithProcessor(a.processor),
		session.WithLogger(a.log.WithField("component", "session")),
	)
	if err != nil {
		return nil, err
	}

	a.project, a.labels, a.session = p, set, s
	// an unreadable first annotation file is reported through Current
	_ = a.loadBoxes()
	return a, nil
}

// Project returns the open project
func (a *Annotator) Project() *project.Project {
	return a.project
}

// Session returns the underlying navigation state
func (a *Annotator) Session() *session.Session {
	return a.session
}

// loadBoxes reads the current annotation file. On failure the entry stays
// locked with no boxes, so a later save cannot overwrite the file.
func (a *Annotator) loadBoxes() error {
	a.boxes, a.dirty, a.loadErr = []types.Box{}, false, nil
	if a.session.Len() == 0 {
		return nil
	}
	path, err := a.session.CurrentAnnotationPath()
	if err != nil {
		return err
	}
	boxes, err := annotation.Load(path)
	if err != nil {
		a.log.WithField("annotation", path).WithError(err).Error("failed to load annotations")
		a.loadErr = err
		return err
	}
	a.boxes = boxes
	return nil
}

// editable fails when there is no current entry or its annotation file
// could not be read
func (a *Annotator) editable(op string) error {
	e, err := a.session.Current()
	if err != nil {
		return err
	}
	if a.loadErr != nil {
		return types.NewError(types.ErrValidation, op, e.AnnotationPath,
			fmt.Errorf("annotation file is unreadable, fix it and reload: %w", a.loadErr))
	}
	return nil
}

// Next moves to the next image and returns its state
func (a *Annotator) Next() (types.State, error) {
	return a.navigate(a.session.Advance)
}

// Previous moves to the previous image and returns its state
func (a *Annotator) Previous() (types.State, error) {
	return a.navigate(a.session.Retreat)
}

// Goto jumps to image i, clamped into range
func (a *Annotator) Goto(i int) (types.State, error) {
	return a.navigate(func() { a.session.Seek(i) })
}

// navigate applies move; when the position changes pending edits are saved
// (auto_save) or dropped, and the new image's boxes are loaded. If the new
// annotation file cannot be read the move still happens: the returned state
// carries LoadError and the error is returned alongside it.
func (a *Annotator) navigate(move func()) (types.State, error) {
	if a.session.Len() == 0 {
		return types.State{Boxes: []types.Box{}}, nil
	}

	prev, err := a.session.Current()
	if err != nil {
		return types.State{}, err
	}
	prevIndex := a.session.Index()
	move()
	if a.session.Index() == prevIndex {
		return a.Current()
	}

	if a.dirty {
		if a.cfg.Session.AutoSave {
			if err := a.saveTo(prev.AnnotationPath); err != nil {
				a.session.Seek(prevIndex)
				return types.State{}, err
			}
		} else {
			a.log.WithField("annotation", prev.AnnotationPath).Warn("discarding unsaved boxes")
		}
	}

	if err := a.loadBoxes(); err != nil {
		st, _ := a.Current()
		return st, err
	}
	return a.Current()
}

// Reload drops pending edits and reads the current image and annotation file
// again, e.g. after fixing them in another program.
func (a *Annotator) Reload() (types.State, error) {
	img, err := a.session.CurrentImagePath()
	if err != nil {
		return types.State{Boxes: []types.Box{}}, nil
	}
	if a.dirty {
		a.log.WithField("image", img).Warn("discarding unsaved boxes")
	}
	a.session.Invalidate(img)
	if err := a.loadBoxes(); err != nil {
		st, _ := a.Current()
		return st, err
	}
	return a.Current()
}

// Current returns the state at the current position
func (a *Annotator) Current() (types.State, error) {
	e, err := a.session.Current()
	if err != nil {
		return types.State{}, err
	}
	return types.State{
		Index:          a.session.Index(),
		Total:          a.session.Len(),
		ImagePath:      e.ImagePath,
		AnnotationPath: e.AnnotationPath,
		Boxes:          a.Boxes(),
		Dirty:          a.dirty,
		LoadError:      a.loadErr,
	}, nil
}

// Boxes returns a copy of the current image's boxes
func (a *Annotator) Boxes() []types.Box {
	return append([]types.Box{}, a.boxes...)
}

// Dirty reports whether the boxes differ from the annotation file
func (a *Annotator) Dirty() bool {
	return a.dirty
}

// AddBox appends a normalized box and returns its position
func (a *Annotator) AddBox(b types.Box) (int, error) {
	if err := a.editable("AddBox"); err != nil {
		return -1, err
	}
	if err := b.Validate(); err != nil {
		return -1, err
	}
	a.boxes = append(a.boxes, b)
	a.dirty = true
	return len(a.boxes) - 1, nil
}

// AddPixelBox converts a box drawn in source-image pixels and appends it.
// The part outside the image is cut off; a box with nothing left is rejected.
func (a *Annotator) AddPixelBox(p types.PixelBox) (int, error) {
	if err := a.editable("AddPixelBox"); err != nil {
		return -1, err
	}
	img, err := a.session.CurrentImage()
	if err != nil {
		return -1, err
	}
	w, h := processing.ImageSize(img)
	b := annotation.ToNormalized(p, w, h)
	if !annotation.HasArea(b) {
		return -1, fmt.Errorf("%w: box at (%.1f, %.1f) size %.1fx%.1f has no area inside the %dx%d image",
			types.ErrValidation, p.XCenter, p.YCenter, p.Width, p.Height, w, h)
	}
	return a.AddBox(b)
}

// AddViewBox adds a box dragged from (x0,y0) to (x1,y1) on the image as
// displayed in vp. Corners on the letterbox are pulled onto the image edge.
func (a *Annotator) AddViewBox(vp types.Viewport, class int, x0, y0, x1, y1 float64) (int, error) {
	if err := a.editable("AddViewBox"); err != nil {
		return -1, err
	}
	frame, err := a.session.LoadCurrent(vp)
	if err != nil {
		return -1, err
	}
	sx0, sy0, _ := frame.ToSource(x0, y0)
	sx1, sy1, _ := frame.ToSource(x1, y1)
	return a.AddPixelBox(types.PixelBox{
		XCenter:    (sx0 + sx1) / 2,
		YCenter:    (sy0 + sy1) / 2,
		Width:      math.Abs(sx1 - sx0),
		Height:     math.Abs(sy1 - sy0),
		ClassIndex: class,
	})
}

// RemoveBox deletes box i
func (a *Annotator) RemoveBox(i int) error {
	if i < 0 || i >= len(a.boxes) {
		return fmt.Errorf("%w: box %d of %d", types.ErrIndexOutOfRange, i, len(a.boxes))
	}
	a.boxes = append(a.boxes[:i], a.boxes[i+1:]...)
	a.dirty = true
	return nil
}

// SetClass changes the class of box i
func (a *Annotator) SetClass(i, class int) error {
	if i < 0 || i >= len(a.boxes) {
		return fmt.Errorf("%w: box %d of %d", types.ErrIndexOutOfRange, i, len(a.boxes))
	}
	if class < 0 {
		return fmt.Errorf("%w: negative class index %d", types.ErrValidation, class)
	}
	a.boxes[i].ClassIndex = class
	a.dirty = true
	return nil
}

// ClearBoxes removes every box of the current image
func (a *Annotator) ClearBoxes() {
	if len(a.boxes) > 0 {
		a.dirty = true
	}
	a.boxes = []types.Box{}
}

// Save writes the current boxes to the paired annotation file
func (a *Annotator) Save() error {
	if err := a.editable("Save"); err != nil {
		return err
	}
	path, err := a.session.CurrentAnnotationPath()
	if err != nil {
		return err
	}
	return a.saveTo(path)
}

func (a *Annotator) saveTo(path string) error {
	if err := annotation.Save(path, a.boxes); err != nil {
		a.log.WithField("annotation", path).WithError(err).Error("failed to save annotations")
		return err
	}
	a.dirty = false
	a.log.WithFields(logrus.Fields{"annotation": path, "boxes": len(a.boxes)}).Info("annotations saved")
	return nil
}

// Detect replaces the current boxes with the detector's proposals
func (a *Annotator) Detect(ctx context.Context) ([]types.Box, error) {
	if err := a.editable("Detect"); err != nil {
		return nil, err
	}
	path, err := a.session.CurrentImagePath()
	if err != nil {
		return nil, err
	}
	img, err := a.session.CurrentImage()
	if err != nil {
		return nil, err
	}
	w, h := processing.ImageSize(img)

	boxes, err := a.detector.DetectNormalized(ctx, a.modelRef(), path, w, h)
	if err != nil {
		return nil, err
	}
	a.boxes = boxes
	a.dirty = true
	return a.Boxes(), nil
}

// modelRef is the configured model name, falling back to the project's model file
func (a *Annotator) modelRef() string {
	if a.cfg.Detection.Model != "" {
		return a.cfg.Detection.Model
	}
	return a.project.ModelFile()
}

// Render fits the current image into vp, draws the boxes with their label
// names and writes the result. An empty outPath derives a name in the
// configured output directory. It returns the written path.
func (a *Annotator) Render(vp types.Viewport, outPath string) (string, error) {
	frame, err := a.session.LoadCurrent(vp)
	if err != nil {
		return "", err
	}
	format := a.cfg.Output.Format
	if outPath == "" {
		img, _ := a.session.CurrentImagePath()
		name := utils.SanitizeFilename(utils.BaseName(img)) + "_boxes." + format
		outPath = filepath.Join(a.cfg.Output.Dir, name)
	} else if ext := utils.GetFileExtension(outPath); ext != "" {
		format = ext
	}

	overlay := a.processor.CreateOverlay(frame, a.boxes, a.labels.Name)
	if err := utils.EnsureDir(filepath.Dir(outPath)); err != nil {
		return "", types.NewError(types.ErrPersist, "Render", outPath, err)
	}
	if err := a.processor.SaveImage(overlay, outPath, format, a.cfg.Output.Quality, a.cfg.Output.Lossless); err != nil {
		return "", types.NewError(types.ErrPersist, "Render", outPath, err)
	}
	return outPath, nil
}

// Labels returns the class names in class-index order
func (a *Annotator) Labels() []string {
	return a.labels.Names()
}

// LabelName returns the display name of a class index
func (a *Annotator) LabelName(class int) string {
	return a.labels.Name(class)
}

// AddLabel appends a class name, persists the project and refreshes classes.txt
func (a *Annotator) AddLabel(name string) (int, error) {
	idx, err := a.labels.Add(name)
	if err != nil {
		return -1, err
	}
	if err := a.project.SetLabels(a.labels); err != nil {
		a.labels, _ = a.project.LabelSet()
		return -1, err
	}
	if _, err := a.project.ExportClasses(); err != nil {
		return -1, err
	}
	a.log.WithFields(logrus.Fields{"label": a.labels.Name(idx), "class": idx}).Info("label added")
	return idx, nil
}

// RenameLabel changes the name of class i. Annotation files keep their class
// indices, so every box of that class takes the new name.
func (a *Annotator) RenameLabel(i int, name string) error {
	if err := a.labels.Rename(i, name); err != nil {
		return err
	}
	if err := a.project.SetLabels(a.labels); err != nil {
		a.labels, _ = a.project.LabelSet()
		return err
	}
	if _, err := a.project.ExportClasses(); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"label": a.labels.Name(i), "class": i}).Info("label renamed")
	return nil
}

// PromptLabel asks p for a new label name and adds it on accept. A cancelled
// prompt returns index -1 and no error.
func (a *Annotator) PromptLabel(ctx context.Context, p labels.Prompter) (int, error) {
	res, err := p.Prompt(ctx)
	if err != nil {
		return -1, err
	}
	if res.Action != labels.Accept {
		return -1, nil
	}
	return a.AddLabel(res.Name)
}

// IsUserError reports whether err should be shown to the user rather than
// treated as a crash: every failure kind of the annotator qualifies.
func IsUserError(err error) bool {
	for _, kind := range []error{types.ErrImageLoad, types.ErrPersist, types.ErrDetection, types.ErrValidation, types.ErrIndexOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

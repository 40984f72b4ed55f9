// Package project persists the description of an annotation project: where its
// spectrograms and annotation files live, which model detects boxes for it and
// the ordered class names.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/labels"
	"github.com/menta2k/spectrai/pkg/session"
	"github.com/menta2k/spectrai/pkg/types"
)

// FileName is the project file written into the project root
const FileName = "spectrai.yaml"

const (
	DefaultImagesDir      = "images"
	DefaultAnnotationsDir = "labels"
)

// Project is the persisted project description. Relative directories are
// resolved against Root.
type Project struct {
	ID             uuid.UUID `yaml:"id" validate:"required"`
	Name           string    `yaml:"name" validate:"required,max=128"`
	ImagesDir      string    `yaml:"images_dir" validate:"required"`
	AnnotationsDir string    `yaml:"annotations_dir" validate:"required"`
	ModelPath      string    `yaml:"model_path,omitempty"`
	Labels         []string  `yaml:"labels"`
	CreatedAt      time.Time `yaml:"created_at"`

	Root string `yaml:"-"`
}

// CreateOptions customizes Create
type CreateOptions struct {
	ImagesDir      string
	AnnotationsDir string
	ModelPath      string
	Labels         []string
}

var validate = validator.New()

// Create initializes a project in root, creating the image and annotation
// directories. It refuses to overwrite an existing project file.
func Create(root, name string, opts CreateOptions) (*Project, error) {
	if utils.FileExists(filepath.Join(root, FileName)) {
		return nil, types.Errorf(types.ErrValidation, "project.Create", root, "project already exists")
	}

	p := &Project{
		ID:             uuid.New(),
		Name:           name,
		ImagesDir:      orDefault(opts.ImagesDir, DefaultImagesDir),
		AnnotationsDir: orDefault(opts.AnnotationsDir, DefaultAnnotationsDir),
		ModelPath:      opts.ModelPath,
		Labels:         []string{},
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		Root:           root,
	}

	set, err := labels.NewSet(opts.Labels...)
	if err != nil {
		return nil, err
	}
	p.Labels = set.Names()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{p.ImagesPath(), p.AnnotationsPath()} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, types.NewError(types.ErrPersist, "project.Create", dir, err)
		}
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads the project file from root
func Load(root string) (*Project, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.Errorf(types.ErrValidation, "project.Load", path, "not a project (missing %s)", FileName)
		}
		return nil, types.NewError(types.ErrPersist, "project.Load", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, types.NewError(types.ErrValidation, "project.Load", path, err)
	}
	if p.Labels == nil {
		p.Labels = []string{}
	}
	p.Root = root
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the project file atomically
func (p *Project) Save() error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	path := filepath.Join(p.Root, FileName)
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return types.NewError(types.ErrPersist, "project.Save", path, err)
	}
	return nil
}

// Validate checks required fields and label uniqueness
func (p *Project) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: invalid project: %v", types.ErrValidation, err)
	}
	if _, err := labels.NewSet(p.Labels...); err != nil {
		return err
	}
	return nil
}

// ImagesPath returns the absolute-or-root-relative image directory
func (p *Project) ImagesPath() string {
	return p.resolve(p.ImagesDir)
}

// AnnotationsPath returns the annotation directory
func (p *Project) AnnotationsPath() string {
	return p.resolve(p.AnnotationsDir)
}

// ModelFile returns the detector model reference; relative paths are resolved
// against the project root.
func (p *Project) ModelFile() string {
	if p.ModelPath == "" {
		return ""
	}
	return p.resolve(p.ModelPath)
}

func (p *Project) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.Root, dir)
}

// OpenSession scans the project's directories into a new Session
func (p *Project) OpenSession(opts ...session.Option) (*session.Session, error) {
	return session.Open(p.ImagesPath(), p.AnnotationsPath(), opts...)
}

// LabelSet returns the project's labels as an editable set
func (p *Project) LabelSet() (*labels.Set, error) {
	return labels.NewSet(p.Labels...)
}

// SetLabels replaces the label list from set and saves the project
func (p *Project) SetLabels(set *labels.Set) error {
	prev := p.Labels
	p.Labels = set.Names()
	if err := p.Save(); err != nil {
		p.Labels = prev
		return err
	}
	return nil
}

// ExportClasses writes classes.txt next to the annotation files
func (p *Project) ExportClasses() (string, error) {
	path := filepath.Join(p.AnnotationsPath(), annotation.ClassesFile)
	if err := annotation.WriteClasses(path, p.Labels); err != nil {
		return "", err
	}
	return path, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

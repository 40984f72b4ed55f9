package project

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/types"
)

func TestCreateLayout(t *testing.T) {
	root := t.TempDir()
	p, err := Create(root, "dolphins", CreateOptions{Labels: []string{"whistle", "click"}})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.DirExists(t, filepath.Join(root, "images"))
	assert.DirExists(t, filepath.Join(root, "labels"))
	assert.FileExists(t, filepath.Join(root, FileName))
	assert.Equal(t, []string{"whistle", "click"}, p.Labels)
}

func TestCreateRefusesExisting(t *testing.T) {
	root := t.TempDir()
	_, err := Create(root, "a", CreateOptions{})
	require.NoError(t, err)

	_, err = Create(root, "b", CreateOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCreateValidates(t *testing.T) {
	_, err := Create(t.TempDir(), "", CreateOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = Create(t.TempDir(), "x", CreateOptions{Labels: []string{"a", "a"}})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	created, err := Create(root, "bats", CreateOptions{
		ImagesDir:      "spectrograms",
		AnnotationsDir: "yolo",
		ModelPath:      "models/best.pt",
		Labels:         []string{"fm"},
	})
	require.NoError(t, err)

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
	assert.Equal(t, filepath.Join(root, "spectrograms"), loaded.ImagesPath())
	assert.Equal(t, filepath.Join(root, "yolo"), loaded.AnnotationsPath())
	assert.Equal(t, filepath.Join(root, "models", "best.pt"), loaded.ModelFile())
}

func TestAbsoluteDirsAreKept(t *testing.T) {
	images := t.TempDir()
	p, err := Create(t.TempDir(), "abs", CreateOptions{ImagesDir: images})
	require.NoError(t, err)
	assert.Equal(t, images, p.ImagesPath())
	assert.Equal(t, "", p.ModelFile())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLoadCorrupt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("id: [unclosed"), 0644))
	_, err := Load(root)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSetLabelsPersists(t *testing.T) {
	root := t.TempDir()
	p, err := Create(root, "p", CreateOptions{})
	require.NoError(t, err)

	set, err := p.LabelSet()
	require.NoError(t, err)
	_, err = set.Add("upsweep")
	require.NoError(t, err)
	require.NoError(t, p.SetLabels(set))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"upsweep"}, loaded.Labels)
}

func TestExportClasses(t *testing.T) {
	p, err := Create(t.TempDir(), "p", CreateOptions{Labels: []string{"a", "b"}})
	require.NoError(t, err)

	path, err := p.ExportClasses()
	require.NoError(t, err)
	names, err := annotation.ReadClasses(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestOpenSession(t *testing.T) {
	root := t.TempDir()
	p, err := Create(root, "p", CreateOptions{Labels: []string{"a"}})
	require.NoError(t, err)
	_, err = p.ExportClasses()
	require.NoError(t, err)

	f, err := os.Create(filepath.Join(p.ImagesPath(), "s1.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	s, err := p.OpenSession()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	ann, err := s.CurrentAnnotationPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.AnnotationsPath(), "s1.txt"), ann)
}

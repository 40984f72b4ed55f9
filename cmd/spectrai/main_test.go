package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/spectrai/internal/config"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/llamacpp"
	"github.com/menta2k/spectrai/pkg/ollama"
	"github.com/menta2k/spectrai/pkg/project"
	"github.com/menta2k/spectrai/pkg/types"
	"github.com/menta2k/spectrai/pkg/yolo"
)

// run executes the CLI with args and stdin, returning stdout
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{v: config.NewViper(), in: strings.NewReader(stdin), out: &out, errOut: &errOut}
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSpectrogram(t *testing.T, dir, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), 0, uint8(y % 256), 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newProjectDir(t *testing.T, images ...string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj")
	_, err := run(t, "", "init", root, "--labels", "whistle,click")
	require.NoError(t, err)
	for _, name := range images {
		writeSpectrogram(t, filepath.Join(root, project.DefaultImagesDir), name)
	}
	return root
}

func TestInitCreatesProject(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dolphins")
	out, err := run(t, "", "init", root, "--labels", "whistle,click")
	require.NoError(t, err)
	assert.Contains(t, out, `created project "dolphins"`)

	p, err := project.Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"whistle", "click"}, p.Labels)

	classes, err := annotation.ReadClasses(filepath.Join(p.AnnotationsPath(), annotation.ClassesFile))
	require.NoError(t, err)
	assert.Equal(t, p.Labels, classes)

	_, err = run(t, "", "init", root)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLabelAddAndList(t *testing.T) {
	root := newProjectDir(t)

	out, err := run(t, "", "-p", root, "label", "add", "up", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "2 up sweep\n", out)

	out, err = run(t, "", "-p", root, "label", "list")
	require.NoError(t, err)
	assert.Equal(t, "0 whistle\n1 click\n2 up sweep\n", out)

	_, err = run(t, "", "-p", root, "label", "add", "click")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLsAndBoxes(t *testing.T) {
	root := newProjectDir(t, "a.png", "b.png")
	require.NoError(t, os.WriteFile(filepath.Join(root, "labels", "b.txt"), []byte("1 0.5 0.5 0.2 0.4\n0 0.1 0.1 0.1 0.1\n"), 0644))

	out, err := run(t, "", "-p", root, "ls")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "a.png")
	assert.True(t, strings.HasSuffix(lines[1], "-"))
	assert.True(t, strings.HasSuffix(lines[2], "2"))

	out, err = run(t, "", "-p", root, "boxes", "2")
	require.NoError(t, err)
	assert.Equal(t, "1 0.500000 0.500000 0.200000 0.400000\n0 0.100000 0.100000 0.100000 0.100000\n", out)

	out, err = run(t, "", "-p", root, "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[2/2] b.png (2 boxes)")
	assert.Contains(t, out, "click")

	_, err = run(t, "", "-p", root, "show", "3")
	assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
	_, err = run(t, "", "-p", root, "show", "x")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestUnreadableFirstAnnotation(t *testing.T) {
	root := newProjectDir(t, "a.png", "b.png")
	require.NoError(t, os.WriteFile(filepath.Join(root, "labels", "a.txt"), []byte("0 1.2 0.5 0.1 0.1\n"), 0644))

	out, err := run(t, "", "-p", root, "ls")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], "invalid"))

	out, err = run(t, "", "-p", root, "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] a.png (0 boxes)\n  annotation unreadable:")

	_, err = run(t, "", "-p", root, "boxes", "1")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLabelRename(t *testing.T) {
	root := newProjectDir(t)

	out, err := run(t, "", "-p", root, "label", "rename", "1", "broadband", "click")
	require.NoError(t, err)
	assert.Equal(t, "1 broadband click\n", out)

	classes, err := annotation.ReadClasses(filepath.Join(root, "labels", annotation.ClassesFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"whistle", "broadband click"}, classes)

	_, err = run(t, "", "-p", root, "label", "rename", "x", "moan")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = run(t, "", "-p", root, "label", "rename", "5", "moan")
	assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
}

func TestLsOrphans(t *testing.T) {
	root := newProjectDir(t, "a.png")
	require.NoError(t, os.WriteFile(filepath.Join(root, "labels", "gone.txt"), nil, 0644))

	_, err := run(t, "", "-p", root, "ls")
	assert.ErrorIs(t, err, types.ErrValidation)

	out, err := run(t, "", "-p", root, "--lenient", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "orphan annotation:")
	assert.Contains(t, out, "gone.txt")
}

func TestDetectWithPredictorScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell predictor stand-in needs a POSIX shell")
	}
	root := newProjectDir(t, "a.png")
	script := filepath.Join(t.TempDir(), "predict.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '[{\"x\": 100, \"y\": 50, \"w\": 20, \"h\": 30, \"idx\": 1}]'\n"), 0755))

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfgYAML := fmt.Sprintf("detection:\n  backend: yolo\n  command: [%q, \"{model}\", \"{image}\"]\n", script)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0644))

	out, err := run(t, "", "-c", cfgPath, "-p", root, "--model", "best.pt", "detect", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "click")
	assert.Contains(t, out, "saved")

	boxes, err := annotation.Load(filepath.Join(root, "labels", "a.txt"))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.25, boxes[0].XCenter, 1e-6)
	assert.InDelta(t, 0.1, boxes[0].Height, 1e-6)
}

func TestRenderCommand(t *testing.T) {
	root := newProjectDir(t, "a.png")
	target := filepath.Join(t.TempDir(), "preview.png")

	out, err := run(t, "", "-p", root, "render", "1", "-o", target, "--width", "120", "--height", "90")
	require.NoError(t, err)
	assert.Equal(t, "wrote "+target+"\n", out)

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 90, cfg.Height)
}

func TestUnknownBackend(t *testing.T) {
	root := newProjectDir(t, "a.png")
	_, err := run(t, "", "-p", root, "--backend", "tflite", "ls")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestNewDetector(t *testing.T) {
	cfg := config.Default()

	d, err := newDetector(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &yolo.Client{}, d)

	cfg.Detection.Backend = "ollama"
	d, err = newDetector(cfg, []string{"whistle"})
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, d)

	cfg.Detection.Backend = "llamacpp"
	d, err = newDetector(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &llamacpp.Client{}, d)

	cfg.Detection.Backend = "ollama"
	cfg.Detection.URL = "localhost"
	_, err = newDetector(cfg, nil)
	assert.Error(t, err)

	cfg.Detection.Backend = "other"
	_, err = newDetector(cfg, nil)
	assert.Error(t, err)
}

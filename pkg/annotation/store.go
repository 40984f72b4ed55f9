// Package annotation reads and writes per-image YOLO annotation files.
//
// Each line of an annotation file describes one box:
//
//	<class_index> <x_center> <y_center> <width> <height>
//
// with all coordinates normalized to the image size.
package annotation

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/types"
)

// Load parses the annotation file at path. A missing file yields zero boxes.
func Load(path string) ([]types.Box, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.Box{}, nil
		}
		return nil, types.NewError(types.ErrPersist, "annotation.Load", path, err)
	}
	defer f.Close()

	boxes, err := Parse(f)
	if err != nil {
		if errors.Is(err, types.ErrValidation) {
			return nil, types.NewError(types.ErrValidation, "annotation.Load", path, err)
		}
		return nil, types.NewError(types.ErrPersist, "annotation.Load", path, err)
	}
	return boxes, nil
}

// Parse reads YOLO lines from r. Blank lines are skipped.
func Parse(r io.Reader) ([]types.Box, error) {
	boxes := []types.Box{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		box, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		boxes = append(boxes, box)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read after line %d: %w", line, err)
	}
	return boxes, nil
}

func parseLine(text string) (types.Box, error) {
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return types.Box{}, fmt.Errorf("%w: expected 5 fields, got %d", types.ErrValidation, len(fields))
	}

	cls, err := strconv.Atoi(fields[0])
	if err != nil {
		return types.Box{}, fmt.Errorf("%w: bad class index %q", types.ErrValidation, fields[0])
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return types.Box{}, fmt.Errorf("%w: bad coordinate %q", types.ErrValidation, fields[i+1])
		}
		vals[i] = v
	}

	box := types.Box{ClassIndex: cls, XCenter: vals[0], YCenter: vals[1], Width: vals[2], Height: vals[3]}
	if err := box.Validate(); err != nil {
		return types.Box{}, err
	}
	return box, nil
}

// Format writes boxes to w, one line per box
func Format(w io.Writer, boxes []types.Box) error {
	for i, b := range boxes {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("box %d: %w", i, err)
		}
		if _, err := fmt.Fprintf(w, "%d %.6f %.6f %.6f %.6f\n", b.ClassIndex, b.XCenter, b.YCenter, b.Width, b.Height); err != nil {
			return err
		}
	}
	return nil
}

// Save overwrites the annotation file at path with boxes, creating its directory.
// The file is replaced through a temp file so a failed write keeps the old content.
func Save(path string, boxes []types.Box) error {
	var buf bytes.Buffer
	if err := Format(&buf, boxes); err != nil {
		return types.NewError(types.ErrValidation, "annotation.Save", path, err)
	}
	if err := utils.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return types.NewError(types.ErrPersist, "annotation.Save", path, err)
	}
	return nil
}

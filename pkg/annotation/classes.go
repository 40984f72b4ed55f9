package annotation

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/types"
)

// ClassesFile is the conventional YOLO class-name list stored next to the labels
const ClassesFile = "classes.txt"

// ReadClasses reads one class name per line. A missing file yields no names.
func ReadClasses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, types.NewError(types.ErrPersist, "annotation.ReadClasses", path, err)
	}
	defer f.Close()

	names := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, types.NewError(types.ErrPersist, "annotation.ReadClasses", path, err)
	}
	return names, nil
}

// WriteClasses overwrites path with one class name per line, in class-index order
func WriteClasses(path string, names []string) error {
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('\n')
	}
	if err := utils.WriteFileAtomic(path, []byte(sb.String()), 0644); err != nil {
		return types.NewError(types.ErrPersist, "annotation.WriteClasses", path, err)
	}
	return nil
}

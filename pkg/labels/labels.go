// Package labels manages the ordered class-name list of a project and the
// naming prompt used to add new labels.
package labels

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/menta2k/spectrai/pkg/types"
)

var validate = validator.New()

type labelName struct {
	Name string `validate:"required,max=64"`
}

// ValidateName trims name and rejects it when empty or unusable as a class name
func ValidateName(name string) (string, error) {
	n := labelName{Name: strings.TrimSpace(name)}
	if err := validate.Struct(n); err != nil {
		if n.Name == "" {
			return "", fmt.Errorf("%w: label name cannot be empty", types.ErrValidation)
		}
		return "", fmt.Errorf("%w: invalid label name %q: %v", types.ErrValidation, n.Name, err)
	}
	return n.Name, nil
}

// Set is an ordered list of unique label names; a name's position is its class index
type Set struct {
	names []string
}

// NewSet builds a set from names, validating each
func NewSet(names ...string) (*Set, error) {
	s := &Set{}
	for _, n := range names {
		if _, err := s.Add(n); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a label and returns its class index
func (s *Set) Add(name string) (int, error) {
	name, err := ValidateName(name)
	if err != nil {
		return -1, err
	}
	if s.Index(name) >= 0 {
		return -1, fmt.Errorf("%w: label %q already exists", types.ErrValidation, name)
	}
	s.names = append(s.names, name)
	return len(s.names) - 1, nil
}

// Rename changes the name at class index i
func (s *Set) Rename(i int, name string) error {
	if i < 0 || i >= len(s.names) {
		return fmt.Errorf("%w: class %d", types.ErrIndexOutOfRange, i)
	}
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	if j := s.Index(name); j >= 0 && j != i {
		return fmt.Errorf("%w: label %q already exists", types.ErrValidation, name)
	}
	s.names[i] = name
	return nil
}

// Index returns the class index of name or -1
func (s *Set) Index(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Name returns the label for class i, or a numeric placeholder for unknown classes
func (s *Set) Name(i int) string {
	if i >= 0 && i < len(s.names) {
		return s.names[i]
	}
	return fmt.Sprintf("class %d", i)
}

// Names returns a copy of the labels in class-index order
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of labels
func (s *Set) Len() int {
	return len(s.names)
}

package labels

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/spectrai/pkg/types"
)

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  whistle  ")
	require.NoError(t, err)
	assert.Equal(t, "whistle", name)

	_, err = ValidateName("   ")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = ValidateName(strings.Repeat("x", 65))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSetAddAndIndex(t *testing.T) {
	s, err := NewSet("whistle", "click")
	require.NoError(t, err)

	idx, err := s.Add(" burst ")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, []string{"whistle", "click", "burst"}, s.Names())
	assert.Equal(t, 1, s.Index("click"))
	assert.Equal(t, -1, s.Index("moan"))
	assert.Equal(t, "click", s.Name(1))
	assert.Equal(t, "class 9", s.Name(9))
	assert.Equal(t, 3, s.Len())
}

func TestSetRejectsDuplicatesAndEmpty(t *testing.T) {
	s, err := NewSet("whistle")
	require.NoError(t, err)

	_, err = s.Add("whistle")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = s.Add("")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = NewSet("a", "a")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSetRename(t *testing.T) {
	s, err := NewSet("a", "b")
	require.NoError(t, err)

	require.NoError(t, s.Rename(0, "c"))
	require.NoError(t, s.Rename(0, "c"), "renaming to itself is fine")
	assert.ErrorIs(t, s.Rename(0, "b"), types.ErrValidation)
	assert.ErrorIs(t, s.Rename(5, "z"), types.ErrIndexOutOfRange)
	assert.Equal(t, []string{"c", "b"}, s.Names())
}

func TestNamesIsACopy(t *testing.T) {
	s, err := NewSet("a")
	require.NoError(t, err)
	names := s.Names()
	names[0] = "mutated"
	assert.Equal(t, "a", s.Name(0))
}

func TestTerminalPrompterAccept(t *testing.T) {
	var out bytes.Buffer
	res, err := NewTerminalPrompter(strings.NewReader("  upsweep \n"), &out).Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Action: Accept, Name: "upsweep"}, res)
}

func TestTerminalPrompterRepromptsOnEmpty(t *testing.T) {
	var out bytes.Buffer
	res, err := NewTerminalPrompter(strings.NewReader("\n   \nclick\n"), &out).Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Action: Accept, Name: "click"}, res)
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid Name"))
	assert.Equal(t, 3, strings.Count(out.String(), "Add New Label"))
}

func TestTerminalPrompterCancel(t *testing.T) {
	res, err := NewTerminalPrompter(strings.NewReader(CancelInput+"\n"), &bytes.Buffer{}).Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Action: Cancel}, res)

	res, err = NewTerminalPrompter(strings.NewReader(""), &bytes.Buffer{}).Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Action: Cancel, Name: ""}, res)
}

func TestTerminalPrompterNameWithoutNewline(t *testing.T) {
	res, err := NewTerminalPrompter(strings.NewReader("moan"), &bytes.Buffer{}).Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Action: Accept, Name: "moan"}, res)
}

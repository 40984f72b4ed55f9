package labels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Action is the outcome of a naming prompt
type Action string

const (
	Accept Action = "accept"
	Cancel Action = "cancel"
)

// CancelInput typed at the prompt aborts it
const CancelInput = ":cancel"

// Result is what a naming prompt returns: (accept, name) or (cancel, "")
type Result struct {
	Action Action
	Name   string
}

// Prompter asks the user for a new label name
type Prompter interface {
	Prompt(ctx context.Context) (Result, error)
}

// TerminalPrompter reads label names line by line. Empty names are rejected
// with a warning and the prompt is repeated rather than closed.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over in/out
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Prompt implements Prompter. EOF or CancelInput cancels.
func (p *TerminalPrompter) Prompt(ctx context.Context) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Result{Action: Cancel}, err
		}

		fmt.Fprint(p.out, "Add New Label (name, or "+CancelInput+"): ")
		line, err := p.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Result{Action: Cancel}, err
		}

		input := strings.TrimSpace(line)
		if input == CancelInput {
			return Result{Action: Cancel}, nil
		}

		name, verr := ValidateName(input)
		if verr == nil {
			return Result{Action: Accept, Name: name}, nil
		}
		if errors.Is(err, io.EOF) {
			return Result{Action: Cancel}, nil
		}
		fmt.Fprintf(p.out, "Invalid Name: %v\n", verr)
	}
}

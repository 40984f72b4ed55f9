package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/menta2k/spectrai"
	"github.com/menta2k/spectrai/internal/config"
	"github.com/menta2k/spectrai/pkg/labels"
	"github.com/menta2k/spectrai/pkg/types"
)

const replHelp = `commands:
  n | next                 next image
  p | prev                 previous image
  g | goto N               jump to image N (1-based)
  s | show                 show the current image and its boxes
  a | add CLASS X Y W H    add a box, normalized center/size in [0,1]
  ap | addpx CLASS X Y W H add a box in image pixels
  av | addview CLASS X0 Y0 X1 Y1
                           add a box dragged on the rendered preview
  rm I                     remove box I
  cls I CLASS              set the class of box I (index or label name)
  clear                    remove all boxes
  w | save                 save the annotation file
  reload                   drop edits and re-read the image and annotation file
  d | detect               replace the boxes with detector proposals
  r | render [PATH]        write a preview with boxes drawn
  label                    add a class name (prompts)
  labels                   list class names
  rename I NAME            rename class I
  q | quit                 leave; q! discards unsaved edits
  h | help                 this text
`

// repl is the interactive presentation layer; each line maps to one
// Annotator command handler.
type repl struct {
	ann      *spectrai.Annotator
	cfg      *config.Config
	in       *bufio.Reader
	out      io.Writer
	prompter labels.Prompter

	viewport      types.Viewport
	detectContext func(context.Context) (context.Context, context.CancelFunc)
}

func newREPL(ann *spectrai.Annotator, cfg *config.Config, in io.Reader, out io.Writer) *repl {
	r := &repl{
		ann: ann,
		cfg: cfg,
		in:  bufio.NewReader(in),
		out: out,
		viewport: types.Viewport{
			Width:   cfg.Display.Width,
			Height:  cfg.Display.Height,
			Stretch: cfg.Display.Stretch,
		},
		detectContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		},
	}
	// the prompter shares the buffered reader so no input is lost between them
	r.prompter = labels.NewTerminalPrompter(r.in, out)
	return r
}

var errQuit = errors.New("quit")

// run reads commands until quit or EOF
func (r *repl) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := r.ann.Project()
	fmt.Fprintf(r.out, "project %q: %d images, %d labels (type help for commands)\n", p.Name, r.ann.Session().Len(), len(r.ann.Labels()))
	r.show()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.out, "> ")
		line, err := r.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) > 0 {
			if cerr := r.exec(ctx, fields[0], fields[1:]); cerr != nil {
				if errors.Is(cerr, errQuit) {
					return nil
				}
				fmt.Fprintf(r.out, "error: %v\n", cerr)
			}
		}

		if errors.Is(err, io.EOF) {
			if r.ann.Dirty() {
				fmt.Fprintln(r.out, "unsaved edits discarded")
			}
			return nil
		}
	}
}

func (r *repl) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "n", "next":
		return r.navigate(r.ann.Next())
	case "p", "prev":
		return r.navigate(r.ann.Previous())
	case "g", "goto":
		if len(args) != 1 {
			return usage("goto N")
		}
		i, err := parseIndex(args[0], r.ann.Session().Len())
		if err != nil {
			return err
		}
		return r.navigate(r.ann.Goto(i))
	case "s", "show":
		r.show()
		return nil
	case "a", "add", "ap", "addpx":
		return r.add(cmd == "ap" || cmd == "addpx", args)
	case "av", "addview":
		return r.addView(args)
	case "rm":
		if len(args) != 1 {
			return usage("rm I")
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: box index %q", types.ErrValidation, args[0])
		}
		if err := r.ann.RemoveBox(i); err != nil {
			return err
		}
		r.show()
		return nil
	case "cls":
		if len(args) != 2 {
			return usage("cls I CLASS")
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: box index %q", types.ErrValidation, args[0])
		}
		class, err := r.class(args[1])
		if err != nil {
			return err
		}
		if err := r.ann.SetClass(i, class); err != nil {
			return err
		}
		r.show()
		return nil
	case "clear":
		r.ann.ClearBoxes()
		r.show()
		return nil
	case "w", "save":
		if err := r.ann.Save(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "saved")
		return nil
	case "reload":
		return r.navigate(r.ann.Reload())
	case "d", "detect":
		dctx, cancel := r.detectContext(ctx)
		defer cancel()
		if _, err := r.ann.Detect(dctx); err != nil {
			return err
		}
		r.show()
		return nil
	case "r", "render":
		out := ""
		if len(args) > 0 {
			out = args[0]
		}
		path, err := r.ann.Render(r.viewport, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "wrote %s\n", path)
		return nil
	case "label":
		idx, err := r.ann.PromptLabel(ctx, r.prompter)
		if err != nil {
			return err
		}
		if idx < 0 {
			fmt.Fprintln(r.out, "cancelled")
			return nil
		}
		fmt.Fprintf(r.out, "added %d %s\n", idx, r.ann.LabelName(idx))
		return nil
	case "labels":
		for i, n := range r.ann.Labels() {
			fmt.Fprintf(r.out, "%d %s\n", i, n)
		}
		return nil
	case "rename":
		if len(args) < 2 {
			return usage("rename I NAME")
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: class index %q", types.ErrValidation, args[0])
		}
		if err := r.ann.RenameLabel(i, strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "renamed %d %s\n", i, r.ann.LabelName(i))
		return nil
	case "q", "quit":
		if r.ann.Dirty() {
			if r.cfg.Session.AutoSave {
				if err := r.ann.Save(); err != nil {
					return err
				}
				return errQuit
			}
			fmt.Fprintln(r.out, "unsaved edits: save first or use q! to discard")
			return nil
		}
		return errQuit
	case "q!":
		return errQuit
	case "h", "help", "?":
		fmt.Fprint(r.out, replHelp)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (r *repl) navigate(st types.State, err error) error {
	if err != nil {
		if st.LoadError != nil {
			r.show()
		}
		return err
	}
	if st.Total == 0 {
		fmt.Fprintln(r.out, "no images in project")
		return nil
	}
	r.show()
	return nil
}

// add parses CLASS X Y W H; pixel boxes are converted by the annotator
func (r *repl) add(pixels bool, args []string) error {
	if len(args) != 5 {
		return usage("add CLASS X Y W H")
	}
	class, err := r.class(args[0])
	if err != nil {
		return err
	}
	v, err := parseFloats(args[1:])
	if err != nil {
		return err
	}

	if pixels {
		_, err = r.ann.AddPixelBox(types.PixelBox{XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3], ClassIndex: class})
	} else {
		_, err = r.ann.AddBox(types.Box{ClassIndex: class, XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3]})
	}
	if err != nil {
		return err
	}
	r.show()
	return nil
}

// addView parses CLASS X0 Y0 X1 Y1 in the coordinates of the rendered preview
func (r *repl) addView(args []string) error {
	if len(args) != 5 {
		return usage("addview CLASS X0 Y0 X1 Y1")
	}
	class, err := r.class(args[0])
	if err != nil {
		return err
	}
	v, err := parseFloats(args[1:])
	if err != nil {
		return err
	}
	if _, err := r.ann.AddViewBox(r.viewport, class, v[0], v[1], v[2], v[3]); err != nil {
		return err
	}
	r.show()
	return nil
}

func parseFloats(args []string) ([4]float64, error) {
	var v [4]float64
	for i, s := range args {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, fmt.Errorf("%w: %q is not a number", types.ErrValidation, s)
		}
		v[i] = f
	}
	return v, nil
}

// class accepts a class index or a label name
func (r *repl) class(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	for i, n := range r.ann.Labels() {
		if n == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: unknown label %q", types.ErrValidation, s)
}

func (r *repl) show() {
	st, err := r.ann.Current()
	if err != nil {
		fmt.Fprintln(r.out, "no images in project")
		return
	}
	printState(r.out, st)
	printBoxes(r.out, r.ann, st.Boxes)
}

func usage(s string) error {
	return fmt.Errorf("%w: usage: %s", types.ErrValidation, s)
}

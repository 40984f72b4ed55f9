package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/spectrai"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/project"
	"github.com/menta2k/spectrai/pkg/types"
)

// openAnnotator opens the project with a detector backend built from config
func (a *app) openAnnotator() (*spectrai.Annotator, error) {
	p, err := project.Load(a.projectDir)
	if err != nil {
		return nil, err
	}
	backend, err := newDetector(a.cfg, p.Labels)
	if err != nil {
		return nil, err
	}
	return spectrai.Open(a.projectDir, a.cfg,
		spectrai.WithDetector(backend),
		spectrai.WithLogger(a.log),
	)
}

// openAt opens the project and moves to the image index in args[0], if any.
// An unreadable annotation file is left for the caller to report from the state.
func (a *app) openAt(args []string) (*spectrai.Annotator, error) {
	ann, err := a.openAnnotator()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ann, nil
	}
	i, err := parseIndex(args[0], ann.Session().Len())
	if err != nil {
		return nil, err
	}
	if st, err := ann.Goto(i); err != nil && st.LoadError == nil {
		return nil, err
	}
	return ann, nil
}

// parseIndex converts a 1-based CLI index into a session position
func parseIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: image index %q is not a number", types.ErrValidation, s)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("%w: image %d of %d", types.ErrIndexOutOfRange, i, n)
	}
	return i - 1, nil
}

func (a *app) initCommand() *cobra.Command {
	var opts project.CreateOptions
	var name string

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new annotation project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.projectDir
			if len(args) == 1 {
				root = args[0]
			}
			if name == "" {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				name = filepath.Base(abs)
			}

			p, err := project.Create(root, name, opts)
			if err != nil {
				return err
			}
			if _, err := p.ExportClasses(); err != nil {
				return err
			}
			a.log.WithField("project", p.ID).Info("project created")
			fmt.Fprintf(cmd.OutOrStdout(), "created project %q in %s\n  images:      %s\n  annotations: %s\n",
				p.Name, root, p.ImagesPath(), p.AnnotationsPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory name)")
	cmd.Flags().StringVar(&opts.ImagesDir, "images-dir", project.DefaultImagesDir, "spectrogram directory, relative to the project")
	cmd.Flags().StringVar(&opts.AnnotationsDir, "annotations-dir", project.DefaultAnnotationsDir, "annotation directory, relative to the project")
	cmd.Flags().StringVar(&opts.ModelPath, "model-path", "", "detector model file")
	cmd.Flags().StringSliceVar(&opts.Labels, "labels", nil, "initial class names, comma separated")
	return cmd
}

func (a *app) lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List images and their annotation counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAnnotator()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tIMAGE\tANNOTATION\tBOXES")
			for i, e := range ann.Session().Entries() {
				count := "-"
				if boxes, err := annotation.Load(e.AnnotationPath); err != nil {
					count = "invalid"
				} else if len(boxes) > 0 {
					count = strconv.Itoa(len(boxes))
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, filepath.Base(e.ImagePath), filepath.Base(e.AnnotationPath), count)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, o := range ann.Session().Orphans() {
				fmt.Fprintf(out, "orphan annotation: %s\n", o)
			}
			return nil
		},
	}
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [index]",
		Short: "Show the image at a 1-based index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAt(args)
			if err != nil {
				return err
			}
			st, err := ann.Current()
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), st)
			printBoxes(cmd.OutOrStdout(), ann, st.Boxes)
			return nil
		},
	}
}

func (a *app) boxesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "boxes [index]",
		Short: "Print the YOLO lines of an image's annotation file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAt(args)
			if err != nil {
				return err
			}
			st, err := ann.Current()
			if err != nil {
				return err
			}
			if st.LoadError != nil {
				return st.LoadError
			}
			return annotation.Format(cmd.OutOrStdout(), st.Boxes)
		},
	}
}

func (a *app) detectCommand() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "detect [index]",
		Short: "Run the detector on an image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAt(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.detectContext(cmd.Context())
			defer cancel()

			boxes, err := ann.Detect(ctx)
			if err != nil {
				return err
			}
			printBoxes(cmd.OutOrStdout(), ann, boxes)
			if !save {
				return nil
			}
			if err := ann.Save(); err != nil {
				return err
			}
			st, _ := ann.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", st.AnnotationPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the detections to the annotation file")
	return cmd
}

// detectContext applies the configured detection timeout
func (a *app) detectContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if a.cfg.Detection.Timeout > 0 {
		return context.WithTimeout(parent, a.cfg.Detection.Timeout)
	}
	return context.WithCancel(parent)
}

func (a *app) renderCommand() *cobra.Command {
	var out string
	var vp types.Viewport

	cmd := &cobra.Command{
		Use:   "render [index]",
		Short: "Write a preview of an image with its boxes drawn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAt(args)
			if err != nil {
				return err
			}
			view := a.viewport()
			if cmd.Flags().Changed("width") {
				view.Width = vp.Width
			}
			if cmd.Flags().Changed("height") {
				view.Height = vp.Height
			}
			if cmd.Flags().Changed("stretch") {
				view.Stretch = vp.Stretch
			}
			path, err := ann.Render(view, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: <output.dir>/<image>_boxes.<format>)")
	cmd.Flags().IntVar(&vp.Width, "width", 0, "viewport width")
	cmd.Flags().IntVar(&vp.Height, "height", 0, "viewport height")
	cmd.Flags().BoolVar(&vp.Stretch, "stretch", false, "stretch instead of preserving aspect ratio")
	return cmd
}

func (a *app) viewport() types.Viewport {
	return types.Viewport{Width: a.cfg.Display.Width, Height: a.cfg.Display.Height, Stretch: a.cfg.Display.Stretch}
}

func (a *app) labelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Manage class names",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Add a class name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAnnotator()
			if err != nil {
				return err
			}
			idx, err := ann.AddLabel(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", idx, ann.LabelName(idx))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename INDEX NAME",
		Short: "Rename the class at a 0-based class index",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: class index %q is not a number", types.ErrValidation, args[0])
			}
			ann, err := a.openAnnotator()
			if err != nil {
				return err
			}
			if err := ann.RenameLabel(i, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, ann.LabelName(i))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List class names in class-index order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.Load(a.projectDir)
			if err != nil {
				return err
			}
			for i, n := range p.Labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i, n)
			}
			return nil
		},
	})
	return cmd
}

func (a *app) replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Annotate interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ann, err := a.openAnnotator()
			if err != nil {
				return err
			}
			r := newREPL(ann, a.cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			r.viewport = a.viewport()
			r.detectContext = a.detectContext
			return r.run(cmd.Context())
		},
	}
}

func printState(w io.Writer, st types.State) {
	mark := ""
	if st.Dirty {
		mark = " *"
	}
	fmt.Fprintf(w, "[%d/%d] %s (%d boxes)%s\n", st.Index+1, st.Total, filepath.Base(st.ImagePath), len(st.Boxes), mark)
	if st.LoadError != nil {
		fmt.Fprintf(w, "  annotation unreadable: %v\n", st.LoadError)
	}
}

func printBoxes(w io.Writer, ann *spectrai.Annotator, boxes []types.Box) {
	for i, b := range boxes {
		fmt.Fprintf(w, "  %d: %-12s x=%.4f y=%.4f w=%.4f h=%.4f\n",
			i, ann.LabelName(b.ClassIndex), b.XCenter, b.YCenter, b.Width, b.Height)
	}
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.universe.tf/pupiltrack/internal/display"
	"go.universe.tf/pupiltrack/internal/location"
)

type detectOptions struct {
	show   bool
	outDir string
}

func newDetectCommand(a *app) *cobra.Command {
	var opts detectOptions
	cmd := &cobra.Command{
		Use:   "detect <image>...",
		Short: "Locate the pupil in still images",
		Long: `detect runs the configured detector on each image and prints the pupil
position. The whole image is searched; the region of interest is not applied.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.detect(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.show, "show", false, "show each image with its annotation and wait for a key")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "write annotated images to this directory")
	return cmd
}

func (a *app) detect(cmd *cobra.Command, paths []string, opts detectOptions) (err error) {
	det, err := location.New(a.cfg.Detector, location.Options{Threshold: a.cfg.Threshold})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, det.Close()) }()

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
	}

	var bar *progressbar.ProgressBar
	if len(paths) > 1 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Detecting"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
		)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Image", "Found", "X", "Y", "Pupil (x,y,r)"})
	for _, path := range paths {
		row, derr := a.detectOne(det, path, opts)
		if row != nil {
			t.AppendRow(row)
		}
		err = multierr.Append(err, derr)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	t.Render()
	return err
}

func (a *app) detectOne(det location.Detector, path string, opts detectOptions) (table.Row, error) {
	im := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer im.Close()
	if im.Empty() {
		return nil, fmt.Errorf("%s: cannot read image", path)
	}

	res := det.Detect(im)
	defer res.Close()
	a.log.Debugw("detected", "image", path, "found", res.Found, "pupil", res.Pupil)

	var err error
	if opts.outDir != "" {
		out := filepath.Join(opts.outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"_pupil.png")
		if !gocv.IMWrite(out, res.Annotated) {
			err = fmt.Errorf("%s: cannot write %s", path, out)
		}
	}
	if opts.show {
		mats := []gocv.Mat{res.Annotated}
		if dbg, ok := det.(location.Debugger); ok && a.cfg.Debug {
			mask := dbg.Mask(im)
			defer mask.Close()
			mats = append(mats, mask)
		}
		err = multierr.Append(err, display.Inspect(mats...))
	}
	prec := a.cfg.Precision
	return table.Row{path, res.Found, fmt.Sprintf("%.*f", prec, res.X), fmt.Sprintf("%.*f", prec, res.Y), res.Pupil.String()}, err
}

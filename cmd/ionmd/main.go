package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ionmd/ionmd/internal/ccd"
	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/engine"
	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/plot"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/render"
	"github.com/ionmd/ionmd/internal/sim"
	"github.com/ionmd/ionmd/internal/storage"
	"github.com/ionmd/ionmd/internal/trajectory"
	"github.com/ionmd/ionmd/internal/tui"
	"github.com/ionmd/ionmd/internal/viz"
)

var (
	dataDir string
	verbose bool
	quiet   bool
	// Run options
	configFile string
	preset     string
	setParams  []string
	numSteps   int
	dt         float64
	seed       int64
	watch      bool
	pollEvery  time.Duration
	timeout    time.Duration
	renderNow  bool
	ccdNow     bool
	paletteHex []string
	// Plot options
	plotOut    string
	plotWidth  int
	plotHeight int
	ions       []int
	// Render options
	renderOut string
	scale     float64
	width     int
	height    int
	azimuth   float64
	elevation float64
	roll      float64
	terminal  bool
	atStep    int
	// CCD options
	ccdOut     string
	brightness float64
	bins       int
	// Export options
	exportOut string
	format    string
	asJSON    bool
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "ionmd",
})

func main() {
	rootCmd := &cobra.Command{
		Use:           "ionmd",
		Short:         "trapped ion molecular dynamics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case quiet:
				logger.SetLevel(log.WarnLevel)
			case verbose:
				logger.SetLevel(log.DebugLevel)
			}
			log.SetDefault(logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ionmd", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringArrayVar(&setParams, "set", nil, "override a parameter, name=value (repeatable)")
	runCmd.Flags().IntVar(&numSteps, "steps", config.DefaultNumSteps, "number of time steps")
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (s)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for stochastic forces")
	runCmd.Flags().BoolVar(&watch, "watch", false, "show a live progress view")
	runCmd.Flags().DurationVar(&pollEvery, "poll", 100*time.Millisecond, "status poll interval")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting after this long (0 waits forever)")
	runCmd.Flags().BoolVar(&renderNow, "render", false, "render final positions when done")
	runCmd.Flags().BoolVar(&ccdNow, "ccd", false, "composite the CCD image when done")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	statusCmd := &cobra.Command{
		Use:   "status [run_id]",
		Short: "show a run's parameters and outcome (default latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showStatus,
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot x, y, z against time for each ion",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "", "write a PNG instead of drawing in the terminal")
	plotCmd.Flags().IntSliceVar(&ions, "ions", nil, "ion indices to plot (default first 10)")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "terminal graph width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "terminal graph height")

	renderCmd := &cobra.Command{
		Use:   "render [run_id]",
		Short: "render ion positions as a 3-D point cloud",
		Args:  cobra.MaximumNArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output PNG (default from config)")
	renderCmd.Flags().Float64Var(&scale, "scale", pointcloud.DefaultScale, "ion marker diameter (um)")
	renderCmd.Flags().IntVar(&width, "width", render.DefaultWidth, "image width")
	renderCmd.Flags().IntVar(&height, "height", render.DefaultHeight, "image height")
	renderCmd.Flags().Float64Var(&azimuth, "azimuth", pointcloud.DefaultCamera.Azimuth, "camera azimuth (deg)")
	renderCmd.Flags().Float64Var(&elevation, "elevation", pointcloud.DefaultCamera.Elevation, "camera elevation (deg)")
	renderCmd.Flags().Float64Var(&roll, "roll", pointcloud.DefaultCamera.Roll, "camera roll (deg)")
	renderCmd.Flags().BoolVar(&terminal, "terminal", false, "draw in the terminal instead of a PNG")
	renderCmd.Flags().IntVar(&atStep, "step", -1, "trajectory step to draw (default final positions file)")
	renderCmd.Flags().StringSliceVar(&paletteHex, "palette", nil, "species colours as #rrggbb (default the run's palette)")

	ccdCmd := &cobra.Command{
		Use:   "ccd [run_id]",
		Short: "composite detector histograms into an RGB CCD image",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ccdRun,
	}
	ccdCmd.Flags().StringVarP(&ccdOut, "out", "o", "ccd.png", "output PNG")
	ccdCmd.Flags().Float64Var(&brightness, "brightness", config.DefaultBrightness, "brightness factor")
	ccdCmd.Flags().IntVar(&bins, "bins", 0, "bins per axis (default from run parameters)")
	ccdCmd.Flags().StringSliceVar(&paletteHex, "palette", nil, "detector colours as #rrggbb (default the run's palette)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as csv, json metadata or a zstd compressed trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "csv", "csv, json or zstd")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout, zstd writes next to the trajectory)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tIONS\tSTEPS\tDT")
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				n, _ := cfg.Expand()
				fmt.Fprintf(w, "%s\t%d\t%d\t%g\n", name, len(n), cfg.Params.NumSteps, cfg.Params.Dt)
			}
			return w.Flush()
		},
	}

	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "print simulation parameters after config, preset and overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if asJSON {
				out, err := cfg.Params.JSON()
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			fmt.Print(cfg.Params.String())
			return nil
		},
	}
	paramsCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	paramsCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	paramsCmd.Flags().StringArrayVar(&setParams, "set", nil, "override a parameter, name=value (repeatable)")
	paramsCmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	rootCmd.AddCommand(runCmd, listCmd, statusCmd, plotCmd, renderCmd, ccdCmd, exportCmd, presetsCmd, paramsCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

// resolveConfig applies the preset, then the config file, then flags and
// --set overrides. It also returns a name for the run.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, name := config.DefaultConfig(), "run"

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		name = preset
	}

	if configFile != "" {
		if preset != "" {
			logger.Warn("config file replaces preset", "preset", preset, "config", configFile)
		}
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	}

	flags := cmd.Flags()
	if flags.Lookup("steps") != nil && flags.Changed("steps") {
		cfg.Params.NumSteps = numSteps
	}
	if flags.Lookup("dt") != nil && flags.Changed("dt") {
		cfg.Params.Dt = dt
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Params.Seed = seed
	}
	if err := cfg.Params.SetAll(setParams); err != nil {
		return nil, "", err
	}
	if cfg.Params.Verbosity > 0 && !quiet {
		logger.SetLevel(log.DebugLevel)
	}
	return cfg, name, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	expanded, err := cfg.Expand()
	if err != nil {
		return err
	}
	pal, err := palette.ParseHex(cfg.Palette)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	meta, err := st.Create(name)
	if err != nil {
		return err
	}

	eng := engine.New(engine.WithDir(st.Dir(meta.ID)), engine.WithLogger(logger))
	ctrl := sim.New(eng,
		sim.WithLogger(logger),
		sim.WithObserver(func(s sim.Status, err error) {
			logger.Debug("run ended", "id", meta.ID, "status", s)
		}),
	)

	if err := ctrl.Configure(cfg.Params); err != nil {
		return err
	}
	for _, ion := range expanded {
		species := sim.Species{Mass: ion.Mass, Charge: ion.Charge}
		if err := ctrl.AddParticle(species, sim.VecOf(ion.Position)); err != nil {
			return err
		}
	}

	meta.Params = ctrl.Params()
	meta.Particles = ctrl.Particles()
	meta.Palette = pal.Hex()
	meta.Files = outputFiles(meta.Params, meta.Particles)
	if err := ctrl.Start(); err != nil {
		return err
	}
	meta.Status = ctrl.PollStatus().String()
	if err := st.Save(meta); err != nil {
		return err
	}

	if watch {
		final, err := tea.NewProgram(tui.New(ctrl, eng, pollEvery, "ionmd "+meta.ID)).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(tui.Model); ok && m.Detached() {
			logger.Info("stopped watching; waiting for the engine", "id", meta.ID)
		}
	}

	waitErr := ctrl.WaitUntilFinished(pollEvery, timeout)
	var te *sim.TimeoutError
	if errors.As(waitErr, &te) {
		logger.Error("gave up waiting; the run is abandoned when ionmd exits", "id", meta.ID, "timeout", timeout)
		meta.Abandon(waitErr)
		meta.Elapsed = ctrl.Elapsed().Seconds()
		if err := st.Save(meta); err != nil {
			logger.Error("could not record abandoned run", "id", meta.ID, "err", err)
		}
		return waitErr
	}
	<-ctrl.Done()

	meta.Status = ctrl.PollStatus().String()
	meta.Elapsed = ctrl.Elapsed().Seconds()
	if waitErr != nil {
		meta.Error = waitErr.Error()
	}
	if err := st.Save(meta); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("status: %s\n", viz.StatusBadge(ctrl.PollStatus()))
	fmt.Printf("elapsed: %s\n", ctrl.Elapsed().Round(time.Millisecond))
	fmt.Printf("dir: %s\n", st.Dir(meta.ID))

	if renderNow {
		out := filepath.Join(st.Dir(meta.ID), cfg.Render.Output)
		if err := renderPNG(meta, st, cfg.Render, pal, out); err != nil {
			return err
		}
	}
	if ccdNow {
		out := filepath.Join(st.Dir(meta.ID), cfg.CCD.Output)
		if err := compositeCCD(meta, st, meta.Params.CCDBins, pal, cfg.CCD.Brightness, out); err != nil {
			return err
		}
	}
	return nil
}

// outputFiles names what the engine writes for these parameters.
func outputFiles(p config.Params, particles []sim.Particle) map[string]string {
	files := map[string]string{"trajectory": p.Filename}
	if p.FPosFilename != "" {
		files["fpos"] = p.FPosFilename
	}
	if p.CCDBins > 0 && p.CCDPrefix != "" {
		groups := pointcloud.GroupBySpecies(pointcloud.RecordsOf(particles), palette.Default())
		for _, d := range ccd.DetectorPaths(p.CCDPrefix, len(groups)) {
			files[fmt.Sprintf("ccd_%d", d.Index)] = d.Path
		}
	}
	return files
}

func loadRun(st *storage.Store, args []string) (*storage.RunMetadata, error) {
	if len(args) > 0 {
		return st.Load(args[0])
	}
	return st.Latest()
}

func loadSeries(st *storage.Store, meta *storage.RunMetadata) (*trajectory.Series, error) {
	path, ok := st.Path(meta, "trajectory")
	if !ok {
		return nil, fmt.Errorf("run %s has no trajectory", meta.ID)
	}
	return trajectory.Decode(path, len(meta.Particles), meta.Params.NumSteps)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSTATUS\tIONS\tSTEPS\tDT\tELAPSED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\t%.2fs\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Status,
			len(run.Particles),
			run.Params.NumSteps,
			run.Params.Dt,
			run.Elapsed,
		)
	}

	return w.Flush()
}

func showStatus(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := loadRun(st, args)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("status: %s\n", meta.Status)
	if meta.Error != "" {
		fmt.Printf("error: %s\n", meta.Error)
	}
	fmt.Printf("elapsed: %.2fs\n", meta.Elapsed)
	fmt.Printf("ions: %d\n", len(meta.Particles))
	pal, err := meta.Colours(nil)
	if err != nil {
		return err
	}
	groups := pointcloud.GroupBySpecies(pointcloud.RecordsOf(meta.Particles), pal)
	fmt.Printf("species: %s\n\n", viz.Legend(groups))
	fmt.Print(meta.Params.String())
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := loadRun(st, args)
	if err != nil {
		return err
	}
	series, err := loadSeries(st, meta)
	if err != nil {
		return err
	}

	if plotOut != "" {
		times := trajectory.TimeAxis(meta.Params.Dt, meta.Params.NumSteps)
		opts := plot.Options{Ions: ions, Title: meta.ID}
		if err := plot.TrajectoryPNG(plotOut, series, times, opts); err != nil {
			return err
		}
		logger.Info("wrote trajectory plot", "file", plotOut)
		return nil
	}

	if len(ions) == 0 && series.NumIons > plot.MaxIons {
		logger.Warn("plotting the first ions only", "shown", plot.MaxIons, "ions", series.NumIons)
	}
	graph, err := plot.Terminal(series, ions, plotWidth, plotHeight)
	if err != nil {
		return err
	}
	fmt.Printf("run: %s\n\n%s", meta.ID, graph)
	return nil
}

// positionsFor reads final positions, or a trajectory step when step >= 0.
func positionsFor(st *storage.Store, meta *storage.RunMetadata, step int) ([]pointcloud.Record, error) {
	if step < 0 {
		if path, ok := st.Path(meta, "fpos"); ok {
			return pointcloud.ReadXYZ(path)
		}
		step = meta.Params.NumSteps - 1
	}
	series, err := loadSeries(st, meta)
	if err != nil {
		return nil, err
	}
	if step >= series.NumSteps {
		return nil, fmt.Errorf("step %d out of range, run has %d steps", step, series.NumSteps)
	}
	return pointcloud.RecordsAt(meta.Particles, series.Positions(step)), nil
}

func renderRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := loadRun(st, args)
	if err != nil {
		return err
	}
	pal, err := meta.Colours(paletteHex)
	if err != nil {
		return err
	}
	recs, err := positionsFor(st, meta, atStep)
	if err != nil {
		return err
	}
	groups := pointcloud.GroupBySpecies(recs, pal)
	cam := pointcloud.CameraPreset{Azimuth: azimuth, Elevation: elevation, Roll: roll}

	if terminal {
		t := viz.NewTerminal(width/8, height/16)
		if err := pointcloud.Render(t, groups, cam, scale); err != nil {
			return err
		}
		fmt.Print(t.Render())
		fmt.Println(viz.Legend(groups))
		return nil
	}

	out := renderOut
	if out == "" {
		out = filepath.Join(st.Dir(meta.ID), "ions.png")
	}
	rc := config.RenderConfig{Scale: scale, Width: width, Height: height, Azimuth: azimuth, Elevation: elevation, Roll: roll}
	return drawPNG(groups, rc, out)
}

func renderPNG(meta *storage.RunMetadata, st *storage.Store, rc config.RenderConfig, pal palette.Palette, out string) error {
	recs, err := positionsFor(st, meta, -1)
	if err != nil {
		return err
	}
	return drawPNG(pointcloud.GroupBySpecies(recs, pal), rc, out)
}

func drawPNG(groups []pointcloud.PointGroup, rc config.RenderConfig, out string) error {
	p := render.NewPNG(rc.Width, rc.Height)
	cam := pointcloud.CameraPreset{Azimuth: rc.Azimuth, Elevation: rc.Elevation, Roll: rc.Roll}
	if err := pointcloud.Render(p, groups, cam, rc.Scale); err != nil {
		return err
	}
	if err := p.Save(out); err != nil {
		return err
	}
	logger.Info("wrote point cloud", "file", out, "groups", len(groups), "points", p.Points())
	return nil
}

func ccdRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := loadRun(st, args)
	if err != nil {
		return err
	}
	pal, err := meta.Colours(paletteHex)
	if err != nil {
		return err
	}
	n := bins
	if n <= 0 {
		n = meta.Params.CCDBins
	}
	return compositeCCD(meta, st, n, pal, brightness, ccdOut)
}

func compositeCCD(meta *storage.RunMetadata, st *storage.Store, bins int, pal palette.Palette, brightness float64, out string) error {
	if bins <= 0 {
		return fmt.Errorf("run %s recorded no CCD histograms", meta.ID)
	}
	groups := pointcloud.GroupBySpecies(pointcloud.RecordsOf(meta.Particles), pal)
	prefix := filepath.Join(st.Dir(meta.ID), meta.Params.CCDPrefix)

	c := ccd.NewCompositor(bins, pal)
	c.Log = logger
	img, skipped, err := c.Composite(ccd.DetectorPaths(prefix, len(groups)))
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		logger.Warn("some detectors were skipped", "skipped", len(skipped), "detectors", len(groups))
	}
	if err := ccd.SavePNG(out, img, brightness); err != nil {
		return err
	}
	logger.Info("wrote CCD image", "file", out, "bins", bins, "brightness", brightness)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := loadRun(st, args)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		w, closeFn, err := output(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)

	case "csv":
		series, err := loadSeries(st, meta)
		if err != nil {
			return err
		}
		w, closeFn, err := output(exportOut)
		if err != nil {
			return err
		}
		defer closeFn()
		return storage.ExportCSV(w, series, trajectory.TimeAxis(meta.Params.Dt, meta.Params.NumSteps))

	case "zstd":
		src, ok := st.Path(meta, "trajectory")
		if !ok {
			return fmt.Errorf("run %s has no trajectory", meta.ID)
		}
		dst := exportOut
		if dst == "" {
			dst = src + ".zst"
		}
		return compressFile(src, dst)

	default:
		return fmt.Errorf("unknown export format %q (csv, json, zstd)", format)
	}
}

func output(path string) (*os.File, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := trajectory.Compress(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Info("wrote compressed trajectory", "file", dst)
	return nil
}

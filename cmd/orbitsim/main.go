package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/orbitsim/internal/analysis"
	"github.com/san-kum/orbitsim/internal/broadcast"
	"github.com/san-kum/orbitsim/internal/config"
	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/export"
	"github.com/san-kum/orbitsim/internal/metrics"
	"github.com/san-kum/orbitsim/internal/sim"
	"github.com/san-kum/orbitsim/internal/storage"
	"github.com/san-kum/orbitsim/internal/viz"
)

var (
	dataDir  string
	logLevel string
	// Scenario selection
	configFile string
	preset     string
	// Overrides
	dtDynamics   float64
	dtKinematics float64
	horizon      float64
	trackLength  float64
	speed        float64
	frameRate    float64
	// run
	duration   float64
	record     bool
	sqlitePath string
	svgPath    string
	// live
	theme   string
	logFile string
	// serve
	addr string
	// init
	force bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "orbitsim",
		Short:         "gravitational n-body simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(os.Stderr)
		},
		RunE: runLive,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".orbitsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a headless simulation for a span of simulated time",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().Float64Var(&duration, "duration", 10000, "simulated seconds to run")
	runCmd.Flags().BoolVar(&record, "record", false, "record frames under the data directory")
	runCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "also record frames into a new sqlite database")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write the final track as svg")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the simulation in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	scenarioFlags(liveCmd)
	liveCmd.Flags().StringVar(&theme, "theme", viz.Themes[0].Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	liveCmd.Flags().StringVar(&logFile, "log-file", "", "write logs here instead of discarding them")
	liveCmd.Flags().BoolVar(&record, "record", false, "record frames under the data directory")
	scenarioFlags(rootCmd)
	rootCmd.Flags().StringVar(&theme, "theme", viz.Themes[0].Name, "color theme")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the simulation and stream frames over websocket",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	scenarioFlags(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&record, "record", false, "record frames under the data directory")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a scenario file to edit",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().StringVar(&preset, "preset", "solar", "preset to start from")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot orbital radius of every body in a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	rootCmd.AddCommand(runCmd, liveCmd, serveCmd, presetsCmd, initCmd, listCmd, plotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "scenario file (yaml)")
	f.StringVar(&preset, "preset", "", "built-in scenario ("+strings.Join(config.ListPresets(), ", ")+")")
	f.Float64Var(&dtDynamics, "dt-dynamics", config.DefaultDynamicsResolution, "integration sub-step (s)")
	f.Float64Var(&dtKinematics, "dt-kinematics", config.DefaultKinematicsResolution, "cached frame spacing (s)")
	f.Float64Var(&horizon, "horizon", config.DefaultCacheHorizon, "cache horizon (s)")
	f.Float64Var(&trackLength, "track", config.DefaultTrackLength, "rendered track length (s)")
	f.Float64Var(&speed, "speed", config.DefaultTimeMagnification, "simulated seconds per wall second")
	f.Float64Var(&frameRate, "fps", config.DefaultFrameRate, "render rate")
}

func setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("bad log level %q: %w", logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig resolves the scenario: a config file wins over a preset, which
// wins over the default. Flags given explicitly override either.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		name string
		err  error
	)
	switch {
	case configFile != "":
		if cfg, err = config.Load(configFile); err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	case preset != "":
		if cfg = config.GetPreset(preset); cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		name = preset
	default:
		cfg, name = config.DefaultConfig(), "solar"
	}

	flags := cmd.Flags()
	if flags.Changed("dt-dynamics") {
		cfg.DynamicsResolution = dtDynamics
	}
	if flags.Changed("dt-kinematics") {
		cfg.KinematicsResolution = dtKinematics
	}
	if flags.Changed("horizon") {
		cfg.CacheHorizon = horizon
	}
	if flags.Changed("track") {
		cfg.TrackLength = trackLength
	}
	if flags.Changed("speed") {
		cfg.TimeMagnification = speed
	}
	if flags.Changed("fps") {
		cfg.FrameRate = frameRate
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

// recorders opens the optional frame recorders. finish closes them with the
// run's final metrics.
func recorders(cfg *config.Config, name string, sqlite string) (sinks []sim.Sink, finish func(map[string]float64) error, err error) {
	var closers []func(map[string]float64) error
	finish = func(m map[string]float64) error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c(m))
		}
		return errors.Join(errs...)
	}

	if record {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return nil, nil, err
		}
		names := make([]string, len(cfg.Bodies))
		for i, b := range cfg.Bodies {
			names[i] = b.Name
		}
		rec, err := st.Create(storage.RunMetadata{
			Preset:               name,
			DynamicsResolution:   cfg.DynamicsResolution,
			KinematicsResolution: cfg.KinematicsResolution,
			CacheHorizon:         cfg.CacheHorizon,
			Bodies:               names,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("recording run", "id", rec.ID(), "dir", dataDir)
		sinks = append(sinks, rec)
		closers = append(closers, rec.Close)
	}

	if sqlite != "" {
		db, err := storage.OpenSQLite(sqlite)
		if err != nil {
			finish(nil)
			return nil, nil, err
		}
		slog.Info("recording to sqlite", "file", sqlite)
		sinks = append(sinks, db)
		closers = append(closers, func(map[string]float64) error { return db.Close() })
	}
	return sinks, finish, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if math.IsNaN(duration) || duration < cfg.KinematicsResolution {
		return fmt.Errorf("duration must be at least the kinematics resolution (%gs)", cfg.KinematicsResolution)
	}

	coord, err := cfg.NewCoordinator()
	if err != nil {
		return err
	}

	cons := analysis.NewConservation()
	var (
		energy  []float64
		lastKin uint64
	)
	series := sim.SinkFunc(func(req sim.RenderRequest) error {
		for _, f := range req.Snapshot.Frames() {
			if len(energy) > 0 && f.KinematicsID() <= lastKin {
				continue
			}
			energy = append(energy, f.Energy())
			lastKin = f.KinematicsID()
		}
		return nil
	})

	extra, finish, err := recorders(cfg, name, sqlitePath)
	if err != nil {
		return err
	}
	sinks := append([]sim.Sink{cons, series}, extra...)

	fmt.Printf("running %s for %s of simulated time...\n", name, viz.FormatSeconds(duration))
	start := time.Now()

	t0 := coord.Latest().Time()
	cursor := t0
	chunk := float64(max(coord.Capacity()-1, 1)) * coord.KinematicsResolution()
	var last *dynamo.Snapshot

	// Each chunk fills the cache at most once; the snapshot then evicts
	// everything before its first frame, so nothing is lost between chunks.
	deliver := func() error {
		snap, ok := coord.Snapshot(cursor, coord.Latest().Time())
		if !ok {
			return nil
		}
		req := sim.RenderRequest{Playback: snap.EndTime(), Snapshot: snap, Status: coord.Status()}
		for _, s := range sinks {
			if err := s.Render(req); err != nil {
				return err
			}
		}
		cursor, last = snap.EndTime(), snap
		return nil
	}

	if err := deliver(); err != nil {
		return err
	}
	var halted error
	for {
		remaining := duration - (coord.Latest().Time() - t0)
		if remaining < coord.KinematicsResolution() {
			break
		}
		_, err := coord.AdvanceBy(math.Min(remaining, chunk))
		if derr := deliver(); derr != nil {
			return derr
		}
		if err != nil {
			halted = err
			slog.Error("simulation halted", "err", err)
			break
		}
	}
	elapsed := time.Since(start)
	status := coord.Status()

	runMetrics := map[string]float64{
		"energy_drift":           cons.EnergyDrift(),
		"momentum_drift":         cons.MomentumDrift(),
		"angular_momentum_drift": cons.AngularMomentumDrift(),
		"wall_seconds":           elapsed.Seconds(),
	}
	if err := finish(runMetrics); err != nil {
		return err
	}

	simulated := status.LatestTime - t0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nscenario\t%s\n", name)
	fmt.Fprintf(w, "bodies\t%d\n", status.Bodies)
	fmt.Fprintf(w, "resolution\tdt %gs x %d = %gs\n", status.DynamicsResolution, status.SubSteps, status.KinematicsResolution)
	fmt.Fprintf(w, "simulated\t%s\n", viz.FormatSeconds(simulated))
	fmt.Fprintf(w, "frames\t%d\n", len(energy))
	fmt.Fprintf(w, "wall time\t%v\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Fprintf(w, "speed\tx%.0f\n", simulated/elapsed.Seconds())
	}
	fmt.Fprintf(w, "energy drift\t%.3e\n", cons.EnergyDrift())
	fmt.Fprintf(w, "momentum drift\t%.3e\n", cons.MomentumDrift())
	fmt.Fprintf(w, "angular drift\t%.3e\n", cons.AngularMomentumDrift())
	if err := w.Flush(); err != nil {
		return err
	}

	if len(energy) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(energy,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("total energy (J)"),
		))
	}
	if last != nil {
		fmt.Println()
		fmt.Print(analysis.TraceSnapshot(last).ToASCII(60, 20))
		if svgPath != "" {
			if err := export.SaveSVG(svgPath, last, export.SVGOptions{}); err != nil {
				return err
			}
			fmt.Printf("\nsvg: %s\n", svgPath)
		}
	}
	return halted
}

func runLive(cmd *cobra.Command, args []string) error {
	if configFile == "" && preset == "" {
		items := make([]viz.PickerItem, 0, len(config.Presets))
		for _, name := range config.ListPresets() {
			items = append(items, viz.PickerItem{Name: name, Detail: describe(config.Presets[name])})
		}
		chosen, err := viz.RunPicker("orbitsim · choose a scenario", items)
		if errors.Is(err, viz.ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		preset = chosen
	}

	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The terminal belongs to the view.
	logOut := io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	if err := setupLogging(logOut); err != nil {
		return err
	}

	coord, err := cfg.NewCoordinator()
	if err != nil {
		return err
	}
	extra, finish, err := recorders(cfg, name, "")
	if err != nil {
		return err
	}

	cons := analysis.NewConservation()
	feed := viz.NewFeed(2)
	runner := sim.NewRunner(coord, sim.RunnerConfig{}, append([]sim.Sink{feed, cons}, extra...)...)
	if err := runner.Start(); err != nil {
		return err
	}

	viewErr := viz.RunLive(viz.NewModel(name, feed, runner, theme))
	runErr := runner.Stop()
	finishErr := finish(map[string]float64{
		"energy_drift":   cons.EnergyDrift(),
		"momentum_drift": cons.MomentumDrift(),
	})
	return errors.Join(viewErr, runErr, finishErr)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	coord, err := cfg.NewCoordinator()
	if err != nil {
		return err
	}
	extra, finish, err := recorders(cfg, name, "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub()
	exporter := metrics.NewExporter()
	runner := sim.NewRunner(coord, sim.RunnerConfig{Exporter: exporter}, append([]sim.Sink{hub}, extra...)...)
	srv := broadcast.NewServer(hub, exporter.Registry(), runner.Status)

	go hub.Run(ctx)
	if err := runner.Start(); err != nil {
		return err
	}
	slog.Info("serving", "scenario", name, "addr", addr, "bodies", coord.BodyCount())

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx, addr) }()

	var (
		srvErr error
		served bool
	)
	select {
	case <-ctx.Done():
	case <-runner.Done():
		slog.Error("simulation halted", "err", runner.Err())
	case srvErr = <-errc:
		served = true
	}
	stop()
	runErr := runner.Stop()
	if !served {
		srvErr = <-errc
	}
	return errors.Join(srvErr, runErr, finish(nil))
}

func describe(cfg *config.Config) string {
	names := make([]string, len(cfg.Bodies))
	for i, b := range cfg.Bodies {
		names[i] = b.Name
	}
	return fmt.Sprintf("%d bodies (%s), frame every %gs", len(cfg.Bodies), strings.Join(names, ", "), cfg.KinematicsResolution)
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBODIES\tDT\tFRAME\tHORIZON\tSPEED")
	for _, name := range config.ListPresets() {
		cfg := config.Presets[name]
		fmt.Fprintf(w, "%s\t%d\t%gs\t%gs\t%s\tx%g\n",
			name,
			len(cfg.Bodies),
			cfg.DynamicsResolution,
			cfg.KinematicsResolution,
			viz.FormatSeconds(cfg.CacheHorizon),
			cfg.TimeMagnification,
		)
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := "orbitsim.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s exists (use --force to overwrite)", path)
	}
	cfg := config.GetPreset(preset)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s from preset %s\n", path, preset)
	return nil
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
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tBODIES\tFRAMES\tSIMULATED\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%.2e\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Bodies),
			run.Frames,
			viz.FormatSeconds(run.SimulatedTime),
			run.Metrics["energy_drift"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadFrames(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no data to plot")
	}

	n := len(meta.Bodies)
	for _, r := range records {
		n = max(n, r.Body+1)
	}
	series := make([][]float64, n)
	for _, r := range records {
		p := r.Position
		series[r.Body] = append(series[r.Body], math.Sqrt(p[0]*p[0]+p[1]*p[1]+p[2]*p[2]))
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Preset)
	fmt.Printf("frames: %d over %s\n\n", meta.Frames, viz.FormatSeconds(meta.SimulatedTime))

	fmt.Println(asciigraph.PlotMany(series,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption("distance from origin (m): "+strings.Join(meta.Bodies, ", ")),
	))
	return nil
}

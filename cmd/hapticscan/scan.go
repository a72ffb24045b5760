package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hapticscan/internal/clock"
	"hapticscan/internal/config"
	"hapticscan/internal/gpio"
	"hapticscan/internal/haptic"
	"hapticscan/internal/location"
	"hapticscan/internal/scan"
	"hapticscan/internal/sim"
	"hapticscan/internal/sonar"
	"hapticscan/internal/udp"
	"hapticscan/internal/web"
)

type scanOptions struct {
	simulate        bool
	summaryInterval time.Duration
}

func newScanCmd(g *globalOptions) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the scan and haptic feedback loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, logs, err := setup(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runScan(ctx, cfg, *opts, logger, logs)
		},
	}
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "drive a simulated scanner instead of GPIO hardware")
	cmd.Flags().DurationVar(&opts.summaryInterval, "summary-interval", 30*time.Second, "period of the scan summary log line (0 disables)")
	return cmd
}

func scanParams(cfg config.Config) scan.Params {
	return scan.Params{
		FullStepsPerRevolution:    cfg.Scan.FullStepsPerRevolution,
		Microsteps:                cfg.Scan.Microsteps,
		MeasurementsPerRevolution: cfg.Scan.MeasurementsPerRevolution,
		StepPulseWidth:            cfg.Scan.StepPulseWidth,
		StepMinDelay:              cfg.Scan.StepMinDelay,
		PostMeasurePause:          cfg.Scan.PostMeasurePause,
	}
}

func paramsMap(cfg config.Config) map[string]any {
	p := scanParams(cfg)
	return map[string]any{
		"steps_per_revolution":        p.StepsPerRevolution(),
		"measurements_per_revolution": p.MeasurementsPerRevolution,
		"max_distance_cm":             cfg.Sonar.MaxDistanceCm,
		"samples":                     cfg.Sonar.Samples,
		"smoothing_factor":            cfg.Actuators.SmoothingFactor,
		"smoothing_mode":              cfg.Actuators.SmoothingMode,
	}
}

// scanRig is an assembled scanner and the resources it owns.
type scanRig struct {
	ctrl    *scan.Controller
	driver  haptic.Driver
	world   *sim.World
	closers []io.Closer
}

func (r *scanRig) Close() error {
	var errs []error
	if r.driver != nil {
		errs = append(errs, r.driver.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}

type scanLines struct {
	step, dir, enable, trigger gpio.Output
	echo                       gpio.Input
}

func openHardwareLines(pins config.PinsConfig) (scanLines, []io.Closer, error) {
	var (
		lines   scanLines
		closers []io.Closer
	)
	fail := func(err error) (scanLines, []io.Closer, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return scanLines{}, nil, err
	}
	outputs := []struct {
		pin     int
		initial bool
		name    string
		dst     *gpio.Output
	}{
		{pins.Step, false, "hapticscan-step", &lines.step},
		{pins.Dir, true, "hapticscan-dir", &lines.dir},
		// Active low: start with the driver disabled.
		{pins.Enable, true, "hapticscan-enable", &lines.enable},
		{pins.Trigger, false, "hapticscan-trigger", &lines.trigger},
	}
	for _, o := range outputs {
		out, err := gpio.OpenOutput(o.pin, o.initial, o.name)
		if err != nil {
			return fail(fmt.Errorf("open %s: %w", o.name, err))
		}
		*o.dst = out
		closers = append(closers, out)
	}
	echo, err := gpio.OpenInput(pins.Echo, gpio.BiasPullDown, "hapticscan-echo")
	if err != nil {
		return fail(fmt.Errorf("open hapticscan-echo: %w", err))
	}
	lines.echo = echo
	closers = append(closers, echo)
	return lines, closers, nil
}

func simWorld(cfg config.Config, clk clock.Clock) (*sim.World, error) {
	obstacles := make([]sim.Obstacle, 0, len(cfg.Sim.Obstacles))
	for _, o := range cfg.Sim.Obstacles {
		obstacles = append(obstacles, sim.Obstacle{AngleDeg: o.AngleDeg, WidthDeg: o.WidthDeg, DistanceCm: o.DistanceCm})
	}
	wc := sim.WorldConfig{
		StepsPerRevolution: scanParams(cfg).StepsPerRevolution(),
		Obstacles:          obstacles,
		SpinPeriod:         cfg.Sim.SpinPeriod,
		EchoLead:           cfg.Sim.EchoLead,
		MicrosPerCm:        cfg.Sonar.MicrosPerCm,
		LoopScenario:       cfg.Sim.ScenarioLoop,
	}
	if path := cfg.Sim.Scenario; path != "" {
		script, err := sim.LoadScenarioScript(path)
		if err != nil {
			return nil, fmt.Errorf("sim.scenario: %w", err)
		}
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("sim.scenario %s: %w", path, err)
		}
		wc.Scenario = scn
	}
	return sim.NewWorld(wc, clk), nil
}

// buildScanRig wires lines, ranger, filter, mapper and actuators into a
// controller. In simulate mode the lines belong to a sim.World and the
// actuators are an in-memory recorder.
func buildScanRig(cfg config.Config, simulate bool, clk clock.Clock, logger *slog.Logger, observers ...scan.Observer) (*scanRig, error) {
	params := scanParams(cfg)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	mode, err := haptic.ParseSmoothingMode(cfg.Actuators.SmoothingMode)
	if err != nil {
		return nil, err
	}
	mapper, err := haptic.NewMapper(cfg.Sonar.MaxDistanceCm, cfg.Actuators.SmoothingFactor, mode)
	if err != nil {
		return nil, err
	}

	rig := &scanRig{}
	var lines scanLines
	driverCfg := haptic.DriverConfig{
		Backend:     cfg.Actuators.Backend,
		FrequencyHz: cfg.Actuators.FrequencyHz,
	}
	if simulate {
		w, err := simWorld(cfg, clk)
		if err != nil {
			return nil, err
		}
		rig.world = w
		lines = scanLines{step: w.StepLine(), dir: w.DirLine(), enable: w.EnableLine(), trigger: w.TriggerLine(), echo: w.EchoLine()}
		driverCfg.Backend = "sim"
	} else {
		lines, rig.closers, err = openHardwareLines(cfg.Pins)
		if err != nil {
			return nil, err
		}
		copy(driverCfg.Pins[:], cfg.Pins.Actuators)
		copy(driverCfg.SysfsChannels[:], cfg.Actuators.SysfsChannels)
	}

	rig.driver, err = haptic.Open(driverCfg)
	if err != nil {
		_ = rig.Close()
		return nil, err
	}

	sensor := sonar.NewSensor(lines.trigger, lines.echo, clk, sonar.Config{
		TriggerPulse:  cfg.Sonar.TriggerPulse,
		EchoTimeout:   cfg.Sonar.EchoTimeout,
		PollInterval:  cfg.Sonar.PollInterval,
		MaxDistanceCm: cfg.Sonar.MaxDistanceCm,
		MicrosPerCm:   cfg.Sonar.MicrosPerCm,
	}, logger)
	stepper := scan.NewStepper(scan.StepperLines{Step: lines.step, Dir: lines.dir, Enable: lines.enable},
		clk, params.StepPulseWidth, params.StepMinDelay)

	rig.ctrl, err = scan.NewController(params, scan.ControllerDeps{
		Stepper: stepper,
		Sampler: sonar.NewFilter(sensor, clk, cfg.Sonar.Samples, cfg.Sonar.SamplePause),
		Mapper:  mapper,
		Driver:  rig.driver,
		Clock:   clk,
		Logger:  logger,
	}, observers...)
	if err != nil {
		_ = rig.Close()
		return nil, err
	}
	return rig, nil
}

func runScan(ctx context.Context, cfg config.Config, opts scanOptions, logger *slog.Logger, logs *web.LogBuffer) error {
	status := web.NewStatus()
	stream := web.NewBroadcaster()
	summary := newScanSummary()
	observers := []scan.Observer{status, stream, summary}

	if dest := cfg.Telemetry.UDPDest; dest != "" {
		tel, err := udp.NewBroadcaster(dest, logger)
		if err != nil {
			return fmt.Errorf("udp telemetry init failed: %w", err)
		}
		defer tel.Close()
		observers = append(observers, tel)
		logger.Info("udp telemetry enabled", "dest", dest)
	}

	mode, backend := "live", cfg.Actuators.Backend
	if opts.simulate {
		mode, backend = "sim", "sim"
	}
	status.SetStatic(mode, backend, paramsMap(cfg))

	rig, err := buildScanRig(cfg, opts.simulate, clock.System{}, logger, observers...)
	if err != nil {
		return fmt.Errorf("scanner init failed: %w", err)
	}
	defer func() {
		if err := rig.Close(); err != nil {
			logger.Warn("scanner close", "error", err)
		}
	}()

	if cfg.Location.Enable && !opts.simulate {
		svc, closeSinks, err := startLocation(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeSinks()
		defer svc.Close()
		status.SetLocationSource(svc.Snapshot)
	}

	logger.Info("hapticscan starting", "mode", mode, "actuator_backend", backend, "web", cfg.Web.Listen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rig.ctrl.Run(gctx) })
	if cfg.Web.Listen != "" {
		handler := web.Handler(status, logs, stream, logger)
		g.Go(func() error { return web.Serve(gctx, cfg.Web.Listen, handler) })
	}
	if opts.summaryInterval > 0 {
		g.Go(func() error {
			summary.logEvery(gctx, opts.summaryInterval, logger)
			return nil
		})
	}
	err = g.Wait()
	logger.Info("hapticscan stopping", "measurements", status.Snapshot(time.Time{}).MeasurementsTotal)
	return err
}

func locationConfig(cfg config.Config) location.Config {
	wps := make([]location.Waypoint, 0, len(cfg.Location.Waypoints))
	for _, wp := range cfg.Location.Waypoints {
		wps = append(wps, location.Waypoint{Name: wp.Name, Lat: wp.LatDeg, Lon: wp.LonDeg, RadiusM: wp.RadiusM})
	}
	return location.Config{
		Enable:     cfg.Location.Enable,
		Device:     cfg.Location.Device,
		Baud:       cfg.Location.Baud,
		LinkDevice: cfg.Location.LinkDevice,
		LinkBaud:   cfg.Location.LinkBaud,
		Reporter: location.ReporterConfig{
			StrictChecksum: cfg.Location.StrictChecksum,
			AverageSamples: cfg.Location.AverageSamples,
			Waypoints:      wps,
			MaxLine:        cfg.Location.MaxLine,
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"hapticscan/internal/config"
	"hapticscan/internal/location"
	"hapticscan/internal/sim"
	"hapticscan/internal/web"
)

type locateOptions struct {
	simulate bool
}

func newLocateCmd(g *globalOptions) *cobra.Command {
	opts := &locateOptions{}
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Forward GPS fixes over the Bluetooth serial link",
		Long: `locate reads NMEA sentences from the GPS receiver, converts RMC fixes to
decimal degrees and writes one report line per sentence to the link device.
With --simulate a walking receiver is synthesized and the report lines go to
stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, logs, err := setup(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if opts.simulate {
				return runLocateSim(ctx, cfg, cmd.OutOrStdout(), logger)
			}
			return runLocate(ctx, cfg, logger, logs)
		},
	}
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "synthesize NMEA from a simulated walker")
	return cmd
}

// Swappable for tests.
var dialMQTTFn = func(cfg location.MQTTConfig) (location.Sink, func(), error) {
	s, err := location.DialMQTT(cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// locationSinks returns the optional MQTT sink and its close func.
func locationSinks(cfg config.Config, logger *slog.Logger) ([]location.Sink, func(), error) {
	m := cfg.Location.MQTT
	if !m.Enable {
		return nil, func() {}, nil
	}
	sink, closeFn, err := dialMQTTFn(location.MQTTConfig{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Topic:    m.Topic,
		QoS:      byte(m.QoS),
		Retain:   m.Retain,
		Timeout:  m.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mqtt init failed: %w", err)
	}
	logger.Info("mqtt publishing enabled", "broker", m.Broker, "topic", m.Topic)
	return []location.Sink{sink}, closeFn, nil
}

func startLocation(ctx context.Context, cfg config.Config, logger *slog.Logger) (*location.Service, func(), error) {
	sinks, closeSinks, err := locationSinks(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := location.New(locationConfig(cfg), logger, sinks...)
	if err := svc.Start(ctx); err != nil {
		closeSinks()
		return nil, nil, fmt.Errorf("gps start failed: %w", err)
	}
	return svc, closeSinks, nil
}

func runLocate(ctx context.Context, cfg config.Config, logger *slog.Logger, logs *web.LogBuffer) error {
	cfg.Location.Enable = true
	svc, closeSinks, err := startLocation(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	defer svc.Close()

	if cfg.Web.Listen != "" {
		status := web.NewStatus()
		status.SetStatic("locate", "", nil)
		status.SetLocationSource(svc.Snapshot)
		return web.Serve(ctx, cfg.Web.Listen, web.Handler(status, logs, nil, logger))
	}
	<-ctx.Done()
	return nil
}

func walkerFrom(cfg config.Config) sim.Walker {
	w := cfg.Sim.Walker
	return sim.Walker{
		CenterLatDeg: w.CenterLatDeg,
		CenterLonDeg: w.CenterLonDeg,
		RadiusM:      w.RadiusM,
		Period:       w.Period,
		NoFixEvery:   w.NoFixEvery,
	}
}

// feedWalker writes one walker sentence per interval to w until ctx is done
// or a write fails, then closes w.
func feedWalker(ctx context.Context, w io.WriteCloser, walker sim.Walker, interval time.Duration) {
	defer w.Close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 0; ; n++ {
		if _, err := io.WriteString(w, walker.Sentence(n, time.Now().UTC())+"\r\n"); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runLocateSim(ctx context.Context, cfg config.Config, out io.Writer, logger *slog.Logger) error {
	sinks, closeSinks, err := locationSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	rep := location.NewReporter(locationConfig(cfg).Reporter, out, logger, sinks...)
	if err := rep.Start(); err != nil {
		return err
	}
	pr, pw := io.Pipe()
	go feedWalker(ctx, pw, walkerFrom(cfg), cfg.Sim.Walker.Interval)
	err = rep.Run(ctx, pr)
	st := rep.Stats()
	logger.Info("gps simulation stopped", "lines", st.Lines, "fixes", st.Fixes, "no_fix", st.NoFix)
	return err
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/pavanmanishd/mempool/metrics"
)

const desc = `Checks and benchmarks the slot and segregated memory pools against the
Go allocator. Settings are read from POOLBENCH_* environment variables and
may be overridden with flags.`

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newApp(cfg).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(cfg *config) *cli.App {
	snap := &snapshots{}
	var srv *http.Server

	return &cli.App{
		Name:        "poolbench",
		Usage:       "verify and benchmark memory pools",
		Description: desc,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Usage: "allocations per round", Value: cfg.Iterations, Destination: &cfg.Iterations},
			&cli.IntFlag{Name: "rounds", Aliases: []string{"r"}, Usage: "number of timed rounds", Value: cfg.Rounds, Destination: &cfg.Rounds},
			&cli.IntFlag{Name: "slot-capacity", Usage: "slots in the first block (0 for the default)", Value: cfg.SlotCapacity, Destination: &cfg.SlotCapacity},
			&cli.IntFlag{Name: "block-size", Usage: "segregated pool arena size in bytes", Value: cfg.BlockSize, Destination: &cfg.BlockSize},
			&cli.StringFlag{Name: "check-mode", Usage: "slot pool ownership checking: check or nocheck", Value: cfg.CheckMode, Destination: &cfg.CheckMode},
			&cli.StringFlag{Name: "backend", Usage: "segregated pool system allocator: heap or mmap", Value: cfg.Backend, Destination: &cfg.Backend},
			&cli.StringFlag{Name: "log-level", Usage: "logrus level", Value: cfg.LogLevel, Destination: &cfg.LogLevel},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address while running", Value: cfg.MetricsAddr, Destination: &cfg.MetricsAddr},
		},
		Before: func(*cli.Context) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			level, _ := logrus.ParseLevel(cfg.LogLevel)
			logrus.SetLevel(level)
			if cfg.MetricsAddr != "" {
				srv = serveMetrics(cfg.MetricsAddr, snap)
			}
			return nil
		},
		After: func(*cli.Context) error {
			if srv == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
		Commands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "fill a slot pool, check every value and free it",
				Action: func(*cli.Context) error {
					return runVerify(cfg, logrus.WithField("command", "verify"))
				},
			},
			{
				Name:  "slot",
				Usage: "benchmark SlotPool against new",
				Action: func(*cli.Context) error {
					log := logrus.WithField("command", "slot")
					r, err := runSlot(cfg, log, snap)
					if err != nil {
						return err
					}
					r.log(log, cfg)
					return nil
				},
			},
			{
				Name:  "segregated",
				Usage: "benchmark SegregatedPool against make",
				Action: func(*cli.Context) error {
					log := logrus.WithField("command", "segregated")
					r, err := runSegregated(cfg, log, snap)
					if err != nil {
						return err
					}
					r.log(log, cfg)
					return nil
				},
			},
		},
	}
}

func serveMetrics(addr string, snap *snapshots) *http.Server {
	c := metrics.NewCollector("poolbench")
	c.AddSlotPool("slot", snap.slotMetrics)
	c.AddSegregatedPool("segregated", snap.segregatedMetrics)

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()
	logrus.WithField("addr", addr).Info("serving metrics")
	return srv
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/routeflow/routeflow/config"
	"github.com/routeflow/routeflow/metrics"
	"github.com/routeflow/routeflow/pipeline"
	"github.com/routeflow/routeflow/pipeline/engine"
	"github.com/routeflow/routeflow/pipeline/health"
	rhttp "github.com/routeflow/routeflow/pkg/http"
	"github.com/routeflow/routeflow/pkg/logger"
	"github.com/routeflow/routeflow/pkg/version"
)

func main() {
	app := &cli.App{
		Name:  "routeflow",
		Usage: "event routing and transformation pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Config file path", EnvVars: []string{"ROUTEFLOW_CONFIG"}},
		},

		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Generate a config file",
				Action: func(c *cli.Context) error {
					buf := bytes.Buffer{}
					enc := toml.NewEncoder(&buf)
					enc.SetIndentTables(true)
					if err := enc.Encode(config.DefaultConfig); err != nil {
						return err
					}

					fmt.Println(buf.String())

					return nil
				},
			},
		},

		Action: func(ctx *cli.Context) error {
			return realMain(ctx)
		},

		Version: version.String(),
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err.Error())
	}
}

func realMain(ctx *cli.Context) error {
	logger.Infof("%s version:%s", os.Args[0], version.String())

	configFile := ctx.String("config")
	if configFile == "" {
		logger.Fatalf("config file is required.  Run `routeflow config` to generate a config file")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	p, err := pipeline.Build(cfg)
	if err != nil {
		return err
	}

	svcCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := health.NewMonitor()
	router := engine.NewRouter(p, engine.RouterOpts{
		DrainTimeout: time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		Observer:     monitor,
	})
	if err := router.Open(svcCtx); err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}

	srv := rhttp.NewServer(&rhttp.ServerOpts{ListenAddr: cfg.ListenAddr})
	srv.RegisterHandler("/health", monitor.LivenessHandler)
	srv.RegisterHandler("/ready", monitor.ReadinessHandler)
	if err := srv.Open(svcCtx); err != nil {
		return fmt.Errorf("open http server: %w", err)
	}
	logger.Infof("Listening on %s", cfg.ListenAddr)

	go func() {
		err := config.Watch(svcCtx, configFile, func(next *config.Config) {
			replacement, err := pipeline.Build(next)
			if err != nil {
				metrics.ConfigReloads.WithLabelValues("failure").Inc()
				logger.Errorf("Ignoring config reload: %s", err)
				return
			}
			router.Reload(replacement)
			metrics.ConfigReloads.WithLabelValues("success").Inc()
			logger.Infof("Reloaded config from %s", configFile)
		})
		if err != nil {
			logger.Errorf("Config watcher failed: %s", err)
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, os.Interrupt, syscall.SIGTERM)
	sig := <-sc
	logger.Infof("Received signal %s, draining", sig)
	cancel()

	if err := router.Close(); err != nil {
		logger.Errorf("Close pipeline: %s", err)
	}
	return srv.Close()
}

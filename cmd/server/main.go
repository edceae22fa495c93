package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"grove/internal/config"
	"grove/internal/handlers"
	"grove/internal/ops"
	"grove/internal/rewards"
	"grove/internal/router"
	"grove/internal/server"
	"grove/internal/services"
	"grove/internal/snapshot"
	"grove/internal/store"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "grove",
		Short: "Social feed core: wire server, reward engine, snapshotter",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "grove.yaml", "path to the YAML config")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the server",
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		&cobra.Command{
			Use:   "init-config",
			Short: "Write a default config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Save(cfgPath, config.Default()); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []snapshot.Sink
	var archive *snapshot.Archive
	if cfg.Persistence.ArchiveDSN != "" {
		archive, err = snapshot.OpenArchive(cfg.Persistence.ArchiveDSN)
		if err != nil {
			return fmt.Errorf("open snapshot archive: %w", err)
		}
		sinks = append(sinks, archive)
	}

	s, err := bootStore(archive, log)
	if err != nil {
		return err
	}

	announcer, err := services.NewMulticastAnnouncer(cfg.Multicast, log)
	if err != nil {
		return fmt.Errorf("multicast announcer: %w", err)
	}
	defer announcer.Close()

	rt, err := router.New(log, handlers.Routes(s, services.NewLogNotifier(log))...)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}
	srv, err := server.New(cfg.Server, rt, log)
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	engine := rewards.New(s, cfg.Rewards, announcer, log)
	go engine.Run(ctx)

	snapshotter := snapshot.NewSnapshotter(s, cfg.Persistence, log, sinks...)
	go snapshotter.Run(ctx)

	if cfg.Ops.Bind != "" {
		sidecar := ops.New(cfg.Ops.Bind, s, log)
		go func() {
			if err := sidecar.Run(ctx); err != nil {
				log.Error("ops sidecar failed", "err", err)
			}
		}()
	}

	err = srv.Run(ctx)

	// Final snapshot on the way out so a restart can pick up where we left off.
	if len(sinks) > 0 {
		snapshotter.RunOnce()
	}
	return err
}

func loadConfig(log *slog.Logger) (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if os.IsNotExist(err) {
		log.Info("no config file, using defaults", "path", cfgPath)
		cfg = config.Default()
		cfg.ResolveEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// bootStore restores the latest archived snapshot when one exists,
// otherwise starts empty.
func bootStore(archive *snapshot.Archive, log *slog.Logger) (*store.Store, error) {
	if archive == nil {
		return store.New(), nil
	}
	img, err := archive.Latest()
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	if img == nil {
		return store.New(), nil
	}
	s := snapshot.Restore(img)
	log.Info("restored snapshot", "taken_at", img.TakenAt, "users", len(img.Users), "posts", len(img.Posts))
	return s, nil
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/engine"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/server"
	"main/internal/storage"
	"main/pkg/conn"
)

const defaultEventLog = "server_transactions.log"

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	bind := flag.String("bind", "", "Listen address (overrides config)")
	rebuild := flag.Bool("rebuild", true, "Rebuild engine state from the event log on startup")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *bind != "" {
		loaded.Server.Bind = *bind
	}
	if loaded.Engine.EventLog.Path == "" {
		loaded.Engine.EventLog.Path = defaultEventLog
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := loaded.Profiling.ServerAddress; addr != "" {
		name := loaded.Profiling.ApplicationName
		if name == "" {
			name = "payments-engine"
		}
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: name,
			ServerAddress:   addr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	cold, closeCold, err := openColdStore(loaded.Storage)
	if err != nil {
		log.Fatalf("cold store open failed: %v", err)
	}
	defer closeCold()

	eng, err := engine.New(ctx, cold, loaded.Engine, obs.NewMetrics())
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	if *rebuild {
		if err := eng.Rebuild(ctx, loaded.Engine.EventLog.Path); err != nil {
			logs.Errorf("event log rebuild failed, continuing empty, err: %+v", err)
		}
	}

	if err := server.Run(ctx, loaded.Server.Bind, loaded.Server.MaxConnections, eng); err != nil {
		log.Fatalf("server failed: %v", err)
	}

	if err := eng.Close(context.Background()); err != nil {
		logs.Errorf("engine close failed, err: %+v", err)
	}
}

func openColdStore(cfg ops.StorageConfig) (storage.Store, func(), error) {
	switch cfg.Backend {
	case ops.BackendFile:
		store, err := storage.OpenFileStore(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case ops.BackendPostgres:
		store, err := storage.NewPGStore(conn.Option{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yanun0323/logs"

	"main/internal/csvio"
	"main/internal/engine"
	"main/internal/eventlog"
	"main/internal/ops"
	"main/internal/storage"
)

const tempLogPrefix = "payments-engine-cli-"

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input.csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	// Batch runs never suspend actors; the process ends with the input.
	loaded.Engine.Shard.Actor.IdleTimeout = 0

	if err := run(context.Background(), loaded, inputPath); err != nil {
		log.Fatalf("engine failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, inputPath string) error {
	input, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer func() { _ = input.Close() }()

	cleanupStaleTempLogs()
	tempLog := loaded.Engine.EventLog.Path
	if tempLog == "" {
		tempLog = filepath.Join(os.TempDir(), fmt.Sprintf("%s%d.log", tempLogPrefix, os.Getpid()))
		loaded.Engine.EventLog = eventlog.Config{Path: tempLog}
		defer func() { _ = os.Remove(tempLog) }()
	}

	cold, closeCold, err := openColdStore(loaded.Storage)
	if err != nil {
		return err
	}
	defer closeCold()

	eng, err := engine.New(ctx, cold, loaded.Engine, nil)
	if err != nil {
		return err
	}

	r := csvio.NewReader(input)
	for {
		op, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logs.Infof("skipping record, err: %+v", err)
			continue
		}
		if err := eng.Process(ctx, op); err != nil {
			logs.Infof("%s client %d tx %d rejected, err: %+v", op.Kind, op.Client, op.Tx, err)
		}
	}

	if err := csvio.WriteSnapshots(os.Stdout, eng.Snapshots(ctx)); err != nil {
		return err
	}
	if err := eng.Close(ctx); err != nil {
		logs.Errorf("engine close failed, err: %+v", err)
	}
	return nil
}

func openColdStore(cfg ops.StorageConfig) (storage.Store, func(), error) {
	switch cfg.Backend {
	case ops.BackendFile:
		store, err := storage.OpenFileStore(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		// Batch runs need nothing to outlive the process.
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// cleanupStaleTempLogs removes event logs left behind by crashed batch runs.
func cleanupStaleTempLogs() {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, tempLogPrefix) && strings.HasSuffix(name, ".log") {
			_ = os.Remove(filepath.Join(os.TempDir(), name))
		}
	}
}

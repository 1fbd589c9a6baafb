// Package server exposes the engine over TCP. Each connection streams input
// records in CSV form; when the client half-closes, the final snapshot is
// written back on the same connection.
package server

import (
	"context"
	"io"
	"net"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/csvio"
	"main/internal/engine"
)

// Run accepts connections until the context is cancelled or the process is
// told to shut down. Concurrency is capped by maxConns.
func Run(ctx context.Context, bind string, maxConns int, eng *engine.Coordinator) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	logs.Infof("listening on %s, max %d connections", bind, maxConns)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sys.Shutdown():
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
	}()

	sem := make(chan struct{}, maxConns)
	for {
		sem <- struct{}{}
		conn, err := ln.Accept()
		if err != nil {
			<-sem
			select {
			case <-ctx.Done():
				return nil
			case <-sys.Shutdown():
				return nil
			default:
				return err
			}
		}
		logs.Infof("accepted connection from %s", conn.RemoteAddr())

		go func(conn net.Conn) {
			defer func() {
				_ = conn.Close()
				<-sem
			}()
			if err := handle(ctx, conn, eng); err != nil {
				logs.Errorf("connection %s failed, err: %+v", conn.RemoteAddr(), err)
			}
		}(conn)
	}
}

func handle(ctx context.Context, conn net.Conn, eng *engine.Coordinator) error {
	r := csvio.NewReader(conn)
	for {
		op, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			eng.Metrics().IncParseSkipped()
			logs.Infof("skipping record, err: %+v", err)
			continue
		}
		if err := eng.Process(ctx, op); err != nil {
			logs.Infof("%s client %d tx %d rejected, err: %+v", op.Kind, op.Client, op.Tx, err)
		}
	}
	return csvio.WriteSnapshots(conn, eng.Snapshots(ctx))
}

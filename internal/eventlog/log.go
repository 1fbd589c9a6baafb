// Package eventlog keeps the append-only record of applied operations. One
// CSV row per successful InputOp, buffered writes, no per-record fsync: the
// input stream stays the authoritative replay source and the log is advisory.
package eventlog

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/model"
)

var (
	ErrQueueFull      = errors.New("event log queue full")
	ErrClosed         = errors.New("event log writer closed")
	ErrNotStarted     = errors.New("event log writer not started")
	ErrAlreadyStarted = errors.New("event log writer already started")
)

const (
	defaultQueueSize  = 4096
	defaultBufferSize = 256 * 1024
)

// Config controls event log writer behavior.
type Config struct {
	Path          string
	QueueSize     int
	BufferSize    int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("invalid eventlog config: Path is empty")
	}
	if c.FlushInterval < 0 {
		return errors.New("invalid eventlog config: FlushInterval must be >= 0")
	}
	return nil
}

// Writer appends applied operations from a buffered queue. A single goroutine
// owns the file; every append funnels through its mailbox.
type Writer struct {
	cfg Config
	ch  chan model.InputOp
	wg  sync.WaitGroup
	err atomic.Value

	file *os.File
	buf  *bufio.Writer

	started uint32
	closed  uint32
}

// NewWriter opens (or creates) the log file for appending.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open event log")
	}
	return &Writer{
		cfg:  cfg,
		ch:   make(chan model.InputOp, cfg.QueueSize),
		file: file,
		buf:  bufio.NewWriterSize(file, cfg.BufferSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// TryAppend enqueues one applied operation without blocking.
func (w *Writer) TryAppend(op model.InputOp) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- op:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer, flushes buffered rows, and syncs the file once.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (w *Writer) run(ctx context.Context) {
	var flushC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}

	defer func() {
		if err := w.buf.Flush(); err != nil {
			w.setErr(err)
		}
		if err := w.file.Sync(); err != nil {
			w.setErr(err)
		}
		if err := w.file.Close(); err != nil {
			w.setErr(err)
		}
	}()

	buf := make([]byte, 0, 64)
	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(buf)
			return
		case op, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRow(buf, op); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := w.buf.Flush(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drainNonBlocking(buf []byte) {
	for {
		select {
		case op, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRow(buf, op); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

// writeRow renders `kind,client,tx,amount` with the amount column empty for
// dispute-class rows, matching the input record shape.
func (w *Writer) writeRow(buf []byte, op model.InputOp) error {
	buf = buf[:0]
	buf = append(buf, op.Kind.String()...)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(op.Client), 10)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(op.Tx), 10)
	buf = append(buf, ',')
	if op.Kind.CreatesTx() {
		// Keep the amount's own scale so a replay decodes the same decimal.
		if exp := op.Amount.Exponent(); exp < 0 {
			buf = append(buf, op.Amount.StringFixed(-exp)...)
		} else {
			buf = append(buf, op.Amount.String()...)
		}
	}
	buf = append(buf, '\n')
	_, err := w.buf.Write(buf)
	return err
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

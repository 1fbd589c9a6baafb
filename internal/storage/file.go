package storage

import (
	"bufio"
	"context"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/model"
)

// fileRecord is one line of the log-structured file store. A record with
// Deleted set tombstones the id; the last record for an id wins on open.
type fileRecord struct {
	Rec     StoredTx `json:"rec"`
	Deleted bool     `json:"deleted"`
}

// FileStore is a log-structured Store backed by a JSON-lines file. Writes
// append and flush; the full map is rebuilt from the log on open.
type FileStore struct {
	mu     sync.RWMutex
	cache  map[model.TxID]StoredTx
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// OpenFileStore opens or creates the store file and replays it into memory.
func OpenFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open store file")
	}

	cache := make(map[model.TxID]StoredTx)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fr fileRecord
		if err := sonic.ConfigFastest.Unmarshal(line, &fr); err != nil {
			// Torn tail from an unclean shutdown; everything before it is good.
			break
		}
		if fr.Deleted {
			delete(cache, fr.Rec.Tx)
		} else {
			cache[fr.Rec.Tx] = fr.Rec
		}
	}
	if err := scanner.Err(); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "scan store file")
	}
	if _, err := file.Seek(0, 2); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "seek store file")
	}

	return &FileStore{
		cache: cache,
		file:  file,
		buf:   bufio.NewWriter(file),
	}, nil
}

func (s *FileStore) Get(_ context.Context, tx model.TxID) (StoredTx, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StoredTx{}, false, ErrClosed
	}
	rec, ok := s.cache[tx]
	return rec, ok, nil
}

func (s *FileStore) Put(_ context.Context, rec StoredTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.appendLocked(fileRecord{Rec: rec}); err != nil {
		return err
	}
	s.cache[rec.Tx] = rec
	return nil
}

func (s *FileStore) Remove(_ context.Context, tx model.TxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.cache[tx]; !ok {
		return nil
	}
	if err := s.appendLocked(fileRecord{Rec: StoredTx{Tx: tx}, Deleted: true}); err != nil {
		return err
	}
	delete(s.cache, tx)
	return nil
}

// Close flushes buffered writes and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *FileStore) appendLocked(fr fileRecord) error {
	data, err := sonic.ConfigFastest.Marshal(fr)
	if err != nil {
		return errors.Wrap(err, "encode store record")
	}
	if _, err := s.buf.Write(data); err != nil {
		return errors.Wrap(err, "append store record")
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "append store record")
	}
	return errors.Wrap(s.buf.Flush(), "flush store record")
}

package eventlog

import (
	"io"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/csvio"
	"main/internal/model"
)

// Replay reads every decodable row of a prior log in order. A missing file is
// an empty history; undecodable rows are skipped, not fatal — the log is
// advisory and the input stream remains the recovery source of record.
func Replay(path string) ([]model.InputOp, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open event log")
	}
	defer func() { _ = file.Close() }()

	var ops []model.InputOp
	r := csvio.NewReader(file)
	for {
		op, err := r.Read()
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			logs.Infof("skipping undecodable event log row, err: %+v", err)
			continue
		}
		ops = append(ops, op)
	}
}

// Package csvio decodes the input record stream and encodes account
// snapshots. Record shape: `type, client, tx, amount` with the amount column
// empty for dispute-class records.
package csvio

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

var ErrMalformedRecord = errors.New("malformed record")

// Reader streams InputOps out of CSV text, tolerating whitespace around
// fields and a ragged trailing amount column.
type Reader struct {
	csv           *csv.Reader
	headerSkipped bool
}

func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return &Reader{csv: cr}
}

// Read returns the next record, io.EOF at end of stream, or an error wrapping
// ErrMalformedRecord for a skippable bad row.
func (r *Reader) Read() (model.InputOp, error) {
	for {
		fields, err := r.csv.Read()
		if err == io.EOF {
			return model.InputOp{}, io.EOF
		}
		if err != nil {
			return model.InputOp{}, errors.Wrap(ErrMalformedRecord, err.Error())
		}
		if !r.headerSkipped {
			r.headerSkipped = true
			if len(fields) > 0 && strings.TrimSpace(fields[0]) == "type" {
				continue
			}
		}
		return DecodeRecord(fields)
	}
}

// DecodeRecord parses one row of fields into an InputOp.
func DecodeRecord(fields []string) (model.InputOp, error) {
	if len(fields) < 3 {
		return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "too few fields")
	}

	kind, ok := enum.ParseOpKind(strings.ToLower(strings.TrimSpace(fields[0])))
	if !ok {
		return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "unknown type "+strings.TrimSpace(fields[0]))
	}

	client, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 16)
	if err != nil {
		return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "bad client id")
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "bad tx id")
	}

	op := model.InputOp{
		Kind:   kind,
		Client: model.ClientID(client),
		Tx:     model.TxID(tx),
	}

	if kind.CreatesTx() {
		if len(fields) < 4 || strings.TrimSpace(fields[3]) == "" {
			return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "missing amount")
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
		if err != nil {
			return model.InputOp{}, errors.Wrap(ErrMalformedRecord, "bad amount")
		}
		op.Amount = amount
	}

	return op, nil
}

package csvio

import (
	"bufio"
	"io"
	"strconv"

	"main/internal/model"
)

// WriteSnapshots renders the snapshot stream: a header then one row per
// account, amounts with exactly four fractional digits.
func WriteSnapshots(w io.Writer, snaps []model.Snapshot) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("client,available,held,total,locked\n"); err != nil {
		return err
	}
	for _, s := range snaps {
		line := strconv.FormatUint(uint64(s.Client), 10) + "," +
			s.Available.StringFixed(4) + "," +
			s.Held.StringFixed(4) + "," +
			s.Total.StringFixed(4) + "," +
			strconv.FormatBool(s.Locked) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

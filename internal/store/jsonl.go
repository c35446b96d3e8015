package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// maxRecordBytes bounds one JSONL line. Detailed descriptions can be long.
const maxRecordBytes = 8 << 20

// ReadJSONL decodes one trial per line, calling fn for each. Blank lines are
// skipped. It returns the number of records decoded.
func ReadJSONL(r io.Reader, fn func(trial.Trial) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var t trial.Trial
		if err := json.Unmarshal(raw, &t); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(t); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("line %d: %w", line+1, err)
	}
	return n, nil
}

// WriteJSONL encodes n trials, one per line, fetching each with at.
func WriteJSONL(w io.Writer, n int, at func(i int) trial.Trial) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for i := range n {
		if err := enc.Encode(at(i)); err != nil {
			return err
		}
	}
	return buf.Flush()
}

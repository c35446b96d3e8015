package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

func TestJSONL_WriteThenRead(t *testing.T) {
	trials := storeTrials()
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, len(trials), func(i int) trial.Trial { return trials[i] }))

	assert.Equal(t, len(trials), strings.Count(buf.String(), "\n"))

	var got []trial.Trial
	n, err := ReadJSONL(&buf, func(tr trial.Trial) error {
		got = append(got, tr)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(trials), n)
	assert.Equal(t, trials, got)
}

func TestJSONL_ReportsLine(t *testing.T) {
	input := `{"nct_id":"NCT1"}

{"nct_id":
`
	n, err := ReadJSONL(strings.NewReader(input), func(trial.Trial) error { return nil })

	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "line 3")
}

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archives", "natgeo.txt")

	ledger, err := Open(path)
	require.NoError(t, err)
	assert.True(t, ledger.Enabled())
	assert.Equal(t, 0, ledger.Len())

	require.NoError(t, ledger.Add("CxYz123"))
	require.NoError(t, ledger.Add("AbC_-9"))
	require.NoError(t, ledger.Add("CxYz123"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CxYz123\nAbC_-9\n", string(content))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.True(t, reopened.Contains("AbC_-9"))
	assert.False(t, reopened.Contains("missing"))
}

func TestLedgerSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n\n  two  \n\n"), 0644))

	ledger, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.Len())
	assert.True(t, ledger.Contains("two"))
}

func TestDisabledLedger(t *testing.T) {
	ledger, err := Open("")
	require.NoError(t, err)

	assert.False(t, ledger.Enabled())
	require.NoError(t, ledger.Add("CxYz123"))
	assert.True(t, ledger.Contains("CxYz123"), "disabled ledger still dedupes in memory")
	assert.Equal(t, "", ledger.Path())
}

func TestLedgerAddFailureLeavesKeyUnrecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "natgeo.txt")
	ledger, err := Open(path)
	require.NoError(t, err)

	// a directory in place of the file makes every append fail
	require.NoError(t, os.Mkdir(path, 0755))

	assert.Error(t, ledger.Add("CxYz123"))
	assert.False(t, ledger.Contains("CxYz123"))
	assert.Equal(t, 0, ledger.Len())

	require.NoError(t, os.Remove(path))
	require.NoError(t, ledger.Add("CxYz123"))
	assert.True(t, ledger.Contains("CxYz123"))
}

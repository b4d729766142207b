package statusfeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
repositories:
  - key: jscholarship
    name: JScholarship
    format: atom
    timeout: 20s
    auth:
      username: pass
      password: ${JSCHOLARSHIP_PASSWORD}
    status_mapping:
      default: submitted
      terms:
        http://dspace.org/state/archived: ACCEPTED
        http://dspace.org/state/withdrawn: rejected
  - key: pmc
    format: json
    json_path: record.state
    status_mapping:
      terms:
        published: ACCEPTED
`

func TestParseRegistry(t *testing.T) {
	t.Setenv("JSCHOLARSHIP_PASSWORD", "s3cret")

	reg, err := ParseRegistry([]byte(sampleRegistry))
	require.NoError(t, err)
	assert.Equal(t, []string{"jscholarship", "pmc"}, reg.Keys())

	js, ok := reg.Lookup("jscholarship")
	require.True(t, ok)
	assert.Equal(t, FormatAtom, js.Format)
	assert.Equal(t, 20*time.Second, js.Timeout)
	assert.Equal(t, "s3cret", js.Auth.Password)
	assert.Equal(t, DefaultJSONPath, js.JSONPath)
	assert.Equal(t, deposit.DepositStatusSubmitted, js.StatusMapping.Default)
	assert.Equal(t, deposit.DepositStatusRejected, js.StatusMapping.Terms["http://dspace.org/state/withdrawn"])

	pmc, ok := reg.Lookup("pmc")
	require.True(t, ok)
	assert.Equal(t, "record.state", pmc.JSONPath)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestParseRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "repositories: [", "parse"},
		{"missing key", "repositories:\n  - name: x\n", "key is required"},
		{"unknown format", "repositories:\n  - key: a\n    format: csv\n", "unknown format"},
		{"unknown status", "repositories:\n  - key: a\n    status_mapping:\n      terms:\n        x: DONE\n", "invalid deposit status"},
		{"bad default", "repositories:\n  - key: a\n    status_mapping:\n      default: MAYBE\n", "default mapping"},
		{"duplicate", "repositories:\n  - key: a\n  - key: a\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repositories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reg.Keys(), 2)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStatusMapping_Map(t *testing.T) {
	m := StatusMapping{
		Terms: map[string]deposit.DepositStatus{"archived": deposit.DepositStatusAccepted},
	}

	s, ok := m.Map("archived")
	assert.True(t, ok)
	assert.Equal(t, deposit.DepositStatusAccepted, s)

	_, ok = m.Map("inreview")
	assert.False(t, ok, "no default means unknown terms are indeterminate")

	_, ok = m.Map("")
	assert.False(t, ok)

	m.Default = deposit.DepositStatusSubmitted
	s, ok = m.Map("inreview")
	assert.True(t, ok)
	assert.Equal(t, deposit.DepositStatusSubmitted, s)

	_, ok = m.Map("")
	assert.False(t, ok, "an absent term never falls through to the default")
}

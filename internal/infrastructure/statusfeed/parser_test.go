package statusfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swordStatement = `<?xml version="1.0" encoding="UTF-8"?>
<atom:feed xmlns:atom="http://www.w3.org/2005/Atom">
  <atom:category scheme="http://purl.org/net/sword/terms/original" term="deposit"/>
  <atom:category scheme="http://purl.org/net/sword/terms/state"
                 term="http://dspace.org/state/archived" label="State">The item is archived</atom:category>
  <atom:entry>
    <atom:id>urn:item:1</atom:id>
  </atom:entry>
</atom:feed>`

const entryStatement = `<entry xmlns="http://www.w3.org/2005/Atom">
  <category scheme="http://purl.org/net/sword/terms/state" term="http://dspace.org/state/inreview"/>
</entry>`

func TestExtractTerm_Atom(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTerm  string
		wantFound bool
	}{
		{"feed level state", swordStatement, "http://dspace.org/state/archived", true},
		{"entry root", entryStatement, "http://dspace.org/state/inreview", true},
		{
			"state nested in entry",
			`<feed><entry><category scheme="http://purl.org/net/sword/terms/state" term="withdrawn"/></entry></feed>`,
			"withdrawn", true,
		},
		{"no state category", `<feed><category scheme="other" term="x"/></feed>`, "", false},
		{"blank term", `<feed><category scheme="http://purl.org/net/sword/terms/state" term="  "/></feed>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, found, err := ExtractTerm([]byte(tt.body), "application/atom+xml; type=feed", RepositoryConfig{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantTerm, term)
		})
	}
}

func TestExtractTerm_JSON(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		term, found, err := ExtractTerm([]byte(`{"status":"accepted"}`), "application/json", RepositoryConfig{})
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "accepted", term)
	})

	t.Run("configured path", func(t *testing.T) {
		cfg := RepositoryConfig{JSONPath: "record.state"}
		term, found, err := ExtractTerm([]byte(`{"record":{"state":"published"}}`), "application/json", cfg)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "published", term)
	})

	t.Run("missing path is indeterminate", func(t *testing.T) {
		_, found, err := ExtractTerm([]byte(`{"other":1}`), "application/json", RepositoryConfig{})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, err := ExtractTerm([]byte(`{"status":`), "application/json", RepositoryConfig{})
		assert.ErrorIs(t, err, ErrUnparseableDocument)
	})
}

func TestExtractTerm_Detection(t *testing.T) {
	t.Run("sniffs json without content type", func(t *testing.T) {
		term, found, err := ExtractTerm([]byte("  {\"status\":\"x\"}"), "", RepositoryConfig{})
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "x", term)
	})

	t.Run("sniffs xml from text/plain", func(t *testing.T) {
		_, found, err := ExtractTerm([]byte(entryStatement), "text/plain", RepositoryConfig{})
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("configured format wins over content type", func(t *testing.T) {
		_, _, err := ExtractTerm([]byte(`{"status":"x"}`), "application/json", RepositoryConfig{Format: FormatAtom})
		assert.ErrorIs(t, err, ErrUnparseableDocument)
	})

	t.Run("plain text is unparseable", func(t *testing.T) {
		_, _, err := ExtractTerm([]byte("accepted"), "text/plain", RepositoryConfig{})
		assert.ErrorIs(t, err, ErrUnparseableDocument)
	})

	t.Run("malformed xml", func(t *testing.T) {
		_, _, err := ExtractTerm([]byte("<feed><category"), "application/xml", RepositoryConfig{})
		assert.ErrorIs(t, err, ErrUnparseableDocument)
	})
}

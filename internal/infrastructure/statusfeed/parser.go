package statusfeed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"mime"
	"strings"

	"github.com/tidwall/gjson"
)

// SwordStateScheme is the Atom category scheme of SWORDv2 deposit states
const SwordStateScheme = "http://purl.org/net/sword/terms/state"

type atomCategory struct {
	Scheme string `xml:"scheme,attr"`
	Term   string `xml:"term,attr"`
}

// atomDocument accepts either a <feed> or an <entry> root
type atomDocument struct {
	Categories []atomCategory `xml:"category"`
	Entries    []struct {
		Categories []atomCategory `xml:"category"`
	} `xml:"entry"`
}

// ExtractTerm returns the repository's status term from a status document.
// found is false when the document is well formed but carries no term.
func ExtractTerm(body []byte, contentType string, cfg RepositoryConfig) (term string, found bool, err error) {
	switch detectFormat(body, contentType, cfg.Format) {
	case FormatAtom:
		return atomTerm(body)
	case FormatJSON:
		return jsonTerm(body, cfg.JSONPath)
	default:
		return "", false, fmt.Errorf("%w: content type %q", ErrUnparseableDocument, contentType)
	}
}

func detectFormat(body []byte, contentType, configured string) string {
	if configured != FormatAuto {
		return configured
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasSuffix(mediaType, "json"):
			return FormatJSON
		case strings.HasSuffix(mediaType, "xml"):
			return FormatAtom
		}
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{', '[':
		return FormatJSON
	case '<':
		return FormatAtom
	}
	return ""
}

func atomTerm(body []byte) (string, bool, error) {
	var doc atomDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrUnparseableDocument, err)
	}
	if term, ok := stateTerm(doc.Categories); ok {
		return term, true, nil
	}
	for _, e := range doc.Entries {
		if term, ok := stateTerm(e.Categories); ok {
			return term, true, nil
		}
	}
	return "", false, nil
}

func stateTerm(categories []atomCategory) (string, bool) {
	for _, c := range categories {
		if c.Scheme == SwordStateScheme && strings.TrimSpace(c.Term) != "" {
			return strings.TrimSpace(c.Term), true
		}
	}
	return "", false
}

func jsonTerm(body []byte, path string) (string, bool, error) {
	if !gjson.ValidBytes(body) {
		return "", false, fmt.Errorf("%w: invalid JSON", ErrUnparseableDocument)
	}
	if path == "" {
		path = DefaultJSONPath
	}
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return "", false, nil
	}
	term := strings.TrimSpace(res.String())
	return term, term != "", nil
}

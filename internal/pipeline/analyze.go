package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/phrazzld/fanout/internal/domain"
)

// ErrEmptyDocument is returned when a fetched document has no body.
var ErrEmptyDocument = errors.New("document is empty")

// Analyze computes the size, line count, word count and SHA-256 digest of doc.
// A final line without a trailing newline still counts as a line.
func Analyze(doc domain.Document) (domain.Analysis, error) {
	if len(doc.Body) == 0 {
		return domain.Analysis{}, ErrEmptyDocument
	}

	lines := bytes.Count(doc.Body, []byte{'\n'})
	if doc.Body[len(doc.Body)-1] != '\n' {
		lines++
	}

	sum := sha256.Sum256(doc.Body)

	return domain.Analysis{
		URL:         doc.URL,
		ContentType: doc.ContentType,
		Bytes:       len(doc.Body),
		Lines:       lines,
		Words:       len(bytes.Fields(doc.Body)),
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

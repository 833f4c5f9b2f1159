// Package bomtext repairs and mines the free-text names that appear on BOM
// rows and 3D geometry nodes: encoding repair, part-code extraction and
// standard-part size extraction.
package bomtext

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/unicode/norm"
)

// FixEncoding reverses GBK text that was read as Latin-1 by a CAD exporter.
//
// Every rune of s is mapped back to its single Latin-1 byte and the bytes are
// decoded as GBK, dropping anything that does not decode. When s holds a rune
// above U+00FF it was never garbled and is returned as is. FixEncoding never
// fails.
func FixEncoding(s string) string {
	if s == "" {
		return s
	}

	raw := make([]byte, 0, len(s))
	for _, r := range s {
		// Invalid UTF-8 surfaces as utf8.RuneError, which is out of range too.
		if r > 0xFF {
			return s
		}
		raw = append(raw, byte(r))
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError {
			return -1
		}
		return r
	}, string(decoded))
}

// Normalize is the canonical form every extractor works on: encoding
// repaired, NFC composed and trimmed.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(FixEncoding(s)))
}

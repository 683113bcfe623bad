package feed

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encodings reported on Decoded
const (
	EncodingUTF16LE     = "UTF-16LE"
	EncodingUTF16BE     = "UTF-16BE"
	EncodingUTF8        = "UTF-8"
	EncodingWindows1252 = "Windows-1252"
)

// Root markers accepted as proof that a decode attempt produced Koinor XML
const (
	markerXMLDecl  = "<?xml"
	markerLedger   = "<d_vc_i_estado_cuenta"
	markerMovement = "<d_vc_i_diario_caja"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}

	snapshotRootPattern = regexp.MustCompile(`<(cxc_\d{8})>`)
	controlCharPattern  = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F]")
	knownEntityPattern  = regexp.MustCompile(`^(amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)
)

// Decoded is sanitized feed text ready for the streaming scanner
type Decoded struct {
	Text     string
	Encoding string
}

// Decode detects the transport encoding of raw, strips byte-order marks and
// sanitizes the text. It fails with a StructuralError only when no attempt
// yields a recognizable root marker.
func Decode(raw []byte, fileName string) (*Decoded, error) {
	if len(raw) == 0 {
		return nil, newStructuralError(fileName, "file is empty", ErrEmptyFile)
	}

	var preferBE bool
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		raw = raw[len(bomUTF8):]
	case bytes.HasPrefix(raw, bomUTF16LE):
		raw = raw[len(bomUTF16LE):]
	case bytes.HasPrefix(raw, bomUTF16BE):
		raw = raw[len(bomUTF16BE):]
		preferBE = true
	}

	attempts := []struct {
		name string
		dec  func([]byte) (string, bool)
	}{
		{EncodingUTF16LE, utf16Decoder(unicode.LittleEndian)},
		{EncodingUTF8, decodeUTF8},
		{EncodingWindows1252, decodeWith(charmap.Windows1252)},
	}
	if preferBE {
		attempts = append([]struct {
			name string
			dec  func([]byte) (string, bool)
		}{{EncodingUTF16BE, utf16Decoder(unicode.BigEndian)}}, attempts...)
	}

	for _, a := range attempts {
		text, ok := a.dec(raw)
		if !ok {
			continue
		}
		text = stripBOMRunes(text)
		if hasRootMarker(text) {
			return &Decoded{Text: Sanitize(text), Encoding: a.name}, nil
		}
	}
	return nil, newStructuralError(fileName, "no recognizable root element in any supported encoding", nil)
}

// Sanitize removes control characters other than tab, CR and LF and escapes
// every '&' that does not start a known XML entity.
func Sanitize(text string) string {
	text = stripBOMRunes(text)
	text = controlCharPattern.ReplaceAllString(text, "")
	return escapeBareAmpersands(text)
}

func escapeBareAmpersands(text string) string {
	if !strings.Contains(text, "&") {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '&' && !knownEntityPattern.MatchString(text[i+1:]) {
			sb.WriteString("&amp;")
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func stripBOMRunes(text string) string {
	if !strings.ContainsAny(text, "\uFEFF\uFFFE") {
		return text
	}
	return strings.NewReplacer("\uFEFF", "", "\uFFFE", "").Replace(text)
}

func hasRootMarker(text string) bool {
	return strings.Contains(text, markerXMLDecl) ||
		strings.Contains(text, markerLedger) ||
		strings.Contains(text, markerMovement) ||
		snapshotRootPattern.MatchString(text)
}

func utf16Decoder(order unicode.Endianness) func([]byte) (string, bool) {
	return decodeWith(unicode.UTF16(order, unicode.IgnoreBOM))
}

func decodeWith(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(raw []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
}

func decodeUTF8(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

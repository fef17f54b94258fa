package docling

import (
	"bytes"
	"strings"
	"unicode/utf16"
)

// Title extracts the document title from the PDF Info dictionary without a
// full conversion, mirroring what the engine would report. It is a bounded
// scan for the /Title entry in its literal "(...)" or hex "<...>" string
// form; PDFs whose Info dictionary sits inside a compressed object stream
// simply yield no title, which degrades to the fingerprint cache path.
func (c *Converter) Title(document []byte) (string, bool) {
	key := []byte("/Title")
	for idx := bytes.Index(document, key); idx >= 0; {
		rest := document[idx+len(key):]
		title, ok := parsePDFString(rest)
		if ok {
			title = strings.TrimSpace(title)
			if title != "" {
				return title, true
			}
		}
		next := bytes.Index(rest, key)
		if next < 0 {
			break
		}
		idx += len(key) + next
	}
	return "", false
}

// parsePDFString reads a PDF string object from the start of data, skipping
// leading whitespace. Supports literal strings with escapes and balanced
// parentheses, and hex strings. UTF-16BE payloads (BOM 0xFE 0xFF) are
// decoded; everything else is treated as Latin-1-compatible text.
func parsePDFString(data []byte) (string, bool) {
	i := 0
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\r' || data[i] == '\n') {
		i++
	}
	if i >= len(data) {
		return "", false
	}

	switch data[i] {
	case '(':
		return parseLiteralString(data[i+1:])
	case '<':
		return parseHexString(data[i+1:])
	default:
		return "", false
	}
}

func parseLiteralString(data []byte) (string, bool) {
	var out []byte
	depth := 1
	for i := 0; i < len(data); i++ {
		ch := data[i]
		switch ch {
		case '\\':
			if i+1 >= len(data) {
				return "", false
			}
			i++
			switch data[i] {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, data[i])
			default:
				if data[i] >= '0' && data[i] <= '7' {
					// octal escape, up to three digits
					v := int(data[i] - '0')
					for n := 0; n < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; n++ {
						i++
						v = v*8 + int(data[i]-'0')
					}
					out = append(out, byte(v))
				} else {
					out = append(out, data[i])
				}
			}
		case '(':
			depth++
			out = append(out, ch)
		case ')':
			depth--
			if depth == 0 {
				return decodePDFText(out), true
			}
			out = append(out, ch)
		default:
			out = append(out, ch)
		}
	}
	return "", false
}

func parseHexString(data []byte) (string, bool) {
	end := bytes.IndexByte(data, '>')
	if end < 0 {
		return "", false
	}
	var raw []byte
	var hi byte
	var have bool
	for _, ch := range data[:end] {
		v, ok := hexVal(ch)
		if !ok {
			continue
		}
		if !have {
			hi = v
			have = true
		} else {
			raw = append(raw, hi<<4|v)
			have = false
		}
	}
	if have {
		raw = append(raw, hi<<4) // odd digit count: final digit padded with 0
	}
	return decodePDFText(raw), true
}

func hexVal(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	default:
		return 0, false
	}
}

func decodePDFText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		raw = raw[2:]
		codes := make([]uint16, 0, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			codes = append(codes, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(codes))
	}
	return string(raw)
}

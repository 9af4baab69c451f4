package core

// decode.go prepares delimited text for parsing:
//
//   - stripBOM removes the UTF-8 byte order mark Windows tools prepend
//   - decodeLatin1 is the fallback when the bytes are not valid UTF-8
//   - sniffDelimiter guesses the field separator from a sample of lines

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SniffSampleLines is how many non-empty lines sniffDelimiter inspects.
var SniffSampleLines = 20

// delimiterCandidates are tried in priority order; earlier wins ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// decodeLatin1 reinterprets every byte as an ISO-8859-1 code point. It
// cannot fail on well-formed input, which is what makes it a safe fallback.
func decodeLatin1(data []byte) ([]byte, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode latin-1: %w", err)
	}
	return out, nil
}

// sniffDelimiter returns the candidate whose per-line count is most
// consistent across the sample. Quoted sections are ignored. Falls back to
// comma when no candidate appears.
func sniffDelimiter(data []byte) rune {
	lines := sampleLines(data, SniffSampleLines)
	if len(lines) == 0 {
		return ','
	}

	best := ','
	bestScore, bestCount := 0, 0
	for _, d := range delimiterCandidates {
		counts := make(map[int]int)
		for _, line := range lines {
			counts[countOutsideQuotes(line, d)]++
		}
		// Mode of the non-zero counts.
		mode, freq := 0, 0
		for c, f := range counts {
			if c == 0 {
				continue
			}
			if f > freq || (f == freq && c > mode) {
				mode, freq = c, f
			}
		}
		if freq == 0 {
			continue
		}
		if freq > bestScore || (freq == bestScore && mode > bestCount) {
			best, bestScore, bestCount = d, freq, mode
		}
	}
	return best
}

func sampleLines(data []byte, max int) [][]byte {
	var lines [][]byte
	for len(data) > 0 && len(lines) < max {
		i := bytes.IndexByte(data, '\n')
		var line []byte
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i], data[i+1:]
		}
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func countOutsideQuotes(line []byte, d rune) int {
	n := 0
	inQuotes := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			n++
		}
	}
	return n
}

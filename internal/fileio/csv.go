package fileio

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV читает CSV/TXT: определяет кодировку (UTF-8, Windows-1252, Latin-1/9)
// и разделитель (";" у испанских Excel-экспортов, иначе ",").
func readCSV(r io.Reader) ([][]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var dec io.Reader = bytes.NewReader(b)
	if enc := detectEncoding(b); enc != nil {
		dec = transform.NewReader(dec, enc.NewDecoder())
	}

	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comma = detectDelimiter(b)

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// detectEncoding returns nil for UTF-8 input.
func detectEncoding(b []byte) encoding.Encoding {
	if utf8.Valid(b) {
		return nil
	}
	peek := b
	if len(peek) > 4096 {
		peek = peek[:4096]
	}
	cs := ""
	if det, err := chardet.NewTextDetector().DetectBest(peek); err == nil && det != nil {
		cs = strings.ToLower(det.Charset)
	}
	switch cs {
	case "iso-8859-1":
		return charmap.ISO8859_1
	case "iso-8859-15":
		return charmap.ISO8859_15
	default:
		// не UTF-8 и не опознано: для испанских прайсов почти всегда cp1252
		return charmap.Windows1252
	}
}

// по первой непустой строке: есть ";" → ";", иначе ",". Табуляция только
// когда в строке нет ни ";", ни ","
func detectDelimiter(b []byte) rune {
	line := b
	for len(line) > 0 {
		i := bytes.IndexByte(line, '\n')
		cur := line
		if i >= 0 {
			cur, line = line[:i], line[i+1:]
		} else {
			line = nil
		}
		if len(bytes.TrimSpace(cur)) == 0 {
			continue
		}
		switch {
		case bytes.IndexByte(cur, ';') >= 0:
			return ';'
		case bytes.IndexByte(cur, ',') < 0 && bytes.IndexByte(cur, '\t') >= 0:
			return '\t'
		}
		return ','
	}
	return ','
}

package fileio

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupported is returned for file extensions no reader handles.
var ErrUnsupported = eris.New("fileio: unsupported file type")

// ReadRows выбирает парсер по расширению и возвращает таблицу первого листа
// как срез строк. Полностью пустые строки пропускаются, ячейки обрезаны.
func ReadRows(r io.Reader, filename string) ([][]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r)
	case ".xls":
		rows, err = readXLS(r)
	case ".csv", ".txt":
		rows, err = readCSV(r)
	default:
		return nil, eris.Wrapf(ErrUnsupported, "fileio: %q", filename)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fileio: read %s", filename)
	}
	return dropEmpty(rows), nil
}

// Supported reports whether ReadRows knows the file's extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls", ".csv", ".txt":
		return true
	}
	return false
}

// normalizeCell: NBSP/NNBSP в обычный пробел, обрезка по краям.
func normalizeCell(s string) string {
	if strings.ContainsAny(s, "\u00a0\u202f") {
		s = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(s)
	}
	return strings.TrimSpace(s)
}

func dropEmpty(rows [][]string) [][]string {
	out := rows[:0]
	for _, rec := range rows {
		empty := true
		for i, v := range rec {
			rec[i] = normalizeCell(v)
			if rec[i] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, rec)
		}
	}
	return out
}

package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// ErrSheetNotFound is returned when a requested worksheet is absent.
var ErrSheetNotFound = errors.New("sheet not found")

type xlsxWorkbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type xlsxRels struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type xlsxShared struct {
	Items []struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Ref    string `xml:"r,attr"`
			Type   string `xml:"t,attr"`
			V      string `xml:"v"`
			Inline struct {
				T string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// readXLSX reads one worksheet into a text table. The first row is the
// header. An empty sheet name selects the first sheet in the workbook.
func readXLSX(data []byte, sheet string) (*table.Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	var wb xlsxWorkbook
	if err := unmarshalEntry(zr, "xl/workbook.xml", &wb); err != nil {
		return nil, err
	}
	var rels xlsxRels
	if err := unmarshalEntry(zr, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, err
	}
	target := ""
	names := make([]string, 0, len(wb.Sheets))
	for _, s := range wb.Sheets {
		names = append(names, s.Name)
		if target != "" || (sheet != "" && !strings.EqualFold(s.Name, sheet)) {
			continue
		}
		for _, r := range rels.Rels {
			if r.ID == s.RID {
				target = sheetPath(r.Target)
			}
		}
	}
	if target == "" {
		if sheet != "" || len(wb.Sheets) > 0 {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrSheetNotFound, sheet, strings.Join(names, ", "))
		}
		target = "xl/worksheets/sheet1.xml"
	}

	var shared xlsxShared
	if err := unmarshalEntry(zr, "xl/sharedStrings.xml", &shared); err != nil && !errors.Is(err, errNoEntry) {
		return nil, err
	}
	strs := make([]string, len(shared.Items))
	for i, it := range shared.Items {
		var b strings.Builder
		b.WriteString(it.T)
		for _, r := range it.Runs {
			b.WriteString(r.T)
		}
		strs[i] = b.String()
	}

	var ws xlsxSheet
	if err := unmarshalEntry(zr, target, &ws); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(ws.Rows))
	width := 0
	for _, r := range ws.Rows {
		var row []string
		for i, c := range r.Cells {
			idx := i
			if c.Ref != "" {
				idx = columnIndex(c.Ref)
			}
			if idx < 0 {
				continue
			}
			for len(row) <= idx {
				row = append(row, "")
			}
			switch c.Type {
			case "s":
				n, err := strconv.Atoi(strings.TrimSpace(c.V))
				if err == nil && n >= 0 && n < len(strs) {
					row[idx] = strs[n]
				}
			case "inlineStr":
				row[idx] = c.Inline.T
			default:
				row[idx] = c.V
			}
		}
		width = max(width, len(row))
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx sheet %s: %w", target, table.ErrNoColumns)
	}

	header := rows[0]
	cols := make([]table.Column, width)
	for j := 0; j < width; j++ {
		name := ""
		if j < len(header) {
			name = strings.TrimSpace(header[j])
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", j+1)
		}
		vals := make([]string, len(rows)-1)
		for i, r := range rows[1:] {
			if j < len(r) {
				vals[i] = r[j]
			}
		}
		cols[j] = table.StringCol(name, vals)
	}
	return table.New(cols...)
}

var errNoEntry = errors.New("missing xlsx part")

func unmarshalEntry(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := xml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", errNoEntry, name)
}

// sheetPath turns a relationship target into a zip entry name. Targets are
// relative to xl/ unless they start with a slash.
func sheetPath(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	if strings.HasPrefix(target, "xl/") {
		return target
	}
	return path.Join("xl", target)
}

// columnIndex maps a cell reference such as "C12" to its 0-based column.
func columnIndex(ref string) int {
	idx := 0
	n := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		n++
	}
	if n == 0 {
		return -1
	}
	return idx - 1
}

// Package dataset loads the incident table from a file or URL and shapes it
// into the canonical columns the pipeline consumes.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// Canonical column names after Prepare.
const (
	GroupCol    = "group"
	LocationCol = "location"
	HourCol     = "hour"
)

// ErrNoRows is returned when nothing usable remains after preparation.
var ErrNoRows = errors.New("dataset has no usable rows")

// LoadOptions controls how the source is read.
type LoadOptions struct {
	// Delimiter for CSV. If 0, picked from the file extension.
	Delimiter rune
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// HTTPTimeout bounds URL fetches.
	HTTPTimeout time.Duration
	// Sheet selects an XLSX worksheet by name; empty means the first one.
	Sheet string
}

// Load reads a CSV/TSV/XLSX from a local path or an http(s) URL.
func Load(ctx context.Context, source string, opt LoadOptions) (*table.Table, error) {
	var r io.ReadCloser
	if isURL(source) {
		body, err := fetch(ctx, source, opt.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		r = body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		r = f
	}
	defer r.Close()

	var t *table.Table
	var err error
	if ext := extension(source); ext == ".xlsx" {
		b, rerr := io.ReadAll(r)
		if rerr != nil {
			return nil, fmt.Errorf("read xlsx: %w", rerr)
		}
		t, err = readXLSX(b, opt.Sheet)
	} else {
		delim := opt.Delimiter
		if delim == 0 && ext == ".tsv" {
			delim = '\t'
		}
		t, err = table.ReadCSV(r, table.ReadOptions{Delimiter: delim})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(source), err)
	}
	return t.Head(opt.MaxRows)
}

func isURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func fetch(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	return resp.Body, nil
}

// extension is the lower-cased file extension of a path or URL.
func extension(source string) string {
	name := strings.ToLower(source)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return filepath.Ext(name)
}

// Columns names the source columns that carry each canonical field.
type Columns struct {
	Group    string `mapstructure:"group" yaml:"group"`
	Location string `mapstructure:"location" yaml:"location"`
	Time     string `mapstructure:"time" yaml:"time"`
}

// DefaultColumns matches the NYPD complaint data export.
func DefaultColumns() Columns {
	return Columns{Group: "ADDR_PCT_CD", Location: "PREM_TYP_DESC", Time: "CMPLNT_FR_TM"}
}

// Prepared is the canonical table plus what was discarded on the way.
type Prepared struct {
	Table       *table.Table
	DroppedRows int
	Warnings    []string
}

// Prepare selects and renames the configured columns to group, location and
// hour. Rows without a group key or with an unreadable time are dropped and
// counted in the warnings.
func Prepare(t *table.Table, cols Columns) (*Prepared, error) {
	sel, err := t.Select(cols.Group, cols.Location, cols.Time)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	groups, _ := sel.Strings(cols.Group)
	locs, _ := sel.Strings(cols.Location)
	times, _ := sel.Strings(cols.Time)

	var g, l []string
	var h []float64
	var noGroup, badTime int
	for i := range groups {
		key := strings.TrimSpace(groups[i])
		if key == "" || key == "NaN" || key == "(null)" {
			noGroup++
			continue
		}
		hour, ok := ParseHour(times[i])
		if !ok {
			badTime++
			continue
		}
		g = append(g, key)
		l = append(l, locs[i])
		h = append(h, float64(hour))
	}
	out, err := table.New(
		table.StringCol(GroupCol, g),
		table.StringCol(LocationCol, l),
		table.FloatCol(HourCol, h),
	)
	if err != nil {
		return nil, err
	}
	p := &Prepared{Table: out, DroppedRows: noGroup + badTime}
	if noGroup > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("dropped %d rows without a %s value", noGroup, cols.Group))
	}
	if badTime > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("dropped %d rows with unreadable %s", badTime, cols.Time))
	}
	if out.Nrow() == 0 && t.Nrow() > 0 {
		return p, ErrNoRows
	}
	return p, nil
}

var timeLayouts = []string{
	"15:04:05", "15:04", "3:04:05 PM", "3:04 PM",
	time.RFC3339, "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
	"1/2/2006 15:04", "1/2/2006 15:04:05", "01/02/2006 03:04:05 PM",
}

// ParseHour extracts the hour of day (0-23) from a clock time, a datetime, or
// a bare integer hour. "24:00:00" style end-of-day values are read as hour 0.
func ParseHour(s string) (int, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n >= 0 && n <= 23 {
			return n, true
		}
		return 0, false
	}
	if strings.HasPrefix(v, "24:") {
		v = "00:" + v[3:]
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, v); err == nil {
			return t.Hour(), true
		}
	}
	return 0, false
}

// Package export writes scraped rows as CSV, JSON or an Excel workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jjenkins/visawatch/internal/model"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Records"

// ErrUnknownFormat is returned for unsupported formats or file extensions
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Write encodes rows to w in the given format
func Write(w io.Writer, format Format, rows []model.RawRecord) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Header returns the sorted union of the columns present in rows
func Header(rows []model.RawRecord) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range fields(r) {
			seen[k] = true
		}
	}

	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

// fields flattens a row into named columns. Optional columns are present
// only when set.
func fields(r model.RawRecord) map[string]string {
	m := map[string]string{
		"id":            r.ExternalID,
		"visa_type":     r.VisaType,
		"visa_entry":    r.VisaEntry,
		"consulate":     r.Consulate,
		"major":         r.Major,
		"status":        r.Status,
		"check_date":    r.CheckDate,
		"complete_date": r.CompleteDate,
		"waiting_days":  r.WaitingDays,
		"details_link":  r.DetailsLink,
		"has_notes":     strconv.FormatBool(r.HasNotes),
	}
	if r.Note != "" {
		m["note"] = r.Note
	}
	if r.Details != "" {
		m["details"] = r.Details
	}
	if r.Period != "" {
		m["month"] = r.Period
	}
	return m
}

func table(rows []model.RawRecord) ([]string, [][]string) {
	header := Header(rows)
	body := make([][]string, len(rows))
	for i, r := range rows {
		f := fields(r)
		line := make([]string, len(header))
		for j, col := range header {
			line[j] = f[col]
		}
		body[i] = line
	}
	return header, body
}

func writeCSV(w io.Writer, rows []model.RawRecord) error {
	if len(rows) == 0 {
		return nil
	}

	header, body := table(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(body); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, rows []model.RawRecord) error {
	if rows == nil {
		rows = []model.RawRecord{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to write json: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, rows []model.RawRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header, body := table(rows)
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, line := range body {
		if err := setRow(f, i+2, line); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	line := make([]any, len(values))
	for i, v := range values {
		line[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &line); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

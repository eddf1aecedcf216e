// Package export writes the activity catalogue as CSV, JSON or XLSX.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/kidssmart/internal/activity"
)

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet XLSX exports are written to.
const SheetName = "Activities"

// ErrUnknownFormat is returned for formats other than csv, json and xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// Source streams activities in a stable order.
type Source interface {
	Each(ctx context.Context, fn func(activity.Activity) error) error
}

// Columns is the header row shared by the CSV and XLSX encodings.
var Columns = []string{
	"id", "title", "description", "category", "street_address", "suburb", "postcode", "state",
	"phone", "email", "website", "age_range", "cost", "schedule", "image_url", "features",
	"source_url", "source_name", "approved", "scraped_at", "created_at", "updated_at",
}

// ParseFormat accepts a format name case-insensitively, or infers it from a file extension.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch f := Format(name); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Write encodes every activity from src to w and returns how many were written.
func Write(ctx context.Context, src Source, format Format, w io.Writer) (int, error) {
	switch format {
	case FormatCSV:
		return writeCSV(ctx, src, w)
	case FormatJSON:
		return writeJSON(ctx, src, w)
	case FormatXLSX:
		return writeXLSX(ctx, src, w)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func record(a activity.Activity) []string {
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.Title,
		a.Description,
		a.Category,
		a.StreetAddress,
		a.Suburb,
		a.Postcode,
		a.State,
		a.Phone,
		a.Email,
		a.Website,
		a.AgeRange,
		a.Cost,
		a.Schedule,
		a.ImageURL,
		strings.Join(a.Features, "; "),
		a.SourceURL,
		a.SourceName,
		strconv.FormatBool(a.Approved),
		formatTime(a.ScrapedAt),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	}
}

func writeCSV(ctx context.Context, src Source, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	n := 0
	err := src.Each(ctx, func(a activity.Activity) error {
		if err := cw.Write(record(a)); err != nil {
			return fmt.Errorf("write csv row %d: %w", a.ID, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

// writeJSON emits an indented array one element at a time.
func writeJSON(ctx context.Context, src Source, w io.Writer) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, fmt.Errorf("write json: %w", err)
	}
	n := 0
	err := src.Each(ctx, func(a activity.Activity) error {
		body, err := json.MarshalIndent(a, "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal activity %d: %w", a.ID, err)
		}
		sep := ",\n  "
		if n == 0 {
			sep = "\n  "
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	tail := "\n]\n"
	if n == 0 {
		tail = "]\n"
	}
	if _, err := io.WriteString(w, tail); err != nil {
		return n, fmt.Errorf("write json: %w", err)
	}
	return n, nil
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeXLSX(ctx context.Context, src Source, w io.Writer) (n int, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, fmt.Errorf("open sheet stream: %w", err)
	}
	if err := sw.SetRow("A1", cells(Columns)); err != nil {
		return 0, fmt.Errorf("write xlsx header: %w", err)
	}
	err = src.Each(ctx, func(a activity.Activity) error {
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := cells(record(a))
		row[0] = a.ID
		row[18] = a.Approved
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", a.ID, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	if err := sw.Flush(); err != nil {
		return n, fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return n, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}

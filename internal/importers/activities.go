// Package importers parses activity exports from fitness trackers into
// activity rows. Live tracker sync is a collaborator's job; this package only
// handles file-based ingestion.
package importers

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// Activities CSV columns. Distance is accepted in kilometers; duration in
// minutes. Only Date and Type are required.
// Date,Type,Name,Distance,Duration,Avg HR,Suffer Score,External ID
const (
	colDate        = "Date"
	colType        = "Type"
	colName        = "Name"
	colDistance    = "Distance"
	colDuration    = "Duration"
	colAvgHR       = "Avg HR"
	colSufferScore = "Suffer Score"
	colExternalID  = "External ID"
)

// ParsedActivity is one activity row extracted from an import file.
type ParsedActivity struct {
	Date        string // YYYY-MM-DD
	Type        string
	Name        string
	DistanceKM  float64
	DurationMin int
	AvgHR       *float64
	SufferScore *float64
	ExternalID  string
}

// ParseActivitiesCSV parses an activities CSV export. Rows without a date or
// sport type are skipped rather than failing the whole file.
func ParseActivitiesCSV(r io.Reader) ([]ParsedActivity, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importers: read activities csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("importers: activities csv has no data rows")
	}

	// Build column index from header row.
	header := records[0]
	idx := make(map[string]int)
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, required := range []string{colDate, colType} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("importers: activities csv missing required column %q", required)
		}
	}

	var out []ParsedActivity
	for _, row := range records[1:] {
		date := parseDate(colVal(row, idx, colDate))
		sport := colVal(row, idx, colType)
		if date == "" || sport == "" {
			continue
		}

		pa := ParsedActivity{
			Date:       date,
			Type:       sport,
			Name:       colVal(row, idx, colName),
			ExternalID: colVal(row, idx, colExternalID),
		}
		if pa.Name == "" {
			pa.Name = sport
		}

		if v := colVal(row, idx, colDistance); v != "" {
			pa.DistanceKM, _ = strconv.ParseFloat(v, 64)
		}
		if v := colVal(row, idx, colDuration); v != "" {
			pa.DurationMin, _ = strconv.Atoi(v)
		}
		if v := colVal(row, idx, colAvgHR); v != "" {
			hr, err := strconv.ParseFloat(v, 64)
			if err == nil && hr > 0 {
				pa.AvgHR = &hr
			}
		}
		if v := colVal(row, idx, colSufferScore); v != "" {
			s, err := strconv.ParseFloat(v, 64)
			if err == nil && s >= 0 {
				pa.SufferScore = &s
			}
		}
		out = append(out, pa)
	}
	return out, nil
}

// Result summarizes an import run.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportActivities inserts parsed rows for a user. Rows whose external id is
// already present are counted as skipped, so re-importing the same export is
// harmless.
func ImportActivities(db *sql.DB, userID int64, rows []ParsedActivity) (*Result, error) {
	res := &Result{}
	for _, pa := range rows {
		start, err := time.Parse("2006-01-02", pa.Date)
		if err != nil {
			res.Skipped++
			continue
		}

		a := &models.Activity{
			UserID:      userID,
			ExternalID:  pa.ExternalID,
			Type:        pa.Type,
			Name:        pa.Name,
			StartTime:   start,
			DistanceM:   pa.DistanceKM * 1000,
			MovingTimeS: pa.DurationMin * 60,
		}
		if pa.AvgHR != nil {
			a.AvgHR = sql.NullFloat64{Float64: *pa.AvgHR, Valid: true}
		}
		if pa.SufferScore != nil {
			a.SufferScore = sql.NullFloat64{Float64: *pa.SufferScore, Valid: true}
		}

		if _, err := models.CreateActivity(db, a); err != nil {
			if errors.Is(err, models.ErrActivityExists) {
				res.Skipped++
				continue
			}
			return nil, err
		}
		res.Imported++
	}
	return res, nil
}

// parseDate parses the date formats commonly seen in tracker exports.
func parseDate(s string) string {
	s = strings.TrimSpace(s)

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"Jan 2, 2006",
		"01/02/2006",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// colVal safely gets a column value from a CSV row.
func colVal(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

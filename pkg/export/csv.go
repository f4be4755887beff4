// Package export writes the site listing and the flattened readings as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/envtrack/epa-air-client/pkg/flatten"
)

// WriteSites writes one CSV line per site. Missing coordinates become empty
// fields rather than zeros.
func WriteSites(w io.Writer, sites []epa.Site) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"siteID", "siteName", "siteType", "lon", "lat"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, site := range sites {
		record := []string{site.SiteID, site.SiteName, site.SiteType, "", ""}
		if lon, ok := site.Lon(); ok {
			record[3] = formatFloat(lon)
		}
		if lat, ok := site.Lat(); ok {
			record[4] = formatFloat(lat)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write site %s: %w", site.SiteID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRows writes one CSV line per flattened reading. Nil timestamps and
// values become empty fields, the CSV missing-value marker.
func WriteRows(w io.Writer, rows []flatten.Row) error {
	cw := csv.NewWriter(w)

	header := []string{
		"siteID", "parameter", "unit", "series",
		"since", "until", "averageValue",
		"healthAdvice", "healthAdviceColor", "healthCode",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.SiteID,
			row.Parameter,
			row.Unit,
			row.Series,
			formatTime(row.Since),
			formatTime(row.Until),
			"",
			row.HealthAdvice,
			row.HealthAdviceColor,
			row.HealthCode,
		}
		if row.AverageValue != nil {
			record[6] = formatFloat(*row.AverageValue)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row for site %s: %w", row.SiteID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

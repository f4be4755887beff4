// Package flatten reshapes nested parameter payloads into flat tabular rows,
// one row per (site, parameter, series, reading) tuple. The transform is pure
// and runs after all fetching has completed; it never performs I/O.
package flatten

import (
	"sort"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
)

// Row is one flattened observation.
type Row struct {
	SiteID            string
	Parameter         string
	Unit              string
	Series            string
	Since             *time.Time
	Until             *time.Time
	AverageValue      *float64
	HealthAdvice      string
	HealthAdviceColor string
	HealthCode        string
}

// Rows flattens payloads into one row per reading, sorted by
// (siteID, parameter, series, since). Timestamps are parsed to UTC;
// unparseable values become nil rather than failing the row.
func Rows(payloads []epa.ParametersPayload) []Row {
	var rows []Row

	for _, payload := range payloads {
		for _, param := range payload.Parameters {
			for _, series := range param.TimeSeriesReadings {
				for _, reading := range series.Readings {
					rows = append(rows, Row{
						SiteID:            payload.SiteID,
						Parameter:         param.Name,
						Unit:              param.Unit,
						Series:            series.TimeSeriesName,
						Since:             parseTime(reading.Since),
						Until:             parseTime(reading.Until),
						AverageValue:      reading.AverageValue,
						HealthAdvice:      reading.HealthAdvice,
						HealthAdviceColor: reading.HealthAdviceColor,
						HealthCode:        reading.HealthCode,
					})
				}
			}
		}
	}

	sortRows(rows)
	return rows
}

// parseTime parses a gateway timestamp to UTC. Empty or malformed values
// yield nil, the row's missing-timestamp marker.
func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SiteID != b.SiteID {
			return a.SiteID < b.SiteID
		}
		if a.Parameter != b.Parameter {
			return a.Parameter < b.Parameter
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		return beforeNilFirst(a.Since, b.Since)
	})
}

// beforeNilFirst orders timestamps ascending with nil sorting first.
func beforeNilFirst(a, b *time.Time) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}

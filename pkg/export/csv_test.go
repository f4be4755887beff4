package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
	"github.com/envtrack/epa-air-client/pkg/flatten"
)

func TestWriteSites(t *testing.T) {
	sites := []epa.Site{
		{
			SiteID:   "A",
			SiteName: "Alphington",
			SiteType: "Standard",
			Geometry: epa.Geometry{Coordinates: []float64{145.03, -37.78}},
		},
		{
			SiteID:   "B",
			SiteName: "Box Hill",
			SiteType: "Standard",
			// No coordinates in the listing record.
		},
	}

	var buf bytes.Buffer
	if err := WriteSites(&buf, sites); err != nil {
		t.Fatalf("WriteSites() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 sites)", len(lines))
	}
	if lines[0] != "siteID,siteName,siteType,lon,lat" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "A,Alphington,Standard,145.03,-37.78" {
		t.Errorf("site A line = %q", lines[1])
	}
	if lines[2] != "B,Box Hill,Standard,," {
		t.Errorf("site B line = %q, want empty coordinate fields", lines[2])
	}
}

func TestWriteSites_EmptyListing(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSites(&buf, nil); err != nil {
		t.Fatalf("WriteSites() error = %v", err)
	}

	if got := strings.TrimSpace(buf.String()); got != "siteID,siteName,siteType,lon,lat" {
		t.Errorf("output = %q, want header only", got)
	}
}

func TestWriteRows(t *testing.T) {
	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	until := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	avg := 4.2

	rows := []flatten.Row{
		{
			SiteID:            "A",
			Parameter:         "PM2.5",
			Unit:              "ug/m3",
			Series:            "1HR_AV",
			Since:             &since,
			Until:             &until,
			AverageValue:      &avg,
			HealthAdvice:      "Good",
			HealthAdviceColor: "#42A93C",
			HealthCode:        "1",
		},
		{
			SiteID:    "B",
			Parameter: "PM10",
			Series:    "24HR_AV",
			// Missing timestamps and value.
		},
	}

	var buf bytes.Buffer
	if err := WriteRows(&buf, rows); err != nil {
		t.Fatalf("WriteRows() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows)", len(lines))
	}
	if lines[1] != "A,PM2.5,ug/m3,1HR_AV,2024-05-01T10:00:00Z,2024-05-01T11:00:00Z,4.2,Good,#42A93C,1" {
		t.Errorf("row A = %q", lines[1])
	}
	if lines[2] != "B,PM10,,24HR_AV,,,,,," {
		t.Errorf("row B = %q, want empty fields for missing values", lines[2])
	}
}

func TestWriteRows_NoRows(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRows(&buf, nil); err != nil {
		t.Fatalf("WriteRows() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("got %d lines, want header only", len(lines))
	}
}

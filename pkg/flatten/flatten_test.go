package flatten

import (
	"testing"
	"time"

	"github.com/envtrack/epa-air-client/pkg/epa"
)

func floatPtr(v float64) *float64 { return &v }

func payloadWith(siteID string, params ...epa.Parameter) epa.ParametersPayload {
	return epa.ParametersPayload{SiteID: siteID, Parameters: params}
}

func paramWith(name, unit, series string, readings ...epa.Reading) epa.Parameter {
	return epa.Parameter{
		Name: name,
		Unit: unit,
		TimeSeriesReadings: []epa.TimeSeriesReading{
			{TimeSeriesName: series, Readings: readings},
		},
	}
}

func TestRows_CrossProduct(t *testing.T) {
	payload := payloadWith("SITE-1",
		paramWith("PM2.5", "&micro;g/m&sup3;", "1HR_AV", epa.Reading{
			Since:             "2024-05-01T10:00:00Z",
			Until:             "2024-05-01T11:00:00Z",
			AverageValue:      floatPtr(4.2),
			HealthAdvice:      "Good",
			HealthAdviceColor: "#42A93C",
			HealthCode:        "1",
		}),
		paramWith("PM10", "&micro;g/m&sup3;", "1HR_AV", epa.Reading{
			Since:        "2024-05-01T10:00:00Z",
			Until:        "2024-05-01T11:00:00Z",
			AverageValue: floatPtr(11.0),
		}),
	)

	rows := Rows([]epa.ParametersPayload{payload})

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	for _, row := range rows {
		if row.SiteID != "SITE-1" {
			t.Errorf("SiteID = %q, want SITE-1", row.SiteID)
		}
		if row.Series != "1HR_AV" {
			t.Errorf("Series = %q, want 1HR_AV", row.Series)
		}
		if row.Since == nil || row.Until == nil {
			t.Errorf("parameter %s: timestamps not parsed", row.Parameter)
		}
	}

	// Sorted by parameter within the site.
	if rows[0].Parameter != "PM10" || rows[1].Parameter != "PM2.5" {
		t.Errorf("row order = [%s, %s], want [PM10, PM2.5]", rows[0].Parameter, rows[1].Parameter)
	}
	if rows[1].AverageValue == nil || *rows[1].AverageValue != 4.2 {
		t.Errorf("PM2.5 averageValue = %v, want 4.2", rows[1].AverageValue)
	}
	if rows[0].HealthAdvice != "" {
		t.Errorf("PM10 healthAdvice = %q, want empty", rows[0].HealthAdvice)
	}
}

func TestRows_EmptyParameters(t *testing.T) {
	rows := Rows([]epa.ParametersPayload{
		{SiteID: "SITE-1"},
		{SiteID: "SITE-2", Parameters: []epa.Parameter{}},
	})

	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0 for empty parameter lists", len(rows))
	}
}

func TestRows_NoPayloads(t *testing.T) {
	if rows := Rows(nil); len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestRows_MalformedTimestampsBecomeNil(t *testing.T) {
	payload := payloadWith("SITE-1",
		paramWith("O3", "ppb", "1HR_AV",
			epa.Reading{Since: "not-a-timestamp", Until: "", AverageValue: floatPtr(1)},
		),
	)

	rows := Rows([]epa.ParametersPayload{payload})

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (malformed timestamp must not drop the row)", len(rows))
	}
	if rows[0].Since != nil {
		t.Errorf("Since = %v, want nil for malformed value", rows[0].Since)
	}
	if rows[0].Until != nil {
		t.Errorf("Until = %v, want nil for empty value", rows[0].Until)
	}
}

func TestRows_TimestampsNormalizedToUTC(t *testing.T) {
	payload := payloadWith("SITE-1",
		paramWith("CO", "ppm", "1HR_AV",
			epa.Reading{Since: "2024-05-01T20:00:00+10:00"},
		),
	)

	rows := Rows([]epa.ParametersPayload{payload})

	if len(rows) != 1 || rows[0].Since == nil {
		t.Fatalf("rows = %+v, want one row with parsed Since", rows)
	}

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !rows[0].Since.Equal(want) {
		t.Errorf("Since = %v, want %v", rows[0].Since, want)
	}
	if rows[0].Since.Location() != time.UTC {
		t.Errorf("Since location = %v, want UTC", rows[0].Since.Location())
	}
}

func TestRows_SortedAcrossSitesAndSeries(t *testing.T) {
	later := epa.Reading{Since: "2024-05-01T11:00:00Z"}
	earlier := epa.Reading{Since: "2024-05-01T10:00:00Z"}

	payloads := []epa.ParametersPayload{
		payloadWith("B", paramWith("PM2.5", "", "1HR_AV", later, earlier)),
		payloadWith("A", paramWith("PM2.5", "", "24HR_AV", later)),
		payloadWith("A", paramWith("PM2.5", "", "1HR_AV", later)),
	}

	rows := Rows(payloads)

	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}

	type key struct{ site, series, since string }
	var got []key
	for _, r := range rows {
		since := ""
		if r.Since != nil {
			since = r.Since.Format(time.RFC3339)
		}
		got = append(got, key{r.SiteID, r.Series, since})
	}

	want := []key{
		{"A", "1HR_AV", "2024-05-01T11:00:00Z"},
		{"A", "24HR_AV", "2024-05-01T11:00:00Z"},
		{"B", "1HR_AV", "2024-05-01T10:00:00Z"},
		{"B", "1HR_AV", "2024-05-01T11:00:00Z"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

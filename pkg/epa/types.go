package epa

// Site is one monitored location from the sites listing.
type Site struct {
	SiteID   string   `json:"siteID"`
	SiteName string   `json:"siteName"`
	SiteType string   `json:"siteType"`
	Geometry Geometry `json:"geometry"`
}

// Geometry carries the site's point coordinates as [longitude, latitude].
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// Lon returns the site's longitude, or false when coordinates are missing.
func (s Site) Lon() (float64, bool) {
	if len(s.Geometry.Coordinates) < 1 {
		return 0, false
	}
	return s.Geometry.Coordinates[0], true
}

// Lat returns the site's latitude, or false when coordinates are missing.
func (s Site) Lat() (float64, bool) {
	if len(s.Geometry.Coordinates) < 2 {
		return 0, false
	}
	return s.Geometry.Coordinates[1], true
}

// SiteList is the response of GET /sites.
type SiteList struct {
	TotalRecords int    `json:"totalRecords"`
	Records      []Site `json:"records"`
}

// ParametersPayload is the response of GET /sites/{siteID}/parameters. The
// gateway does not echo the site id in the body, so the client stamps SiteID
// after decoding.
type ParametersPayload struct {
	SiteID     string      `json:"siteID"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is one measured quantity at a site, e.g. PM2.5.
type Parameter struct {
	Name               string              `json:"name"`
	Unit               string              `json:"unit"`
	TimeSeriesReadings []TimeSeriesReading `json:"timeSeriesReadings"`
}

// TimeSeriesReading groups readings of one averaging series, e.g. "1HR_AV".
type TimeSeriesReading struct {
	TimeSeriesName string    `json:"timeSeriesName"`
	Readings       []Reading `json:"readings"`
}

// Reading is a single averaged observation interval. Since and Until are kept
// as the raw gateway strings; the flattening stage parses them to UTC.
type Reading struct {
	Since             string   `json:"since"`
	Until             string   `json:"until"`
	AverageValue      *float64 `json:"averageValue"`
	HealthAdvice      string   `json:"healthAdvice"`
	HealthAdviceColor string   `json:"healthAdviceColor"`
	HealthCode        string   `json:"healthCode"`
}

// Package esri fetches drive-time service areas and demographic
// attributes from the ArcGIS GeoEnrichment service.
package esri

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/resilience"
)

const (
	tokenPath = "/sharing/rest/generateToken"
	enrichURL = "https://geoenrich.arcgis.com/arcgis/rest/services/World/geoenrichmentserver/Geoenrichment/enrich"
)

// DefaultTiers are the drive-time bands requested per location, in minutes.
var DefaultTiers = []int{5, 10, 15}

// analysisVariables are the demographic fields requested alongside each
// service area. Ages 4-17 drive the child-population metrics.
var analysisVariables = []string{
	"AGE4_CY", "AGE5_CY", "AGE6_CY", "AGE7_CY", "AGE8_CY", "AGE9_CY",
	"AGE10_CY", "AGE11_CY", "AGE12_CY", "AGE13_CY", "AGE14_CY",
	"AGE15_CY", "AGE16_CY", "AGE17_CY",
	"MEDHINC_CY", "TOTHU_CY", "RENTER_CY", "VACANT_CY",
}

// DriveTimeData is one tier's enrichment result.
type DriveTimeData struct {
	DriveTime  int
	Attributes map[string]json.RawMessage
	// Polygon is the service-area geometry as an ESRI rings payload.
	// Nil when the service returned no geometry for the tier.
	Polygon json.RawMessage
}

// Client fetches drive-time enrichment data.
type Client interface {
	// FetchDriveTimes returns per-tier data for a coordinate. Tiers the
	// service omitted are absent from the map.
	FetchDriveTimes(ctx context.Context, lat, lng float64) (map[int]*DriveTimeData, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for enrich calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTiers overrides the requested drive-time bands.
func WithTiers(tiers []int) Option {
	return func(c *client) {
		if len(tiers) > 0 {
			c.tiers = tiers
		}
	}
}

// WithEnrichURL overrides the GeoEnrichment endpoint, mainly for tests.
func WithEnrichURL(u string) Option {
	return func(c *client) {
		c.enrichURL = u
	}
}

type client struct {
	baseURL    string
	username   string
	password   string
	enrichURL  string
	tiers      []int
	httpClient *http.Client
	limiter    *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Client that authenticates against baseURL with the
// given portal credentials.
func NewClient(baseURL, username, password string, opts ...Option) Client {
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		enrichURL:  enrichURL,
		tiers:      DefaultTiers,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the generateToken wire shape.
type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"` // epoch millis
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// getToken returns a valid portal token, refreshing when within a minute
// of expiry.
func (c *client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"referer":    {c.baseURL},
		"expiration": {"60"},
		"f":          {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "esri: build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "esri: token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "esri: token read body")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "esri: token parse response")
	}
	if tr.Error != nil {
		return "", eris.Errorf("esri: token error %d: %s", tr.Error.Code, tr.Error.Message)
	}
	if tr.Token == "" {
		return "", eris.New("esri: empty token in response")
	}

	c.token = tr.Token
	c.tokenExpiry = time.UnixMilli(tr.Expires)
	zap.L().Debug("esri token refreshed", zap.Time("expires", c.tokenExpiry))
	return c.token, nil
}

// enrichResponse is the GeoEnrichment enrich wire shape, trimmed to the
// fields used.
type enrichResponse struct {
	Results []struct {
		Value struct {
			FeatureSet []struct {
				Features []struct {
					Attributes map[string]json.RawMessage `json:"attributes"`
					Geometry   json.RawMessage            `json:"geometry"`
				} `json:"features"`
			} `json:"FeatureSet"`
		} `json:"value"`
	} `json:"results"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchDriveTimes implements Client. One study area is submitted per
// tier; results map back to tiers by position.
func (c *client) FetchDriveTimes(ctx context.Context, lat, lng float64) (map[int]*DriveTimeData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "esri: rate limit")
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	studyAreas := make([]map[string]any, len(c.tiers))
	for i, tier := range c.tiers {
		studyAreas[i] = map[string]any{
			"geometry": map[string]any{
				"x":                lng,
				"y":                lat,
				"spatialReference": map[string]any{"wkid": 4326},
			},
			"areaType":    "NetworkServiceArea",
			"bufferUnits": "Minutes",
			"bufferRadii": []int{tier},
		}
	}
	areasJSON, err := json.Marshal(studyAreas)
	if err != nil {
		return nil, eris.Wrap(err, "esri: marshal study areas")
	}
	varsJSON, err := json.Marshal(analysisVariables)
	if err != nil {
		return nil, eris.Wrap(err, "esri: marshal analysis variables")
	}

	form := url.Values{
		"studyAreas":        {string(areasJSON)},
		"analysisVariables": {string(varsJSON)},
		"returnGeometry":    {"true"},
		"f":                 {"json"},
		"token":             {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.enrichURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "esri: build enrich request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "esri: enrich request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("esri: enrich returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "esri: enrich read body")
	}

	var er enrichResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, eris.Wrap(err, "esri: enrich parse response")
	}
	if er.Error != nil {
		return nil, eris.Errorf("esri: enrich error %d: %s", er.Error.Code, er.Error.Message)
	}
	if len(er.Results) == 0 || len(er.Results[0].Value.FeatureSet) == 0 {
		return nil, eris.New("esri: enrich returned no results")
	}

	features := er.Results[0].Value.FeatureSet[0].Features
	out := make(map[int]*DriveTimeData, len(c.tiers))
	for i, f := range features {
		if i >= len(c.tiers) {
			break
		}
		d := &DriveTimeData{
			DriveTime:  c.tiers[i],
			Attributes: f.Attributes,
		}
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			d.Polygon = f.Geometry
		}
		out[c.tiers[i]] = d
	}
	return out, nil
}

package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// The geographies endpoints return county geography alongside the match,
// which the locations table needs for county assignment.
const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBatchURL   = "https://geocoding.geo.census.gov/geocoder/geographies/addressbatch"
	censusBenchmark  = "Public_AR_Current"
	censusVintage    = "Current_Current"
)

type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	Geographies struct {
		Counties []censusCounty `json:"Counties"`
	} `json:"geographies"`
	MatchedAddress string `json:"matchedAddress"`
}

type censusCounty struct {
	Name  string `json:"NAME"`  // e.g. "Miami-Dade County"
	GeoID string `json:"GEOID"` // 5-digit state+county FIPS
}

// geocodeCensus geocodes a single address through the Census geographies API.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"address":   {formatOneLine(addr)},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {"Counties"},
		"format":    {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusOneLineURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: "census"}, nil
	}

	match := censusResp.Result.AddressMatches[0]
	result := &Result{
		Latitude:  match.Coordinates.Y,
		Longitude: match.Coordinates.X,
		Source:    "census",
		Quality:   "rooftop",
		Matched:   true,
	}
	if len(match.Geographies.Counties) > 0 {
		result.County = match.Geographies.Counties[0].Name
		result.CountyFIPS = match.Geographies.Counties[0].GeoID
	}
	return result, nil
}

// batchGeocodeCensus geocodes up to 10,000 addresses in one request.
func (g *geocoder) batchGeocodeCensus(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}

	var addressFile bytes.Buffer
	w := csv.NewWriter(&addressFile)
	idToIdx := make(map[string]int, len(addrs))
	for i, addr := range addrs {
		id := addr.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		idToIdx[id] = i
		if err := w.Write([]string{id, addr.Street, addr.City, addr.State, addr.ZipCode}); err != nil {
			return nil, eris.Wrap(err, "geocode: census batch write address")
		}
	}
	w.Flush()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("benchmark", censusBenchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write benchmark")
	}
	if err := form.WriteField("vintage", censusVintage); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write vintage")
	}
	part, err := form.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := part.Write(addressFile.Bytes()); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write csv")
	}
	if err := form.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch close form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, censusBatchURL, &buf)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch build request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census batch returned status %d", resp.StatusCode)
	}

	return parseCensusBatch(resp.Body, idToIdx, len(addrs))
}

// parseCensusBatch reads the geographies batch response. Each record is
// id, input address, match indicator, match type, matched address,
// "lon,lat", tigerline id, side, state FIPS, county FIPS, tract, block.
func parseCensusBatch(body io.Reader, idToIdx map[string]int, total int) ([]Result, error) {
	results := make([]Result, total)

	r := csv.NewReader(body)
	r.FieldsPerRecord = -1 // unmatched rows carry fewer fields
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "geocode: census batch read record")
		}
		if len(record) < 3 {
			continue
		}

		idx, ok := idToIdx[record[0]]
		if !ok {
			continue
		}

		if !strings.EqualFold(record[2], "Match") || len(record) < 6 {
			results[idx] = Result{Matched: false, Source: "census"}
			continue
		}

		lon, lat, err := parseCensusCoords(record[5])
		if err != nil {
			results[idx] = Result{Matched: false, Source: "census"}
			continue
		}

		results[idx] = Result{
			Latitude:   lat,
			Longitude:  lon,
			Source:     "census",
			Quality:    censusQuality(record[3]),
			Matched:    true,
			CountyFIPS: censusCountyFIPS(record),
		}
	}

	return results, nil
}

// censusCountyFIPS joins the state and county FIPS fields when both are
// present in a geographies batch record.
func censusCountyFIPS(record []string) string {
	if len(record) < 10 {
		return ""
	}
	state, county := strings.TrimSpace(record[8]), strings.TrimSpace(record[9])
	if state == "" || county == "" {
		return ""
	}
	return state + county
}

func censusQuality(matchType string) string {
	if strings.EqualFold(strings.TrimSpace(matchType), "exact") {
		return "rooftop"
	}
	return "range"
}

// parseCensusCoords splits the combined "lon,lat" field.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}

// formatOneLine joins the non-empty address parts for the oneline endpoint.
func formatOneLine(addr AddressInput) string {
	var parts []string
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Package providers: Wikidata SPARQL-based metadata-only adapter.
// Grounded on Wikidata.py: a single SPARQL query for P1332-P1335
// extreme coordinates, falling back to P625 point locations.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/btraven00/geoextent/internal/geoerrors"
	"github.com/btraven00/geoextent/internal/logging"
)

var (
	wikidataQNumber = regexp.MustCompile(`(?i)^Q(\d+)$`)
	wikidataURL     = regexp.MustCompile(`(?i)^https?://(?:www\.)?wikidata\.org/(?:wiki|entity)/Q(\d+)$`)
	wikidataWKTPt   = regexp.MustCompile(`(?i)^Point\(([+-]?[\d.]+)\s+([+-]?[\d.]+)\)$`)
)

const wikidataSPARQLEndpoint = "https://query.wikidata.org/sparql"
const wikidataUserAgent = "geoextent (https://github.com/btraven00/geoextent)"

const wikidataQueryTemplate = `SELECT ?itemLabel ?northLat ?southLat ?eastLon ?westLon ?coord WHERE {
  OPTIONAL { wd:%s wdt:P1332 ?north . BIND(geof:latitude(?north) AS ?northLat) }
  OPTIONAL { wd:%s wdt:P1333 ?south . BIND(geof:latitude(?south) AS ?southLat) }
  OPTIONAL { wd:%s wdt:P1334 ?east . BIND(geof:longitude(?east) AS ?eastLon) }
  OPTIONAL { wd:%s wdt:P1335 ?west . BIND(geof:longitude(?west) AS ?westLon) }
  OPTIONAL { wd:%s wdt:P625 ?coord }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en" }
}`

type wikidataProvider struct {
	client *resty.Client
	qid    string
}

func NewWikidata(client *resty.Client) Provider { return &wikidataProvider{client: client} }

func (p *wikidataProvider) Info() Info {
	return Info{
		Name:     "Wikidata",
		Website:  "https://www.wikidata.org/",
		Patterns: []string{"Q{number}", "https://www.wikidata.org/wiki/Q{number}"},
		Examples: []string{"Q64", "Q1731"},
	}
}

func (p *wikidataProvider) SupportsMetadataExtraction() bool { return true }

func (p *wikidataProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if m := wikidataQNumber.FindStringSubmatch(reference); m != nil {
		p.qid = "Q" + m[1]
		return true, nil
	}
	if m := wikidataURL.FindStringSubmatch(reference); m != nil {
		p.qid = "Q" + m[1]
		return true, nil
	}
	return false, nil
}

type sparqlBinding struct {
	ItemLabel struct{ Value string } `json:"itemLabel"`
	NorthLat  struct{ Value string } `json:"northLat"`
	SouthLat  struct{ Value string } `json:"southLat"`
	EastLon   struct{ Value string } `json:"eastLon"`
	WestLon   struct{ Value string } `json:"westLon"`
	Coord     struct{ Value string } `json:"coord"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []sparqlBinding `json:"bindings"`
	} `json:"results"`
}

func (p *wikidataProvider) query(ctx context.Context) (*sparqlResponse, error) {
	query := fmt.Sprintf(wikidataQueryTemplate, p.qid, p.qid, p.qid, p.qid, p.qid)

	resp, err := p.client.R().SetContext(ctx).
		SetHeader("User-Agent", wikidataUserAgent).
		SetQueryParam("query", query).
		SetQueryParam("format", "json").
		Get(wikidataSPARQLEndpoint)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("Wikidata")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("Wikidata")
	}

	var out sparqlResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("Wikidata")
	}
	return &out, nil
}

func parseFloatField(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseWKTPoint(wkt string) (lon, lat float64, ok bool) {
	m := wikidataWKTPt.FindStringSubmatch(wkt)
	if m == nil {
		return 0, 0, false
	}
	lon, _ = strconv.ParseFloat(m[1], 64)
	lat, _ = strconv.ParseFloat(m[2], 64)
	return lon, lat, true
}

// extractWikidataBBox ports _extract_coordinates' three-strategy priority:
// full extreme coordinates, partial extreme + P625 points, P625 alone.
func extractWikidataBBox(resp *sparqlResponse) (minLon, minLat, maxLon, maxLat float64, ok bool) {
	var north, south, east, west *float64
	var points [][2]float64
	seen := map[[2]float64]bool{}

	for _, b := range resp.Results.Bindings {
		if v, o := parseFloatField(b.NorthLat.Value); o {
			north = &v
		}
		if v, o := parseFloatField(b.SouthLat.Value); o {
			south = &v
		}
		if v, o := parseFloatField(b.EastLon.Value); o {
			east = &v
		}
		if v, o := parseFloatField(b.WestLon.Value); o {
			west = &v
		}
		if b.Coord.Value != "" {
			if lon, lat, o := parseWKTPoint(b.Coord.Value); o {
				pt := [2]float64{lon, lat}
				if !seen[pt] {
					seen[pt] = true
					points = append(points, pt)
				}
			}
		}
	}

	if north != nil && south != nil && east != nil && west != nil {
		return *west, *south, *east, *north, true
	}

	if (north != nil || south != nil || east != nil || west != nil) && len(points) > 0 {
		lons := make([]float64, 0, len(points)+2)
		lats := make([]float64, 0, len(points)+2)
		for _, pt := range points {
			lons = append(lons, pt[0])
			lats = append(lats, pt[1])
		}
		if north != nil {
			lats = append(lats, *north)
		}
		if south != nil {
			lats = append(lats, *south)
		}
		if east != nil {
			lons = append(lons, *east)
		}
		if west != nil {
			lons = append(lons, *west)
		}
		return minOf(lons), minOf(lats), maxOf(lons), maxOf(lats), true
	}

	if len(points) == 1 {
		return points[0][0], points[0][1], points[0][0], points[0][1], true
	}
	if len(points) > 1 {
		lons := make([]float64, len(points))
		lats := make([]float64, len(points))
		for i, pt := range points {
			lons[i], lats[i] = pt[0], pt[1]
		}
		return minOf(lons), minOf(lats), maxOf(lons), maxOf(lats), true
	}

	return 0, 0, 0, 0, false
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func (p *wikidataProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	resp, err := p.query(ctx)
	if err != nil {
		return nil, err
	}

	minLon, minLat, maxLon, maxLat, ok := extractWikidataBBox(resp)
	if !ok {
		logging.Warn().Str("provider", "Wikidata").Str("qid", p.qid).Msg("no coordinates found")
		return nil, nil
	}

	return &ExtentResult{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat, HasBBox: true, CRS: "4326"}, nil
}

// Download writes a single GeoJSON sidecar (spec.md §4.4(c): metadata-
// only adapters "always produce at most one GeoJSON sidecar file").
func (p *wikidataProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	result, err := p.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &DownloadOutcome{}, nil
	}

	path, werr := writeBBoxGeoJSONSidecar(dir, "wikidata_"+p.qid, p.qid, *result)
	if werr != nil {
		return nil, werr
	}
	if path == "" {
		return &DownloadOutcome{}, nil
	}
	return &DownloadOutcome{FilesWritten: 1}, nil
}

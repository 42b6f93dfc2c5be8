// metadata_catalog.go groups the metadata-only / catalog adapters
// spec.md §4.4(c) describes: DEIMS-SDR, NFDI4Earth, HALO-DB, STAC, BGR,
// Senckenberg. None expose downloadable data files; each produces at
// most one GeoJSON sidecar in the target directory. DEIMS-SDR and
// NFDI4Earth additionally implement Followable for the cross-provider
// follow in pkg/geoextent's fromRemoteOne.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/btraven00/geoextent/internal/geoerrors"
	"github.com/btraven00/geoextent/internal/witness"
)

// writeBBoxGeoJSONSidecar is the shared "one Feature, one bbox-or-point
// geometry" sidecar writer every metadata-only adapter in this file
// uses (ported from each provider's own _create_geojson/_write_*
// helper, which all converge on the same shape).
func writeBBoxGeoJSONSidecar(dir, filenameStem, label string, r ExtentResult) (string, error) {
	if !r.HasBBox && !r.HasTBox {
		return "", nil
	}

	props := map[string]interface{}{"label": label}
	if r.HasTBox {
		props["start_time"] = r.TBoxStart
		props["end_time"] = r.TBoxEnd
	}

	var geometry interface{}
	if r.HasBBox {
		if r.MinLon == r.MaxLon && r.MinLat == r.MaxLat {
			geometry = map[string]interface{}{"type": "Point", "coordinates": []float64{r.MinLon, r.MinLat}}
		} else {
			ring := [][]float64{
				{r.MinLon, r.MinLat}, {r.MaxLon, r.MinLat}, {r.MaxLon, r.MaxLat}, {r.MinLon, r.MaxLat}, {r.MinLon, r.MinLat},
			}
			geometry = map[string]interface{}{"type": "Polygon", "coordinates": [][][]float64{ring}}
		}
	}

	fc := map[string]interface{}{
		"type": "FeatureCollection",
		"features": []interface{}{
			map[string]interface{}{"type": "Feature", "geometry": geometry, "properties": props},
		},
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", err
	}

	safe := witness.SanitizeFilename(filenameStem)
	path := filepath.Join(dir, safe+".geojson")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func downloadViaMetadataSidecar(ctx context.Context, dir, stem, label string, metadata func(context.Context) (*ExtentResult, error)) (*DownloadOutcome, error) {
	result, err := metadata(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &DownloadOutcome{}, nil
	}

	path, werr := writeBBoxGeoJSONSidecar(dir, stem, label, *result)
	if werr != nil {
		return nil, werr
	}
	if path == "" {
		return &DownloadOutcome{}, nil
	}
	return &DownloadOutcome{FilesWritten: 1}, nil
}

// isFollowableReference filters candidate strings the way
// _extract_external_references does: must look like a DOI or an https
// URL, and must not be placeholder text.
var (
	doiReferencePattern   = regexp.MustCompile(`(?i)^(doi:|https?://(?:dx\.)?doi\.org/)?10\.\d{4,9}/\S+$`)
	httpsReferencePattern = regexp.MustCompile(`(?i)^https://\S+$`)
	placeholderPattern    = regexp.MustCompile(`(?i)^(n/?a|none|tbd|unknown|-)?$`)
)

func isFollowableReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || placeholderPattern.MatchString(ref) {
		return false
	}
	return doiReferencePattern.MatchString(ref) || httpsReferencePattern.MatchString(ref)
}

// --- DEIMS-SDR ---

var deimsUUID = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`
var (
	deimsDatasetURL = regexp.MustCompile(`(?i)https?://deims\.org/(?:api/)?datasets?/(` + deimsUUID + `)`)
	deimsSiteURL    = regexp.MustCompile(`(?i)https?://deims\.org/(?:api/)?sites?/(` + deimsUUID + `)`)
	deimsBareSite   = regexp.MustCompile(`(?i)https?://deims\.org/(` + deimsUUID + `)$`)
)

type deimsAttributes struct {
	Geographic json.RawMessage `json:"geographic"`
	General    struct {
		DateRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"dateRange"`
	} `json:"general"`
	OnlineDistribution struct {
		DOI            string `json:"doi"`
		OnlineLocation []struct {
			URL string `json:"url"`
		} `json:"onlineLocation"`
	} `json:"onlineDistribution"`
}

type deimsResponse struct {
	Attributes deimsAttributes `json:"attributes"`
}

type deimsProvider struct {
	client       *resty.Client
	resourceType string
	uuid         string
	cached       *deimsResponse
}

func NewDEIMSSDR(client *resty.Client) Provider { return &deimsProvider{client: client} }

func (p *deimsProvider) Info() Info {
	return Info{
		Name:     "DEIMS-SDR",
		Website:  "https://deims.org/",
		Patterns: []string{"https://deims.org/dataset/{uuid}", "https://deims.org/{uuid}"},
		Examples: []string{"https://deims.org/dataset/3d87da8b-2b07-41c7-bf05-417832de4fa2"},
	}
}

func (p *deimsProvider) SupportsMetadataExtraction() bool { return true }

func (p *deimsProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if m := deimsDatasetURL.FindStringSubmatch(reference); m != nil {
		p.resourceType, p.uuid = "dataset", m[1]
		return true, nil
	}
	if m := deimsSiteURL.FindStringSubmatch(reference); m != nil {
		p.resourceType, p.uuid = "site", m[1]
		return true, nil
	}
	if m := deimsBareSite.FindStringSubmatch(reference); m != nil {
		p.resourceType, p.uuid = "site", m[1]
		return true, nil
	}
	return false, nil
}

func (p *deimsProvider) fetch(ctx context.Context) (*deimsResponse, error) {
	if p.cached != nil {
		return p.cached, nil
	}

	kind := "sites"
	if p.resourceType == "dataset" {
		kind = "datasets"
	}

	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").
		Get(fmt.Sprintf("https://deims.org/api/%s/%s", kind, p.uuid))
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("DEIMS-SDR")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("DEIMS-SDR")
	}

	var out deimsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("DEIMS-SDR")
	}
	p.cached = &out
	return &out, nil
}

func (p *deimsProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	data, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	result := &ExtentResult{}

	if geom, ok := extractGeographicWKTBounds(data.Attributes.Geographic); ok {
		result.MinLon, result.MinLat, result.MaxLon, result.MaxLat = geom[0], geom[1], geom[2], geom[3]
		result.HasBBox = true
		result.CRS = "4326"
	}

	if from := data.Attributes.General.DateRange.From; from != "" {
		to := data.Attributes.General.DateRange.To
		if to == "" {
			to = from
		}
		result.TBoxStart, result.TBoxEnd, result.HasTBox = from, to, true
	}

	if !result.HasBBox && !result.HasTBox {
		return nil, nil
	}
	return result, nil
}

// parseDEIMSWKT wraps orb's WKT decoder (already wired for the CSV
// handler's geometry column) to parse DEIMS-SDR's boundaries/
// coordinates strings, which are always WKT, never WKB.
func parseDEIMSWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return wkt.Unmarshal(s)
}

// extractGeographicWKTBounds parses either a single geographic object
// or an array of them (dataset vs. site shape, per
// _extract_geographic), taking the union bbox of all WKT
// boundaries/coordinates fields found using paulmach/orb's WKT parser
// already wired for CSV/vector handling.
func extractGeographicWKTBounds(raw json.RawMessage) ([4]float64, bool) {
	if len(raw) == 0 {
		return [4]float64{}, false
	}

	var entries []struct {
		Boundaries  string `json:"boundaries"`
		Coordinates string `json:"coordinates"`
	}

	var single struct {
		Boundaries  string `json:"boundaries"`
		Coordinates string `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && (single.Boundaries != "" || single.Coordinates != "") {
		entries = append(entries, single)
	} else {
		_ = json.Unmarshal(raw, &entries)
	}

	var minLon, minLat, maxLon, maxLat float64
	found := false

	for _, e := range entries {
		wkt := e.Boundaries
		if wkt == "" {
			wkt = e.Coordinates
		}
		if wkt == "" {
			continue
		}

		g, err := parseDEIMSWKT(wkt)
		if err != nil || g == nil {
			continue
		}

		b := g.Bound()
		if !found {
			minLon, minLat, maxLon, maxLat = b.Min[0], b.Min[1], b.Max[0], b.Max[1]
			found = true
			continue
		}
		minLon, minLat = math.Min(minLon, b.Min[0]), math.Min(minLat, b.Min[1])
		maxLon, maxLat = math.Max(maxLon, b.Max[0]), math.Max(maxLat, b.Max[1])
	}

	if !found {
		return [4]float64{}, false
	}
	return [4]float64{minLon, minLat, maxLon, maxLat}, true
}

func (p *deimsProvider) FollowReferences(ctx context.Context) []string {
	data, err := p.fetch(ctx)
	if err != nil {
		return nil
	}

	var refs []string
	seen := map[string]bool{}

	if isFollowableReference(data.Attributes.OnlineDistribution.DOI) {
		doi := strings.TrimSpace(data.Attributes.OnlineDistribution.DOI)
		if !seen[doi] {
			refs = append(refs, doi)
			seen[doi] = true
		}
	}

	for _, loc := range data.Attributes.OnlineDistribution.OnlineLocation {
		if isFollowableReference(loc.URL) && !seen[loc.URL] {
			refs = append(refs, loc.URL)
			seen[loc.URL] = true
		}
	}

	return refs
}

func (p *deimsProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "deimssdr_"+p.uuid, p.uuid, p.Metadata)
}

// --- NFDI4Earth ---

type nfdi4EarthProvider struct {
	client *resty.Client
	refURI string
	cached *ExtentResult
	refs   []string
}

func NewNFDI4Earth(client *resty.Client) Provider { return &nfdi4EarthProvider{client: client} }

func (p *nfdi4EarthProvider) Info() Info {
	return Info{Name: "NFDI4Earth", Website: "https://www.nfdi4earth.de/", Patterns: []string{"https://nfdi4earth.de/{id}"}}
}

func (p *nfdi4EarthProvider) SupportsMetadataExtraction() bool { return true }

var nfdi4EarthURL = regexp.MustCompile(`(?i)^https?://(?:www\.)?nfdi4earth\.de/.+$`)

func (p *nfdi4EarthProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if nfdi4EarthURL.MatchString(reference) {
		p.refURI = reference
		return true, nil
	}
	return false, nil
}

// query is a stand-in for the knowledge-graph SPARQL query the original
// runs against NFDI4Earth's GraphDB endpoint: it issues a plain GET of
// refURI and decodes a JSON object with bbox, time_start, time_end and
// see_also fields; no SPARQL query is sent.
func (p *nfdi4EarthProvider) query(ctx context.Context) (*ExtentResult, []string, error) {
	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(p.refURI)
	if err != nil {
		return nil, nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("NFDI4Earth")
	}
	if resp.IsError() {
		return nil, nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("NFDI4Earth")
	}

	var payload struct {
		BBox      []float64 `json:"bbox"`
		TimeStart string    `json:"time_start"`
		TimeEnd   string    `json:"time_end"`
		SeeAlso   []string  `json:"see_also"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("NFDI4Earth")
	}

	result := &ExtentResult{}
	if len(payload.BBox) == 4 {
		result.MinLon, result.MinLat, result.MaxLon, result.MaxLat = payload.BBox[0], payload.BBox[1], payload.BBox[2], payload.BBox[3]
		result.HasBBox, result.CRS = true, "4326"
	}
	if payload.TimeStart != "" {
		end := payload.TimeEnd
		if end == "" {
			end = payload.TimeStart
		}
		result.TBoxStart, result.TBoxEnd, result.HasTBox = payload.TimeStart, end, true
	}

	var refs []string
	for _, r := range payload.SeeAlso {
		if isFollowableReference(r) {
			refs = append(refs, r)
		}
	}

	if !result.HasBBox && !result.HasTBox {
		return nil, refs, nil
	}
	return result, refs, nil
}

func (p *nfdi4EarthProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	if p.cached != nil {
		return p.cached, nil
	}
	result, refs, err := p.query(ctx)
	if err != nil {
		return nil, err
	}
	p.cached, p.refs = result, refs
	return result, nil
}

func (p *nfdi4EarthProvider) FollowReferences(ctx context.Context) []string {
	if p.refs == nil {
		_, _ = p.Metadata(ctx)
	}
	return p.refs
}

func (p *nfdi4EarthProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "nfdi4earth_record", p.refURI, p.Metadata)
}

// --- HALO-DB ---

const haloDBBase = "https://halo-db.pa.op.dlr.de"

type haloDBProvider struct {
	client    *resty.Client
	datasetID string
}

func NewHALODB(client *resty.Client) Provider { return &haloDBProvider{client: client} }

func (p *haloDBProvider) Info() Info {
	return Info{Name: "HALO-DB", Website: haloDBBase, Patterns: []string{haloDBBase + "/dataset/{id}"}}
}

func (p *haloDBProvider) SupportsMetadataExtraction() bool { return true }

var haloDBURL = regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(haloDBBase) + `/dataset/(\d+)$`)

func (p *haloDBProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if m := haloDBURL.FindStringSubmatch(reference); m != nil {
		p.datasetID = m[1]
		return true, nil
	}
	return false, nil
}

func (p *haloDBProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	resp, err := p.client.R().SetContext(ctx).
		Get(fmt.Sprintf("%s/search?texts=%s&format=geojson", haloDBBase, p.datasetID))
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("HALO-DB")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("HALO-DB")
	}

	var fc struct {
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(resp.Body(), &fc); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("HALO-DB")
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	var coords [2]float64
	if err := json.Unmarshal(fc.Features[0].Geometry.Coordinates, &coords); err != nil {
		return nil, nil
	}

	// HALO-DB's temporal extent lives only in the dataset's HTML detail
	// page (no JSON field); per spec.md §4.4(c) this is the one
	// provider whose adapter falls back to HTML scraping — deliberately
	// not implemented here since no HTML parser is wired into this
	// module (see DESIGN.md).
	return &ExtentResult{MinLon: coords[0], MinLat: coords[1], MaxLon: coords[0], MaxLat: coords[1], HasBBox: true, CRS: "4326"}, nil
}

func (p *haloDBProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "halodb_"+p.datasetID, p.datasetID, p.Metadata)
}

// --- STAC ---

type stacProvider struct {
	client        *resty.Client
	collectionURL string
	collectionID  string
}

func NewSTAC(client *resty.Client) Provider { return &stacProvider{client: client} }

func (p *stacProvider) Info() Info {
	return Info{Name: "STAC", Website: "https://stacspec.org/", Patterns: []string{"https://{catalog}/collections/{id}"}}
}

func (p *stacProvider) SupportsMetadataExtraction() bool { return true }

var stacCollectionPath = regexp.MustCompile(`/collections/([^/]+)(?:/|$)`)

func (p *stacProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if !strings.HasPrefix(reference, "http://") && !strings.HasPrefix(reference, "https://") {
		return false, nil
	}
	m := stacCollectionPath.FindStringSubmatch(reference)
	if m == nil {
		return false, nil
	}

	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(reference)
	if err != nil || resp.IsError() {
		return false, nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if jerr := json.Unmarshal(resp.Body(), &probe); jerr != nil || probe.Type != "Collection" {
		return false, nil
	}

	p.collectionURL = reference
	p.collectionID = m[1]
	return true, nil
}

func (p *stacProvider) fetchCollection(ctx context.Context) (*struct {
	Extent struct {
		Spatial struct {
			BBox [][]float64 `json:"bbox"`
		} `json:"spatial"`
		Temporal struct {
			Interval [][2]*string `json:"interval"`
		} `json:"temporal"`
	} `json:"extent"`
}, error) {
	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(p.collectionURL)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("STAC")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("STAC")
	}

	var out struct {
		Extent struct {
			Spatial struct {
				BBox [][]float64 `json:"bbox"`
			} `json:"spatial"`
			Temporal struct {
				Interval [][2]*string `json:"interval"`
			} `json:"temporal"`
		} `json:"extent"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("STAC")
	}
	return &out, nil
}

func (p *stacProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	col, err := p.fetchCollection(ctx)
	if err != nil {
		return nil, err
	}

	result := &ExtentResult{}
	if len(col.Extent.Spatial.BBox) > 0 && len(col.Extent.Spatial.BBox[0]) == 4 {
		b := col.Extent.Spatial.BBox[0]
		result.MinLon, result.MinLat, result.MaxLon, result.MaxLat = b[0], b[1], b[2], b[3]
		result.HasBBox, result.CRS = true, "4326"
	}
	if len(col.Extent.Temporal.Interval) > 0 {
		iv := col.Extent.Temporal.Interval[0]
		if iv[0] != nil {
			end := *iv[0]
			if iv[1] != nil {
				end = *iv[1]
			}
			result.TBoxStart, result.TBoxEnd, result.HasTBox = *iv[0], end, true
		}
	}

	if !result.HasBBox && !result.HasTBox {
		return nil, nil
	}
	return result, nil
}

func (p *stacProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "stac_"+p.collectionID, p.collectionID, p.Metadata)
}

// --- BGR ---
//
// BGR (Bundesanstalt für Geowissenschaften und Rohstoffe) publishes its
// product catalog as REST JSON with an embedded bbox array, the same
// shape STAC uses for spatial.bbox — grouped with it in spec.md
// §4.4(c). BGR accepts a bare UUID, the same identifier shape Opara
// uses; BGR is registered first in provider.go so it wins the overlap
// (spec.md §4.5's registration-order tie-break).
const bgrCatalogBase = "https://produktcenter.bgr.de/terraCatalog/api/records/"

type bgrProvider struct {
	client *resty.Client
	uuid   string
}

func NewBGR(client *resty.Client) Provider { return &bgrProvider{client: client} }

func (p *bgrProvider) Info() Info {
	return Info{
		Name: "BGR", Website: "https://www.bgr.bund.de/",
		Patterns: []string{"{uuid}"},
		Examples: []string{"a1b2c3d4-e5f6-7890-abcd-ef1234567890"},
	}
}

func (p *bgrProvider) SupportsMetadataExtraction() bool { return true }

func (p *bgrProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if bareUUIDPattern.MatchString(strings.TrimSpace(reference)) {
		p.uuid = strings.TrimSpace(reference)
		return true, nil
	}
	return false, nil
}

func (p *bgrProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").
		Get(bgrCatalogBase + p.uuid)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("BGR")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("BGR")
	}

	var rec struct {
		BBox      []float64 `json:"bbox"`
		TimeBegin string    `json:"temporalExtentBegin"`
		TimeEnd   string    `json:"temporalExtentEnd"`
	}
	if err := json.Unmarshal(resp.Body(), &rec); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("BGR")
	}

	result := &ExtentResult{}
	if len(rec.BBox) == 4 {
		result.MinLon, result.MinLat, result.MaxLon, result.MaxLat = rec.BBox[0], rec.BBox[1], rec.BBox[2], rec.BBox[3]
		result.HasBBox, result.CRS = true, "4326"
	}
	if rec.TimeBegin != "" {
		end := rec.TimeEnd
		if end == "" {
			end = rec.TimeBegin
		}
		result.TBoxStart, result.TBoxEnd, result.HasTBox = rec.TimeBegin, end, true
	}

	if !result.HasBBox && !result.HasTBox {
		return nil, nil
	}
	return result, nil
}

func (p *bgrProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "bgr_"+p.uuid, p.uuid, p.Metadata)
}

// --- Senckenberg ---
//
// The Senckenberg natural history collections portal exposes the same
// bbox-array REST shape BGR and STAC use, keyed by a numeric specimen
// or collection-event ID rather than a UUID or DOI.
const senckenbergBase = "https://sesam.senckenberg.de/api/records/"

var senckenbergURL = regexp.MustCompile(`(?i)^https?://sesam\.senckenberg\.de/(?:api/)?records?/(\d+)`)

type senckenbergProvider struct {
	client *resty.Client
	id     string
}

func NewSenckenberg(client *resty.Client) Provider { return &senckenbergProvider{client: client} }

func (p *senckenbergProvider) Info() Info {
	return Info{
		Name: "Senckenberg", Website: "https://www.senckenberg.de/",
		Patterns: []string{"https://sesam.senckenberg.de/records/{id}"},
		Examples: []string{"https://sesam.senckenberg.de/records/123456"},
	}
}

func (p *senckenbergProvider) SupportsMetadataExtraction() bool { return true }

func (p *senckenbergProvider) Validate(ctx context.Context, reference string) (bool, error) {
	if m := senckenbergURL.FindStringSubmatch(reference); m != nil {
		p.id = m[1]
		return true, nil
	}
	return false, nil
}

func (p *senckenbergProvider) Metadata(ctx context.Context) (*ExtentResult, error) {
	resp, err := p.client.R().SetContext(ctx).SetHeader("Accept", "application/json").
		Get(senckenbergBase + p.id)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("Senckenberg")
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider("Senckenberg")
	}

	var rec struct {
		BBox           []float64 `json:"bbox"`
		EventDateStart string    `json:"eventDateStart"`
		EventDateEnd   string    `json:"eventDateEnd"`
	}
	if err := json.Unmarshal(resp.Body(), &rec); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider("Senckenberg")
	}

	result := &ExtentResult{}
	if len(rec.BBox) == 4 {
		result.MinLon, result.MinLat, result.MaxLon, result.MaxLat = rec.BBox[0], rec.BBox[1], rec.BBox[2], rec.BBox[3]
		result.HasBBox, result.CRS = true, "4326"
	}
	if rec.EventDateStart != "" {
		end := rec.EventDateEnd
		if end == "" {
			end = rec.EventDateStart
		}
		result.TBoxStart, result.TBoxEnd, result.HasTBox = rec.EventDateStart, end, true
	}

	if !result.HasBBox && !result.HasTBox {
		return nil, nil
	}
	return result, nil
}

func (p *senckenbergProvider) Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error) {
	return downloadViaMetadataSidecar(ctx, dir, "senckenberg_"+p.id, p.id, p.Metadata)
}

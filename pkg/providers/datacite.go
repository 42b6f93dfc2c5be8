// datacite.go provides a shared metadata lookup against the public
// DataCite REST API (api.datacite.org), which several DOI-prefixed
// repository adapters piggyback on for spatial/temporal extent: Dryad,
// RADAR, GFZ Data Services, Opara, Pensoft, and Arctic Data Center all
// register their DOIs' geoLocations/dates with DataCite even though
// each repository's own record API differs. Using DataCite once here
// avoids re-deriving six incompatible provider-specific metadata
// schemas, the same way figshare_family.go shares one v2-article
// parser across 4TU/Mendeley/Figshare.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/btraven00/geoextent/internal/geoerrors"
)

type dataciteAttributes struct {
	GeoLocations []struct {
		GeoLocationPoint *struct {
			PointLongitude float64 `json:"pointLongitude"`
			PointLatitude  float64 `json:"pointLatitude"`
		} `json:"geoLocationPoint"`
		GeoLocationBox *struct {
			WestBoundLongitude float64 `json:"westBoundLongitude"`
			EastBoundLongitude float64 `json:"eastBoundLongitude"`
			SouthBoundLatitude float64 `json:"southBoundLatitude"`
			NorthBoundLatitude float64 `json:"northBoundLatitude"`
		} `json:"geoLocationBox"`
	} `json:"geoLocations"`
	Dates []struct {
		Date     string `json:"date"`
		DateType string `json:"dateType"`
	} `json:"dates"`
}

type dataciteResponse struct {
	Data struct {
		Attributes dataciteAttributes `json:"attributes"`
	} `json:"data"`
}

// fetchDataCiteDOI resolves a bare DOI through DataCite's public API.
// No auth is required for reading published metadata.
func fetchDataCiteDOI(ctx context.Context, client *resty.Client, doi, providerName string) (*dataciteAttributes, error) {
	doi = strings.TrimPrefix(strings.TrimSpace(doi), "doi:")
	resp, err := client.R().SetContext(ctx).SetHeader("Accept", "application/vnd.api+json").
		Get("https://api.datacite.org/dois/" + doi)
	if err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider(providerName)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return nil, geoerrors.New(geoerrors.KindAccessDenied, "record is not open access").WithProvider(providerName)
	}
	if resp.IsError() {
		return nil, geoerrors.New(geoerrors.KindProviderAPI, fmt.Sprintf("status %d", resp.StatusCode())).WithProvider(providerName)
	}

	var out dataciteResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, geoerrors.Wrap(geoerrors.KindProviderAPI, "request failed", err).WithProvider(providerName)
	}
	return &out.Data.Attributes, nil
}

// dataciteExtent folds DataCite's geoLocations (box or point, first
// entry wins — DataCite records rarely carry more than one) and dates
// (first entry whose dateType is "Collected", falling back to
// "Valid") into the common ExtentResult shape.
func dataciteExtent(attrs *dataciteAttributes) *ExtentResult {
	result := &ExtentResult{}

	for _, loc := range attrs.GeoLocations {
		if loc.GeoLocationBox != nil {
			b := loc.GeoLocationBox
			result.MinLon, result.MaxLon = b.WestBoundLongitude, b.EastBoundLongitude
			result.MinLat, result.MaxLat = b.SouthBoundLatitude, b.NorthBoundLatitude
			result.HasBBox, result.CRS = true, "4326"
			break
		}
		if loc.GeoLocationPoint != nil {
			p := loc.GeoLocationPoint
			result.MinLon, result.MaxLon = p.PointLongitude, p.PointLongitude
			result.MinLat, result.MaxLat = p.PointLatitude, p.PointLatitude
			result.HasBBox, result.CRS = true, "4326"
			break
		}
	}

	var collected, valid string
	for _, d := range attrs.Dates {
		switch d.DateType {
		case "Collected":
			if collected == "" {
				collected = d.Date
			}
		case "Valid":
			if valid == "" {
				valid = d.Date
			}
		}
	}
	if date := collected; date != "" || valid != "" {
		if date == "" {
			date = valid
		}
		if strings.Contains(date, "/") {
			parts := strings.SplitN(date, "/", 2)
			result.TBoxStart, result.TBoxEnd, result.HasTBox = parts[0], parts[1], true
		} else {
			result.TBoxStart, result.TBoxEnd, result.HasTBox = date, date, true
		}
	}

	if !result.HasBBox && !result.HasTBox {
		return nil
	}
	return result
}

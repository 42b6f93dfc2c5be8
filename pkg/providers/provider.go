// Package providers implements C4 (provider adapters) and C5 (dispatch).
// Grounded on original_source's geoextent/lib/content_providers/providers.py
// (find_provider, ContentProvider, DoiProvider) and, for the Go-idiomatic
// registry shape, pkg/downloaders/registry.go's factory/registration
// pattern. Per spec.md §9's redesign note, inheritance (InvenioRDM →
// Zenodo) becomes composition: Zenodo embeds an Invenio worker instead of
// subclassing it.
package providers

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/btraven00/geoextent/internal/httpx"
)

// Info is the static descriptor spec.md §4.4 calls provider_info().
type Info struct {
	Name        string
	Website     string
	DOIPrefixes []string
	Patterns    []string
	Examples    []string
}

// Provider is the C4 adapter contract. A provider instance is created
// fresh per dispatch call (spec.md §9: "factory-per-call, not singleton
// ... the consumer must not call Download on an unvalidated provider").
type Provider interface {
	Info() Info
	SupportsMetadataExtraction() bool

	// Validate attempts to recognize reference, resolving internal state
	// (record ID, host, ...) as a side effect. May perform network I/O
	// (DOI resolution). Returns false, nil for "not this provider".
	Validate(ctx context.Context, reference string) (bool, error)

	// Metadata extracts extent directly from repository metadata, when
	// SupportsMetadataExtraction is true. Returns nil, nil if the
	// record's metadata does not carry a usable extent.
	Metadata(ctx context.Context) (*ExtentResult, error)

	// Download writes the provider's files (raw data, or a single
	// GeoJSON sidecar for metadata-only adapters) into dir, honoring
	// opts, and reports what happened.
	Download(ctx context.Context, dir string, opts DownloadOptions) (*DownloadOutcome, error)
}

// Followable is implemented by adapters that can reference another
// provider's record (DEIMS-SDR, NFDI4Earth per spec.md §4.4(c)).
type Followable interface {
	FollowReferences(ctx context.Context) []string
}

// ExtentResult is what a metadata-capable provider returns directly,
// bypassing the download+aggregate path.
type ExtentResult struct {
	MinLat, MinLon, MaxLat, MaxLon float64
	HasBBox                        bool
	CRS                             string
	TBoxStart, TBoxEnd             string
	HasTBox                        bool
}

// DownloadOptions mirrors the caller-facing flags spec.md §6 lists for
// remote control.
type DownloadOptions struct {
	DownloadData      bool
	MaxDownloadSize   int64
	MaxDownloadMethod string
	MaxDownloadSeed   int64
	SkipNoGeo         bool
	MaxWorkers        int
	Follow            bool
	Throttle          bool
}

// DownloadOutcome reports what a provider's Download call produced.
type DownloadOutcome struct {
	FilesWritten int
	Followed     *FollowInfo
}

// FollowInfo records a cross-provider follow (spec.md §4.4).
type FollowInfo struct {
	From string
	To   string
	Via  string
}

// Factory builds a fresh provider instance; registries store factories,
// not instances, so each dispatch call gets unshared state.
type Factory func(client *resty.Client) Provider

// registration wraps a factory; its position in Registry.regs is its
// registration order, which spec.md §4.4/§9 makes part of the public
// contract (disambiguates overlapping patterns; BGR before Opara).
type registration struct {
	factory Factory
}

// Registry holds provider factories in a fixed, ordered sequence.
type Registry struct {
	regs []registration
}

// NewRegistry returns a registry with providers in registration order.
// This order is the one place C5's "fixed tuple" lives (spec.md §4.4).
func NewRegistry() *Registry {
	r := &Registry{}
	r.add(NewInvenioRDM)
	r.add(NewZenodo)
	r.add(NewDataverse)
	r.add(NewFigshare)
	r.add(NewFourTU)
	r.add(NewMendeleyData)
	r.add(NewDryad)
	r.add(NewPangaea)
	r.add(NewOSF)
	r.add(NewRADAR)
	r.add(NewArcticDataCenter)
	r.add(NewGFZ)
	r.add(NewBGR) // before Opara: both accept a bare UUID (spec.md §4.5 tie-break)
	r.add(NewOpara)
	r.add(NewPensoft)
	r.add(NewDEIMSSDR)
	r.add(NewNFDI4Earth)
	r.add(NewHALODB)
	r.add(NewSTAC)
	r.add(NewSenckenberg)
	r.add(NewWikidata)
	return r
}

func (r *Registry) add(f Factory) { r.regs = append(r.regs, registration{factory: f}) }

// Providers instantiates one fresh Provider per registered factory, in
// registration order, each against its own HTTP client (spec.md §9:
// "each provider instance owns one HTTP session; sessions are not
// shared across providers").
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg.factory(httpx.New()))
	}
	return out
}

// Dispatch implements spec.md §4.4's two-phase selection. Phase 1
// checks DOI-prefix-bearing providers via pure substring match before
// any network call; the first prefix hit ends phase 1 (no other
// provider shares a DOI prefix): it wins if its Validate accepts, aborts
// dispatch if Validate errors, and otherwise hands over to phase 2.
// Phase 2 falls back to calling Validate on every provider in order,
// network calls allowed.
func (r *Registry) Dispatch(ctx context.Context, reference string) (Provider, error) {
	for _, reg := range r.regs {
		p := reg.factory(httpx.New())
		info := p.Info()
		if len(info.DOIPrefixes) == 0 {
			continue
		}

		matched := false
		for _, prefix := range info.DOIPrefixes {
			if containsSubstr(reference, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		ok, err := p.Validate(ctx, reference)
		if err != nil {
			// Prefix matched but validation raised (e.g. DOI resolver
			// unreachable); no other provider shares this prefix, so stop
			// here rather than falling through to phase 2.
			return nil, fmt.Errorf("provider %s: %w", info.Name, err)
		}
		if ok {
			return p, nil
		}
		break
	}

	for _, reg := range r.regs {
		p := reg.factory(httpx.New())
		ok, err := p.Validate(ctx, reference)
		if err != nil {
			continue
		}
		if ok {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no provider recognizes reference %q", reference)
}

// DispatchExcluding behaves like Dispatch but skips any provider whose
// Info().Name matches excludeClass, implementing the self-reference
// guard spec.md §4.4's cross-provider follow requires ("skipping a
// provider of the same class as self").
func (r *Registry) DispatchExcluding(ctx context.Context, reference string, excludeClass string) (Provider, error) {
	filtered := &Registry{}
	for _, reg := range r.regs {
		probe := reg.factory(httpx.New())
		if probe.Info().Name == excludeClass {
			continue
		}
		filtered.regs = append(filtered.regs, reg)
	}
	return filtered.Dispatch(ctx, reference)
}

func containsSubstr(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return indexOf(haystack, needle) >= 0
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

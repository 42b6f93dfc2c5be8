package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
)

// fakeProvider is a network-free test double: Validate is a pure
// string match instead of an HTTP round trip, so dispatch tests don't
// depend on outside services.
type fakeProvider struct {
	info        Info
	matches     func(reference string) bool
	refs        []string
	validated   bool
	validateErr error
}

func (p *fakeProvider) Info() Info                        { return p.info }
func (p *fakeProvider) SupportsMetadataExtraction() bool   { return false }
func (p *fakeProvider) Metadata(context.Context) (*ExtentResult, error) { return nil, nil }

func (p *fakeProvider) Validate(_ context.Context, reference string) (bool, error) {
	if p.validateErr != nil {
		return false, p.validateErr
	}
	ok := p.matches(reference)
	p.validated = ok
	return ok, nil
}

func (p *fakeProvider) Download(context.Context, string, DownloadOptions) (*DownloadOutcome, error) {
	return &DownloadOutcome{}, nil
}

func (p *fakeProvider) FollowReferences(context.Context) []string { return p.refs }

func fakeRegistry(factories ...Factory) *Registry {
	r := &Registry{}
	for _, f := range factories {
		r.add(f)
	}
	return r
}

func newFake(name string, prefixes []string, matches func(string) bool) Factory {
	return func(*resty.Client) Provider {
		return &fakeProvider{info: Info{Name: name, DOIPrefixes: prefixes}, matches: matches}
	}
}

func newFakeErroring(name string, prefixes []string, err error) Factory {
	return func(*resty.Client) Provider {
		return &fakeProvider{info: Info{Name: name, DOIPrefixes: prefixes}, validateErr: err}
	}
}

// TestDispatch_PrefixMatchValidateErrorAbortsBeforePhase2 covers the
// one phase-1 path that never reaches phase 2: a provider whose DOI
// prefix matches the reference but whose Validate call errors (e.g. the
// DOI resolver is unreachable) — since no other provider shares that
// prefix, dispatch reports the error directly instead of falling
// through to a full phase-2 scan.
func TestDispatch_PrefixMatchValidateErrorAbortsBeforePhase2(t *testing.T) {
	reg := fakeRegistry(
		newFakeErroring("Zenodo", []string{"10.5281/zenodo"}, errBoom),
		newFake("Catchall", nil, func(string) bool { return true }),
	)

	_, err := reg.Dispatch(context.Background(), "10.5281/zenodo.12345")
	if err == nil {
		t.Fatal("expected dispatch to surface the prefix-matched provider's error")
	}
}

// TestDispatch_PrefixMatchRejectionFallsThroughToPhase2 covers the
// ok=false, err=nil case: the prefix-matched provider declines the
// reference, so phase 1 ends, but phase 2 still gets a full scan
// (including providers phase 1 never reached) rather than an immediate
// "unsupported" error.
func TestDispatch_PrefixMatchRejectionFallsThroughToPhase2(t *testing.T) {
	reg := fakeRegistry(
		newFake("Zenodo", []string{"10.5281/zenodo"}, func(ref string) bool {
			return strings.Contains(ref, "/match")
		}),
		newFake("Catchall", nil, func(string) bool { return true }),
	)

	p, err := reg.Dispatch(context.Background(), "10.5281/zenodo.12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Info().Name != "Catchall" {
		t.Errorf("expected phase 2 to find Catchall, got %s", p.Info().Name)
	}
}

var errBoom = fakeErr("boom")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestDispatch_PrefixPhaseMatch(t *testing.T) {
	reg := fakeRegistry(
		newFake("Zenodo", []string{"10.5281/zenodo"}, func(ref string) bool {
			return strings.Contains(ref, "10.5281/zenodo")
		}),
		newFake("Dataverse", []string{"10.7910/dvn"}, func(ref string) bool {
			return strings.Contains(ref, "10.7910/dvn")
		}),
	)

	p, err := reg.Dispatch(context.Background(), "10.5281/zenodo.820562")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Info().Name != "Zenodo" {
		t.Errorf("expected Zenodo, got %s", p.Info().Name)
	}
}

// TestDispatch_FallsBackToPhase2 covers a reference with no DOI prefix
// match at all: dispatch should fall through to calling Validate on
// every provider in registration order.
func TestDispatch_FallsBackToPhase2(t *testing.T) {
	reg := fakeRegistry(
		newFake("Zenodo", []string{"10.5281/zenodo"}, func(ref string) bool {
			return strings.Contains(ref, "10.5281/zenodo")
		}),
		newFake("Wikidata", nil, func(ref string) bool {
			return strings.HasPrefix(ref, "Q")
		}),
	)

	p, err := reg.Dispatch(context.Background(), "Q42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Info().Name != "Wikidata" {
		t.Errorf("expected Wikidata, got %s", p.Info().Name)
	}
}

// TestDispatch_Deterministic covers spec.md P5: same (reference,
// ordering) always yields the same provider.
func TestDispatch_Deterministic(t *testing.T) {
	reg := fakeRegistry(
		newFake("First", nil, func(ref string) bool { return strings.Contains(ref, "shared") }),
		newFake("Second", nil, func(ref string) bool { return strings.Contains(ref, "shared") }),
	)

	for i := 0; i < 5; i++ {
		p, err := reg.Dispatch(context.Background(), "shared-identifier")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Info().Name != "First" {
			t.Errorf("run %d: expected the first-registered provider to win ties, got %s", i, p.Info().Name)
		}
	}
}

func TestDispatch_Unsupported(t *testing.T) {
	reg := fakeRegistry(newFake("Zenodo", []string{"10.5281/zenodo"}, func(string) bool { return false }))

	if _, err := reg.Dispatch(context.Background(), "not-an-identifier"); err == nil {
		t.Fatal("expected an error for an unrecognized reference")
	}
}

// TestDispatchExcluding_SkipsSameClass covers the cross-provider follow
// guard spec.md §4.4 requires: a provider must not "follow" to another
// instance of its own class.
func TestDispatchExcluding_SkipsSameClass(t *testing.T) {
	reg := fakeRegistry(
		newFake("DEIMS-SDR", nil, func(string) bool { return true }),
		newFake("Zenodo", []string{"10.5281/zenodo"}, func(ref string) bool {
			return strings.Contains(ref, "10.5281/zenodo")
		}),
	)

	p, err := reg.DispatchExcluding(context.Background(), "10.5281/zenodo.820562", "DEIMS-SDR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Info().Name != "Zenodo" {
		t.Errorf("expected Zenodo, got %s", p.Info().Name)
	}

	if _, err := reg.DispatchExcluding(context.Background(), "anything", "DEIMS-SDR"); err == nil {
		t.Fatal("expected dispatch to fail once the only matching provider is excluded")
	}
}

func TestContainsSubstr(t *testing.T) {
	if containsSubstr("10.5281/zenodo.12345", "10.5281/zenodo") != true {
		t.Error("expected substring match")
	}
	if containsSubstr("10.5281/zenodo.12345", "") != false {
		t.Error("empty needle should never match")
	}
	if containsSubstr("short", "longer-than-haystack") != false {
		t.Error("needle longer than haystack should never match")
	}
}

package cmd

import (
	"testing"

	"github.com/btraven00/geoextent/pkg/geoextent"
)

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"200MB", 200 * 1 << 20, false},
		{"2GB", 2 * 1 << 30, false},
		{"512KB", 512 * 1 << 10, false},
		{"not-a-size", 0, true},
	}

	for _, c := range cases {
		got, err := parseByteSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseByteSize(%q): expected an error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseByteSize(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

// TestResultIsNil guards against the typed-nil-in-interface trap:
// FromFile returns a nil *geoextent.Extent (not an error) when nothing
// matched a handler, and naively storing that into an interface{} and
// comparing against nil misses it.
func TestResultIsNil(t *testing.T) {
	if !resultIsNil(nil) {
		t.Error("a bare nil interface should be nil")
	}

	var e *geoextent.Extent
	if !resultIsNil(e) {
		t.Error("a typed nil *geoextent.Extent wrapped in interface{} should still be detected as nil")
	}

	var r *geoextent.Result
	if !resultIsNil(r) {
		t.Error("a typed nil *geoextent.Result wrapped in interface{} should still be detected as nil")
	}

	if resultIsNil(&geoextent.Extent{}) {
		t.Error("a non-nil *geoextent.Extent should not be reported as nil")
	}
}

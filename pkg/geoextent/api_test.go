package geoextent

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFromFile_CSV exercises spec.md §8 scenario 1: a CSV with
// Longitude/Latitude/TIME_DATE columns for a handful of Dutch cities.
func TestFromFile_CSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.csv")

	csvBody := "Longitude,Latitude,TIME_DATE\n" +
		"4.895168,52.370216,2017-08-01\n" +
		"4.477732,51.924420,2018-03-14\n" +
		"6.567500,53.217400,2019-09-30\n"

	if err := os.WriteFile(path, []byte(csvBody), 0o644); err != nil {
		t.Fatal(err)
	}

	extent, err := FromFile(path, DefaultFileOptions())
	if err != nil {
		t.Fatalf("FromFile returned error: %v", err)
	}
	if extent == nil || extent.BBox == nil {
		t.Fatal("expected a bounding box")
	}

	if extent.BBox.MinLat > 51.92 || extent.BBox.MaxLat < 53.21 {
		t.Errorf("bbox latitude range unexpected: %+v", extent.BBox)
	}
	if extent.BBox.MinLon > 4.47 || extent.BBox.MaxLon < 6.56 {
		t.Errorf("bbox longitude range unexpected: %+v", extent.BBox)
	}
	if !extent.BBox.Valid() {
		t.Errorf("bbox fails P1: %+v", extent.BBox)
	}

	if extent.TBox == nil || extent.TBox.Start != "2017-08-01" || extent.TBox.End != "2019-09-30" {
		t.Errorf("unexpected tbox: %+v", extent.TBox)
	}
}

func TestFromFile_Legacy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "point.csv")
	if err := os.WriteFile(path, []byte("lon,lat\n7.6,51.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	extent, err := FromFile(path, FileOptions{BBox: true, Legacy: true})
	if err != nil {
		t.Fatal(err)
	}
	if extent == nil || extent.BBox == nil {
		t.Fatal("expected a bounding box")
	}

	encoded, err := extent.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !contains(string(encoded), `"bbox":[7.6,51.9,7.6,51.9]`) {
		t.Errorf("expected legacy [lon, lat, lon, lat] order in %s", encoded)
	}
}

func TestFromFile_UnsupportedReturnsNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("just some text"), 0o644); err != nil {
		t.Fatal(err)
	}

	extent, err := FromFile(path, DefaultFileOptions())
	if err != nil {
		t.Fatal(err)
	}
	if extent != nil {
		t.Errorf("expected nil extent for an unsupported file, got %+v", extent)
	}
}

// TestFromDirectory_UnionsBBoxes exercises spec.md P3: the aggregate
// bbox over two CSV files equals the component-wise envelope.
func TestFromDirectory_UnionsBBoxes(t *testing.T) {
	dir := t.TempDir()

	muenster := "lon,lat\n7.602,51.949\n7.647,51.975\n"
	barcelona := "lon,lat\n2.052,41.317\n"

	if err := os.WriteFile(filepath.Join(dir, "muenster.csv"), []byte(muenster), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "barcelona.csv"), []byte(barcelona), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := FromDirectory(t.Context(), dir, DefaultDirectoryOptions())
	if err != nil {
		t.Fatalf("FromDirectory returned error: %v", err)
	}
	if result.BBox == nil {
		t.Fatal("expected an aggregate bounding box")
	}

	if result.BBox.MinLat > 41.317+0.001 || result.BBox.MaxLat < 51.975-0.001 {
		t.Errorf("aggregate latitude envelope unexpected: %+v", result.BBox)
	}
	if result.BBox.MinLon > 2.052+0.001 || result.BBox.MaxLon < 7.647-0.001 {
		t.Errorf("aggregate longitude envelope unexpected: %+v", result.BBox)
	}
}

func TestBBox_Union(t *testing.T) {
	a := BBox{MinLat: 41.3, MinLon: 2.0, MaxLat: 41.4, MaxLon: 2.1}
	b := BBox{MinLat: 51.9, MinLon: 7.6, MaxLat: 52.0, MaxLon: 7.7}

	union := a.Union(b)
	want := BBox{MinLat: 41.3, MinLon: 2.0, MaxLat: 52.0, MaxLon: 7.7}
	if union != want {
		t.Errorf("Union() = %+v, want %+v", union, want)
	}
}

func TestArchiveExtension(t *testing.T) {
	cases := map[string]bool{
		"data.zip": true, "data.ZIP": true, "data.tar": true,
		"data.7z": true, "data.csv": false, "data.geojson": false,
	}
	for name, want := range cases {
		if got := archiveExtension(name); got != want {
			t.Errorf("archiveExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOfSubstr(haystack, needle) >= 0)
}

func indexOfSubstr(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

package download

import "testing"

func TestSelectGeoFirstSizeAscending(t *testing.T) {
	files := []FileDescriptor{
		{Name: "readme.txt", Size: 100},
		{Name: "big.tif", Size: 5000},
		{Name: "small.csv", Size: 10},
		{Name: "mid.geojson", Size: 1000},
	}

	sel := Select(files, SelectConfig{MaxSizeBytes: 0})

	if len(sel.Files) != 4 {
		t.Fatalf("expected all 4 files selected, got %d", len(sel.Files))
	}

	want := []string{"small.csv", "mid.geojson", "big.tif", "readme.txt"}
	for i, w := range want {
		if sel.Files[i].Name != w {
			t.Errorf("position %d: want %s, got %s", i, w, sel.Files[i].Name)
		}
	}
}

func TestSelectRespectsSizeBudget(t *testing.T) {
	files := []FileDescriptor{
		{Name: "a.csv", Size: 10},
		{Name: "b.csv", Size: 20},
		{Name: "c.csv", Size: 100},
	}

	sel := Select(files, SelectConfig{MaxSizeBytes: 30})

	if len(sel.Files) != 2 {
		t.Fatalf("expected 2 files within budget, got %d", len(sel.Files))
	}
	if sel.SkippedCount != 1 {
		t.Errorf("expected 1 skipped file, got %d", sel.SkippedCount)
	}
	if sel.TotalBytes != 30 {
		t.Errorf("expected total 30 bytes, got %d", sel.TotalBytes)
	}
}

func TestSelectSkipNoGeoExcludesNonGeoRegardlessOfBudget(t *testing.T) {
	files := []FileDescriptor{
		{Name: "notes.txt", Size: 5},
		{Name: "data.csv", Size: 5},
	}

	// Ample budget for both files: without SkipNoGeo, the non-geo file
	// is still included.
	sel := Select(files, SelectConfig{SkipNoGeo: false, MaxSizeBytes: 0})
	if len(sel.Files) != 2 {
		t.Fatalf("expected both files present with sufficient budget, got %d", len(sel.Files))
	}

	// Same ample budget, but SkipNoGeo=true must exclude notes.txt even
	// though there was plenty of room for it — this is the behavior the
	// identical if/else branches previously failed to distinguish.
	sel = Select(files, SelectConfig{SkipNoGeo: true, MaxSizeBytes: 0})
	if len(sel.Files) != 1 || sel.Files[0].Name != "data.csv" {
		t.Fatalf("expected only data.csv selected, got %+v", sel.Files)
	}
	if sel.SkippedCount != 1 {
		t.Errorf("expected notes.txt counted as skipped, got %d", sel.SkippedCount)
	}
}

func TestSelectSkipNoGeoNeverDisplacesGeoBudget(t *testing.T) {
	files := []FileDescriptor{
		{Name: "small.txt", Size: 1},
		{Name: "big.geojson", Size: 10},
	}

	// A budget that fits only one of the two files: without SkipNoGeo,
	// the geo file is tried first, exceeds the budget and is skipped;
	// the non-geo file is tried next and fits.
	sel := Select(files, SelectConfig{SkipNoGeo: false, MaxSizeBytes: 5})
	names := map[string]bool{}
	for _, f := range sel.Files {
		names[f.Name] = true
	}
	if !names["small.txt"] {
		t.Errorf("expected small.txt to fit the budget, got %+v", sel.Files)
	}

	// With SkipNoGeo, small.txt is never a candidate at all, so the
	// budget goes to the geo file and only the geo file is considered.
	sel = Select(files, SelectConfig{SkipNoGeo: true, MaxSizeBytes: 5})
	if len(sel.Files) != 0 {
		t.Fatalf("expected big.geojson to exceed the budget with no non-geo fallback, got %+v", sel.Files)
	}
	if sel.SkippedCount != 2 {
		t.Errorf("expected both the excluded non-geo file and the over-budget geo file counted as skipped, got %d", sel.SkippedCount)
	}
}

func TestShouldParallelizeGate(t *testing.T) {
	cfg := SelectConfig{MaxWorkers: 4}

	small := Selection{Files: make([]FileDescriptor, 2), TotalBytes: 100}
	if shouldParallelize(cfg, small) {
		t.Error("small total bytes should not trigger parallel download")
	}

	big := Selection{Files: make([]FileDescriptor, 2), TotalBytes: 20 * 1024 * 1024}
	if !shouldParallelize(cfg, big) {
		t.Error("large total bytes should trigger parallel download")
	}

	singleFile := Selection{Files: make([]FileDescriptor, 1), TotalBytes: 20 * 1024 * 1024}
	if shouldParallelize(cfg, singleFile) {
		t.Error("a single file should never be scheduled in parallel")
	}

	tooMany := Selection{Files: make([]FileDescriptor, 25), TotalBytes: 20 * 1024 * 1024}
	if shouldParallelize(cfg, tooMany) {
		t.Error("more than 20 files should fall back to sequential scheduling")
	}

	cfg.MaxWorkers = 1
	if shouldParallelize(cfg, big) {
		t.Error("MaxWorkers<=1 should force sequential scheduling")
	}
}

func TestParseRateLimitPair(t *testing.T) {
	// Constructing a *resty.Response requires an HTTP round trip, so the
	// header-reading path is not covered here; parseRateLimitPair is the
	// pure function under test.
	type args struct {
		rem, reset string
	}

	tests := []struct {
		name    string
		args    args
		wantOK  bool
		wantRem int64
	}{
		{"valid pair", args{"5", "1700000000"}, true, 5},
		{"missing remaining", args{"", "1700000000"}, false, 0},
		{"non-numeric", args{"abc", "1700000000"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rem, _, ok := parseRateLimitPair(tt.args.rem, tt.args.reset)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && rem != tt.wantRem {
				t.Errorf("remaining = %d, want %d", rem, tt.wantRem)
			}
		})
	}
}

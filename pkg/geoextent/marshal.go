package geoextent

import "encoding/json"

// MarshalJSON implements spec.md §3's "never emit a key with an
// undefined semantics" rule: only fields with actual values are
// serialized.
func (r *Result) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}

	if r.Format != "" {
		m["format"] = r.Format
	}
	if r.BBox != nil {
		if r.Legacy {
			m["bbox"] = r.BBox.Legacy()
		} else {
			m["bbox"] = r.BBox.Native()
		}
		m["crs"] = r.CRS
	}
	if r.TBox != nil {
		m["tbox"] = [2]string{r.TBox.Start, r.TBox.End}
	}
	if r.ConvexHull {
		m["convex_hull"] = true
		if len(r.ConvexHullCoords) > 0 {
			m["convex_hull_coords"] = r.ConvexHullCoords
		}
	}
	if r.Details != nil {
		m["details"] = r.Details
	}
	if r.ExtractionMethod != "" {
		m["extraction_method"] = r.ExtractionMethod
	}
	if r.TimeoutSeconds != nil {
		m["timeout"] = *r.TimeoutSeconds
	}
	if r.Followed != nil {
		m["followed"] = map[string]string{"from": r.Followed.From, "to": r.Followed.To, "via": r.Followed.Via}
	}
	if r.ExtractionMeta != nil {
		m["extraction_metadata"] = map[string]int{
			"total_resources": r.ExtractionMeta.TotalResources,
			"successful":      r.ExtractionMeta.Successful,
			"failed":          r.ExtractionMeta.Failed,
		}
	}
	if r.PerIdentifier != nil || r.PerIdentifierErrs != nil {
		byID := map[string]interface{}{}
		for id, res := range r.PerIdentifier {
			byID[id] = res
		}
		for id, errMsg := range r.PerIdentifierErrs {
			byID[id] = map[string]string{"error": errMsg}
		}
		m["results"] = byID
	}

	return json.Marshal(m)
}

// MarshalJSON for Extent mirrors Result's rule for the single-file
// case returned by FromFile.
func (e *Extent) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	if e.BBox != nil {
		if e.Legacy {
			m["bbox"] = e.BBox.Legacy()
		} else {
			m["bbox"] = e.BBox.Native()
		}
		m["crs"] = e.CRS
	}
	if e.TBox != nil {
		m["tbox"] = [2]string{e.TBox.Start, e.TBox.End}
	}
	if e.ConvexHull {
		m["convex_hull"] = true
		if len(e.ConvexHullCoords) > 0 {
			m["convex_hull_coords"] = e.ConvexHullCoords
		}
	}
	return json.Marshal(m)
}

// MarshalJSON for DetailEntry: a leaf extent, a nested directory, or
// JSON null for "unsupported/failed" — spec.md §3's file-detail map.
func (d *DetailEntry) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	if d.Dir != nil {
		return json.Marshal(d.Dir)
	}
	if d.Extent == nil {
		return []byte("null"), nil
	}

	m := map[string]interface{}{}
	if d.Extent.BBox != nil {
		if d.Extent.Legacy {
			m["bbox"] = d.Extent.BBox.Legacy()
		} else {
			m["bbox"] = d.Extent.BBox.Native()
		}
		m["crs"] = d.Extent.CRS
	}
	if d.Extent.TBox != nil {
		m["tbox"] = [2]string{d.Extent.TBox.Start, d.Extent.TBox.End}
	}
	if d.Extent.ConvexHull {
		m["convex_hull"] = true
	}
	if len(m) == 0 {
		return []byte("null"), nil
	}

	return json.Marshal(m)
}

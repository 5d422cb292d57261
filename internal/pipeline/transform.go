package pipeline

import (
	"sort"
	"strings"

	"go-school-projections/internal/model"
)

// PivotResult is the wide school table plus the area codes that could not be
// placed in it
type PivotResult struct {
	Rows     []model.SchoolRow
	Unmapped []error
	Dropped  int
}

type pivotKey struct {
	code string
	year int
}

// PivotObservations reshapes filtered long rows into one row per
// (region, year). SCHO becomes SchoolCount and ENR becomes Enrollment;
// duplicates on (area, year, metric) are summed. Area codes that are not
// four characters long or not in the registry are dropped, one
// UnmappedRegionCodeError per distinct code.
func PivotObservations(obs []model.Observation) PivotResult {
	var res PivotResult
	wide := make(map[pivotKey]*model.SchoolRow)
	seenUnmapped := make(map[string]bool)

	for _, o := range obs {
		code := strings.TrimSpace(o.AreaCode)
		region, ok := model.RegionForCode(code)
		if len(code) != 4 || !ok {
			res.Dropped++
			if !seenUnmapped[code] {
				seenUnmapped[code] = true
				res.Unmapped = append(res.Unmapped, &model.UnmappedRegionCodeError{Code: code, Source: "school table"})
			}
			continue
		}

		k := pivotKey{code: code, year: o.Year}
		row, ok := wide[k]
		if !ok {
			row = &model.SchoolRow{Region: region, AreaCode: code, Year: o.Year}
			wide[k] = row
		}
		switch strings.TrimSpace(o.MetricType) {
		case model.MetricSchools:
			row.SchoolCount = model.Add(row.SchoolCount, o.Value)
		case model.MetricEnrollment:
			row.Enrollment = model.Add(row.Enrollment, o.Value)
		}
	}

	res.Rows = make([]model.SchoolRow, 0, len(wide))
	for _, row := range wide {
		res.Rows = append(res.Rows, *row)
	}
	sort.Slice(res.Rows, func(i, j int) bool {
		if res.Rows[i].Region != res.Rows[j].Region {
			return res.Rows[i].Region < res.Rows[j].Region
		}
		return res.Rows[i].Year < res.Rows[j].Year
	})
	// deterministic error order
	sort.Slice(res.Unmapped, func(i, j int) bool {
		return res.Unmapped[i].(*model.UnmappedRegionCodeError).Code < res.Unmapped[j].(*model.UnmappedRegionCodeError).Code
	})
	return res
}

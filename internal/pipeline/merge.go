package pipeline

import (
	"sort"

	"go-school-projections/internal/model"
)

// MergeResult is the joined table plus population rows that were dropped
// because their region is not in the registry
type MergeResult struct {
	Records  []model.RegionYearRecord
	Unmapped []error
}

type regionYear struct {
	region string
	year   int
}

// Merge full-outer-joins the wide school table with the population table on
// (region, year). Population region names are resolved through the registry;
// unknown names are dropped and reported, never joined as placeholder rows.
// A row is observed only when it has a school count and its year is at or
// before the baseline; everything else is projected.
func Merge(schools []model.SchoolRow, population []model.PopulationRow, baselineYear int) MergeResult {
	var res MergeResult
	joined := make(map[regionYear]*model.RegionYearRecord)

	get := func(region string, year int) *model.RegionYearRecord {
		k := regionYear{region, year}
		rec, ok := joined[k]
		if !ok {
			rec = &model.RegionYearRecord{Region: region, Year: year}
			joined[k] = rec
		}
		return rec
	}

	for _, s := range schools {
		rec := get(s.Region, s.Year)
		rec.SchoolCount = s.SchoolCount
		rec.Enrollment = s.Enrollment
	}

	seenUnmapped := make(map[string]bool)
	for _, p := range population {
		region, ok := model.CanonicalRegion(p.Region)
		if !ok {
			if !seenUnmapped[p.Region] {
				seenUnmapped[p.Region] = true
				res.Unmapped = append(res.Unmapped, &model.UnmappedRegionCodeError{Code: p.Region, Source: "population table"})
			}
			continue
		}
		rec := get(region, p.Year)
		rec.ChildPopulation6to10 = model.Add(rec.ChildPopulation6to10, p.Children6to10)
	}

	res.Records = make([]model.RegionYearRecord, 0, len(joined))
	for _, rec := range joined {
		rec.IsProjected = !(rec.SchoolCount.Valid && rec.Year <= baselineYear)
		res.Records = append(res.Records, *rec)
	}
	sortRecords(res.Records)
	return res
}

func sortRecords(recs []model.RegionYearRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Region != recs[j].Region {
			return recs[i].Region < recs[j].Region
		}
		return recs[i].Year < recs[j].Year
	})
}

// groupByRegion splits sorted records into per-region slices, preserving the
// region order.
func groupByRegion(recs []model.RegionYearRecord) ([]string, map[string][]model.RegionYearRecord) {
	var order []string
	groups := make(map[string][]model.RegionYearRecord)
	for _, r := range recs {
		if _, ok := groups[r.Region]; !ok {
			order = append(order, r.Region)
		}
		groups[r.Region] = append(groups[r.Region], r)
	}
	return order, groups
}

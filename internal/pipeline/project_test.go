package pipeline

import (
	"context"
	"testing"

	"go-school-projections/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(region string, year int, schools, enrollment, children model.Float) model.RegionYearRecord {
	return model.RegionYearRecord{
		Region:               region,
		Year:                 year,
		SchoolCount:          schools,
		Enrollment:           enrollment,
		ChildPopulation6to10: children,
		IsProjected:          !(schools.Valid && year <= 2022),
	}
}

var (
	some = model.Some
	none = model.None()
)

func lazioRows() []model.RegionYearRecord {
	return []model.RegionYearRecord{
		rec("Lazio", 2015, some(1000), some(300000), none),
		rec("Lazio", 2020, some(980), some(280000), none),
		rec("Lazio", 2050, none, none, some(250000)),
	}
}

func TestProjectRegionLazio(t *testing.T) {
	rows, summary, err := ProjectRegion("Lazio", lazioRows(), 1990)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.InDelta(t, 285.714, summary.Min, 0.001)
	assert.InDelta(t, 292.857, summary.Median, 0.001)
	assert.InDelta(t, 300.0, summary.Max, 1e-9)
	assert.Equal(t, 2, summary.Samples)

	p := rows[2]
	assert.True(t, p.IsProjected)
	assert.Equal(t, some(250000), p.EnrollmentProxy)
	assert.False(t, p.Ratio.Valid)
	assert.InDelta(t, 853.66, p.ScuoleHat.Value, 0.01)
	assert.InDelta(t, 833.33, p.ScuoleLCL.Value, 0.01)
	assert.InDelta(t, 875.0, p.ScuoleUCL.Value, 0.01)
}

func TestProjectRegionHistoricalPassThrough(t *testing.T) {
	rows, _, err := ProjectRegion("Lazio", lazioRows(), 1990)
	require.NoError(t, err)

	for _, p := range rows[:2] {
		assert.Equal(t, p.SchoolCount, p.ScuoleHat)
		assert.Equal(t, p.SchoolCount, p.ScuoleLCL)
		assert.Equal(t, p.SchoolCount, p.ScuoleUCL)
		assert.Equal(t, p.Ratio, p.RatioHat)
		assert.Equal(t, p.Ratio, p.RatioLCL)
		assert.Equal(t, p.Ratio, p.RatioUCL)
	}
	assert.Equal(t, some(300), rows[0].Ratio)
}

func TestProjectRegionBoundOrdering(t *testing.T) {
	rows := []model.RegionYearRecord{
		rec("Puglia", 2010, some(900), some(200000), none),
		rec("Puglia", 2014, some(880), some(190000), none),
		rec("Puglia", 2018, some(850), some(175000), none),
		rec("Puglia", 2040, none, none, some(150000)),
		rec("Puglia", 2060, none, none, some(120000)),
		rec("Puglia", 2080, none, some(110000), some(999999)),
	}
	out, summary, err := ProjectRegion("Puglia", rows, 1990)
	require.NoError(t, err)

	assert.LessOrEqual(t, summary.Min, summary.Median)
	assert.LessOrEqual(t, summary.Median, summary.Max)

	for _, p := range out[3:] {
		require.True(t, p.ScuoleHat.Valid)
		assert.LessOrEqual(t, p.ScuoleLCL.Value, p.ScuoleHat.Value)
		assert.LessOrEqual(t, p.ScuoleHat.Value, p.ScuoleUCL.Value)
		assert.Equal(t, some(summary.Median), p.RatioHat)
		assert.Equal(t, some(summary.Min), p.RatioLCL)
		assert.Equal(t, some(summary.Max), p.RatioUCL)
	}
	// enrollment wins over the child population when present
	assert.Equal(t, some(110000), out[5].EnrollmentProxy)
}

func TestProjectRegionOddMedian(t *testing.T) {
	rows := []model.RegionYearRecord{
		rec("Umbria", 2001, some(10), some(1000), none),
		rec("Umbria", 2002, some(10), some(3000), none),
		rec("Umbria", 2003, some(10), some(2000), none),
	}
	_, summary, err := ProjectRegion("Umbria", rows, 1990)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.Min)
	assert.Equal(t, 200.0, summary.Median)
	assert.Equal(t, 300.0, summary.Max)
}

func TestProjectRegionCutoffExcludesOldRows(t *testing.T) {
	rows := []model.RegionYearRecord{
		rec("Molise", 1985, some(10), some(9000), none),
		rec("Molise", 1990, some(10), some(8000), none),
		rec("Molise", 2000, some(10), some(1000), none),
	}
	_, summary, err := ProjectRegion("Molise", rows, 1990)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Samples)
	assert.Equal(t, 100.0, summary.Max)
}

func TestProjectRegionInsufficientHistory(t *testing.T) {
	tests := []struct {
		name string
		rows []model.RegionYearRecord
	}{
		{"only projected rows", []model.RegionYearRecord{
			rec("Molise", 2030, none, none, some(5000)),
		}},
		{"history before cutoff only", []model.RegionYearRecord{
			rec("Molise", 1989, some(10), some(1000), none),
			rec("Molise", 2030, none, none, some(5000)),
		}},
		{"no usable ratio", []model.RegionYearRecord{
			rec("Molise", 2010, some(0), some(1000), none),
			rec("Molise", 2011, some(12), none, some(1000)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ProjectRegion("Molise", tt.rows, 1990)
			var ih *model.InsufficientHistoryError
			require.ErrorAs(t, err, &ih)
			assert.Equal(t, "Molise", ih.Region)
		})
	}
}

func TestProjectRowZeroBoundYieldsMissing(t *testing.T) {
	r := rec("Liguria", 2050, none, none, some(1000))
	p := projectRow(r, model.RatioRecord{Min: 0, Median: 10, Max: 20})
	assert.Equal(t, some(100), p.ScuoleHat)
	assert.Equal(t, some(50), p.ScuoleLCL)
	assert.False(t, p.ScuoleUCL.Valid)

	r = rec("Liguria", 2051, none, none, none)
	p = projectRow(r, model.RatioRecord{Min: 5, Median: 10, Max: 20})
	assert.False(t, p.ScuoleHat.Valid)
	assert.False(t, p.ScuoleLCL.Valid)
	assert.False(t, p.ScuoleUCL.Valid)
}

func TestProjectSkipsAndOrders(t *testing.T) {
	records := append(lazioRows(),
		rec("Abruzzo", 2050, none, none, some(40000)),
		rec("Abruzzo", 2012, some(400), some(50000), none),
		rec("Molise", 2030, none, none, some(5000)),
	)

	for _, workers := range []int{1, 4} {
		res, err := Project(context.Background(), records, 1990, workers)
		require.NoError(t, err)

		require.Len(t, res.Skipped, 1)
		var ih *model.InsufficientHistoryError
		require.ErrorAs(t, res.Skipped[0], &ih)
		assert.Equal(t, "Molise", ih.Region)

		var keys []string
		for _, r := range res.Rows {
			keys = append(keys, r.Region)
		}
		assert.Equal(t, []string{"Abruzzo", "Abruzzo", "Lazio", "Lazio", "Lazio"}, keys)
		assert.Equal(t, 2012, res.Rows[0].Year)
		require.Len(t, res.Ratios, 2)
		assert.Equal(t, "Abruzzo", res.Ratios[0].Region)
	}
}

func TestProjectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Project(ctx, lazioRows(), 1990, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeRatiosEmpty(t *testing.T) {
	_, ok := SummarizeRatios("Lazio", nil)
	assert.False(t, ok)
}

package pipeline

import (
	"testing"

	"go-school-projections/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(area, sex, cit, mgmt, metric string, year int, v model.Float) model.Observation {
	return model.Observation{AreaCode: area, Sex: sex, Citizenship: cit, Management: mgmt, MetricType: metric, Year: year, Value: v}
}

func total(area, metric string, year int, v float64) model.Observation {
	return obs(area, "T", "TOTAL", "ALL", metric, year, some(v))
}

func TestFilterObservations(t *testing.T) {
	in := []model.Observation{
		total("ITI4", "SCHO", 2020, 980),
		obs("ITI4", "M", "TOTAL", "ALL", "SCHO", 2020, some(1)),
		obs("ITI4", "T", "ITA", "ALL", "SCHO", 2020, some(1)),
		obs("ITI4", "T", "TOTAL", "PUB", "SCHO", 2020, some(1)),
		total("ITI4", "TEACH", 2020, 1),
		total("ITI4", "ENR", 2020, 280000),
		total("ITI4", "ENR", 0, 1),
	}
	res := FilterObservations(in, DefaultFilterRules)
	require.Len(t, res.Kept, 2)
	assert.Equal(t, 5, res.Dropped)
	assert.Equal(t, "SCHO", res.Kept[0].MetricType)
	assert.Equal(t, "ENR", res.Kept[1].MetricType)
}

func TestPivotObservations(t *testing.T) {
	in := []model.Observation{
		total("ITI4", "SCHO", 2020, 980),
		total("ITI4", "ENR", 2020, 200000),
		total("ITI4", "ENR", 2020, 80000),
		total("ITI4", "SCHO", 2015, 1000),
		total("ITC1", "ENR", 2015, 150000),
		total("ITH", "SCHO", 2015, 700),
		total("IT", "SCHO", 2015, 15000),
		total("ITZZ", "SCHO", 2015, 1),
		total("ITZZ", "SCHO", 2016, 1),
	}
	res := PivotObservations(in)

	want := []model.SchoolRow{
		{Region: "Lazio", AreaCode: "ITI4", Year: 2015, SchoolCount: some(1000)},
		{Region: "Lazio", AreaCode: "ITI4", Year: 2020, SchoolCount: some(980), Enrollment: some(280000)},
		{Region: "Piemonte", AreaCode: "ITC1", Year: 2015, Enrollment: some(150000)},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("pivot mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 4, res.Dropped)
	var codes []string
	for _, err := range res.Unmapped {
		var um *model.UnmappedRegionCodeError
		require.ErrorAs(t, err, &um)
		codes = append(codes, um.Code)
	}
	assert.Equal(t, []string{"IT", "ITH", "ITZZ"}, codes)
}

func TestMerge(t *testing.T) {
	schools := []model.SchoolRow{
		{Region: "Lazio", Year: 2015, SchoolCount: some(1000), Enrollment: some(300000)},
		{Region: "Lazio", Year: 2022, SchoolCount: some(960)},
		{Region: "Lazio", Year: 2023, SchoolCount: some(950)},
		{Region: "Lazio", Year: 2021, Enrollment: some(270000)},
	}
	population := []model.PopulationRow{
		{Region: "Lazio", Year: 2022, Children6to10: some(260000)},
		{Region: "Lazio", Year: 2050, Children6to10: some(250000)},
		{Region: "Atlantide", Year: 2050, Children6to10: some(1)},
		{Region: "Valle_d_Aosta-Vallee_d_Aoste", Year: 2050, Children6to10: some(4000)},
	}
	res := Merge(schools, population, 2022)

	type row struct {
		Region    string
		Year      int
		Projected bool
		Children  model.Float
	}
	var got []row
	for _, r := range res.Records {
		got = append(got, row{r.Region, r.Year, r.IsProjected, r.ChildPopulation6to10})
	}
	want := []row{
		{"Lazio", 2015, false, none},
		{"Lazio", 2021, true, none},
		{"Lazio", 2022, false, some(260000)},
		{"Lazio", 2023, true, none},
		{"Lazio", 2050, true, some(250000)},
		{"Valle d Aosta-Vallee d Aoste", 2050, true, some(4000)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Unmapped, 1)
	var um *model.UnmappedRegionCodeError
	require.ErrorAs(t, res.Unmapped[0], &um)
	assert.Equal(t, "Atlantide", um.Code)
	for _, r := range res.Records {
		assert.NotEqual(t, "Atlantide", r.Region)
	}
}

func TestRegionFilter(t *testing.T) {
	assert.True(t, RegionFilter(nil).Allows("Lazio"))
	f := RegionFilter{"Lazio"}
	assert.True(t, f.Allows("Lazio"))
	assert.False(t, f.Allows("Molise"))
}

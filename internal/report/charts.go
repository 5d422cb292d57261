package report

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sort"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	declineColor = color.RGBA{R: 139, A: 255}
	growthColor  = color.RGBA{G: 100, A: 255}
	dashed       = []vg.Length{vg.Points(5), vg.Points(3)}
	dotted       = []vg.Length{vg.Points(1), vg.Points(3)}
)

// byRegion groups projection rows by region, keeping year order.
func byRegion(rows []model.ProjectionRow) map[string][]model.ProjectionRow {
	out := make(map[string][]model.ProjectionRow)
	for _, r := range rows {
		out[r.Region] = append(out[r.Region], r)
	}
	for _, rs := range out {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Year < rs[j].Year })
	}
	return out
}

func xys(rows []model.ProjectionRow, pick func(model.ProjectionRow) model.Float) plotter.XYs {
	var pts plotter.XYs
	for _, r := range rows {
		if v := pick(r); v.Valid {
			pts = append(pts, plotter.XY{X: float64(r.Year), Y: v.Value})
		}
	}
	return pts
}

// TrendChart plots observed school counts and the projected central
// estimate with its LCL/UCL band for the steepest decliners.
func TrendChart(rep *model.RunReport, topN int) (*plot.Plot, error) {
	h := rep.Run.Horizons
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Primary school projections, top %d declining regions", topN)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Number of schools"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	groups := byRegion(rep.Projections)
	for i, s := range pipeline.TopDecliners(rep.Statistics, topN) {
		rows := groups[s.Region]
		c := plotutil.Color(i)

		if hist := xys(rows, func(r model.ProjectionRow) model.Float {
			if r.IsProjected {
				return model.None()
			}
			return r.SchoolCount
		}); len(hist) > 0 {
			line, points, err := plotter.NewLinePoints(hist)
			if err != nil {
				return nil, err
			}
			line.Color, points.GlyphStyle.Color = c, c
			points.GlyphStyle.Shape = draw.CircleGlyph{}
			points.GlyphStyle.Radius = vg.Points(2)
			p.Add(line, points)
			p.Legend.Add(s.Region, line)
		}

		projected := func(pick func(model.ProjectionRow) model.Float) func(model.ProjectionRow) model.Float {
			return func(r model.ProjectionRow) model.Float {
				if !r.IsProjected {
					return model.None()
				}
				return pick(r)
			}
		}
		for _, band := range []struct {
			pick   func(model.ProjectionRow) model.Float
			dashes []vg.Length
			width  vg.Length
		}{
			{func(r model.ProjectionRow) model.Float { return r.ScuoleHat }, dashed, vg.Points(1.5)},
			{func(r model.ProjectionRow) model.Float { return r.ScuoleLCL }, dotted, vg.Points(0.8)},
			{func(r model.ProjectionRow) model.Float { return r.ScuoleUCL }, dotted, vg.Points(0.8)},
		} {
			pts := xys(rows, projected(band.pick))
			if len(pts) == 0 {
				continue
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.Color = c
			line.Dashes = band.dashes
			line.Width = band.width
			p.Add(line)
		}
	}

	// last observed year
	marker, err := plotter.NewLine(plotter.XYs{{X: float64(h.Baseline), Y: 0}, {X: float64(h.Baseline), Y: maxSchools(rep.Projections)}})
	if err != nil {
		return nil, err
	}
	marker.Color = color.RGBA{R: 255, A: 128}
	marker.Dashes = dotted
	p.Add(marker)
	return p, nil
}

func maxSchools(rows []model.ProjectionRow) float64 {
	m := 1.0
	for _, r := range rows {
		for _, v := range []model.Float{r.SchoolCount, r.ScuoleUCL} {
			if v.Valid && v.Value > m {
				m = v.Value
			}
		}
	}
	return m
}

// DeclineChart draws the percentage change of every region at both horizons
// as horizontal bars, sorted by the first horizon.
func DeclineChart(stats []model.DeclineStatistic, h model.Horizons) (*plot.Plot, error) {
	if len(stats) == 0 {
		return nil, errors.New("no decline statistics to plot")
	}
	sorted := make([]model.DeclineStatistic, len(stats))
	copy(sorted, stats)
	pipeline.SortStatistics(sorted)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Projected change in number of schools from %d", h.Baseline)
	p.X.Label.Text = "Percentage change (%)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	labels := make([]string, len(sorted))
	h1 := make(plotter.Values, len(sorted))
	h2 := make(plotter.Values, len(sorted))
	for i, s := range sorted {
		labels[i] = s.Region
		h1[i] = s.PctChangeH1
		h2[i] = s.PctChangeH2
	}

	width := vg.Points(7)
	for i, series := range []struct {
		values plotter.Values
		year   int
		fill   color.Color
		offset vg.Length
	}{
		{h1, h.H1, declineColor, -width / 2},
		{h2, h.H2, growthColor, width / 2},
	} {
		bars, err := plotter.NewBarChart(series.values, width)
		if err != nil {
			return nil, fmt.Errorf("bar series %d: %w", i, err)
		}
		bars.Horizontal = true
		bars.Color = series.fill
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = series.offset
		p.Add(bars)
		p.Legend.Add(fmt.Sprintf("%d", series.year), bars)
	}
	p.NominalY(labels...)
	return p, nil
}

// RatioChart plots the historical enrollment-per-school ratio of up to topN
// regions, in region order.
func RatioChart(rep *model.RunReport, topN int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Students per school by region (historical)"
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Students per school"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	groups := byRegion(rep.Projections)
	regions := make([]string, 0, len(groups))
	for r := range groups {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	drawn := 0
	for _, region := range regions {
		if drawn >= topN {
			break
		}
		pts := xys(groups[region], func(r model.ProjectionRow) model.Float {
			if r.IsProjected {
				return model.None()
			}
			return r.Ratio
		})
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, err
		}
		c := plotutil.Color(drawn)
		line.Color, points.GlyphStyle.Color = c, c
		points.GlyphStyle.Shape = draw.CircleGlyph{}
		points.GlyphStyle.Radius = vg.Points(2)
		p.Add(line, points)
		p.Legend.Add(region, line)
		drawn++
	}
	if drawn == 0 {
		return nil, errors.New("no historical ratios to plot")
	}
	return p, nil
}

// ChartsReporter renders the PNG charts
type ChartsReporter struct {
	TopN   int
	Width  vg.Length
	Height vg.Length
}

func (c *ChartsReporter) Name() string { return "charts" }

// Render draws each chart independently; one failing chart does not stop
// the others.
func (c *ChartsReporter) Render(_ context.Context, rep *model.RunReport, outputs *utils.OutputManager) ([]model.ExportResult, error) {
	topN := c.TopN
	if topN <= 0 {
		topN = 5
	}
	width, height := c.Width, c.Height
	if width == 0 {
		width = 12 * vg.Inch
	}
	if height == 0 {
		height = 8 * vg.Inch
	}

	charts := []struct {
		name  string
		file  string
		count int
		build func() (*plot.Plot, error)
	}{
		{"chart_trends", TrendsChartFile, min(topN, len(rep.Statistics)), func() (*plot.Plot, error) { return TrendChart(rep, topN) }},
		{"chart_decline", DeclineChartFile, len(rep.Statistics), func() (*plot.Plot, error) { return DeclineChart(rep.Statistics, rep.Run.Horizons) }},
		{"chart_ratio", RatioChartFile, len(rep.Ratios), func() (*plot.Plot, error) { return RatioChart(rep, topN+3) }},
	}

	var results []model.ExportResult
	var errs []error
	for _, ch := range charts {
		p, err := ch.build()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		wt, err := p.WriterTo(width, height, "png")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		res, err := writeOutput(outputs, rep.Run.ID, ch.name, ch.file, ch.count, func(w io.Writer) error {
			_, err := wt.WriteTo(w)
			return err
		})
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

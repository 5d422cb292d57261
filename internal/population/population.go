// Package population builds the Region,Year,Children_6_10 table from the
// ISTAT regional population projection files.
package population

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultGlob matches the per-region downloads
	DefaultGlob = "it-Popolazione_per_eta_-_Regione_*.csv"

	// metadataLines precede the header in every file
	metadataLines = 2

	MinAge = 6
	MaxAge = 10
)

var (
	fileRegion = regexp.MustCompile(`Regione_(.+)\.csv$`)

	colAge    = []string{"Età", "Etá", "Eta", "Eta'"}
	colYear   = []string{"Anno"}
	colMedian = []string{"Scenario mediano"}
)

// RegionFromFilename extracts the region from
// it-Popolazione_per_eta_-_Regione_<Name>.csv, underscores read as spaces.
func RegionFromFilename(name string) (string, bool) {
	m := fileRegion.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], "_", " "), true
}

// skipLines drops the first n lines of raw.
func skipLines(raw []byte, n int) []byte {
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return nil
		}
		raw = raw[idx+1:]
	}
	return raw
}

// CountFile sums the median scenario over ages 6 to 10 for every year of one
// regional file. A year with no usable value yields a missing count.
func CountFile(path string) ([]model.PopulationRow, error) {
	name, ok := RegionFromFilename(path)
	if !ok {
		return nil, fmt.Errorf("%s: cannot extract region name from file name", path)
	}
	region := name
	if canonical, ok := model.CanonicalRegion(name); ok {
		region = canonical
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open population file: %w", err)
	}
	table, err := pipeline.ParseTable(path, skipLines(raw, metadataLines))
	if err != nil {
		return nil, err
	}
	for _, col := range [][]string{colAge, colYear, colMedian} {
		if !table.HasColumn(col...) {
			return nil, fmt.Errorf("%s: missing column %s", path, col[0])
		}
	}

	sums := make(map[int]model.Float)
	for _, rec := range table.Rows {
		as, _ := rec.Get(colAge...)
		age, ok := utils.ParseInt(as)
		if !ok || age < MinAge || age > MaxAge {
			continue
		}
		ys, _ := rec.Get(colYear...)
		year, ok := utils.ParseYear(ys)
		if !ok {
			continue
		}
		total := sums[year]
		if vs, _ := rec.Get(colMedian...); vs != "" {
			if v, ok := utils.ParseFloat(vs); ok {
				total = model.Add(total, model.Some(v))
			}
		}
		sums[year] = total
	}
	if len(sums) == 0 {
		return nil, fmt.Errorf("%s: no rows for ages %d-%d: %w", path, MinAge, MaxAge, model.ErrNoData)
	}

	rows := make([]model.PopulationRow, 0, len(sums))
	for year, total := range sums {
		rows = append(rows, model.PopulationRow{Region: region, Year: year, Children6to10: total})
	}
	sortRows(rows)
	return rows, nil
}

// Result of counting a directory of regional files
type Result struct {
	Rows   []model.PopulationRow
	Files  int
	Failed []error
}

// CountDir processes every file matching glob under dir in parallel. A file
// that fails is reported in Failed and skipped; only an empty match or a
// fully failed directory is an error.
func CountDir(ctx context.Context, dir, glob string, workers int, logger *zap.Logger) (*Result, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	files, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("bad population glob %q: %w", glob, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no regional files matching %s in %s: %w", glob, dir, model.ErrNoData)
	}
	sort.Strings(files)
	if workers < 1 {
		workers = 1
	}

	perFile := make([][]model.PopulationRow, len(files))
	errs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger.Debug("processing population file", zap.String("file", f))
			perFile[i], errs[i] = CountFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: len(files)}
	for i, rows := range perFile {
		if errs[i] != nil {
			logger.Warn("skipping population file", zap.String("file", files[i]), zap.Error(errs[i]))
			res.Failed = append(res.Failed, errs[i])
			continue
		}
		res.Rows = append(res.Rows, rows...)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("no population file could be processed: %w", model.ErrNoData)
	}
	sortRows(res.Rows)
	return res, nil
}

func sortRows(rows []model.PopulationRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Region != rows[j].Region {
			return rows[i].Region < rows[j].Region
		}
		return rows[i].Year < rows[j].Year
	})
}

// WriteCSV writes the table with header Region,Year,Children_6_10.
func WriteCSV(w io.Writer, rows []model.PopulationRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Region", "Year", "Children_6_10"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write([]string{r.Region, strconv.Itoa(r.Year), r.Children6to10.String()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes the table to path, creating parent directories.
func WriteFile(path string, rows []model.PopulationRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

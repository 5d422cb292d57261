package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go-school-projections/internal/model"
	"go-school-projections/pkg/utils"

	"go.uber.org/zap"
)

// GenericRecord is one CSV row keyed by its cleaned header names
type GenericRecord map[string]string

// Get looks a column up by any of the given names, case-insensitively.
func (r GenericRecord) Get(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := r[n]; ok {
			return v, true
		}
	}
	for _, n := range names {
		for k, v := range r {
			if strings.EqualFold(k, n) {
				return v, true
			}
		}
	}
	return "", false
}

// Table is a decoded CSV input
type Table struct {
	Source    string
	Encoding  string
	Separator rune
	Header    []string
	Rows      []GenericRecord
}

// HasColumn reports whether any of the names is a header, case-insensitively.
func (t *Table) HasColumn(names ...string) bool {
	for _, h := range t.Header {
		for _, n := range names {
			if strings.EqualFold(h, n) {
				return true
			}
		}
	}
	return false
}

// ------------------- Ingestion -------------------

// ReadTable loads a CSV from a local path or an http(s) URL, sniffing its
// text encoding and separator.
func ReadTable(ctx context.Context, pathOrURL string) (*Table, error) {
	raw, err := readSource(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	return ParseTable(pathOrURL, raw)
}

// ParseTable decodes raw CSV content. source is only used in messages.
func ParseTable(source string, raw []byte) (*Table, error) {
	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	sep, err := detectSeparator(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	csvReader := csv.NewReader(bytes.NewReader(text))
	csvReader.Comma = sep
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read CSV header: %w", source, err)
	}
	for i, h := range headers {
		// Clean header names: trim whitespace and remove all quotes
		headers[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	table := &Table{Source: source, Encoding: enc, Separator: sep, Header: headers}
	line := 1
	for {
		record, err := csvReader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: CSV read error on line %d: %w", source, line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		rec := make(GenericRecord, len(headers))
		for i, h := range headers {
			if i < len(record) {
				rec[h] = strings.TrimSpace(record[i])
			} else {
				rec[h] = ""
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

func readSource(ctx context.Context, pathOrURL string) ([]byte, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET CSV: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to GET CSV: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	raw, err := os.ReadFile(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	return raw, nil
}

// ------------------- Typed loaders -------------------

// Column names of the ISTAT long export. SDMX-CSV downloads use the
// TIME_PERIOD/OBS_VALUE spelling.
var (
	colArea        = []string{"REF_AREA"}
	colSex         = []string{"SEX"}
	colCitizenship = []string{"CITIZENSHIP"}
	colManagement  = []string{"TYPE_SCHOOL_MANAGEMENT"}
	colDataType    = []string{"DATA_TYPE"}
	colTime        = []string{"obsTime", "TIME_PERIOD"}
	colValue       = []string{"obsValue", "OBS_VALUE"}
)

// LoadObservations reads the long school statistics table. Cells that do not
// parse become missing values; they are never an error.
func LoadObservations(ctx context.Context, path string, logger *zap.Logger) ([]model.Observation, error) {
	table, err := ReadTable(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, col := range [][]string{colArea, colDataType, colTime, colValue} {
		if !table.HasColumn(col...) {
			return nil, fmt.Errorf("%s: missing column %s", path, col[0])
		}
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, model.ErrNoData)
	}

	obs := make([]model.Observation, 0, len(table.Rows))
	badYears := 0
	for _, rec := range table.Rows {
		o := model.Observation{}
		o.AreaCode, _ = rec.Get(colArea...)
		o.Sex, _ = rec.Get(colSex...)
		o.Citizenship, _ = rec.Get(colCitizenship...)
		o.Management, _ = rec.Get(colManagement...)
		o.MetricType, _ = rec.Get(colDataType...)
		if s, ok := rec.Get(colTime...); ok {
			if y, ok := utils.ParseYear(s); ok {
				o.Year = y
			} else {
				badYears++
			}
		}
		if s, ok := rec.Get(colValue...); ok {
			if v, ok := utils.ParseFloat(s); ok {
				o.Value = model.Some(v)
			}
		}
		obs = append(obs, o)
	}

	logger.Debug("loaded observations",
		zap.String("source", path),
		zap.String("encoding", table.Encoding),
		zap.String("separator", string(table.Separator)),
		zap.Int("rows", len(obs)),
		zap.Int("unparsed_years", badYears),
	)
	return obs, nil
}

// LoadPopulation reads the Region,Year,Children_6_10 table.
func LoadPopulation(ctx context.Context, path string, logger *zap.Logger) ([]model.PopulationRow, error) {
	table, err := ReadTable(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"Region", "Year", "Children_6_10"} {
		if !table.HasColumn(col) {
			return nil, fmt.Errorf("%s: missing column %s", path, col)
		}
	}

	rows := make([]model.PopulationRow, 0, len(table.Rows))
	for _, rec := range table.Rows {
		region, _ := rec.Get("Region")
		ys, _ := rec.Get("Year")
		year, ok := utils.ParseYear(ys)
		if region == "" || !ok {
			continue
		}
		row := model.PopulationRow{Region: region, Year: year}
		if s, _ := rec.Get("Children_6_10"); s != "" {
			if v, ok := utils.ParseFloat(s); ok {
				row.Children6to10 = model.Some(v)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, model.ErrNoData)
	}

	logger.Debug("loaded population",
		zap.String("source", path),
		zap.String("encoding", table.Encoding),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

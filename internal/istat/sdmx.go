package istat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"github.com/tidwall/gjson"
)

// ValueColumn is the observation value column of every dataset
const ValueColumn = "OBS_VALUE"

// yearColumns are the candidate names of the time dimension, in order
var yearColumns = []string{"TIME_PERIOD", "obsTime", "Anno", "ANNO", "Year", "YEAR", "TIME"}

// Dataset is a flat table of SDMX observations: one column per dimension
// plus the value
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// YearColumn returns the index of the time dimension, or -1.
func (d *Dataset) YearColumn() int {
	for _, name := range yearColumns {
		for i, c := range d.Columns {
			if strings.EqualFold(c, name) {
				return i
			}
		}
	}
	return -1
}

// FilterMinYear keeps rows whose year is at least minYear. Rows with an
// unparseable year are dropped. Without a time dimension the dataset is
// returned unchanged.
func (d *Dataset) FilterMinYear(minYear int) *Dataset {
	col := d.YearColumn()
	if col < 0 {
		return d
	}
	out := &Dataset{Columns: d.Columns}
	for _, row := range d.Rows {
		if y, ok := utils.ParseYear(row[col]); ok && y >= minYear {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// WriteCSV writes the dataset with a header line.
func (d *Dataset) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.Columns); err != nil {
		return err
	}
	if err := writer.WriteAll(d.Rows); err != nil {
		return err
	}
	return writer.Error()
}

func (d *Dataset) sortRows() {
	sort.Slice(d.Rows, func(i, j int) bool {
		a, b := d.Rows[i], d.Rows[j]
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

type dimension struct {
	id     string
	values []string
}

func parseDimensions(list gjson.Result) []dimension {
	var dims []dimension
	for i, d := range list.Array() {
		dim := dimension{id: d.Get("id").String()}
		if dim.id == "" {
			dim.id = "dim_" + strconv.Itoa(i)
		}
		for _, v := range d.Get("values").Array() {
			code := v.Get("id").String()
			if code == "" {
				code = v.Get("name").String()
			}
			dim.values = append(dim.values, code)
		}
		dims = append(dims, dim)
	}
	return dims
}

// decodeKey maps a "0:3:1" observation key onto dimension value codes.
func decodeKey(key string, dims []dimension) ([]string, error) {
	parts := strings.Split(key, ":")
	if key == "" {
		parts = nil
	}
	if len(parts) != len(dims) {
		return nil, fmt.Errorf("key %q has %d positions, want %d", key, len(parts), len(dims))
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		idx, err := strconv.Atoi(p)
		if err != nil || idx < 0 || idx >= len(dims[i].values) {
			return nil, fmt.Errorf("key %q: bad index %q for dimension %s", key, p, dims[i].id)
		}
		out[i] = dims[i].values[idx]
	}
	return out, nil
}

func observationValue(v gjson.Result) string {
	if v.IsArray() {
		arr := v.Array()
		if len(arr) == 0 {
			return ""
		}
		v = arr[0]
	}
	if v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

// ParseSDMXJSON flattens an SDMX-JSON data message. Both the flat layout
// (dimensionAtObservation=AllDimensions) and the series layout are handled.
func ParseSDMXJSON(body []byte) (*Dataset, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	// some endpoints nest the message under "data"
	structure := root.Get("structure")
	if !structure.Exists() {
		structure = root.Get("data.structure")
	}
	dataSet := root.Get("data.dataSets.0")
	if !dataSet.Exists() {
		dataSet = root.Get("dataSets.0")
	}
	if !dataSet.Exists() {
		return nil, errors.New("no dataSets in response")
	}

	seriesDims := parseDimensions(structure.Get("dimensions.series"))
	obsDims := parseDimensions(structure.Get("dimensions.observation"))

	ds := &Dataset{}
	for _, d := range seriesDims {
		ds.Columns = append(ds.Columns, d.id)
	}
	for _, d := range obsDims {
		ds.Columns = append(ds.Columns, d.id)
	}
	ds.Columns = append(ds.Columns, ValueColumn)

	var parseErr error
	addObservations := func(prefix []string, observations gjson.Result) {
		observations.ForEach(func(key, value gjson.Result) bool {
			codes, err := decodeKey(key.String(), obsDims)
			if err != nil {
				parseErr = err
				return false
			}
			row := make([]string, 0, len(ds.Columns))
			row = append(row, prefix...)
			row = append(row, codes...)
			row = append(row, observationValue(value))
			ds.Rows = append(ds.Rows, row)
			return true
		})
	}

	if series := dataSet.Get("series"); series.Exists() {
		series.ForEach(func(key, value gjson.Result) bool {
			prefix, err := decodeKey(key.String(), seriesDims)
			if err != nil {
				parseErr = err
				return false
			}
			addObservations(prefix, value.Get("observations"))
			return parseErr == nil
		})
	} else {
		addObservations(nil, dataSet.Get("observations"))
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if len(ds.Rows) == 0 {
		return nil, errors.New("dataset holds no observations")
	}
	ds.sortRows()
	return ds, nil
}

// ParseSDMXCSV reads an SDMX-CSV answer, sniffing separator and encoding.
func ParseSDMXCSV(source string, body []byte) (*Dataset, error) {
	table, err := pipeline.ParseTable(source, body)
	if err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, errors.New("dataset holds no observations")
	}
	ds := &Dataset{Columns: table.Header}
	for _, rec := range table.Rows {
		row := make([]string, len(table.Header))
		for i, h := range table.Header {
			row[i] = rec[h]
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

package istat

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-school-projections/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const flatJSON = `{
  "data": {
    "dataSets": [{
      "observations": {
        "0:0:0": [120, 0],
        "0:0:1": [125],
        "1:1:1": [null]
      }
    }],
    "structure": {
      "dimensions": {
        "observation": [
          {"id": "REF_AREA", "values": [{"id": "ITI4", "name": "Lazio"}, {"id": "ITF2", "name": "Molise"}]},
          {"id": "DATA_TYPE", "values": [{"id": "SCHO"}, {"id": "ENR"}]},
          {"id": "TIME_PERIOD", "values": [{"id": "2009"}, {"id": "2015"}]}
        ]
      }
    }
  }
}`

const seriesJSON = `{
  "structure": {
    "dimensions": {
      "series": [{"id": "REF_AREA", "values": [{"id": "ITC1"}, {"id": "ITG2"}]}],
      "observation": [{"id": "TIME_PERIOD", "values": [{"id": "2018"}, {"id": "2019"}]}]
    }
  },
  "dataSets": [{
    "series": {
      "1": {"observations": {"0": [7]}},
      "0": {"observations": {"1": [5], "0": [4]}}
    }
  }]
}`

func TestParseSDMXJSONFlat(t *testing.T) {
	ds, err := ParseSDMXJSON([]byte(flatJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"REF_AREA", "DATA_TYPE", "TIME_PERIOD", ValueColumn}, ds.Columns)
	assert.Equal(t, [][]string{
		{"ITF2", "ENR", "2015", ""},
		{"ITI4", "SCHO", "2009", "120"},
		{"ITI4", "SCHO", "2015", "125"},
	}, ds.Rows)
}

func TestParseSDMXJSONSeries(t *testing.T) {
	ds, err := ParseSDMXJSON([]byte(seriesJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"REF_AREA", "TIME_PERIOD", ValueColumn}, ds.Columns)
	assert.Equal(t, [][]string{
		{"ITC1", "2018", "4"},
		{"ITC1", "2019", "5"},
		{"ITG2", "2018", "7"},
	}, ds.Rows)
}

func TestParseSDMXJSONErrors(t *testing.T) {
	tests := map[string]string{
		"not json":      "<html>",
		"no datasets":   `{"structure": {}}`,
		"empty":         `{"structure": {"dimensions": {"observation": []}}, "dataSets": [{"observations": {}}]}`,
		"bad key index": `{"structure": {"dimensions": {"observation": [{"id": "A", "values": [{"id": "x"}]}]}}, "dataSets": [{"observations": {"3": [1]}}]}`,
		"key too long":  `{"structure": {"dimensions": {"observation": [{"id": "A", "values": [{"id": "x"}]}]}}, "dataSets": [{"observations": {"0:0": [1]}}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSDMXJSON([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseSDMXCSV(t *testing.T) {
	raw := "DATAFLOW,REF_AREA,DATA_TYPE,TIME_PERIOD,OBS_VALUE\nIT1:X(1.0),ITI4,SCHO,2015,1000\n"
	ds, err := ParseSDMXCSV("mem", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"DATAFLOW", "REF_AREA", "DATA_TYPE", "TIME_PERIOD", "OBS_VALUE"}, ds.Columns)
	assert.Equal(t, [][]string{{"IT1:X(1.0)", "ITI4", "SCHO", "2015", "1000"}}, ds.Rows)

	_, err = ParseSDMXCSV("mem", []byte("A,B\n"))
	assert.Error(t, err)
}

func TestFilterMinYearAndWrite(t *testing.T) {
	ds, err := ParseSDMXJSON([]byte(flatJSON))
	require.NoError(t, err)

	filtered := ds.FilterMinYear(2010)
	require.Len(t, filtered.Rows, 2)
	assert.Len(t, ds.Rows, 3, "source dataset untouched")

	var buf bytes.Buffer
	require.NoError(t, filtered.WriteCSV(&buf))
	assert.Equal(t, "REF_AREA,DATA_TYPE,TIME_PERIOD,OBS_VALUE\nITF2,ENR,2015,\nITI4,SCHO,2015,125\n", buf.String())

	noYear := &Dataset{Columns: []string{"A"}, Rows: [][]string{{"1"}}}
	assert.Same(t, noYear, noYear.FilterMinYear(2010))
}

func fastRetry() model.RetryConfig {
	return model.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
}

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[key]++
}

func (h *hitCounter) get(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[key]
}

func TestClientFetchFallsBack(t *testing.T) {
	hits := &hitCounter{hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		hits.add(format + " " + r.URL.Path)
		switch {
		case format == "csv":
			w.WriteHeader(http.StatusServiceUnavailable)
		case r.URL.Path == "/data/IT1,GOOD,1.0/all":
			assert.Equal(t, "it", r.URL.Query().Get("locale"))
			_, _ = w.Write([]byte(flatJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", []string{"BAD", "GOOD"}, 5*time.Second, fastRetry(), zap.NewNop())
	res, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sdmx-json", res.Strategy)
	assert.Equal(t, "GOOD", res.Dataflow)
	assert.Len(t, res.Dataset.Rows, 3)

	// 503 is retried, 404 is not
	assert.Equal(t, 2, hits.get("csv /data/IT1,BAD,1.0/all"))
	assert.Equal(t, 2, hits.get("csv /data/IT1,GOOD,1.0/all"))
	assert.Equal(t, 1, hits.get("jsondata /data/IT1,BAD,1.0/all"))
}

func TestClientFetchAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("garbage"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, []string{"X"}, 5*time.Second, fastRetry(), nil)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all download strategies failed")
	assert.Contains(t, err.Error(), "sdmx-json X")

	_, err = (&Client{}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestClientFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, []string{"X"}, time.Second, fastRetry(), nil)
	_, err := c.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDataURL(t *testing.T) {
	c := NewClient("https://sdmx.istat.it/SDMXWS/rest", nil, time.Second, fastRetry(), nil)
	assert.Equal(t,
		"https://sdmx.istat.it/SDMXWS/rest/data/IT1,52_1044_DF_DCIS_SCUOLE_5,1.0/all?format=jsondata&locale=it",
		c.DataURL("52_1044_DF_DCIS_SCUOLE_5", DefaultStrategies[1].Params))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "elementari.csv")
	ds := &Dataset{Columns: []string{"A", "B"}, Rows: [][]string{{"1", "2"}}}
	require.NoError(t, WriteFile(path, ds))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A,B\n1,2\n", string(raw))
}

func TestWithRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		return permanent(assert.AnError)
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)

	calls = 0
	err = withRetry(context.Background(), fastRetry(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{URL: "u", Code: http.StatusTooManyRequests}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

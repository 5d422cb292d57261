// Package istat downloads the primary-school dataset from the ISTAT SDMX
// REST service.
package istat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-school-projections/internal/model"

	"go.uber.org/zap"
)

// Agency is the ISTAT maintenance agency in SDMX data queries
const Agency = "IT1"

// Strategy is one way of asking the SDMX service for a dataflow.
type Strategy struct {
	Name   string
	Params url.Values
	Parse  func(source string, body []byte) (*Dataset, error)
}

// DefaultStrategies are tried in order: SDMX-CSV first since it needs no
// structure decoding, then SDMX-JSON.
var DefaultStrategies = []Strategy{
	{
		Name:   "sdmx-csv",
		Params: url.Values{"format": {"csv"}},
		Parse:  ParseSDMXCSV,
	},
	{
		Name:   "sdmx-json",
		Params: url.Values{"format": {"jsondata"}, "locale": {"it"}},
		Parse: func(_ string, body []byte) (*Dataset, error) {
			return ParseSDMXJSON(body)
		},
	},
}

// Client fetches dataflows over HTTP
type Client struct {
	BaseURL    string
	Dataflows  []string
	Strategies []Strategy
	Retry      model.RetryConfig
	HTTP       *http.Client
	Logger     *zap.Logger
}

// NewClient builds a client with the default strategies.
func NewClient(baseURL string, dataflows []string, timeout time.Duration, retry model.RetryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Dataflows:  dataflows,
		Strategies: DefaultStrategies,
		Retry:      retry,
		HTTP:       &http.Client{Timeout: timeout},
		Logger:     logger.Named("istat"),
	}
}

// FetchResult tells which strategy and dataflow produced the dataset
type FetchResult struct {
	Dataset  *Dataset
	Strategy string
	Dataflow string
	URL      string
}

// DataURL is the REST data query for a dataflow, all keys.
func (c *Client) DataURL(dataflow string, params url.Values) string {
	u := fmt.Sprintf("%s/data/%s,%s,1.0/all", c.BaseURL, Agency, dataflow)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Fetch tries every strategy against every dataflow id and returns the first
// dataset that downloads and parses. All failures are joined otherwise.
func (c *Client) Fetch(ctx context.Context) (*FetchResult, error) {
	if len(c.Dataflows) == 0 {
		return nil, errors.New("no dataflow ids configured")
	}
	var errs []error
	for _, s := range c.Strategies {
		for _, flow := range c.Dataflows {
			target := c.DataURL(flow, s.Params)
			log := c.Logger.With(zap.String("strategy", s.Name), zap.String("dataflow", flow))
			log.Info("requesting dataflow", zap.String("url", target))

			var ds *Dataset
			err := withRetry(ctx, c.Retry, log, s.Name, func(ctx context.Context) error {
				body, err := c.get(ctx, target)
				if err != nil {
					return err
				}
				parsed, err := s.Parse(target, body)
				if err != nil {
					return permanent(fmt.Errorf("parsing %s answer: %w", s.Name, err))
				}
				ds = parsed
				return nil
			})
			if err == nil {
				log.Info("dataflow downloaded", zap.Int("rows", len(ds.Rows)), zap.Strings("columns", ds.Columns))
				return &FetchResult{Dataset: ds, Strategy: s.Name, Dataflow: flow, URL: target}, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("strategy failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s %s: %w", s.Name, flow, err))
		}
	}
	return nil, fmt.Errorf("all download strategies failed: %w", errors.Join(errs...))
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, permanent(err)
	}
	req.Header.Set("Accept-Encoding", "identity")
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// WriteFile stores a dataset as CSV, creating parent directories.
func WriteFile(path string, ds *Dataset) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ds.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

package model

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when an input table holds no usable rows.
var ErrNoData = errors.New("no data")

// Error kinds recorded in run reports and the run_errors table
const (
	KindInsufficientHistory = "insufficient_history"
	KindMissingHorizonData  = "missing_horizon_data"
	KindUnmappedRegionCode  = "unmapped_region_code"
)

// RegionError is implemented by every non-fatal, per-region failure. The run
// skips the affected region and keeps going.
type RegionError interface {
	error
	Kind() string
	RegionName() string
}

// InsufficientHistoryError: a region has no usable historical rows.
type InsufficientHistoryError struct {
	Region string
	Reason string
}

func (e *InsufficientHistoryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("region %q: insufficient history", e.Region)
	}
	return fmt.Sprintf("region %q: insufficient history: %s", e.Region, e.Reason)
}

func (e *InsufficientHistoryError) Kind() string       { return KindInsufficientHistory }
func (e *InsufficientHistoryError) RegionName() string { return e.Region }

// MissingHorizonDataError: a region lacks a school estimate at the baseline or
// a horizon year, so no decline statistic can be computed.
type MissingHorizonDataError struct {
	Region string
	Year   int
}

func (e *MissingHorizonDataError) Error() string {
	return fmt.Sprintf("region %q: no school estimate for year %d", e.Region, e.Year)
}

func (e *MissingHorizonDataError) Kind() string       { return KindMissingHorizonData }
func (e *MissingHorizonDataError) RegionName() string { return e.Region }

// UnmappedRegionCodeError: an area code or region name is not in the registry.
type UnmappedRegionCodeError struct {
	Code   string
	Source string
}

func (e *UnmappedRegionCodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("unmapped region code %q", e.Code)
	}
	return fmt.Sprintf("%s: unmapped region code %q", e.Source, e.Code)
}

func (e *UnmappedRegionCodeError) Kind() string       { return KindUnmappedRegionCode }
func (e *UnmappedRegionCodeError) RegionName() string { return e.Code }

// AsRegionError unwraps err into a RegionError, if it is one.
func AsRegionError(err error) (RegionError, bool) {
	var re RegionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

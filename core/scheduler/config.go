package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/yatrik/scheduler/core/model"
)

// Wraparound selects how slots running past midnight are handled.
type Wraparound string

const (
	// WraparoundReject skips slots ending after midnight of the service date.
	WraparoundReject Wraparound = "reject"
	// WraparoundCarry keeps slots that start before midnight and end after
	// it; the trip gets an arrival date on the next day.
	WraparoundCarry Wraparound = "carry"
)

const (
	defaultFirstDeparture   = "08:00"
	defaultTimezone         = "Asia/Kolkata"
	defaultWriteConcurrency = 4

	// MaxSlotsPerRoute bounds MaxTripsPerRoute: at most one departure per
	// minute of the service day can start before midnight.
	MaxSlotsPerRoute = 24 * 60
	// MaxTimeGap bounds TimeGap to one day.
	MaxTimeGap = 24 * 60
)

// Options are the parameters of one mass scheduling run. The same names are
// used in the HTTP request body, options files and the schedule section of
// the configuration.
type Options struct {
	Date               string     `json:"date" yaml:"date"`
	DepotIDs           []string   `json:"depotIds" yaml:"depotIds"`
	MaxTripsPerRoute   int        `json:"maxTripsPerRoute" yaml:"maxTripsPerRoute"`
	TimeGap            int        `json:"timeGap" yaml:"timeGap"`
	FirstDeparture     string     `json:"firstDeparture" yaml:"firstDeparture"`
	Wraparound         Wraparound `json:"wraparound" yaml:"wraparound"`
	AutoAssignBuses    bool       `json:"autoAssignBuses" yaml:"autoAssignBuses"`
	AutoAssignCrew     bool       `json:"autoAssignCrew" yaml:"autoAssignCrew"`
	GenerateReports    bool       `json:"generateReports" yaml:"generateReports"`
	BorrowAcrossDepots bool       `json:"borrowAcrossDepots" yaml:"borrowAcrossDepots"`
	// Caps bound the trips given to one resource per run. Zero means unlimited.
	MaxTripsPerBus       int    `json:"maxTripsPerBus" yaml:"maxTripsPerBus"`
	MaxTripsPerDriver    int    `json:"maxTripsPerDriver" yaml:"maxTripsPerDriver"`
	MaxTripsPerConductor int    `json:"maxTripsPerConductor" yaml:"maxTripsPerConductor"`
	DefaultDemand        int    `json:"defaultDemand" yaml:"defaultDemand"`
	WriteConcurrency     int    `json:"writeConcurrency" yaml:"writeConcurrency"`
	Timezone             string `json:"timezone" yaml:"timezone"`
}

// DefaultOptions returns the options used when nothing overrides them.
// Decoders fill a copy of these so that absent keys keep their defaults.
func DefaultOptions() Options {
	return Options{
		MaxTripsPerRoute:     6,
		TimeGap:              30,
		FirstDeparture:       defaultFirstDeparture,
		Wraparound:           WraparoundReject,
		AutoAssignBuses:      true,
		AutoAssignCrew:       true,
		MaxTripsPerBus:       8,
		MaxTripsPerDriver:    6,
		MaxTripsPerConductor: 6,
		WriteConcurrency:     defaultWriteConcurrency,
		Timezone:             defaultTimezone,
	}
}

// SetDefaults fills fields whose zero value is not meaningful.
func (o *Options) SetDefaults() {
	if o.FirstDeparture == "" {
		o.FirstDeparture = defaultFirstDeparture
	}
	if o.Wraparound == "" {
		o.Wraparound = WraparoundReject
	}
	if o.WriteConcurrency <= 0 {
		o.WriteConcurrency = defaultWriteConcurrency
	}
	if o.Timezone == "" {
		o.Timezone = defaultTimezone
	}
}

// Validate checks the options. Every error wraps ErrInvalidOptions.
func (o Options) Validate() error {
	if o.MaxTripsPerRoute <= 0 {
		return fmt.Errorf("%w: maxTripsPerRoute must be positive", ErrInvalidOptions)
	}
	if o.MaxTripsPerRoute > MaxSlotsPerRoute {
		return fmt.Errorf("%w: maxTripsPerRoute must not exceed %d", ErrInvalidOptions, MaxSlotsPerRoute)
	}
	if o.TimeGap < 0 || o.TimeGap > MaxTimeGap {
		return fmt.Errorf("%w: timeGap must be between 0 and %d", ErrInvalidOptions, MaxTimeGap)
	}
	if o.MaxTripsPerBus < 0 || o.MaxTripsPerDriver < 0 || o.MaxTripsPerConductor < 0 {
		return fmt.Errorf("%w: trip caps must not be negative", ErrInvalidOptions)
	}
	if o.DefaultDemand < 0 {
		return fmt.Errorf("%w: defaultDemand must not be negative", ErrInvalidOptions)
	}
	if _, err := model.ParseClock(o.FirstDeparture); err != nil {
		return fmt.Errorf("%w: firstDeparture: %v", ErrInvalidOptions, err)
	}
	switch o.Wraparound {
	case WraparoundReject, WraparoundCarry:
	default:
		return fmt.Errorf("%w: unknown wraparound policy %q", ErrInvalidOptions, o.Wraparound)
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return fmt.Errorf("%w: timezone: %v", ErrInvalidOptions, err)
	}
	if o.Date != "" {
		if _, err := model.ParseDate(o.Date, loc); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	return nil
}

// ServiceDay resolves the service date in the configured timezone. An empty
// Date means the current day at now.
func (o Options) ServiceDay(now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timezone: %v", ErrInvalidOptions, err)
	}
	if o.Date == "" {
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := model.ParseDate(o.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return d, nil
}

// LoadOptions loads Options from a JSON or YAML file on top of base.
func LoadOptions(path string, base Options) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "yaml", "yml", "json":
		return DecodeOptions(f, ext, base)
	default:
		return base, fmt.Errorf("unsupported options format: %s", ext)
	}
}

// DecodeOptions reads Options from r on top of base.
func DecodeOptions(r io.Reader, format string, base Options) (Options, error) {
	opts := base
	opts.DepotIDs = append([]string(nil), base.DepotIDs...)
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
			return base, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
			return base, err
		}
	default:
		return base, fmt.Errorf("unsupported format: %s", format)
	}
	return opts, nil
}

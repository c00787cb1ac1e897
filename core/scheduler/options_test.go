package scheduler

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOptionsKeepsDefaults(t *testing.T) {
	data := "date: \"2025-03-14\"\ndepotIds: [d1, d2]\ntimeGap: 15\nautoAssignCrew: false\n"
	opts, err := DecodeOptions(bytes.NewBufferString(data), "yaml", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, opts.DepotIDs)
	assert.Equal(t, 15, opts.TimeGap)
	assert.False(t, opts.AutoAssignCrew)
	assert.True(t, opts.AutoAssignBuses)
	assert.Equal(t, 6, opts.MaxTripsPerRoute)
	assert.Equal(t, "08:00", opts.FirstDeparture)
}

func TestLoadOptionsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxTripsPerRoute": 3, "wraparound": "carry", "maxTripsPerBus": 0}`), 0o644))
	opts, err := LoadOptions(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, opts.MaxTripsPerRoute)
	assert.Equal(t, WraparoundCarry, opts.Wraparound)
	assert.Equal(t, 0, opts.MaxTripsPerBus, "explicit zero means unlimited")

	_, err = LoadOptions(filepath.Join(dir, "plan.toml"), DefaultOptions())
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	cases := map[string]func(*Options){
		"no trips":     func(o *Options) { o.MaxTripsPerRoute = 0 },
		"negative gap": func(o *Options) { o.TimeGap = -5 },
		"bad clock":    func(o *Options) { o.FirstDeparture = "25:00" },
		"bad policy":   func(o *Options) { o.Wraparound = "wrap" },
		"bad date":     func(o *Options) { o.Date = "14/03/2025" },
		"bad timezone": func(o *Options) { o.Timezone = "Mars/Olympus" },
		"negative cap": func(o *Options) { o.MaxTripsPerDriver = -1 },
		"huge trips":   func(o *Options) { o.MaxTripsPerRoute = 1 << 60 },
		"too many":     func(o *Options) { o.MaxTripsPerRoute = MaxSlotsPerRoute + 1 },
		"huge gap":     func(o *Options) { o.TimeGap = 1 << 60 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := DefaultOptions()
			mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOptions))
		})
	}
	assert.NoError(t, DefaultOptions().Validate())

	o := DefaultOptions()
	o.MaxTripsPerRoute = MaxSlotsPerRoute
	assert.NoError(t, o.Validate())
}

func TestServiceDay(t *testing.T) {
	o := DefaultOptions()
	o.Timezone = "Asia/Kolkata"
	// 20:00 UTC is already the next day in India
	now := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	day, err := o.ServiceDay(now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", day.Format("2006-01-02"))

	o.Date = "2025-01-01"
	day, err = o.ServiceDay(now)
	require.NoError(t, err)
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, "Asia/Kolkata", day.Location().String())
}

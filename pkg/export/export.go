// Package export renders run reports as JSON, CSV and HTML artifacts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/yatrik/scheduler/config"
	"github.com/yatrik/scheduler/core/scheduler"
)

// WriteJSON writes the full report to w.
func WriteJSON(w io.Writer, rep scheduler.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

var csvHeader = []string{
	"section", "route_id", "depot_id", "service_date", "start", "end",
	"trip_id", "bus_id", "driver_id", "conductor_id", "reason", "detail",
}

// WriteCSV writes one "trip" row per created trip followed by one "skip" row
// per skipped slot.
func WriteCSV(w io.Writer, rep scheduler.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range rep.Trips {
		rec := []string{
			"trip", t.RouteID, t.DepotID, t.ServiceDate, t.StartTime, t.EndTime,
			t.ID, t.BusID, t.DriverID, t.ConductorID, "", "",
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	for _, s := range rep.Skips {
		rec := []string{
			"skip", s.RouteID, s.DepotID, rep.ServiceDate, s.Start, s.End,
			"", "", "", "", string(s.Reason), s.Detail,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func utilizationBar(title string, us []scheduler.Utilization) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "id"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "trips"}),
	)
	ids := make([]string, len(us))
	trips := make([]opts.BarData, len(us))
	caps := make([]opts.BarData, len(us))
	for i, u := range us {
		ids[i] = u.ID
		trips[i] = opts.BarData{Value: u.Trips}
		caps[i] = opts.BarData{Value: u.Cap}
	}
	bar.SetXAxis(ids).AddSeries("trips", trips).AddSeries("cap", caps)
	return bar
}

// UtilizationChartHTML renders trips per bus, driver and conductor as an
// HTML page with one bar chart per resource kind.
func UtilizationChartHTML(rep scheduler.Report) (string, error) {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Utilization %s", rep.ServiceDate)
	page.AddCharts(
		utilizationBar("Buses", rep.Buses),
		utilizationBar("Drivers", rep.Drivers),
		utilizationBar("Conductors", rep.Conductors),
	)
	var b strings.Builder
	if err := page.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ExpandPath substitutes the {date} and {run_id} placeholders of path.
func ExpandPath(path string, rep scheduler.Report) string {
	return strings.NewReplacer("{date}", rep.ServiceDate, "{run_id}", rep.RunID).Replace(path)
}

// WriteArtifacts writes every artifact enabled in cfg and returns the paths
// written.
func WriteArtifacts(cfg config.ReportConfig, rep scheduler.Report) ([]string, error) {
	var written []string
	write := func(path string, render func(io.Writer) error) error {
		if path == "" {
			return nil
		}
		path = ExpandPath(path, rep)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := render(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}
	if err := write(cfg.JSONPath, func(w io.Writer) error { return WriteJSON(w, rep) }); err != nil {
		return written, err
	}
	if err := write(cfg.CSVPath, func(w io.Writer) error { return WriteCSV(w, rep) }); err != nil {
		return written, err
	}
	err := write(cfg.ChartPath, func(w io.Writer) error {
		html, err := UtilizationChartHTML(rep)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	})
	return written, err
}

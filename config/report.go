package config

// ReportConfig selects the artifacts written when a run asks for reports.
// Empty paths disable the corresponding artifact. Paths may contain
// {date} and {run_id} placeholders.
type ReportConfig struct {
	JSONPath  string `json:"json_path"`
	CSVPath   string `json:"csv_path"`
	ChartPath string `json:"chart_path"`
}

// Enabled reports whether any artifact is configured.
func (c ReportConfig) Enabled() bool {
	return c.JSONPath != "" || c.CSVPath != "" || c.ChartPath != ""
}

package runner

import "time"

const (
	defaultStatusInterval = 10 * time.Second
	defaultReportInterval = 5 * time.Second
	defaultReportTimeout  = 5 * time.Minute

	testModeStatusInterval = time.Second
	testModeReportInterval = time.Second
	testModeReportTimeout  = 15 * time.Second
)

// Options configure one orchestrated run.
type Options struct {
	Tenant        string // tenant identifier, used in artifact file names
	SendEmail     bool   // ask the service to mail the report when the run ends
	Initiator     string // initiator tag recorded on the remote run
	SkipPDFReport bool   // skip PDF generation during the report phase

	// TestMode shortens the polling intervals and the report budget so
	// configuration changes can be validated without a full-length run.
	TestMode bool

	StatusInterval time.Duration // pacing between status polls (0 = default)
	ReportInterval time.Duration // pacing between report polls (0 = default)
	ReportTimeout  time.Duration // budget for report generation (0 = default)
}

func (o *Options) normalize() {
	if o.StatusInterval <= 0 {
		o.StatusInterval = defaultStatusInterval
		if o.TestMode {
			o.StatusInterval = testModeStatusInterval
		}
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = defaultReportInterval
		if o.TestMode {
			o.ReportInterval = testModeReportInterval
		}
	}
	if o.ReportTimeout <= 0 {
		o.ReportTimeout = defaultReportTimeout
		if o.TestMode {
			o.ReportTimeout = testModeReportTimeout
		}
	}
}

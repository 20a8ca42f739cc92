// Package artifacts persists the files a finished run leaves behind:
// report artifacts, the run-result JSON and the host env file.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// Writer drops run artifacts into one directory. File failures are
// isolated: a file that cannot be written is logged and skipped, never
// escalated.
type Writer struct {
	dir          string
	invocationID string
}

// NewWriter creates the artifacts directory if needed.
func NewWriter(dir, invocationID string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts dir: %w", err)
	}
	return &Writer{dir: dir, invocationID: invocationID}, nil
}

// Dir returns the directory artifacts are written into.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteReports writes every fetched report artifact and returns how many
// landed on disk.
func (w *Writer) WriteReports(reports map[string][]byte) int {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)

	written := 0
	for _, name := range names {
		path := filepath.Join(w.dir, filepath.Base(name))
		if err := os.WriteFile(path, reports[name], 0o644); err != nil {
			log.Error().Err(err).Str("file", path).Msg("report file not written")
			continue
		}
		log.Info().Str("file", path).Msg("report file created")
		written++
	}
	return written
}

// WriteRunResult writes the invocation record as
// lrc_run_result_<invocationID>.json, pairing the options the run was
// started with and the run's final summary.
func (w *Writer) WriteRunResult(testOptions, testRun any) error {
	payload := map[string]any{
		"testOptions": testOptions,
		"testRun":     testRun,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("lrc_run_result_%s.json", w.invocationID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run result: %w", err)
	}
	log.Info().Str("file", path).Msg("run result written")
	return nil
}

// WriteEnvFile appends LRC_RUN_ID to the given env file, creating it if
// needed. Hosts source the file to pick up the run id.
func WriteEnvFile(path string, runID int64) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "LRC_RUN_ID=%d\n", runID); err != nil {
		f.Close()
		return fmt.Errorf("env file: %w", err)
	}
	return f.Close()
}

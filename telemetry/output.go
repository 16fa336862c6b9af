package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gekko3d/morphfield/config"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// OutputManager writes run artifacts under one directory: the effective
// config, frames.csv, perf.csv and PNG snapshots. A nil manager is valid
// and discards everything.
type OutputManager struct {
	dir       string
	session   uuid.UUID
	framesCSV *os.File
	perfCSV   *os.File

	framesHeaderWritten bool
	perfHeaderWritten   bool
}

// NewOutputManager creates dir and the CSV files in it.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, session: uuid.New()}
	f, err := os.Create(filepath.Join(dir, "frames.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating frames.csv: %w", err)
	}
	om.framesCSV = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.framesCSV.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfCSV = f
	return om, nil
}

func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Session identifies this run in every CSV row.
func (om *OutputManager) Session() string {
	if om == nil {
		return ""
	}
	return om.session.String()
}

// Path joins name onto the output directory.
func (om *OutputManager) Path(name string) string {
	return filepath.Join(om.dir, name)
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

func (om *OutputManager) WriteFrame(fs FrameStats) error {
	if om == nil {
		return nil
	}
	fs.Session = om.Session()
	if err := writeRow(om.framesCSV, []FrameStats{fs}, &om.framesHeaderWritten); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}
	return nil
}

func (om *OutputManager) WritePerf(ps PerfStats, frame uint64) error {
	if om == nil {
		return nil
	}
	row := ps.ToCSV(frame)
	row.Session = om.Session()
	if err := writeRow(om.perfCSV, []PerfStatsCSV{row}, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// writeRow emits the header with the first row only.
func writeRow[T any](f *os.File, rows []T, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(rows, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(rows, f)
}

// Close flushes and closes the CSV files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.framesCSV, om.perfCSV} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

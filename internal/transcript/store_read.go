package transcript

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotFound reports a run id with no directory in the archive.
var ErrNotFound = errors.New("transcript not found")

// Run describes one archived run.
type Run struct {
	Meta

	Path string `json:"path"`
}

// Closed reports whether the run finished recording.
func (r *Run) Closed() bool {
	return r.ClosedAt != nil
}

// ListRuns returns archived runs sorted by newest start time first.
func ListRuns(rootDir string) ([]Run, error) {
	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	runs := make([]Run, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		run, err := readRun(filepath.Join(rootDir, ent.Name()))
		if err != nil {
			continue
		}

		runs = append(runs, *run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// GetRun returns the archived run with the given id.
func GetRun(rootDir, runID string) (*Run, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	run, err := readRun(filepath.Join(rootDir, runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}

		return nil, err
	}

	return run, nil
}

func readRun(dir string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
	if err != nil {
		return nil, err
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode transcript meta: %w", err)
	}

	return &Run{Meta: meta, Path: dir}, nil
}

// ReadEvents reads all events recorded for a run. A run that never closed
// is read from its live file, since its compressed stream is incomplete.
func ReadEvents(rootDir, runID string) (events []Event, err error) {
	run, err := GetRun(rootDir, runID)
	if err != nil {
		return nil, err
	}

	if !run.Closed() {
		return readEventsFromLiveFile(run.Path)
	}

	file, err := os.Open(filepath.Join(run.Path, eventsFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return readEventsFromLiveFile(run.Path)
		}

		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		if closeErr := gzipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(gzipReader)
}

// readEventsFromLiveFile reads the plain JSONL copy of a run's events.
func readEventsFromLiveFile(runDir string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(runDir, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live transcript events for recovery: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(file)
}

func scanEvents(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return events, fmt.Errorf("scan transcript events: %w", err)
	}

	return events, nil
}

// StaleRuns returns the runs under rootDir that finished (or, if never
// closed, started) before cutoff.
func StaleRuns(rootDir string, cutoff time.Time) ([]Run, error) {
	runs, err := ListRuns(rootDir)
	if err != nil {
		return nil, err
	}

	var stale []Run

	for _, run := range runs {
		referenceTime := run.StartedAt
		if run.ClosedAt != nil {
			referenceTime = *run.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			stale = append(stale, run)
		}
	}

	return stale, nil
}

// RemoveRuns deletes the given runs and returns how many were removed.
func RemoveRuns(runs []Run) (int, error) {
	removed := 0

	for _, run := range runs {
		if err := os.RemoveAll(run.Path); err != nil {
			return removed, fmt.Errorf("prune transcript %q: %w", run.RunID, err)
		}

		removed++
	}

	return removed, nil
}

// PruneOlderThan removes every run StaleRuns reports for cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	stale, err := StaleRuns(rootDir, cutoff)
	if err != nil {
		return 0, err
	}

	return RemoveRuns(stale)
}

// DefaultRetention returns the default prune window.
func DefaultRetention() time.Duration {
	return defaultRetentionHours * time.Hour
}

func resolveRoot(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve transcript root directory: %w", err)
	}

	return dir, nil
}

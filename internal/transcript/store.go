// Package transcript archives round trips under the mcpprobe state directory.
//
// Each run gets its own directory holding meta.json and the captured output
// as a gzipped JSONL event stream. A plain JSONL copy is written alongside as
// events arrive, so a run that was killed before Close can still be read.
package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musher-dev/mcpprobe/internal/paths"
)

const (
	defaultRetentionHours = 24 * 30
	eventsFileName        = "events.jsonl.gz"
	eventsLiveFileName    = "events.live.jsonl"
	metaFileName          = "meta.json"
)

// Event is one chunk of output recorded during a run.
type Event struct {
	RunID     string    `json:"runId"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	RawBase64 string    `json:"rawBase64"`
	Text      string    `json:"text,omitempty"`
}

// Meta describes a run for listing and pruning.
type Meta struct {
	RunID     string     `json:"runId"`
	Tool      string     `json:"tool"`
	Command   []string   `json:"command"`
	Transport string     `json:"transport"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	State     string     `json:"state,omitempty"`
	FailedAt  string     `json:"failedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Outcome is how a run ended, recorded when the store closes.
type Outcome struct {
	State    string
	FailedAt string
	Error    string
}

// StoreOptions controls where and what a store records.
type StoreOptions struct {
	// RunID names the run directory. Empty generates one.
	RunID string

	// Dir is the archive root. Empty uses DefaultDir.
	Dir string

	Tool      string
	Command   []string
	Transport string
}

// Store records one run.
type Store struct {
	mu sync.Mutex

	dir     string
	meta    Meta
	outcome Outcome
	seq     uint64

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	closed bool
}

// DefaultDir returns the default archive root.
func DefaultDir() (string, error) {
	return paths.TranscriptsDir()
}

// NewRunID returns a run id that sorts by start time.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// NewStore creates the run directory and starts recording.
func NewStore(opts StoreOptions) (*Store, error) {
	startedAt := time.Now().UTC()

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID(startedAt)
	}

	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	root := opts.Dir
	if root == "" {
		var err error

		root, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	runDir := filepath.Join(root, runID)
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(runDir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // runDir/runID are validated and controlled
	if err != nil {
		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(runDir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // runDir/runID are validated and controlled
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live transcript events: %w", err)
	}

	gz := gzip.NewWriter(f)

	s := &Store{
		dir: runDir,
		meta: Meta{
			RunID:     runID,
			Tool:      opts.Tool,
			Command:   opts.Command,
			Transport: opts.Transport,
			StartedAt: startedAt,
		},
		file:     f,
		gz:       gz,
		bw:       bufio.NewWriterSize(gz, 64*1024),
		liveFile: liveFile,
		liveBW:   bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := s.writeMeta(&s.meta); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) writeMeta(meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal transcript meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write transcript meta: %w", err)
	}

	return nil
}

// RunID returns the id of the recorded run.
func (s *Store) RunID() string {
	return s.meta.RunID
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return s.dir
}

// Append records chunk as output of stage.
func (s *Store) Append(stage string, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("transcript store is closed")
	}

	s.seq++
	ev := Event{
		RunID:     s.meta.RunID,
		Seq:       s.seq,
		TS:        time.Now().UTC(),
		Stage:     stage,
		RawBase64: base64.StdEncoding.EncodeToString(chunk),
		Text:      string(chunk),
	}

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	line = append(line, '\n')
	if _, err := s.bw.Write(line); err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}

	if _, err := s.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live transcript event: %w", err)
	}

	if err := s.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live transcript event: %w", err)
	}

	return nil
}

// SetOutcome records how the run ended. It is written by Close.
func (s *Store) SetOutcome(o Outcome) {
	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
}

// Close flushes the event stream and finalizes meta.json.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()
	meta := s.meta
	meta.ClosedAt = &now
	meta.State = s.outcome.State
	meta.FailedAt = s.outcome.FailedAt
	meta.Error = s.outcome.Error

	var errs []error
	if err := s.writeMeta(&meta); err != nil {
		errs = append(errs, err)
	}

	if s.bw != nil {
		if err := s.bw.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.liveBW != nil {
		if err := s.liveBW.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.gz != nil {
		if err := s.gz.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.liveFile != nil {
		if err := s.liveFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateRunID(runID string) error {
	if runID == "" {
		return errors.New("run id is required")
	}

	if runID != filepath.Base(runID) || strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("invalid run id %q", runID)
	}

	return nil
}

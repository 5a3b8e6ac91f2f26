package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestStoreAppendReadAndList(t *testing.T) {
	tmp := t.TempDir()

	s, err := NewStore(StoreOptions{
		RunID:     "r-1",
		Dir:       tmp,
		Tool:      "get_weather_alerts",
		Command:   []string{"dotnet", "run"},
		Transport: "pipe",
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := s.Append("ready", []byte("Application started.")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := s.Append("response", []byte(`{"result":{}}`+"\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := s.Append("tail", nil); err != nil {
		t.Fatalf("Append(nil) error = %v", err)
	}

	s.SetOutcome(Outcome{State: "closed"})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	evs, err := ReadEvents(tmp, "r-1")
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	var stages []string
	for _, ev := range evs {
		stages = append(stages, ev.Stage)
	}

	if !reflect.DeepEqual(stages, []string{"ready", "response"}) {
		t.Fatalf("event stages = %v, want [ready response]", stages)
	}

	if evs[0].Text != "Application started." || evs[1].Seq != 2 {
		t.Fatalf("events = %+v", evs)
	}

	list, err := ListRuns(tmp)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}

	if len(list) != 1 || list[0].RunID != "r-1" || list[0].Tool != "get_weather_alerts" {
		t.Fatalf("ListRuns() = %#v", list)
	}

	if !list[0].Closed() || list[0].State != "closed" {
		t.Fatalf("run = %+v, want closed with outcome recorded", list[0])
	}
}

func TestAppendAfterClose(t *testing.T) {
	s, err := NewStore(StoreOptions{RunID: "r-closed", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := s.Append("ready", []byte("late")); err == nil {
		t.Fatal("Append() after Close should fail")
	}
}

func TestReadEvents_UnclosedRunUsesLiveFile(t *testing.T) {
	tmp := t.TempDir()

	s, err := NewStore(StoreOptions{RunID: "r-crashed", Dir: tmp})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append("ready", []byte("booting\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	evs, err := ReadEvents(tmp, "r-crashed")
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(evs) != 1 || evs[0].Text != "booting\n" {
		t.Fatalf("ReadEvents() = %+v, want the live event", evs)
	}
}

func TestNewStore_GeneratesRunID(t *testing.T) {
	tmp := t.TempDir()

	s, err := NewStore(StoreOptions{Dir: tmp})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	defer s.Close()

	if !strings.Contains(s.RunID(), "Z-") {
		t.Fatalf("RunID() = %q, want timestamp-uuid form", s.RunID())
	}

	if s.Dir() != filepath.Join(tmp, s.RunID()) {
		t.Fatalf("Dir() = %q, want run directory under %q", s.Dir(), tmp)
	}
}

func TestInvalidRunIDs(t *testing.T) {
	for _, id := range []string{"../escape", "a/b", `a\b`, ".."} {
		if _, err := NewStore(StoreOptions{RunID: id, Dir: t.TempDir()}); err == nil {
			t.Errorf("NewStore(%q) should fail", id)
		}

		if _, err := ReadEvents(t.TempDir(), id); err == nil {
			t.Errorf("ReadEvents(%q) should fail", id)
		}
	}
}

func TestGetRun_NotFound(t *testing.T) {
	_, err := GetRun(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRuns_MissingRoot(t *testing.T) {
	runs, err := ListRuns(filepath.Join(t.TempDir(), "absent"))
	if err != nil || runs != nil {
		t.Fatalf("ListRuns() = %v, %v; want nil, nil", runs, err)
	}
}

func TestPruneOlderThan(t *testing.T) {
	tmp := t.TempDir()

	for _, id := range []string{"old", "new"} {
		s, err := NewStore(StoreOptions{RunID: id, Dir: tmp})
		if err != nil {
			t.Fatalf("NewStore(%s) error = %v", id, err)
		}

		if err := s.Append("ready", []byte(id+"\n")); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}

		if err := s.Close(); err != nil {
			t.Fatalf("Close(%s) error = %v", id, err)
		}
	}

	removed, err := PruneOlderThan(tmp, time.Now().Add(-time.Hour))
	if err != nil || removed != 0 {
		t.Fatalf("PruneOlderThan(past) = %d, %v; want 0, nil", removed, err)
	}

	removed, err = PruneOlderThan(tmp, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan error = %v", err)
	}

	if removed != 2 {
		t.Fatalf("PruneOlderThan removed = %d, want 2", removed)
	}

	if _, err := os.Stat(filepath.Join(tmp, "old")); !os.IsNotExist(err) {
		t.Fatalf("old run should be removed, stat err = %v", err)
	}
}

func TestStaleRuns_UnclosedUsesStartTime(t *testing.T) {
	tmp := t.TempDir()

	s, err := NewStore(StoreOptions{RunID: "open", Dir: tmp})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := s.Append("ready", []byte("up\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	stale, err := StaleRuns(tmp, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleRuns() error = %v", err)
	}

	if len(stale) != 1 || stale[0].RunID != "open" || stale[0].Closed() {
		t.Fatalf("StaleRuns() = %+v, want the unclosed run", stale)
	}

	stale, err = StaleRuns(tmp, time.Now().Add(-time.Minute))
	if err != nil || len(stale) != 0 {
		t.Fatalf("StaleRuns(past) = %+v, %v; want none", stale, err)
	}

	_ = s.Close()
}

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alakbarr/Interview-Matrix/internal/config"
)

const watchBase = `
server:
  log_level: info
live:
  voice: Puck
seed:
  topic: Raft
`

const watchVoiceAndLevel = `
server:
  log_level: debug
live:
  voice: Charon
seed:
  topic: Raft
`

const watchTopic = `
server:
  log_level: info
live:
  voice: Puck
seed:
  topic: Paxos
`

const watchBroken = `
server:
  log_level: bananas
`

// rewrite replaces the file and moves its mtime forward so the change is
// visible even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func newWatched(t *testing.T, content string, apply func(config.Reload)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrixvoice.yaml")
	rewrite(t, path, content, -time.Hour)
	w, err := config.NewWatcher(path, apply)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestWatcherInitialLoad(t *testing.T) {
	w, _ := newWatched(t, watchBase, nil)
	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo || cfg.Seed.Topic != "Raft" {
		t.Errorf("Current() = %+v", cfg)
	}
	if cfg.Audio.SampleRate == 0 {
		t.Error("defaults were not applied to the initial load")
	}
}

func TestWatcherMissingFile(t *testing.T) {
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestWatcherPoll(t *testing.T) {
	tests := []struct {
		name        string
		next        string
		wantApplied bool
		check       func(t *testing.T, r config.Reload)
	}{
		{
			name:        "voice and level",
			next:        watchVoiceAndLevel,
			wantApplied: true,
			check: func(t *testing.T, r config.Reload) {
				if !r.Diff.LogLevelChanged || r.Diff.NewLogLevel != config.LogDebug {
					t.Errorf("log level diff = %+v", r.Diff)
				}
				if !r.Diff.LiveChanged || !r.Diff.SessionChanged() {
					t.Error("voice change not reported as a session change")
				}
				if r.Diff.SeedChanged {
					t.Error("seed reported changed")
				}
				if r.Old.Live.Voice != "Puck" || r.New.Live.Voice != "Charon" {
					t.Errorf("voices old=%q new=%q", r.Old.Live.Voice, r.New.Live.Voice)
				}
			},
		},
		{
			name:        "topic only",
			next:        watchTopic,
			wantApplied: true,
			check: func(t *testing.T, r config.Reload) {
				if !r.Diff.SeedChanged || r.Diff.SessionChanged() || r.Diff.LogLevelChanged {
					t.Errorf("diff = %+v", r.Diff)
				}
			},
		},
		{name: "same bytes touched", next: watchBase},
		{name: "invalid content", next: watchBroken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []config.Reload
			w, path := newWatched(t, watchBase, func(r config.Reload) { got = append(got, r) })
			rewrite(t, path, tt.next, 0)

			applied, err := w.Poll()
			if tt.next == watchBroken {
				if err == nil {
					t.Error("Poll accepted an invalid file")
				}
			} else if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if applied != tt.wantApplied || len(got) != btoi(tt.wantApplied) {
				t.Fatalf("applied=%v callbacks=%d, want %v", applied, len(got), tt.wantApplied)
			}
			if tt.wantApplied {
				tt.check(t, got[0])
				if w.Current() != got[0].New {
					t.Error("Current() is not the reloaded config")
				}
			} else if w.Current().Live.Voice != "Puck" || w.Current().Server.LogLevel != config.LogInfo {
				t.Errorf("current config changed: %+v", w.Current())
			}
		})
	}
}

func TestWatcherPollUnchangedMtime(t *testing.T) {
	calls := 0
	w, _ := newWatched(t, watchBase, func(config.Reload) { calls++ })
	for range 3 {
		if applied, err := w.Poll(); applied || err != nil {
			t.Fatalf("Poll = %v, %v", applied, err)
		}
	}
	if calls != 0 {
		t.Errorf("callback ran %d times", calls)
	}
}

func TestWatcherRecoversAfterInvalidFile(t *testing.T) {
	var levels []config.LogLevel
	w, path := newWatched(t, watchBase, func(r config.Reload) { levels = append(levels, r.New.Server.LogLevel) })

	rewrite(t, path, watchBroken, -30*time.Minute)
	if _, err := w.Poll(); err == nil {
		t.Fatal("expected an error for the broken file")
	}
	rewrite(t, path, watchVoiceAndLevel, 0)
	if applied, err := w.Poll(); !applied || err != nil {
		t.Fatalf("Poll = %v, %v", applied, err)
	}
	if len(levels) != 1 || levels[0] != config.LogDebug {
		t.Errorf("levels = %v", levels)
	}
}

func TestWatcherRunAppliesEnvOverlay(t *testing.T) {
	t.Setenv("GEMINI_VOICE", "Kore")

	reloads := make(chan config.Reload, 1)
	path := filepath.Join(t.TempDir(), "matrixvoice.yaml")
	rewrite(t, path, watchBase, -time.Hour)
	w, err := config.NewWatcher(path, func(r config.Reload) { reloads <- r }, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if w.Current().Live.Voice != "Kore" {
		t.Errorf("initial voice = %q, want env override", w.Current().Live.Voice)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, watchTopic, 0)
	select {
	case r := <-reloads:
		if r.New.Seed.Topic != "Paxos" || r.New.Live.Voice != "Kore" {
			t.Errorf("reloaded topic=%q voice=%q", r.New.Seed.Topic, r.New.Live.Voice)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not pick up the change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

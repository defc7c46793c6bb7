package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

// RoomsWatcher polls rooms.yaml and hands every valid revision to OnUpdate.
type RoomsWatcher struct {
	Path     string
	Interval time.Duration
	OnUpdate func(*RoomsConfig)
	// OnError receives load failures of changed revisions; the previous catalog stays active.
	OnError func(error)

	lastMod time.Time
}

// Start performs the initial load synchronously and then polls until ctx is done.
func (w *RoomsWatcher) Start(ctx context.Context) error {
	if w.Path == "" {
		w.Path = "configs/rooms.yaml"
	}
	if w.Interval <= 0 {
		w.Interval = 30 * time.Second
	}

	info, err := os.Stat(w.Path)
	if err != nil {
		return fmt.Errorf("stat rooms config: %w", err)
	}
	cfg, err := LoadRoomsConfig(w.Path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.publish(cfg)

	go w.loop(ctx)
	return nil
}

func (w *RoomsWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll reloads the file if its modification time moved forward.
// It reports whether a new revision was published.
func (w *RoomsWatcher) Poll() bool {
	info, err := os.Stat(w.Path)
	if err != nil {
		return false // transient errors
	}
	if !info.ModTime().After(w.lastMod) {
		return false
	}

	// Remember the revision even when it is invalid so a broken file is reported once.
	w.lastMod = info.ModTime()

	cfg, err := LoadRoomsConfig(w.Path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return false
	}
	w.publish(cfg)
	return true
}

func (w *RoomsWatcher) publish(cfg *RoomsConfig) {
	if w.OnUpdate != nil {
		w.OnUpdate(cfg)
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/bamsammich/beamsync/internal/manifest"
)

const watchBufferSize = 256

// Watch reconciles the folder after local changes settle and requests a
// sync round when a reconcile bumps any version. Files installed by
// sessions trigger events too, but reconcile finds their digests unchanged.
func (n *Node) Watch(ctx context.Context) error {
	root := n.store.Root()
	events := make(chan notify.EventInfo, watchBufferSize)
	if err := notify.Watch(filepath.Join(root, "..."), events,
		notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	defer notify.Stop(events)
	slog.Info("watching folder", "folder", root, "debounce", n.cfg.Debounce)

	timer := time.NewTimer(n.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ei := <-events:
			if ignoredEvent(root, ei.Path()) {
				continue
			}
			timer.Reset(n.cfg.Debounce)
		case <-timer.C:
			res, err := n.reconcile(ctx)
			if err != nil {
				slog.Error("reconcile failed", "error", err)
				continue
			}
			if len(res.Changed) > 0 {
				n.requestRound()
			}
		}
	}
}

// ignoredEvent filters events for the metadata directory and in-flight
// temp files.
func ignoredEvent(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == manifest.MetaDir || strings.HasPrefix(rel, manifest.MetaDir+"/") {
		return true
	}
	return strings.Contains(filepath.Base(path), manifest.TempSuffix)
}

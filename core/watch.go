package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/pom"
)

// watchDebounce is how long watch mode waits for exec writes to settle.
const watchDebounce = 500 * time.Millisecond

// ExecuteWatch writes the reports once, then again whenever an exec file
// below a module's build directory is created or written. It returns when ctx is done.
func ExecuteWatch(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error {
	plan, err := planModules(cfg, pom.NewResolver(cfg.FS()))
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	targets := newWatchTargets(watcher)
	for _, dir := range watchDirs(plan) {
		targets.add(dir)
	}
	contract.LogInfo("Watching %d directories for execution data changes", targets.watched)

	// Reruns never overlap.
	var runMu sync.Mutex
	run := func(ctx context.Context) {
		runMu.Lock()
		defer runMu.Unlock()
		if err := ExecuteReport(ctx, cfg, mgr); err != nil {
			contract.LogWarn("Report failed", err)
		}
	}
	run(ctx)

	d := newDebouncer(watchDebounce, func() { run(withSuppressHeader(ctx)) })
	defer d.stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if targets.created(event) {
				continue
			}
			if isExecChange(event) {
				contract.LogDebug("Execution data changed: %s", event.Name)
				d.trigger()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			contract.LogWarn("Watch error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// watchDirs returns the directories holding each module's exec files.
func watchDirs(plan *modulePlan) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, m := range plan.modules {
		dir := plan.dataDir[m.DescriptorPath]
		if dir == m.BaseDir {
			dir = filepath.Join(dir, pom.DefaultBuildDir)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// dirWatcher is the part of fsnotify.Watcher that watchTargets needs.
type dirWatcher interface {
	Add(name string) error
}

// watchTargets adds exec directories to a watcher. A directory that does not exist yet
// is watched through its parent and added once it is created.
type watchTargets struct {
	w       dirWatcher
	pending map[string]bool
	watched int
}

func newWatchTargets(w dirWatcher) *watchTargets {
	return &watchTargets{w: w, pending: map[string]bool{}}
}

func (t *watchTargets) add(dir string) {
	dir = filepath.Clean(dir)
	err := t.w.Add(dir)
	if err == nil {
		t.watched++
		return
	}
	parent := filepath.Dir(dir)
	if perr := t.w.Add(parent); perr != nil {
		contract.LogDebug("Not watching %s: %v", dir, err)
		return
	}
	contract.LogDebug("Waiting for %s to be created", dir)
	t.pending[dir] = true
}

// created starts watching a pending directory when event reports its creation.
func (t *watchTargets) created(event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)
	if !event.Has(fsnotify.Create) || !t.pending[name] {
		return false
	}
	if err := t.w.Add(name); err != nil {
		contract.LogDebug("Not watching %s: %v", name, err)
		return true
	}
	delete(t.pending, name)
	t.watched++
	contract.LogDebug("Watching %s", name)
	return true
}

func isExecChange(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".exec") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}

// debouncer runs fn once after a quiet period following the last trigger.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	fn      func()
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

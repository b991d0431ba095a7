package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/pipeline"
)

// Notifier is a pipeline observer that fires hooks for frames with
// detections. Each hook runs at most once per cooldown and never has more
// than one run in flight; frames arriving meanwhile are not queued.
type Notifier struct {
	manager  *Manager
	executor *Executor
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
	running map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier firing the hooks known to manager.
func NewNotifier(manager *Manager, executor *Executor) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		manager:  manager,
		executor: executor,
		now:      time.Now,
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnFrame implements pipeline.Observer.
func (n *Notifier) OnFrame(res pipeline.Result) {
	if res.Skipped || res.Malformed || len(res.Detections) == 0 {
		return
	}

	for _, hook := range n.manager.List() {
		selected := hook.Manifest.Select(res.Detections)
		if selected == nil || !n.claim(hook) {
			continue
		}

		req := &Request{
			Event:      "detections",
			Hook:       hook.Manifest.Name,
			Timestamp:  res.Timestamp,
			SentAt:     n.now(),
			Detections: selected,
			Config:     hook.Manifest.Config,
		}

		n.wg.Add(1)
		go n.run(hook, req)
	}
}

// OnPerformance implements pipeline.Observer.
func (n *Notifier) OnPerformance(metrics.Snapshot) {}

// claim reserves a run of hook if it is idle and out of cooldown.
func (n *Notifier) claim(hook *Hook) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	name := hook.Manifest.Name
	now := n.now()
	if n.running[name] {
		return false
	}
	if last, ok := n.lastRun[name]; ok && now.Sub(last) < hook.Manifest.Cooldown() {
		return false
	}

	n.running[name] = true
	n.lastRun[name] = now
	return true
}

func (n *Notifier) run(hook *Hook, req *Request) {
	defer n.wg.Done()
	defer func() {
		n.mu.Lock()
		n.running[hook.Manifest.Name] = false
		n.mu.Unlock()
	}()

	resp, err := n.executor.Execute(n.ctx, hook, req)
	if err != nil {
		logging.Warn(logging.Fields{"hook": hook.Manifest.Name, "error": err}, "Hook failed")
		return
	}
	if !resp.Success {
		logging.Warn(logging.Fields{"hook": hook.Manifest.Name, "error": resp.Error}, "Hook reported failure")
		return
	}
	logging.Debug(logging.Fields{"hook": hook.Manifest.Name, "detections": len(req.Detections)}, "Hook fired")
}

// Close cancels running hooks and waits for them to exit.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
}

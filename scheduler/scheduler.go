package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// TaskInfo describes a registered ticker for inspection.
type TaskInfo struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Runs         uint64        `json:"runs"`
	Panics       uint64        `json:"panics"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	MaxDuration  time.Duration `json:"max_duration"`
}

// Scheduler runs named periodic tasks, one goroutine per task.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	stopCh  chan struct{}
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}

	mu   sync.Mutex
	info TaskInfo
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker starts fn on a fixed interval under name. Registering a name
// again stops the previous task first, so callers can retune a cadence
// without a Remove.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		info:   TaskInfo{Name: name, Interval: interval},
	}

	s.mu.Lock()
	if prev := s.tickers[name]; prev != nil {
		close(prev.stopCh)
	}
	s.tickers[name] = entry
	s.mu.Unlock()

	go s.loop(entry, fn)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(entry *tickerEntry, fn TaskFn) {
	defer entry.ticker.Stop()
	for {
		select {
		case <-entry.stopCh:
			return
		case <-s.stopCh:
			return
		case <-entry.ticker.C:
			s.run(entry, fn)
		}
	}
}

func (s *Scheduler) run(entry *tickerEntry, fn TaskFn) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				s.logger.Error("scheduler task panicked",
					zap.String("task", entry.info.Name),
					zap.Any("recover", r))
			}
		}()
		fn()
	}()
	took := time.Since(start)

	entry.mu.Lock()
	entry.info.Runs++
	if panicked {
		entry.info.Panics++
	}
	entry.info.LastRun = start
	entry.info.LastDuration = took
	if took > entry.info.MaxDuration {
		entry.info.MaxDuration = took
	}
	overrun := took > entry.info.Interval
	entry.mu.Unlock()

	if overrun {
		s.logger.Warn("scheduler task overran its interval",
			zap.String("task", entry.info.Name), zap.Duration("took", took))
	}
}

// Remove stops the named task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	entry := s.tickers[name]
	delete(s.tickers, name)
	s.mu.Unlock()
	if entry != nil {
		close(entry.stopCh)
	}
}

// Stop halts every task. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// ListTickers returns the sorted names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns a copy of every ticker's counters, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	entries := make([]*tickerEntry, 0, len(s.tickers))
	for _, e := range s.tickers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.info)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

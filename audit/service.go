package audit

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Sources of a cast entry.
const (
	SourceRotation = "rotation"
	SourceFishing  = "fishing"
	SourceAPI      = "api"
)

// CastEntry is one dispatched cast to be recorded.
type CastEntry struct {
	DecisionID string
	TraceID    string
	Profile    string
	SpellID    uint32
	SpellName  string
	Target     world.GUID
	Priority   int
	Accepted   bool
	Source     string
	Error      string
}

// Service writes cast entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.CastLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger

	mu    sync.Mutex
	drops int64
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.CastLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues a cast entry. It never blocks; a full queue drops the entry.
func (svc *Service) Log(entry CastEntry) {
	record := &model.CastLog{
		DecisionID: entry.DecisionID,
		TraceID:    entry.TraceID,
		Profile:    entry.Profile,
		SpellID:    entry.SpellID,
		SpellName:  entry.SpellName,
		TargetGUID: entry.Target.String(),
		Priority:   entry.Priority,
		Accepted:   entry.Accepted,
		Source:     entry.Source,
		Error:      entry.Error,
	}
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.mu.Lock()
		svc.drops++
		svc.mu.Unlock()
		svc.logger.Warn("audit channel full, dropping entry",
			zap.Uint32("spell_id", entry.SpellID), zap.String("source", entry.Source))
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (svc *Service) Dropped() int64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.drops
}

// Recent returns the newest n cast logs, newest first.
func (svc *Service) Recent(ctx context.Context, n int) ([]model.CastLog, error) {
	var logs []model.CastLog
	err := svc.db.WithContext(ctx).Order("id desc").Limit(n).Find(&logs).Error
	return logs, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.CastLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

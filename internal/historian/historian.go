// Package historian drains the action log from redis into postgres and marks
// games that stopped producing actions as abandoned.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink stores batches of action records. database.Store implements it.
type Sink interface {
	InsertActions(ctx context.Context, recs []models.GameActionRecord) error
	// MarkAbandoned flags a still-active game and reports whether a row changed.
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

type Options struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
	Inactivity    time.Duration
	// PollTimeout bounds each BLPop so cancellation and flush ticks are noticed.
	PollTimeout time.Duration
}

// Service is the historian worker. Run blocks until its context is cancelled.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	opts   Options
	logger *logrus.Logger

	batchMu sync.Mutex
	batch   []models.GameActionRecord

	activityMu   sync.Mutex
	lastActivity map[uuid.UUID]time.Time
}

func New(rdb *redis.Client, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	return &Service{
		rdb:          rdb,
		sink:         sink,
		opts:         opts,
		logger:       logger,
		batch:        make([]models.GameActionRecord, 0, opts.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run starts the inactivity sweeper and consumes the queue until ctx is done.
// The pending batch is flushed before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithField("queue", s.opts.Queue).Info("historian started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Flush(flushCtx)

	s.logger.Info("historian stopped")
	return nil
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			res, err := s.rdb.BLPop(ctx, s.opts.PollTimeout, s.opts.Queue).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				s.logger.Errorf("BLPop: %v", err)
				// avoid spinning while redis is unreachable
				select {
				case <-ctx.Done():
				case <-time.After(s.opts.PollTimeout):
				}
				continue
			}
			// res[0] is the queue name and res[1] the payload
			if len(res) < 2 {
				continue
			}
			var rec models.GameActionRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.logger.Warnf("invalid action record: %v", err)
				continue
			}
			s.Add(ctx, rec)
		}
	}
}

// Add tracks activity for the record's game and appends it to the batch,
// flushing once the batch is full.
func (s *Service) Add(ctx context.Context, rec models.GameActionRecord) {
	s.activityMu.Lock()
	if rec.ActionType == models.ActionGameEnd {
		delete(s.lastActivity, rec.GameID)
	} else {
		s.lastActivity[rec.GameID] = time.Now()
	}
	s.activityMu.Unlock()

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.opts.BatchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes the pending batch in one call to the sink.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

// Pending is the number of records not yet written.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	out := make([]models.GameActionRecord, len(s.batch))
	copy(out, s.batch)

	if err := s.sink.InsertActions(ctx, out); err != nil {
		// keep the batch for the next attempt, bounded so a dead database cannot
		// grow it without limit
		limit := s.opts.BatchSize * 10
		if len(s.batch) > limit {
			dropped := len(s.batch) - limit
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
			s.logger.Errorf("flush failed, dropped %d oldest actions: %v", dropped, err)
			return
		}
		s.logger.Errorf("flush failed, will retry %d actions: %v", len(s.batch), err)
		return
	}
	s.batch = s.batch[:0]
	s.logger.Debugf("flushed %d actions", len(out))
}

func (s *Service) inactivityLoop(ctx context.Context) {
	every := s.opts.Inactivity / 4
	if every > time.Minute {
		every = time.Minute
	}
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep marks every game idle for longer than the inactivity window as
// abandoned and stops tracking it. It returns the games it marked.
func (s *Service) Sweep(ctx context.Context, now time.Time) []uuid.UUID {
	var stale []uuid.UUID
	s.activityMu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.activityMu.Unlock()

	var marked []uuid.UUID
	for _, id := range stale {
		changed, err := s.sink.MarkAbandoned(ctx, id)
		if err != nil {
			s.logger.WithField("game_id", id).Errorf("failed to mark game abandoned: %v", err)
			continue
		}
		if changed {
			s.logger.WithField("game_id", id).Info("marked game abandoned due to inactivity")
			marked = append(marked, id)
		}
	}
	return marked
}

// Tracked is the number of games with recent activity.
func (s *Service) Tracked() int {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return len(s.lastActivity)
}

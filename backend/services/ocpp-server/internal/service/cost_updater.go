package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

// A task stops after this many consecutive ticks that find its transaction gone or ended.
const maxInactiveTicks = 2

// TotalCostCalculator prices a transaction.
type TotalCostCalculator interface {
	CalculateTotalCost(ctx context.Context, stationID string, transactionDBID int64, totalKwh *float64) (float64, error)
}

// CallSender issues a server-initiated call and waits for the station's answer.
type CallSender interface {
	SendCall(ctx context.Context, mc ocpp.MessageContext, action string, payload interface{}) (json.RawMessage, error)
}

type costTaskKey struct {
	stationID     string
	transactionID string
}

type costTask struct {
	cancel context.CancelFunc
}

// CostUpdater pushes CostUpdated calls for running transactions on a fixed interval.
// At most one task runs per (station, transaction id).
type CostUpdater struct {
	transactions TransactionStore
	calculator   TotalCostCalculator
	sender       CallSender
	events       *EventPublisher
	metrics      *metrics.Metrics
	logger       *zap.Logger

	root     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
	tasks  map[costTaskKey]*costTask
}

// NewCostUpdater builds an updater. events and m may be nil.
func NewCostUpdater(transactions TransactionStore, calculator TotalCostCalculator, sender CallSender, events *EventPublisher, m *metrics.Metrics, logger *zap.Logger) *CostUpdater {
	root, shutdown := context.WithCancel(context.Background())
	return &CostUpdater{
		transactions: transactions,
		calculator:   calculator,
		sender:       sender,
		events:       events,
		metrics:      m,
		logger:       logger,
		root:         root,
		shutdown:     shutdown,
		tasks:        make(map[costTaskKey]*costTask),
	}
}

// Start arms a task for the transaction. It reports false when interval is not positive,
// a task is already armed or the updater is closed.
func (u *CostUpdater) Start(mc ocpp.MessageContext, transactionID string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	key := costTaskKey{stationID: mc.StationID, transactionID: transactionID}

	u.mu.Lock()
	if _, exists := u.tasks[key]; exists || u.closed {
		u.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(u.root)
	task := &costTask{cancel: cancel}
	u.tasks[key] = task
	n := len(u.tasks)
	u.wg.Add(1)
	u.mu.Unlock()

	u.metrics.SetCostUpdaters(n)
	u.logger.Info("cost updates armed",
		zap.String("station_id", mc.StationID),
		zap.String("transaction_id", transactionID),
		zap.Duration("interval", interval),
	)

	go u.run(ctx, key, task, mc, interval)
	return true
}

// Stop cancels the transaction's task and reports whether one was armed.
func (u *CostUpdater) Stop(stationID, transactionID string) bool {
	key := costTaskKey{stationID: stationID, transactionID: transactionID}

	u.mu.Lock()
	task, ok := u.tasks[key]
	if ok {
		delete(u.tasks, key)
	}
	n := len(u.tasks)
	u.mu.Unlock()

	if !ok {
		return false
	}
	task.cancel()
	u.metrics.SetCostUpdaters(n)
	return true
}

// Active reports the number of armed tasks.
func (u *CostUpdater) Active() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.tasks)
}

// Close cancels every task and waits for them to return.
func (u *CostUpdater) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()

	u.shutdown()
	u.wg.Wait()
}

func (u *CostUpdater) run(ctx context.Context, key costTaskKey, task *costTask, mc ocpp.MessageContext, interval time.Duration) {
	defer u.wg.Done()
	defer u.release(key, task)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	inactive := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if u.tick(ctx, mc, key.transactionID) {
			inactive = 0
			continue
		}
		inactive++
		if inactive >= maxInactiveTicks {
			u.logger.Info("cost updates stopped, transaction no longer active",
				zap.String("station_id", key.stationID),
				zap.String("transaction_id", key.transactionID),
			)
			return
		}
	}
}

// release forgets task unless Stop already replaced or removed it.
func (u *CostUpdater) release(key costTaskKey, task *costTask) {
	task.cancel()

	u.mu.Lock()
	if current, ok := u.tasks[key]; ok && current == task {
		delete(u.tasks, key)
	}
	n := len(u.tasks)
	u.mu.Unlock()

	u.metrics.SetCostUpdaters(n)
}

// tick pushes one cost update and reports whether the transaction is still active.
func (u *CostUpdater) tick(ctx context.Context, mc ocpp.MessageContext, transactionID string) bool {
	log := u.logger.With(
		zap.String("station_id", mc.StationID),
		zap.String("tenant_id", mc.TenantID),
		zap.String("transaction_id", transactionID),
	)

	tx, err := u.transactions.ReadTransaction(ctx, mc.StationID, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		u.metrics.CostUpdate("inactive")
		return false
	}
	if err != nil {
		u.metrics.CostUpdate("error")
		log.Warn("cost update skipped, transaction lookup failed", zap.Error(err))
		return true
	}
	if !tx.IsActive {
		u.metrics.CostUpdate("inactive")
		return false
	}

	cost, err := u.calculator.CalculateTotalCost(ctx, mc.StationID, tx.ID, nil)
	if err != nil {
		u.metrics.CostUpdate("error")
		log.Warn("cost update skipped, calculation failed", zap.Error(err))
		return true
	}

	if _, err := u.sender.SendCall(ctx, mc, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{
		TotalCost:     cost,
		TransactionID: transactionID,
	}); err != nil {
		if ctx.Err() == nil {
			u.metrics.CostUpdate("error")
			log.Warn("cost update not confirmed", zap.Float64("total_cost", cost), zap.Error(err))
		}
		return true
	}

	u.metrics.CostUpdate("sent")
	log.Info("cost update confirmed", zap.Float64("total_cost", cost))
	u.events.Publish(SubjectTransactionCostUpdated, TransactionLifecycleEvent{
		StationID:     mc.StationID,
		TenantID:      mc.TenantID,
		TransactionID: transactionID,
		IsActive:      true,
		TotalCost:     &cost,
		Timestamp:     time.Now().UTC(),
	})
	return true
}

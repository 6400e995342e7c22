package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/metrics"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

// Orchestrator owns the per-account sync loops. Each enabled account gets
// one goroutine that runs a cycle on the configured interval or when an
// on-demand trigger arrives. Failures back the loop off exponentially up to
// a cap; a successful cycle resets the backoff.
type Orchestrator struct {
	cfg         *config.SyncConfig
	engine      interfaces.SyncEngine
	coordinator interfaces.SyncCoordinator
	accounts    interfaces.AccountRepository
	log         logger.Logger

	mu       sync.RWMutex
	statuses map[string]*interfaces.AccountSyncStatus
	triggers map[string]chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewOrchestrator(
	cfg *config.SyncConfig,
	engine interfaces.SyncEngine,
	coordinator interfaces.SyncCoordinator,
	accounts interfaces.AccountRepository,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		engine:      engine,
		coordinator: coordinator,
		accounts:    accounts,
		log:         log,
		statuses:    make(map[string]*interfaces.AccountSyncStatus),
		triggers:    make(map[string]chan struct{}),
	}
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.started = true
	o.mu.Unlock()

	accounts, err := o.accounts.ListEnabled(o.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list enabled accounts")
	}

	for _, account := range accounts {
		o.ensureLoop(account)
	}
	o.log.Infof("sync orchestrator started with %d accounts", len(accounts))

	// Accounts registered after startup get picked up by the refresh loop.
	o.wg.Add(1)
	go o.refreshAccounts()

	return nil
}

func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.log.Info("sync orchestrator stopped")
}

// TriggerSync requests an immediate cycle for the account. A cycle already
// in flight yields TriggerBusy; the trigger never blocks.
func (o *Orchestrator) TriggerSync(ctx context.Context, accountID string) (interfaces.TriggerOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.TriggerSync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, accountID)

	o.mu.RLock()
	status := o.statuses[accountID]
	trigger := o.triggers[accountID]
	o.mu.RUnlock()

	if status != nil && status.CurrentlyRunning {
		return interfaces.TriggerBusy, nil
	}

	if trigger == nil {
		account, err := o.accounts.GetByID(ctx, accountID)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", err
		}
		if !account.Enabled {
			return "", er.ErrAccountDisabled
		}
		trigger = o.ensureLoop(account)
	}

	select {
	case trigger <- struct{}{}:
		return interfaces.TriggerAccepted, nil
	default:
		// a trigger is already queued
		return interfaces.TriggerBusy, nil
	}
}

func (o *Orchestrator) Status(accountID string) (*interfaces.AccountSyncStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status, ok := o.statuses[accountID]
	if !ok {
		return nil, er.ErrAccountNotFound
	}
	copied := *status
	return &copied, nil
}

func (o *Orchestrator) StatusAll() map[string]interfaces.AccountSyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make(map[string]interfaces.AccountSyncStatus, len(o.statuses))
	for id, status := range o.statuses {
		result[id] = *status
	}
	return result
}

// ensureLoop registers the account and starts its loop if one is not
// already running. Returns the trigger channel.
func (o *Orchestrator) ensureLoop(account *models.Account) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	if trigger, ok := o.triggers[account.ID]; ok {
		return trigger
	}

	trigger := make(chan struct{}, 1)
	o.triggers[account.ID] = trigger
	o.statuses[account.ID] = &interfaces.AccountSyncStatus{
		AccountID:   account.ID,
		LastSyncAt:  account.LastSyncAt,
		LastOutcome: account.LastOutcome,
		LastError:   account.LastError,
	}

	o.wg.Add(1)
	go o.runAccountLoop(account, trigger)

	return trigger
}

func (o *Orchestrator) runAccountLoop(account *models.Account, trigger chan struct{}) {
	defer o.wg.Done()
	defer tracing.RecoverAndLogToJaeger(o.log)

	backoff := time.Duration(0)
	wait := o.cfg.CheckInterval()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-time.After(wait):
		case <-trigger:
		}

		err := o.runCycle(account)
		switch {
		case err == nil:
			backoff = 0
			wait = o.cfg.CheckInterval()
		case errors.Is(err, er.ErrSyncBusy):
			// someone else holds the lease, try again on the normal interval
			wait = o.cfg.CheckInterval()
		default:
			backoff = o.nextBackoff(backoff)
			wait = backoff
			o.log.Warnf("[%s] sync failed, next attempt in %s: %v", account.ID, wait, err)
		}
	}
}

func (o *Orchestrator) nextBackoff(current time.Duration) time.Duration {
	initial := time.Duration(o.cfg.BackoffInitialSeconds) * time.Second
	max := time.Duration(o.cfg.BackoffMaxSeconds) * time.Second

	if current == 0 {
		return initial
	}
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// runCycle runs one guarded sync cycle: acquire the account lease, sync,
// record the outcome, release.
func (o *Orchestrator) runCycle(account *models.Account) error {
	span, ctx := tracing.StartTracerSpan(o.ctx, "Orchestrator.runCycle")
	defer span.Finish()
	tracing.TagComponentSync(span)
	tracing.TagAccount(span, account.ID)

	lease, err := o.coordinator.TryAcquire(ctx, account.ID)
	if err != nil {
		if errors.Is(err, er.ErrSyncBusy) {
			metrics.LeaseAcquireBusy.Inc()
			o.log.Debugf("[%s] sync already in flight, skipping cycle", account.ID)
			return er.ErrSyncBusy
		}
		tracing.TraceErr(span, err)
		return err
	}
	defer func() {
		if releaseErr := o.coordinator.Release(ctx, lease); releaseErr != nil {
			o.log.Errorf("[%s] failed to release sync lease: %v", account.ID, releaseErr)
		}
	}()

	o.setRunning(account.ID, true)
	defer o.setRunning(account.ID, false)

	started := time.Now()
	result, err := o.engine.SyncAccount(ctx, account)

	outcome := enum.SyncOutcomeSuccess
	errMsg := ""
	switch {
	case err != nil:
		outcome = enum.SyncOutcomeFailed
		errMsg = err.Error()
		tracing.TraceErr(span, err)
	case result.Failed > 0:
		outcome = enum.SyncOutcomePartial
	}
	metrics.RecordSyncCycle(outcome.String(), time.Since(started))

	o.recordOutcome(ctx, account.ID, outcome, errMsg, result)
	return err
}

func (o *Orchestrator) setRunning(accountID string, running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status, ok := o.statuses[accountID]; ok {
		status.CurrentlyRunning = running
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, accountID string, outcome enum.SyncOutcome, errMsg string, result *interfaces.CycleResult) {
	now := utils.Now()

	o.mu.Lock()
	if status, ok := o.statuses[accountID]; ok {
		status.LastSyncAt = &now
		status.LastOutcome = outcome
		status.LastError = errMsg
		if result != nil {
			status.Counts = *result
		}
	}
	o.mu.Unlock()

	committed := int64(0)
	if result != nil {
		committed = int64(result.Committed)
	}
	if err := o.accounts.RecordSyncOutcome(ctx, accountID, outcome, errMsg, committed); err != nil {
		o.log.Errorf("[%s] failed to record sync outcome: %v", accountID, err)
	}
}

// refreshAccounts periodically re-lists enabled accounts and starts loops
// for ones registered after startup.
func (o *Orchestrator) refreshAccounts() {
	defer o.wg.Done()

	interval := 5 * o.cfg.CheckInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			accounts, err := o.accounts.ListEnabled(o.ctx)
			if err != nil {
				o.log.Errorf("failed to refresh account list: %v", err)
				continue
			}
			for _, account := range accounts {
				o.ensureLoop(account)
			}
		}
	}
}

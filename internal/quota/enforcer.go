package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"xrayguard/internal/xray"
)

// StatsProvider is the slice of the accounting client the enforcer
// needs. *xray.StatsClient satisfies it.
type StatsProvider interface {
	GetUsage(ctx context.Context, email string) (*xray.Usage, error)
	GetAllUsage(ctx context.Context) ([]xray.Usage, error)
}

// Result is the enforcement outcome for one user
type Result struct {
	Email          string     `json:"email"`
	UsedBytes      int64      `json:"usedBytes"`
	QuotaBytes     int64      `json:"quotaBytes"`
	UsagePercent   float64    `json:"usagePercent"`
	AlertLevel     AlertLevel `json:"alertLevel"`
	WasDisabled    bool       `json:"wasDisabled"`
	PreviousStatus Status     `json:"previousStatus"`
}

// Summary aggregates one enforcement pass
type Summary struct {
	RunID              string    `json:"runId"`
	TotalChecked       int       `json:"totalChecked"`
	NormalCount        int       `json:"normalCount"`
	WarningCount       int       `json:"warningCount"`
	ExceededCount      int       `json:"exceededCount"`
	NewlyDisabledCount int       `json:"newlyDisabledCount"`
	Results            []Result  `json:"results"`
	Timestamp          time.Time `json:"timestamp"`
}

// Enforcer composes the store and the accounting client into the
// classify-and-possibly-disable decision loop.
type Enforcer struct {
	store *Store
	stats StatsProvider
}

// NewEnforcer creates an enforcer over the given store and stats source
func NewEnforcer(store *Store, stats StatsProvider) *Enforcer {
	return &Enforcer{store: store, stats: stats}
}

// EnforceQuotas checks every quota-bearing user and, when autoDisable is
// set, transitions active users that crossed their ceiling to exceeded.
// An unavailable stats endpoint never fails the pass; classification
// falls back to the cached counters, stale but safe.
func (e *Enforcer) EnforceQuotas(ctx context.Context, autoDisable bool) (*Summary, error) {
	var (
		wg        sync.WaitGroup
		quotas    map[string]Quota
		quotasErr error
		usages    []xray.Usage
	)

	// Quotas and fresh usages are independent reads; fetch them together
	wg.Add(2)
	go func() {
		defer wg.Done()
		quotas, quotasErr = e.store.GetAllQuotas()
	}()
	go func() {
		defer wg.Done()
		// Contract: unavailable stats yield an empty slice, not an error
		usages, _ = e.stats.GetAllUsage(ctx)
	}()
	wg.Wait()

	if quotasErr != nil {
		return nil, quotasErr
	}

	freshByEmail := make(map[string]xray.Usage, len(usages))
	for _, u := range usages {
		freshByEmail[u.Email] = u
	}

	// Deterministic pass order; decision logic is strictly sequential
	emails := make([]string, 0, len(quotas))
	for email := range quotas {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	summary := &Summary{
		RunID:     uuid.NewString(),
		Results:   make([]Result, 0, len(emails)),
		Timestamp: nowFunc().UTC(),
	}

	for _, email := range emails {
		q := quotas[email]
		if q.Unlimited() {
			continue
		}

		used := q.UsedBytes
		if fresh, ok := freshByEmail[email]; ok {
			used = fresh.Total
		}

		percent := UsagePercent(used, q.QuotaBytes)
		result := Result{
			Email:          email,
			UsedBytes:      used,
			QuotaBytes:     q.QuotaBytes,
			UsagePercent:   percent,
			AlertLevel:     AlertLevelFor(percent),
			PreviousStatus: q.Status,
		}

		switch result.AlertLevel {
		case AlertNormal:
			summary.NormalCount++
		case AlertWarning:
			summary.WarningCount++
		case AlertExceeded:
			summary.ExceededCount++
			if autoDisable && q.Status == StatusActive {
				// Each transition is independently idempotent; a failure
				// here aborts the pass with prior transitions standing.
				if err := e.store.SetStatus(email, StatusExceeded); err != nil {
					return nil, err
				}
				result.WasDisabled = true
				summary.NewlyDisabledCount++
			}
		}

		summary.Results = append(summary.Results, result)
	}

	summary.TotalChecked = len(summary.Results)
	return summary, nil
}

// CheckUser runs the enforcement rule for a single user. Unlimited users
// are not applicable and yield (nil, nil), distinct from a normal-level
// result.
func (e *Enforcer) CheckUser(ctx context.Context, email string, autoDisable bool) (*Result, error) {
	q, err := e.store.GetQuota(email)
	if err != nil {
		return nil, err
	}
	if q.Unlimited() {
		return nil, nil
	}

	used := q.UsedBytes
	if fresh, err := e.stats.GetUsage(ctx, email); err == nil && fresh != nil {
		used = fresh.Total
	}

	percent := UsagePercent(used, q.QuotaBytes)
	result := &Result{
		Email:          email,
		UsedBytes:      used,
		QuotaBytes:     q.QuotaBytes,
		UsagePercent:   percent,
		AlertLevel:     AlertLevelFor(percent),
		PreviousStatus: q.Status,
	}

	if autoDisable && result.AlertLevel == AlertExceeded && q.Status == StatusActive {
		if err := e.store.SetStatus(email, StatusExceeded); err != nil {
			return nil, err
		}
		result.WasDisabled = true
	}

	return result, nil
}

// UsersNeedingAttention returns the warning and exceeded results of a
// read-only pass.
func (e *Enforcer) UsersNeedingAttention(ctx context.Context) ([]Result, error) {
	summary, err := e.EnforceQuotas(ctx, false)
	if err != nil {
		return nil, err
	}

	attention := make([]Result, 0)
	for _, r := range summary.Results {
		if r.AlertLevel != AlertNormal {
			attention = append(attention, r)
		}
	}
	return attention, nil
}

// ReenableUser sets the user back to active, optionally zeroing the
// consumed counter as well. The engine never does this on its own.
func (e *Enforcer) ReenableUser(ctx context.Context, email string, resetUsage bool) error {
	if err := e.store.SetStatus(email, StatusActive); err != nil {
		return err
	}
	if resetUsage {
		return e.store.ResetUsage(email)
	}
	return nil
}

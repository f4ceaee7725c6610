// Package alerting turns scored rule hits into alerts and, for
// first-time subjects, suspicious-activity case records.
package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

// stripeCount bounds lock contention; alerts for the same
// (account, rule) pair always serialize on the same stripe.
const stripeCount = 32

// Generator creates alerts with at-most-one-open-alert semantics per
// (account, rule) pair. The striped locks close the check-then-insert
// race in process; the store's partial unique index closes it across
// processes.
type Generator struct {
	repo domain.Repository
	bus  domain.EventBus
	cfg  domain.AlertingConfig

	locks [stripeCount]sync.Mutex

	now func() time.Time
}

// NewGenerator creates an alert generator.
func NewGenerator(repo domain.Repository, bus domain.EventBus, cfg domain.AlertingConfig) *Generator {
	return &Generator{
		repo: repo,
		bus:  bus,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// GenerateAlert raises an alert for a hit, or returns the existing open
// alert for the same account and rule. The second return reports
// whether a new alert was created.
func (g *Generator) GenerateAlert(ctx context.Context, tx *domain.Transaction, ec *domain.EvalContext, hit *domain.RuleHit) (*domain.Alert, bool, error) {
	stripe := &g.locks[stripeIndex(tx.AccountNumber, hit.RuleID)]
	stripe.Lock()
	defer stripe.Unlock()

	existing, err := g.repo.GetOpenAlert(ctx, tx.AccountNumber, hit.RuleID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check open alerts: %w", err)
	}

	family := ruleFamily(hit.RuleID)
	now := g.now()

	alert := &domain.Alert{
		ID:            alertID(family, now),
		RuleID:        hit.RuleID,
		RuleName:      hit.RuleName,
		AccountNumber: tx.AccountNumber,
		TxID:          tx.ID,
		Score:         hit.Score,
		RiskLevel:     hit.RiskLevel,
		Status:        domain.AlertStatusNew,
		Narrative:     BuildNarrative(tx, hit, family),
		Details:       hit.Details,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ec.Customer != nil {
		alert.CustomerID = ec.Customer.ID
	}

	if err := g.repo.SaveAlert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicateAlert) {
			// Lost the race to another process; the open alert wins.
			existing, gerr := g.repo.GetOpenAlert(ctx, tx.AccountNumber, hit.RuleID)
			if gerr != nil {
				return nil, false, fmt.Errorf("failed to load conflicting alert: %w", gerr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to save alert: %w", err)
	}

	g.publish(ctx, domain.TopicAlertRaised, alert)

	if g.cfg.CasesEnabled {
		if err := g.maybeOpenCase(ctx, tx, alert, hit, family); err != nil {
			// The alert stands regardless; case opening is best effort
			// against a store that just accepted the alert.
			slog.Warn("failed to open case for first-time alert subject",
				"alert_id", alert.ID, "account", tx.AccountNumber, "error", err)
		}
	}

	return alert, true, nil
}

// maybeOpenCase opens a case record when the account has never alerted
// before this one.
func (g *Generator) maybeOpenCase(ctx context.Context, tx *domain.Transaction, alert *domain.Alert, hit *domain.RuleHit, family string) error {
	count, err := g.repo.CountAlertsByAccount(ctx, tx.AccountNumber)
	if err != nil {
		return err
	}
	if count != 1 {
		return nil
	}

	start, end := windowFromDetails(hit.Details, tx.Timestamp)
	total := tx.Amount
	if t, ok := detailDecimalValue(hit.Details, "total_amount"); ok {
		total = t
	}

	c := &domain.Case{
		Reference:     caseReference(tx.ID, g.now()),
		AlertID:       alert.ID,
		AccountNumber: tx.AccountNumber,
		CustomerID:    alert.CustomerID,
		ActivityType:  activityType(family),
		WindowStart:   start,
		WindowEnd:     end,
		TotalAmount:   total,
		Currency:      tx.Currency,
		Status:        domain.CaseStatusOpen,
		OpenedAt:      g.now(),
	}
	c.Summary = BuildCaseSummary(c, alert)

	if err := g.repo.SaveCase(ctx, c); err != nil {
		return err
	}
	g.publish(ctx, domain.TopicCaseOpened, c)
	return nil
}

// RiskLevel classifies a score against the generator's cut points.
func (g *Generator) RiskLevel(score int) string {
	switch {
	case score >= g.cfg.HighRiskScore:
		return domain.RiskLevelHigh
	case score >= g.cfg.MediumRiskScore:
		return domain.RiskLevelMedium
	}
	return domain.RiskLevelLow
}

func (g *Generator) publish(ctx context.Context, topic string, payload interface{}) {
	if g.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := g.bus.Publish(ctx, topic, raw); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// activityType classifies a rule family for the case record.
func activityType(family string) string {
	switch family {
	case rules.FamilyStructuring:
		return domain.ActivityStructuring
	case rules.FamilyJurisdiction:
		return domain.ActivitySanctionsViolation
	}
	return domain.ActivityUnusual
}

func ruleFamily(ruleID string) string {
	if i := strings.Index(ruleID, "-"); i > 0 {
		return ruleID[:i]
	}
	return ruleID
}

// alertID formats alert identifiers; only the suffix is random.
func alertID(family string, now time.Time) string {
	return fmt.Sprintf("ALT-%s-%s-%s", family, now.Format("20060102150405"), uuid.New().String()[:4])
}

func caseReference(txID string, now time.Time) string {
	prefix := txID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("SAR-%s-%s-%s", prefix, now.Format("20060102"), uuid.New().String()[:4])
}

func stripeIndex(accountNumber, ruleID string) int {
	h := fnv.New32a()
	h.Write([]byte(accountNumber))
	h.Write([]byte{'|'})
	h.Write([]byte(ruleID))
	return int(h.Sum32() % stripeCount)
}

func detailDecimalValue(details domain.Details, key string) (decimal.Decimal, bool) {
	switch v := details[key].(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	}
	return decimal.Zero, false
}

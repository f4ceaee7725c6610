package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/txtype"
)

func testTx(code string, amount int64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            "tx-under-test",
		AccountNumber: "ACC-1",
		TypeCode:      code,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Timestamp:     ts,
	}
}

func historyTx(code string, amount int64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            "tx-hist-" + ts.Format("20060102150405"),
		AccountNumber: "ACC-1",
		TypeCode:      code,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Timestamp:     ts,
	}
}

func TestLargeCashRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewLargeCashRule(largeCashConfig(), types)

	t.Run("TriggersAtThreshold", func(t *testing.T) {
		triggered, details, err := rule.Evaluate(context.Background(), testTx("CASH DEP", 10000, testAsOf), evalCtx())
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Error("expected trigger at the reporting threshold")
		}
		if details["recent_cash_in"] == nil {
			t.Error("expected recent cash-in evidence")
		}
	})

	t.Run("PassesBelowThreshold", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 9999, testAsOf), evalCtx())
		if triggered {
			t.Error("sub-threshold deposit should not trigger")
		}
	})

	t.Run("CurrencyScoped", func(t *testing.T) {
		cfg := largeCashConfig()
		cfg.Parameters["currency"] = "USD"
		scoped := NewLargeCashRule(cfg, types)

		tx := testTx("CASH DEP", 60000, testAsOf)
		tx.Currency = "EUR"
		triggered, _, _ := scoped.Evaluate(context.Background(), tx, evalCtx())
		if triggered {
			t.Error("rule scoped to USD should ignore EUR deposits")
		}
	})

	t.Run("AggregatesRecentCash", func(t *testing.T) {
		history := evalCtx(
			historyTx("CASH DEP", 5000, testAsOf.AddDate(0, 0, -3)),
			historyTx("WIRE", 7000, testAsOf.AddDate(0, 0, -4)), // not cash-in
		)
		_, details, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), history)

		recent, ok := details["recent_cash_in"].(decimal.Decimal)
		if !ok {
			t.Fatal("expected decimal recent_cash_in")
		}
		if !recent.Equal(decimal.NewFromInt(17000)) {
			t.Errorf("expected recent cash-in 17000, got %s", recent)
		}
	})
}

func TestStructuringRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewStructuringRule(&domain.RuleConfig{
		ID:        "STR-CCE-INN-A-D02",
		Name:      "Structured cash deposits",
		Family:    FamilyStructuring,
		TypeGroup: txtype.GroupCashIn,
		Parameters: domain.Parameters{
			"aggregate_threshold": 9000,
			"report_threshold":    10000,
			"min_count":           3,
			"window_days":         2,
		},
		Enabled: true,
	}, types)

	t.Run("TriggersOnSplitDeposits", func(t *testing.T) {
		ec := evalCtx(
			historyTx("CASH DEP", 3000, testAsOf.Add(-4*time.Hour)),
			historyTx("CASH DEP", 3000, testAsOf.Add(-20*time.Hour)),
		)
		triggered, details, err := rule.Evaluate(context.Background(), testTx("CASH DEP", 3000, testAsOf), ec)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("expected trigger for 3 x 3000 inside the window")
		}
		if details["occurrences"] != 3 {
			t.Errorf("expected 3 occurrences, got %v", details["occurrences"])
		}
		if uniform, _ := details["uniform_amounts"].(bool); !uniform {
			t.Error("equal split amounts should be reported as uniform")
		}
	})

	t.Run("NearUniformAmounts", func(t *testing.T) {
		// 2900/3000/3100: spread 200 is under 20% of the 3000 average.
		ec := evalCtx(
			historyTx("CASH DEP", 2900, testAsOf.Add(-4*time.Hour)),
			historyTx("CASH DEP", 3100, testAsOf.Add(-20*time.Hour)),
		)
		triggered, details, err := rule.Evaluate(context.Background(), testTx("CASH DEP", 3000, testAsOf), ec)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("expected trigger for near-uniform split deposits")
		}
		if uniform, _ := details["uniform_amounts"].(bool); !uniform {
			t.Error("tightly clustered amounts should be reported as uniform")
		}
	})

	t.Run("ScatteredAmountsNotUniform", func(t *testing.T) {
		// 1500/3000/4500: spread 3000 equals the average, far over 20%.
		ec := evalCtx(
			historyTx("CASH DEP", 1500, testAsOf.Add(-4*time.Hour)),
			historyTx("CASH DEP", 4500, testAsOf.Add(-20*time.Hour)),
		)
		triggered, details, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 3000, testAsOf), ec)
		if !triggered {
			t.Fatal("expected trigger for scattered split deposits")
		}
		if uniform, _ := details["uniform_amounts"].(bool); uniform {
			t.Error("widely spread amounts should not be reported as uniform")
		}
	})

	t.Run("TooFewDeposits", func(t *testing.T) {
		ec := evalCtx(historyTx("CASH DEP", 4500, testAsOf.Add(-4*time.Hour)))
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 4500, testAsOf), ec)
		if triggered {
			t.Error("two deposits should not satisfy min_count 3")
		}
	})

	t.Run("BelowAggregateThreshold", func(t *testing.T) {
		ec := evalCtx(
			historyTx("CASH DEP", 1000, testAsOf.Add(-4*time.Hour)),
			historyTx("CASH DEP", 1000, testAsOf.Add(-8*time.Hour)),
		)
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 1000, testAsOf), ec)
		if triggered {
			t.Error("aggregate of 3000 should not reach the 9000 threshold")
		}
	})

	t.Run("ReportableAmountExcluded", func(t *testing.T) {
		// At or above the reporting threshold the large-cash rule owns it.
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 10000, testAsOf), evalCtx())
		if triggered {
			t.Error("reportable deposit is not structuring")
		}
	})

	t.Run("OldDepositsOutsideWindow", func(t *testing.T) {
		ec := evalCtx(
			historyTx("CASH DEP", 4000, testAsOf.AddDate(0, 0, -5)),
			historyTx("CASH DEP", 4000, testAsOf.AddDate(0, 0, -6)),
		)
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 4000, testAsOf), ec)
		if triggered {
			t.Error("deposits outside the 2-day window should not count")
		}
	})
}

func TestDormantActivityRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewDormantActivityRule(&domain.RuleConfig{
		ID:        "ADR-ALL-ALL-A-M06",
		Name:      "Dormant account sudden activity",
		Family:    FamilyDormant,
		TypeGroup: txtype.GroupAll,
		Parameters: domain.Parameters{
			"account_age_days":              180,
			"activity_amount":               10000,
			"inactive_period_months":        6,
			"max_prior_activity":            100,
			"recent_activity_period_months": 1,
		},
		Enabled: true,
	}, types)

	dormantAccount := func() *domain.Account {
		lastActivity := testAsOf.AddDate(0, -8, 0)
		return &domain.Account{
			Number:         "ACC-1",
			Status:         domain.AccountStatusActive,
			OpenedAt:       testAsOf.AddDate(-3, 0, 0),
			LastActivityAt: &lastActivity,
		}
	}

	t.Run("TriggersAfterDormancy", func(t *testing.T) {
		ec := evalCtx()
		ec.Account = dormantAccount()

		triggered, details, err := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), ec)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("expected trigger for high-value activity on a dormant account")
		}
		recent, _ := details["recent_activity"].(decimal.Decimal)
		if !recent.Equal(decimal.NewFromInt(12000)) {
			t.Errorf("expected recent activity 12000, got %s", recent)
		}
	})

	t.Run("StatusFlagAloneSuffices", func(t *testing.T) {
		recent := testAsOf.AddDate(0, 0, -2)
		ec := evalCtx()
		ec.Account = &domain.Account{
			Number:         "ACC-1",
			Status:         domain.AccountStatusDormant,
			OpenedAt:       testAsOf.AddDate(-3, 0, 0),
			LastActivityAt: &recent,
		}

		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), ec)
		if !triggered {
			t.Error("institution dormancy flag should qualify without derived inactivity")
		}
	})

	t.Run("ActiveAccountIgnored", func(t *testing.T) {
		ec := evalCtx(
			historyTx("CASH DEP", 2000, testAsOf.AddDate(0, -2, 0)),
			historyTx("BILL PMT", 500, testAsOf.AddDate(0, -3, 0)),
		)
		lastActivity := testAsOf.AddDate(0, 0, -10)
		ec.Account = &domain.Account{
			Number:         "ACC-1",
			Status:         domain.AccountStatusActive,
			OpenedAt:       testAsOf.AddDate(-3, 0, 0),
			LastActivityAt: &lastActivity,
		}

		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), ec)
		if triggered {
			t.Error("account with steady prior activity is not dormant")
		}
	})

	t.Run("SmallActivityIgnored", func(t *testing.T) {
		ec := evalCtx()
		ec.Account = dormantAccount()

		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 500, testAsOf), ec)
		if triggered {
			t.Error("low-value activity should not wake the rule")
		}
	})

	t.Run("YoungAccountIgnored", func(t *testing.T) {
		ec := evalCtx()
		ec.Account = &domain.Account{
			Number:   "ACC-1",
			Status:   domain.AccountStatusActive,
			OpenedAt: testAsOf.AddDate(0, -2, 0),
		}

		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), ec)
		if triggered {
			t.Error("accounts younger than the minimum age are excluded")
		}
	})

	t.Run("NoAccountContext", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 12000, testAsOf), evalCtx())
		if triggered {
			t.Error("rule needs account context to assess dormancy")
		}
	})
}

func TestRapidMovementRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewRapidMovementRule(&domain.RuleConfig{
		ID:        "RFM-TRF-OUT-A-H24",
		Name:      "Rapid movement of funds",
		Family:    FamilyRapidMovement,
		TypeGroup: txtype.GroupTransfer,
		Parameters: domain.Parameters{
			"percentage":   75,
			"window_hours": 24,
		},
		Enabled: true,
	}, types)

	t.Run("TriggersOnPassThrough", func(t *testing.T) {
		ec := evalCtx(historyTx("CASH DEP", 10000, testAsOf.Add(-2*time.Hour)))
		triggered, details, err := rule.Evaluate(context.Background(), testTx("WIRE", 8000, testAsOf), ec)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("80% outflow within a day should trigger")
		}
		moved, _ := details["moved_percentage"].(decimal.Decimal)
		if !moved.Equal(decimal.NewFromInt(80)) {
			t.Errorf("expected 80%% moved, got %s", moved)
		}
		if details["splitting"] != nil {
			t.Error("single outbound leg should not report splitting")
		}
	})

	t.Run("SplittingPatternReported", func(t *testing.T) {
		// A lower percentage makes room for the antecedent deposit to
		// dwarf each outgoing leg.
		loose := NewRapidMovementRule(&domain.RuleConfig{
			ID:        "RFM-TRF-OUT-A-H25",
			Name:      "Rapid movement of funds",
			Family:    FamilyRapidMovement,
			TypeGroup: txtype.GroupTransfer,
			Parameters: domain.Parameters{
				"percentage":   30,
				"window_hours": 24,
			},
			Enabled: true,
		}, types)

		leg := historyTx("WIRE", 9000, testAsOf.Add(-2*time.Hour))
		leg.CounterpartyAccount = "ACC-DEST-1"
		ec := evalCtx(
			historyTx("CASH DEP", 25000, testAsOf.Add(-3*time.Hour)),
			leg,
		)
		tx := testTx("WIRE", 10000, testAsOf)
		tx.CounterpartyAccount = "ACC-DEST-2"

		triggered, details, err := loose.Evaluate(context.Background(), tx, ec)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("40% outflow should clear the 30% threshold")
		}
		if split, _ := details["splitting"].(bool); !split {
			t.Fatal("expected a splitting pattern for fan-out to two accounts")
		}
		if details["outgoing_count"] != 2 {
			t.Errorf("expected 2 outgoing legs, got %v", details["outgoing_count"])
		}
		if details["destination_count"] != 2 {
			t.Errorf("expected 2 destinations, got %v", details["destination_count"])
		}
	})

	t.Run("SingleDestinationNotSplitting", func(t *testing.T) {
		loose := NewRapidMovementRule(&domain.RuleConfig{
			ID:        "RFM-TRF-OUT-A-H26",
			Family:    FamilyRapidMovement,
			TypeGroup: txtype.GroupTransfer,
			Parameters: domain.Parameters{
				"percentage":   30,
				"window_hours": 24,
			},
			Enabled: true,
		}, types)

		leg := historyTx("WIRE", 9000, testAsOf.Add(-2*time.Hour))
		leg.CounterpartyAccount = "ACC-DEST-1"
		ec := evalCtx(
			historyTx("CASH DEP", 25000, testAsOf.Add(-3*time.Hour)),
			leg,
		)
		tx := testTx("WIRE", 10000, testAsOf)
		tx.CounterpartyAccount = "ACC-DEST-1"

		triggered, details, _ := loose.Evaluate(context.Background(), tx, ec)
		if !triggered {
			t.Fatal("expected trigger regardless of the splitting check")
		}
		if details["splitting"] != nil {
			t.Error("fan-out to a single account is not splitting")
		}
	})

	t.Run("PartialMovementIgnored", func(t *testing.T) {
		ec := evalCtx(historyTx("CASH DEP", 10000, testAsOf.Add(-2*time.Hour)))
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 5000, testAsOf), ec)
		if triggered {
			t.Error("50% movement is below the 75% threshold")
		}
	})

	t.Run("NoInflowNoTrigger", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 8000, testAsOf), evalCtx())
		if triggered {
			t.Error("no recent inflow means nothing to pass through")
		}
	})

	t.Run("StaleInflowOutsideWindow", func(t *testing.T) {
		ec := evalCtx(historyTx("CASH DEP", 10000, testAsOf.Add(-30*time.Hour)))
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 8000, testAsOf), ec)
		if triggered {
			t.Error("inflow older than the window should not count")
		}
	})
}

func TestSmallTransfersRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewSmallTransfersRule(&domain.RuleConfig{
		ID:        "SFT-TRF-ALL-A-D07",
		Name:      "Frequent small transfers",
		Family:    FamilySmallTransfers,
		TypeGroup: txtype.GroupTransfer,
		Parameters: domain.Parameters{
			"max_amount":  1000,
			"min_count":   5,
			"window_days": 7,
		},
		Enabled: true,
	}, types)

	burst := func(n int) []*domain.Transaction {
		var txs []*domain.Transaction
		for i := 0; i < n; i++ {
			txs = append(txs, historyTx("WIRE", 500, testAsOf.AddDate(0, 0, -(i+1))))
		}
		return txs
	}

	t.Run("TriggersOnBurst", func(t *testing.T) {
		triggered, details, err := rule.Evaluate(context.Background(), testTx("WIRE", 500, testAsOf), evalCtx(burst(4)...))
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("5 small transfers in a week should trigger")
		}
		if details["occurrences"] != 5 {
			t.Errorf("expected 5 occurrences, got %v", details["occurrences"])
		}
	})

	t.Run("LargeTransferOutOfScope", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 2000, testAsOf), evalCtx(burst(6)...))
		if triggered {
			t.Error("a transfer above max_amount is not part of the pattern")
		}
	})

	t.Run("SparseActivityIgnored", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 500, testAsOf), evalCtx(burst(2)...))
		if triggered {
			t.Error("3 transfers should not satisfy min_count 5")
		}
	})
}

func TestHighRiskJurisdictionRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewHighRiskJurisdictionRule(&domain.RuleConfig{
		ID:        "HRJ-ALL-ALL-T-D01",
		Name:      "High-risk jurisdiction",
		Family:    FamilyJurisdiction,
		TypeGroup: txtype.GroupAll,
		Parameters: domain.Parameters{
			"high_risk_countries": "AF,KP,IR,SY",
		},
		Enabled: true,
	}, types)

	t.Run("MatchesCounterparty", func(t *testing.T) {
		tx := testTx("WIRE", 5000, testAsOf)
		tx.CounterpartyCountry = "IR"

		triggered, details, err := rule.Evaluate(context.Background(), tx, evalCtx())
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("expected trigger for high-risk counterparty country")
		}
		matches, _ := details["matched"].(map[string]string)
		if matches["counterparty_country"] != "IR" {
			t.Errorf("expected counterparty match IR, got %v", details["matched"])
		}
		if details["country_risk_level"] != domain.RiskLevelHigh {
			t.Error("jurisdiction hits carry HIGH country risk")
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		tx := testTx("WIRE", 5000, testAsOf)
		tx.DestinationCountry = "kp"

		triggered, _, _ := rule.Evaluate(context.Background(), tx, evalCtx())
		if !triggered {
			t.Error("country codes should match case-insensitively")
		}
	})

	t.Run("CleanCountriesPass", func(t *testing.T) {
		tx := testTx("WIRE", 5000, testAsOf)
		tx.CounterpartyCountry = "DE"
		tx.OriginCountry = "US"

		triggered, _, _ := rule.Evaluate(context.Background(), tx, evalCtx())
		if triggered {
			t.Error("low-risk jurisdictions should not trigger")
		}
	})
}

func TestInconsistentActivityRule(t *testing.T) {
	types := txtype.NewDefaultRegistry()
	rule := NewInconsistentActivityRule(&domain.RuleConfig{
		ID:        "ICT-ALL-ALL-A-D01",
		Name:      "Inconsistent activity",
		Family:    FamilyInconsistent,
		TypeGroup: txtype.GroupAll,
		Parameters: domain.Parameters{
			"multiplier":    3.0,
			"min_history":   3,
			"lookback_days": 90,
		},
		Enabled: true,
	}, types)

	profile := evalCtx(
		historyTx("BILL PMT", 1000, testAsOf.AddDate(0, 0, -10)),
		historyTx("BILL PMT", 1000, testAsOf.AddDate(0, 0, -20)),
		historyTx("BILL PMT", 1000, testAsOf.AddDate(0, 0, -30)),
	)

	t.Run("TriggersFarOutsideProfile", func(t *testing.T) {
		triggered, details, err := rule.Evaluate(context.Background(), testTx("WIRE", 5000, testAsOf), profile)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if !triggered {
			t.Fatal("5x the historical average should trigger")
		}
		avg, _ := details["average_amount"].(decimal.Decimal)
		if !avg.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("expected average 1000, got %s", avg)
		}
	})

	t.Run("WithinProfilePasses", func(t *testing.T) {
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 2500, testAsOf), profile)
		if triggered {
			t.Error("2.5x the average is within the 3x multiplier")
		}
	})

	t.Run("ExactMultiplePasses", func(t *testing.T) {
		// The profile boundary itself is inside the profile; only
		// strictly greater amounts trigger.
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 3000, testAsOf), profile)
		if triggered {
			t.Error("exactly 3x the average should not trigger")
		}

		triggered, _, _ = rule.Evaluate(context.Background(), testTx("WIRE", 3001, testAsOf), profile)
		if !triggered {
			t.Error("just over 3x the average should trigger")
		}
	})

	t.Run("ThinHistorySkipped", func(t *testing.T) {
		thin := evalCtx(historyTx("BILL PMT", 1000, testAsOf.AddDate(0, 0, -10)))
		triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 50000, testAsOf), thin)
		if triggered {
			t.Error("no profile can be established from a single transaction")
		}
	})
}

func TestEntityRules(t *testing.T) {
	types := txtype.NewDefaultRegistry()

	t.Run("NonProfitLargeMovement", func(t *testing.T) {
		rule := NewNonProfitActivityRule(&domain.RuleConfig{
			ID:         "NPO-ALL-ALL-C-D01",
			Family:     FamilyNonProfit,
			TypeGroup:  txtype.GroupAll,
			Parameters: domain.Parameters{"transaction_amount": 5000},
			Enabled:    true,
		}, types)

		ec := evalCtx()
		ec.Customer = &domain.Customer{ID: "c1", Type: domain.CustomerTypeNonProfit, RiskRating: domain.RiskRatingLow}

		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 6000, testAsOf), ec); !triggered {
			t.Error("expected trigger for large non-profit movement")
		}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 1000, testAsOf), ec); triggered {
			t.Error("small movement should pass")
		}

		ec.Customer.Type = domain.CustomerTypeIndividual
		ec.Customer.NonProfit = false
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 6000, testAsOf), ec); triggered {
			t.Error("individuals are out of scope")
		}
	})

	t.Run("ShellCompany", func(t *testing.T) {
		rule := NewShellCompanyRule(&domain.RuleConfig{
			ID:        "SHC-ALL-ALL-C-D01",
			Family:    FamilyShellCompany,
			TypeGroup: txtype.GroupAll,
			Parameters: domain.Parameters{
				"incorporation_age_days": 365,
				"transaction_amount":     10000,
			},
			Enabled: true,
		}, types)

		young := testAsOf.AddDate(0, -3, 0)
		ec := evalCtx()
		ec.Customer = &domain.Customer{
			ID:             "c2",
			Type:           domain.CustomerTypeCorporate,
			RiskRating:     domain.RiskRatingLow,
			IncorporatedAt: &young,
		}

		if triggered, details, _ := rule.Evaluate(context.Background(), testTx("WIRE", 15000, testAsOf), ec); !triggered {
			t.Error("recently incorporated corporate moving 15000 should trigger")
		} else if details["shell_flagged"] != false {
			t.Error("expected shell_flagged false for age-based trigger")
		}

		mature := testAsOf.AddDate(-10, 0, 0)
		ec.Customer.IncorporatedAt = &mature
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 15000, testAsOf), ec); triggered {
			t.Error("established corporate without a shell flag should pass")
		}

		ec.Customer.ShellCompany = true
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 15000, testAsOf), ec); !triggered {
			t.Error("shell flag should trigger regardless of age")
		}
	})

	t.Run("HighRiskCustomer", func(t *testing.T) {
		rule := NewHighRiskCustomerRule(&domain.RuleConfig{
			ID:         "HRC-ALL-ALL-C-D01",
			Family:     FamilyHighRiskCust,
			TypeGroup:  txtype.GroupAll,
			Parameters: domain.Parameters{"transaction_amount": 5000},
			Enabled:    true,
		}, types)

		ec := evalCtx()
		ec.Customer = &domain.Customer{ID: "c3", Type: domain.CustomerTypeIndividual, RiskRating: domain.RiskRatingHigh}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 6000, testAsOf), ec); !triggered {
			t.Error("high-risk rating should trigger")
		}

		ec.Customer = &domain.Customer{ID: "c4", Type: domain.CustomerTypeIndividual, RiskRating: domain.RiskRatingLow, PEP: true}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 6000, testAsOf), ec); !triggered {
			t.Error("PEP flag should trigger independent of rating")
		}

		ec.Customer = &domain.Customer{ID: "c5", Type: domain.CustomerTypeIndividual, RiskRating: domain.RiskRatingLow}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 6000, testAsOf), ec); triggered {
			t.Error("low-risk non-PEP customer should pass")
		}
	})
}

func TestExpressionRule(t *testing.T) {
	env, err := NewCELEnv()
	if err != nil {
		t.Fatalf("failed to create CEL environment: %v", err)
	}

	t.Run("TransactionFields", func(t *testing.T) {
		rule, err := NewExpressionRule(&domain.RuleConfig{
			ID:         "CEL-001",
			Expression: `type_code == "WIRE" && amount > 25000.0`,
			Enabled:    true,
		}, env)
		if err != nil {
			t.Fatalf("failed to compile: %v", err)
		}

		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 30000, testAsOf), evalCtx()); !triggered {
			t.Error("expected trigger for matching wire")
		}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("CASH DEP", 30000, testAsOf), evalCtx()); triggered {
			t.Error("type code mismatch should pass")
		}
	})

	t.Run("ContextFields", func(t *testing.T) {
		rule, err := NewExpressionRule(&domain.RuleConfig{
			ID:         "CEL-002",
			Expression: `pep && amount > 1000.0`,
			Enabled:    true,
		}, env)
		if err != nil {
			t.Fatalf("failed to compile: %v", err)
		}

		ec := evalCtx()
		ec.Customer = &domain.Customer{ID: "c1", PEP: true}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 2000, testAsOf), ec); !triggered {
			t.Error("expected trigger for PEP customer")
		}
		if triggered, _, _ := rule.Evaluate(context.Background(), testTx("WIRE", 2000, testAsOf), evalCtx()); triggered {
			t.Error("missing customer defaults pep to false")
		}
	})

	t.Run("RejectsNonBoolean", func(t *testing.T) {
		_, err := NewExpressionRule(&domain.RuleConfig{
			ID:         "CEL-003",
			Expression: `amount * 2.0`,
			Enabled:    true,
		}, env)
		if err == nil {
			t.Error("expected error for non-boolean expression")
		}
	})

	t.Run("RejectsBadSyntax", func(t *testing.T) {
		_, err := NewExpressionRule(&domain.RuleConfig{
			ID:         "CEL-004",
			Expression: `amount >>> wat`,
			Enabled:    true,
		}, env)
		if err == nil {
			t.Error("expected compile error")
		}
	})
}

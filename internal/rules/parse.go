package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/opensource-finance/repayplan/internal/domain"
)

// ErrInvalidDocument is returned for rules documents that fail to decode or validate.
var ErrInvalidDocument = errors.New("invalid rules document")

// Parse decodes and validates a rules document.
// A malformed document is an error; it is never replaced by defaults.
func Parse(data []byte) (*domain.RulesDocument, error) {
	var doc domain.RulesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks a document for values the engine cannot use.
func Validate(doc *domain.RulesDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", ErrInvalidDocument)
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if r := doc.PaymentRateOfDisposable; r != nil && (*r < 0 || math.IsNaN(*r) || math.IsInf(*r, 0)) {
		add("paymentRateOfDisposable must be a non-negative number")
	}
	if doc.MinMonthlyPayment < 0 {
		add("minMonthlyPayment must not be negative")
	}
	if doc.MaxMonthlyPayment < 0 {
		add("maxMonthlyPayment must not be negative")
	}
	if doc.MaxMonthlyPayment > 0 && doc.MaxMonthlyPayment < doc.MinMonthlyPayment {
		add("maxMonthlyPayment %d is below minMonthlyPayment %d", doc.MaxMonthlyPayment, doc.MinMonthlyPayment)
	}
	if doc.RoundingUnit < 0 {
		add("roundingUnit must not be negative")
	}
	if doc.MaxPeriodMonths < 0 {
		add("maxPeriodMonths must be at least 1")
	}
	if doc.TaxPriorityDivisorMonths < 0 {
		add("taxPriorityDivisorMonths must not be negative")
	}

	if t := doc.LivingCostTable; t != nil {
		for k, v := range t.Table {
			if v < 0 {
				add("livingCostTable.table[%s] must not be negative", k)
			}
		}
		if t.PerExtraPerson < 0 {
			add("livingCostTable.perExtraPerson must not be negative")
		}
	}

	if e := doc.AssetExemptions; e != nil {
		for name, v := range map[string]*int64{
			"cashDepositExempt": e.CashDepositExempt,
			"insuranceExempt":   e.InsuranceExempt,
			"vehicleExempt":     e.VehicleExempt,
		} {
			if v != nil && *v < 0 {
				add("assetExemptions.%s must not be negative", name)
			}
		}
	}

	if p := doc.RentDepositPolicy; p != nil {
		for k, v := range p.Categories {
			if v.Threshold < 0 || v.Deduction < 0 {
				add("rentDepositPolicy.categories[%s] must not be negative", k)
			}
		}
	}

	for band, months := range doc.BasePeriodMonthsByAgeBand {
		if months < 0 {
			add("basePeriodMonthsByAgeBand[%s] must not be negative", band)
		}
	}

	if e := doc.Eligibility; e != nil {
		for name, v := range map[string]*int64{
			"minIncome":        e.MinIncome,
			"unsecuredCeiling": e.UnsecuredCeiling,
			"securedCeiling":   e.SecuredCeiling,
		} {
			if v != nil && *v < 0 {
				add("eligibility.%s must not be negative", name)
			}
		}
	}

	seen := make(map[string]bool, len(doc.CustomGates))
	for i, g := range doc.CustomGates {
		switch {
		case g.ID == "":
			add("customGates[%d] needs an id", i)
		case seen[g.ID]:
			add("customGates id %q is duplicated", g.ID)
		}
		seen[g.ID] = true
		if strings.TrimSpace(g.Expression) == "" {
			add("customGates[%d] needs an expression", i)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
}

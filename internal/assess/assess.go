// Package assess computes a repayment plan from an applicant snapshot and a
// rules document. Everything here is pure: no I/O, no logging, no shared state.
package assess

import (
	"github.com/opensource-finance/repayplan/internal/domain"
)

// ComputeAssessment runs the eligibility gate, the financial aggregator and the
// plan solver. A nil or empty document resolves to the defaults. Inputs are
// never mutated, and the result is always complete.
func ComputeAssessment(in *domain.AssessmentInput, doc *domain.RulesDocument, gates ...Gate) *domain.AssessmentResult {
	r := doc.Resolve()
	return Compute(in, &r, gates...)
}

// Compute is ComputeAssessment over an already-resolved document.
func Compute(in *domain.AssessmentInput, r *domain.ResolvedRules, gates ...Gate) *domain.AssessmentResult {
	if in == nil {
		in = &domain.AssessmentInput{}
	}

	res := &domain.AssessmentResult{RulesVersion: r.Version}
	res.Breakdown.Flags = []string{}

	if reason, ok := preGate(in, r); ok {
		res.Breakdown.HouseholdSize = householdSize(in)
		res.Breakdown.MonthlyIncome = monthlyIncome(in)
		return consult(res, reason)
	}

	f := aggregate(in, r)
	fillBreakdown(&res.Breakdown, &f, r)

	if reason, ok := postGate(&f, r, factsOf(in, &f), gates); ok {
		return consult(res, reason)
	}

	plan := solve(&f, r, in.Meta.AgeBand)
	b := &res.Breakdown
	b.BasePeriodMonths = plan.baseMonths
	b.LivelihoodPayment = plan.livelihood
	b.TaxDivisorMonths = plan.taxDivisor
	b.TaxFloorPayment = plan.taxFloor
	b.Flags = append(b.Flags, plan.flags...)

	if plan.payment <= 0 {
		return consult(res, ReasonNoCapacity)
	}
	if plan.uncovered {
		return consult(res, ReasonCoverageBounds)
	}

	res.MonthlyRepayment = plan.payment
	res.Months = plan.months
	b.TotalRepayment = mulSat(plan.payment, plan.months)
	return res
}

func consult(res *domain.AssessmentResult, reason string) *domain.AssessmentResult {
	res.ConsultOnly = true
	res.MonthlyRepayment = 0
	res.Months = 0
	res.Breakdown.TotalRepayment = 0
	res.Breakdown.ConsultReason = reason
	res.Breakdown.Flags = append(res.Breakdown.Flags, reason)
	return res
}

func fillBreakdown(b *domain.Breakdown, f *figures, r *domain.ResolvedRules) {
	b.HouseholdSize = f.householdSize
	b.MonthlyIncome = f.income
	b.BaseLivingCost = f.baseLivingCost
	b.LivingCost = f.livingCost
	b.DisposableIncome = f.disposable
	b.HomeCategory = f.homeCategory
	b.Liquidation = f.liquidation
	b.MonthlyRent = f.monthlyRent
	b.UnsecuredTotal = f.unsecured
	b.SecuredTotal = f.secured
	b.AllDebtTotal = f.allDebt
	b.TaxDebt = f.tax
	b.MonthsByDebt = monthsByDebt(f.allDebt, r.PeriodByDebt)
}

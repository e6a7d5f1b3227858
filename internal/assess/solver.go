package assess

import (
	"github.com/opensource-finance/repayplan/internal/domain"
)

// Adjustment flags recorded in the breakdown.
const (
	FlagPeriodExtended  = "period extended for asset coverage"
	FlagAssetRaise      = "payment raised for asset coverage"
	FlagTaxRaise        = "payment raised to tax priority floor"
	FlagPeriodRefit     = "period shortened after tax floor raise"
	FlagOverpayment     = "period shortened to avoid overpayment"
	FlagCappedUnsecured = "payment capped at unsecured total"
	FlagCoverageRefit   = "payment adjusted to keep asset coverage within debt total"
	FlagClampedMax      = "payment clamped to maximum"
	FlagClampedMin      = "payment clamped to minimum"
	FlagCoverageLimited = "asset coverage limited by maximum payment"
)

type solverState int

const (
	stateLivelihoodFloor solverState = iota
	stateAssetCoverage
	stateTaxPriorityFloor
	stateAssetRecheck
	stateOverpaymentCheck
	stateBounds
	stateDone
)

// plan is the solver's working state.
type plan struct {
	payment int64
	months  int

	baseMonths int
	livelihood int64
	taxDivisor int
	taxFloor   int64

	extended  bool // months raised above the base by asset coverage
	taxRaised bool
	fitted    bool // payment already exact; skip final rounding
	uncovered bool // no payment within bounds keeps L ≤ P·m ≤ U

	flags []string
}

func (p *plan) flag(s string) {
	for _, f := range p.flags {
		if f == s {
			return
		}
	}
	p.flags = append(p.flags, s)
}

// solve walks the state machine once. The only back-edge is AssetRecheck,
// and every loop is bounded by MaxPeriodMonths.
func solve(f *figures, r *domain.ResolvedRules, ageBand string) plan {
	var p plan
	for state := stateLivelihoodFloor; state != stateDone; {
		switch state {
		case stateLivelihoodFloor:
			p.livelihoodFloor(f, r, ageBand)
			state = stateAssetCoverage
		case stateAssetCoverage:
			p.assetCoverage(f, r)
			state = stateTaxPriorityFloor
		case stateTaxPriorityFloor:
			p.taxPriorityFloor(f, r)
			state = stateAssetRecheck
		case stateAssetRecheck:
			p.assetRecheck(f, r)
			state = stateOverpaymentCheck
		case stateOverpaymentCheck:
			p.overpaymentCheck(f, r)
			state = stateBounds
		case stateBounds:
			p.bounds(f, r)
			state = stateDone
		}
	}
	return p
}

func (p *plan) livelihoodFloor(f *figures, r *domain.ResolvedRules, ageBand string) {
	p.livelihood = max(r.MinMonthlyPayment, applyRate(f.disposable, r.PaymentRate, r.RoundingUnit))
	p.payment = p.livelihood

	base, ok := r.BasePeriods[ageBand]
	if !ok || base <= 0 {
		base = domain.DefaultBasePeriodMonths
	}
	p.baseMonths = min(max(base, 1), r.MaxPeriodMonths)
	p.months = p.baseMonths
}

// assetCoverage extends the period first and raises the payment only once
// the period ceiling is reached.
func (p *plan) assetCoverage(f *figures, r *domain.ResolvedRules) {
	L := f.liquidation.Total
	if L <= 0 || mulSat(p.payment, p.months) >= L {
		return
	}

	if p.payment > 0 {
		if need := ceilDiv(L, p.payment); need <= int64(r.MaxPeriodMonths) {
			p.months = int(need)
			p.extended = true
			p.flag(FlagPeriodExtended)
			return
		}
	}

	if p.months < r.MaxPeriodMonths {
		p.months = r.MaxPeriodMonths
		p.extended = true
		p.flag(FlagPeriodExtended)
	}
	if raised := ceilUnit(L, int64(p.months), r.RoundingUnit); raised > p.payment {
		p.payment = raised
		p.flag(FlagAssetRaise)
	}
}

func (p *plan) taxPriorityFloor(f *figures, r *domain.ResolvedRules) {
	p.taxDivisor = r.TaxPriorityDivisorMonths
	if p.taxDivisor <= 0 {
		p.taxDivisor = max(1, p.months/2)
	}
	if f.tax <= 0 {
		return
	}
	p.taxFloor = floorUnit(f.tax, int64(p.taxDivisor), r.RoundingUnit)
	if p.taxFloor > p.payment {
		p.payment = p.taxFloor
		p.taxRaised = true
		p.flag(FlagTaxRaise)
	}
}

// assetRecheck gives back months the tax raise made unnecessary.
func (p *plan) assetRecheck(f *figures, r *domain.ResolvedRules) {
	if !p.taxRaised || !p.extended || p.payment <= 0 {
		return
	}
	need := int(min(ceilDiv(f.liquidation.Total, p.payment), int64(r.MaxPeriodMonths)))
	if m := max(p.baseMonths, need); m < p.months {
		p.months = m
		p.flag(FlagPeriodRefit)
	}
}

// overpaymentCheck keeps payment × months within the unsecured total. The
// payment is not raised here except to restore asset coverage.
func (p *plan) overpaymentCheck(f *figures, r *domain.ResolvedRules) {
	U := f.unsecured
	if U <= 0 || mulSat(p.payment, p.months) <= U {
		return
	}

	if p.payment > U {
		p.payment = U
		p.months = 1
		p.fitted = true
		p.flag(FlagCappedUnsecured)
		return
	}

	// ⌈U/P⌉ minus a trailing partial month.
	p.months = max(1, int(U/p.payment))
	p.flag(FlagOverpayment)

	p.refitCoverage(f, r)
}

// refitCoverage raises the payment so that L ≤ P·m ≤ U, trying the unit-rounded
// amount, then the exact amount, then shorter periods. With L ≤ U one month
// at P = L always fits.
func (p *plan) refitCoverage(f *figures, r *domain.ResolvedRules) {
	L, U := f.liquidation.Total, f.unsecured
	if L <= 0 || mulSat(p.payment, p.months) >= L {
		return
	}

	for m := p.months; m >= 1; m-- {
		for _, pay := range []int64{
			ceilUnit(L, int64(m), r.RoundingUnit),
			ceilDiv(L, int64(m)),
		} {
			if pay < p.payment || mulSat(pay, m) > U {
				continue
			}
			if r.MaxMonthlyPayment > 0 && pay > r.MaxMonthlyPayment {
				continue
			}
			p.payment = pay
			p.months = m
			p.fitted = true
			p.flag(FlagCoverageRefit)
			return
		}
	}
}

func (p *plan) bounds(f *figures, r *domain.ResolvedRules) {
	p.months = min(max(p.months, 1), r.MaxPeriodMonths)

	if !p.fitted {
		p.payment = applyRate(p.payment, 1, r.RoundingUnit)
	}

	if p.payment < r.MinMonthlyPayment {
		p.payment = r.MinMonthlyPayment
		p.flag(FlagClampedMin)
	}
	if r.MaxMonthlyPayment > 0 && p.payment > r.MaxMonthlyPayment {
		p.payment = r.MaxMonthlyPayment
		p.flag(FlagClampedMax)

		L := f.liquidation.Total
		if L > 0 && mulSat(p.payment, p.months) < L {
			need := int(min(ceilDiv(L, p.payment), int64(r.MaxPeriodMonths)))
			if need > p.months {
				p.months = need
				p.flag(FlagPeriodExtended)
			}
		}
	}

	// Clamping may have pushed the total past the unsecured debt.
	U := f.unsecured
	if U > 0 && p.payment > 0 && mulSat(p.payment, p.months) > U {
		p.months = max(1, int(U/p.payment))
		p.flag(FlagOverpayment)
	}

	L := f.liquidation.Total
	if L > 0 && p.payment > 0 && mulSat(p.payment, p.months) < L {
		switch {
		case p.months >= r.MaxPeriodMonths:
			p.flag(FlagCoverageLimited)
		case !p.fitLonger(f, r):
			p.uncovered = true
		}
	}
}

// fitLonger looks for a longer period whose payment stays within the bounds
// while L ≤ P·m ≤ U. Shorter periods cannot help once P is at the maximum.
func (p *plan) fitLonger(f *figures, r *domain.ResolvedRules) bool {
	L, U := f.liquidation.Total, f.unsecured
	for m := p.months + 1; m <= r.MaxPeriodMonths; m++ {
		for _, pay := range []int64{
			ceilUnit(L, int64(m), r.RoundingUnit),
			ceilDiv(L, int64(m)),
		} {
			pay = max(pay, r.MinMonthlyPayment, p.taxFloor)
			if r.MaxMonthlyPayment > 0 && pay > r.MaxMonthlyPayment {
				continue
			}
			if U > 0 && mulSat(pay, m) > U {
				continue
			}
			p.payment = pay
			p.months = m
			p.fitted = true
			p.flag(FlagCoverageRefit)
			return true
		}
	}
	return false
}

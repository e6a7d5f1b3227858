package assess

import (
	"github.com/opensource-finance/repayplan/internal/domain"
)

// Consultation reasons.
const (
	ReasonDischarge       = "discharge within last 5 years"
	ReasonIncomeFloor     = "income at or below floor"
	ReasonUnsecuredCeil   = "unsecured debt exceeds ceiling"
	ReasonSecuredCeil     = "secured debt exceeds ceiling"
	ReasonNoUnsecured     = "no unsecured debt to restructure"
	ReasonAssetsExceed    = "liquidation value exceeds unsecured debt"
	ReasonBelowMinPayment = "unsecured debt below minimum monthly payment"
	ReasonNoCapacity      = "no repayment capacity"
	ReasonCoverageBounds  = "asset coverage not reachable within payment bounds"
)

// BuiltinGates is the number of fixed checks run before any extra gate.
const BuiltinGates = 7

// Facts is the aggregated view of an applicant that extra gates inspect.
type Facts struct {
	Income        int64
	Disposable    int64
	LivingCost    int64
	Liquidation   int64
	Unsecured     int64
	Secured       int64
	Tax           int64
	Credit        int64
	PrivateLoan   int64
	HouseholdSize int
	AgeBand       string
	Marital       string
}

// Gate is an additional consultation check run after the built-in ones.
type Gate interface {
	// ID identifies the gate in the rules document.
	ID() string

	// Check returns a reason and true when the case needs a consultation.
	Check(f Facts) (string, bool)
}

// preGate runs the checks that need no aggregation.
func preGate(in *domain.AssessmentInput, r *domain.ResolvedRules) (string, bool) {
	if in.Meta.DischargeWithin5Years {
		return ReasonDischarge, true
	}
	if monthlyIncome(in) <= r.MinIncome {
		return ReasonIncomeFloor, true
	}
	return "", false
}

// postGate runs the policy cutoffs over aggregated figures, in order.
func postGate(f *figures, r *domain.ResolvedRules, facts Facts, gates []Gate) (string, bool) {
	switch {
	case f.unsecured > r.UnsecuredCeiling:
		return ReasonUnsecuredCeil, true
	case f.secured > r.SecuredCeiling:
		return ReasonSecuredCeil, true
	case f.unsecured == 0:
		return ReasonNoUnsecured, true
	case f.liquidation.Total > f.unsecured:
		return ReasonAssetsExceed, true
	case f.unsecured < r.MinMonthlyPayment:
		return ReasonBelowMinPayment, true
	}

	for _, g := range gates {
		if g == nil {
			continue
		}
		if reason, fired := g.Check(facts); fired {
			return reason, true
		}
	}
	return "", false
}

func factsOf(in *domain.AssessmentInput, f *figures) Facts {
	return Facts{
		Income:        f.income,
		Disposable:    f.disposable,
		LivingCost:    f.livingCost,
		Liquidation:   f.liquidation.Total,
		Unsecured:     f.unsecured,
		Secured:       f.secured,
		Tax:           f.tax,
		Credit:        f.credit,
		PrivateLoan:   f.privateLoan,
		HouseholdSize: f.householdSize,
		AgeBand:       in.Meta.AgeBand,
		Marital:       domain.NormalizeName(in.Meta.Marital),
	}
}

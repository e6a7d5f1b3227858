package assess

import (
	"github.com/opensource-finance/repayplan/internal/domain"
)

// figures is the aggregator output consumed by the gates and the solver.
type figures struct {
	householdSize  int
	income         int64
	baseLivingCost int64
	livingCost     int64
	disposable     int64

	homeCategory string
	liquidation  domain.Liquidation
	monthlyRent  int64

	credit      int64
	tax         int64
	privateLoan int64
	secured     int64
	unsecured   int64
	allDebt     int64
}

// monthlyIncome prefers the declared total and falls back to the components.
func monthlyIncome(in *domain.AssessmentInput) int64 {
	if in.MonthlyIncome > 0 {
		return int64(in.MonthlyIncome)
	}
	i := in.Incomes
	return addSat(int64(i.Employment), int64(i.Business), int64(i.Pension))
}

// householdSize prefers the declared size and otherwise counts the applicant,
// a spouse when married, and minor children.
func householdSize(in *domain.AssessmentInput) int {
	if in.HouseholdSize > 0 {
		return int(in.HouseholdSize)
	}
	size := 1 + int(in.MinorChildren)
	if domain.NormalizeName(in.Meta.Marital) == domain.MaritalMarried {
		size++
	}
	return max(1, size)
}

func aggregate(in *domain.AssessmentInput, r *domain.ResolvedRules) figures {
	f := figures{
		householdSize: householdSize(in),
		income:        monthlyIncome(in),
	}

	f.baseLivingCost = livingCost(f.householdSize, r)
	f.livingCost = f.baseLivingCost
	if domain.NormalizeName(in.Meta.Marital) == domain.MaritalDivorced && in.DivorceAdjustment != nil {
		adj := in.DivorceAdjustment
		switch domain.NormalizeName(adj.CareType) {
		case domain.CareTypeSelf:
			f.livingCost = subFloor(f.baseLivingCost, int64(adj.AlimonyPaid))
		case domain.CareTypeEx:
			f.livingCost = addSat(livingCost(1, r), int64(adj.SupportReceivedFromEx))
		}
	}
	f.disposable = subFloor(f.income, f.livingCost)

	f.homeCategory = homeCategory(in.Meta.Home, r)
	f.liquidation, f.monthlyRent = liquidation(&in.Assets, f.homeCategory, r)

	d := in.Debts.ByType
	f.credit = int64(d.Credit)
	f.tax = int64(d.Tax)
	f.privateLoan = int64(d.PrivateLoan)
	f.secured = int64(d.Secured)
	f.unsecured = addSat(f.credit, f.tax, f.privateLoan)
	f.allDebt = addSat(f.unsecured, f.secured)

	return f
}

// livingCost looks up the table, extending from the largest tabulated size.
func livingCost(size int, r *domain.ResolvedRules) int64 {
	if v, ok := r.LivingCosts[size]; ok {
		return v
	}
	if len(r.LivingSizes) == 0 {
		return 0
	}
	largest := r.LivingSizes[len(r.LivingSizes)-1]
	extra := max(0, size-largest)
	return addSat(r.LivingCosts[largest], mulSat(r.PerExtraPerson, extra))
}

// homeCategory resolves seoul, then overcrowded, then metro, else other.
func homeCategory(loc domain.Location, r *domain.ResolvedRules) string {
	region := domain.NormalizeName(loc.Region)
	city := domain.NormalizeName(loc.City)
	switch {
	case r.SeoulRegions[region]:
		return domain.CategorySeoul
	case r.OvercrowdedRegions[region] || r.OvercrowdedCities[city]:
		return domain.CategoryOvercrowded
	case r.MetroRegions[region] || r.MetroCities[city]:
		return domain.CategoryMetro
	default:
		return domain.CategoryOther
	}
}

func liquidation(a *domain.Assets, category string, r *domain.ResolvedRules) (domain.Liquidation, int64) {
	var l domain.Liquidation
	var rent int64

	// Only the first home-tagged deposit gets the small-deposit deduction.
	discounted := false
	for _, item := range a.Rent {
		deposit := int64(item.Deposit)
		rent = addSat(rent, int64(item.Monthly))
		if !discounted && domain.NormalizeName(item.LocationType) == domain.LocationHome {
			discounted = true
			if rule, ok := r.RentDeposit[category]; ok && deposit <= rule.Threshold {
				deposit = subFloor(deposit, rule.Deduction)
			}
		}
		l.RentDeposits = addSat(l.RentDeposits, deposit)
	}

	for _, item := range a.Jeonse {
		l.Jeonse = addSat(l.Jeonse, subFloor(int64(item.Deposit), int64(item.Loan)))
	}
	for _, item := range a.Owned {
		l.Owned = addSat(l.Owned, subFloor(int64(item.Price), int64(item.Loan)))
	}
	var vehicles int64
	for _, item := range a.Vehicles {
		vehicles = addSat(vehicles, subFloor(int64(item.Price), int64(item.Loan)))
	}
	l.Vehicles = subFloor(vehicles, r.VehicleExempt)

	l.Cash = subFloor(int64(a.CashDeposits), r.CashDepositExempt)
	l.Insurance = subFloor(int64(a.InsuranceCashValue), r.InsuranceExempt)
	l.Securities = int64(a.SecuritiesValue)

	l.Total = addSat(l.RentDeposits, l.Jeonse, l.Owned, l.Vehicles, l.Cash, l.Insurance, l.Securities)
	return l, rent
}

// monthsByDebt returns the first band containing total, else the last band.
func monthsByDebt(total int64, bands []domain.DebtPeriodBand) int {
	for _, b := range bands {
		if b.Lte == nil && b.Gt == nil {
			continue
		}
		if b.Lte != nil && total > *b.Lte {
			continue
		}
		if b.Gt != nil && total <= *b.Gt {
			continue
		}
		return b.Months
	}
	if len(bands) == 0 {
		return 0
	}
	return bands[len(bands)-1].Months
}

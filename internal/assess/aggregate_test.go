package assess

import (
	"testing"

	"github.com/opensource-finance/repayplan/internal/domain"
)

func TestLivingCost(t *testing.T) {
	r := (&domain.RulesDocument{}).Resolve()

	tests := []struct {
		size int
		want int64
	}{
		{1, 1_435_208},
		{4, 3_658_664},
		{6, 4_838_883},
		{7, 4_838_883 + 573_969},
		{9, 4_838_883 + 3*573_969},
	}
	for _, tt := range tests {
		if got := livingCost(tt.size, &r); got != tt.want {
			t.Errorf("livingCost(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}

	t.Run("SparseTable", func(t *testing.T) {
		doc := &domain.RulesDocument{LivingCostTable: &domain.LivingCostTable{
			Table:          map[string]int64{"1": 1_200_000, "3": 2_000_000},
			PerExtraPerson: 300_000,
		}}
		r := doc.Resolve()
		// Missing sizes below the largest fall back to the largest entry.
		if got := livingCost(2, &r); got != 2_000_000 {
			t.Errorf("expected 2000000, got %d", got)
		}
		if got := livingCost(5, &r); got != 2_600_000 {
			t.Errorf("expected 2600000, got %d", got)
		}
	})
}

func TestHouseholdAndIncome(t *testing.T) {
	in := &domain.AssessmentInput{
		MinorChildren: 2,
		Meta:          domain.Meta{Marital: "Married"},
		Incomes:       domain.Incomes{Employment: 2_000_000, Business: 500_000, Pension: 300_000},
	}

	if got := householdSize(in); got != 4 {
		t.Errorf("expected derived household 4, got %d", got)
	}
	if got := monthlyIncome(in); got != 2_800_000 {
		t.Errorf("expected summed income 2800000, got %d", got)
	}

	in.HouseholdSize = 2
	in.MonthlyIncome = 3_000_000
	if householdSize(in) != 2 || monthlyIncome(in) != 3_000_000 {
		t.Error("declared values should take precedence")
	}
}

func TestDivorceAdjustment(t *testing.T) {
	r := (&domain.RulesDocument{}).Resolve()
	base := func(careType string) *domain.AssessmentInput {
		return &domain.AssessmentInput{
			HouseholdSize: 2,
			MonthlyIncome: 4_000_000,
			Meta:          domain.Meta{Marital: domain.MaritalDivorced},
			DivorceAdjustment: &domain.DivorceAdjustment{
				CareType:              careType,
				AlimonyPaid:           500_000,
				SupportReceivedFromEx: 300_000,
			},
		}
	}

	t.Run("Self", func(t *testing.T) {
		f := aggregate(base(domain.CareTypeSelf), &r)
		if f.livingCost != 2_359_595-500_000 {
			t.Errorf("expected 1859595, got %d", f.livingCost)
		}
		if f.baseLivingCost != 2_359_595 {
			t.Errorf("base cost should be untouched, got %d", f.baseLivingCost)
		}
	})

	t.Run("SelfFloorsAtZero", func(t *testing.T) {
		in := base(domain.CareTypeSelf)
		in.DivorceAdjustment.AlimonyPaid = 9_000_000
		if f := aggregate(in, &r); f.livingCost != 0 || f.disposable != 4_000_000 {
			t.Errorf("expected zero cost, got %d", f.livingCost)
		}
	})

	t.Run("Ex", func(t *testing.T) {
		f := aggregate(base(domain.CareTypeEx), &r)
		if f.livingCost != 1_435_208+300_000 {
			t.Errorf("expected 1735208, got %d", f.livingCost)
		}
	})

	t.Run("NoCareType", func(t *testing.T) {
		f := aggregate(base(""), &r)
		if f.livingCost != 2_359_595 {
			t.Errorf("expected unadjusted cost, got %d", f.livingCost)
		}
	})

	t.Run("IgnoredWhenNotDivorced", func(t *testing.T) {
		in := base(domain.CareTypeSelf)
		in.Meta.Marital = domain.MaritalSingle
		if f := aggregate(in, &r); f.livingCost != 2_359_595 {
			t.Errorf("expected unadjusted cost, got %d", f.livingCost)
		}
	})
}

func TestHomeCategory(t *testing.T) {
	r := (&domain.RulesDocument{}).Resolve()

	tests := []struct {
		loc  domain.Location
		want string
	}{
		{domain.Location{Region: "서울특별시", City: "마포구"}, domain.CategorySeoul},
		{domain.Location{Region: " Seoul ", City: ""}, domain.CategorySeoul},
		{domain.Location{Region: "인천", City: "남동구"}, domain.CategoryOvercrowded},
		{domain.Location{Region: "경기", City: "수원"}, domain.CategoryOvercrowded},
		{domain.Location{Region: "부산", City: "해운대구"}, domain.CategoryMetro},
		{domain.Location{Region: "경기", City: "안산"}, domain.CategoryMetro},
		{domain.Location{Region: "강원", City: "춘천"}, domain.CategoryOther},
		{domain.Location{}, domain.CategoryOther},
	}
	for _, tt := range tests {
		if got := homeCategory(tt.loc, &r); got != tt.want {
			t.Errorf("homeCategory(%+v) = %s, want %s", tt.loc, got, tt.want)
		}
	}
}

func TestLiquidation(t *testing.T) {
	r := (&domain.RulesDocument{}).Resolve()

	assets := &domain.Assets{
		Rent: []domain.RentItem{
			{Deposit: 20_000_000, Monthly: 400_000, LocationType: domain.LocationWork},
			{Deposit: 100_000_000, Monthly: 500_000, LocationType: domain.LocationHome},
			{Deposit: 10_000_000, Monthly: 100_000, LocationType: domain.LocationHome},
			{Deposit: 5_000_000},
		},
		Jeonse:             []domain.JeonseItem{{Deposit: 80_000_000, Loan: 50_000_000}, {Deposit: 10_000_000, Loan: 20_000_000}},
		Owned:              []domain.OwnedPropertyItem{{Price: 300_000_000, Loan: 250_000_000}},
		Vehicles:           []domain.VehicleItem{{Price: 15_000_000, Loan: 5_000_000}, {Price: 3_000_000, Loan: 4_000_000}},
		CashDeposits:       2_000_000,
		InsuranceCashValue: 1_000_000,
		SecuritiesValue:    7_000_000,
	}

	l, rent := liquidation(assets, domain.CategorySeoul, &r)

	// Work rent in full, first home rent 100M-55M, second home rent and untagged in full.
	if l.RentDeposits != 20_000_000+45_000_000+10_000_000+5_000_000 {
		t.Errorf("rent deposits = %d", l.RentDeposits)
	}
	if rent != 1_000_000 {
		t.Errorf("monthly rent = %d", rent)
	}
	if l.Jeonse != 30_000_000 {
		t.Errorf("jeonse = %d", l.Jeonse)
	}
	if l.Owned != 50_000_000 {
		t.Errorf("owned = %d", l.Owned)
	}
	if l.Vehicles != 10_000_000 {
		t.Errorf("vehicles = %d", l.Vehicles)
	}
	if l.Cash != 150_000 {
		t.Errorf("cash = %d", l.Cash)
	}
	if l.Insurance != 0 {
		t.Errorf("insurance = %d", l.Insurance)
	}
	want := int64(80_000_000 + 30_000_000 + 50_000_000 + 10_000_000 + 150_000 + 7_000_000)
	if l.Total != want {
		t.Errorf("total = %d, want %d", l.Total, want)
	}

	t.Run("DepositAboveThreshold", func(t *testing.T) {
		a := &domain.Assets{Rent: []domain.RentItem{{Deposit: 170_000_000, LocationType: domain.LocationHome}}}
		if l, _ := liquidation(a, domain.CategorySeoul, &r); l.RentDeposits != 170_000_000 {
			t.Errorf("expected full deposit, got %d", l.RentDeposits)
		}
	})

	t.Run("DeductionFloorsAtZero", func(t *testing.T) {
		a := &domain.Assets{Rent: []domain.RentItem{{Deposit: 10_000_000, LocationType: domain.LocationHome}}}
		if l, _ := liquidation(a, domain.CategoryOther, &r); l.RentDeposits != 0 {
			t.Errorf("expected 0, got %d", l.RentDeposits)
		}
	})

	t.Run("ExemptionsConfigurable", func(t *testing.T) {
		zero := int64(0)
		car := int64(5_000_000)
		doc := &domain.RulesDocument{AssetExemptions: &domain.AssetExemptions{
			CashDepositExempt: &zero,
			VehicleExempt:     &car,
		}}
		r := doc.Resolve()
		l, _ := liquidation(assets, domain.CategorySeoul, &r)
		if l.Cash != 2_000_000 {
			t.Errorf("explicit zero exemption should count cash in full, got %d", l.Cash)
		}
		if l.Vehicles != 5_000_000 {
			t.Errorf("expected vehicles 5000000, got %d", l.Vehicles)
		}
		if l.Insurance != 0 {
			t.Errorf("insurance exemption should keep its default, got %d", l.Insurance)
		}
	})
}

func TestMonthsByDebt(t *testing.T) {
	bands := domain.DefaultPeriodByDebt()
	tests := []struct {
		total int64
		want  int
	}{
		{0, 36},
		{10_000_000, 36},
		{10_000_001, 48},
		{50_000_000, 48},
		{50_000_001, 60},
	}
	for _, tt := range tests {
		if got := monthsByDebt(tt.total, bands); got != tt.want {
			t.Errorf("monthsByDebt(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
	if got := monthsByDebt(1, nil); got != 0 {
		t.Errorf("expected 0 for no bands, got %d", got)
	}
}

func TestMoney(t *testing.T) {
	if got := applyRate(564_792, 1, 10_000); got != 560_000 {
		t.Errorf("applyRate = %d", got)
	}
	if got := applyRate(565_000, 1, 10_000); got != 570_000 {
		t.Errorf("half should round up, got %d", got)
	}
	if got := applyRate(1_000_000, 0.3, 10_000); got != 300_000 {
		t.Errorf("applyRate with rate = %d", got)
	}
	if got := floorUnit(36_000_000, 18, 10_000); got != 2_000_000 {
		t.Errorf("floorUnit = %d", got)
	}
	if got := floorUnit(10_000_000, 3, 10_000); got != 3_330_000 {
		t.Errorf("floorUnit = %d", got)
	}
	if got := ceilUnit(50_000_000, 60, 10_000); got != 840_000 {
		t.Errorf("ceilUnit = %d", got)
	}
	if got := ceilDiv(10, 3); got != 4 {
		t.Errorf("ceilDiv = %d", got)
	}
	if got := mulSat(1<<62, 60); got != 1<<63-1 {
		t.Errorf("mulSat should saturate, got %d", got)
	}
}

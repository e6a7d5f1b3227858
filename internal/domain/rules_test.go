package domain

import (
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	for name, doc := range map[string]*RulesDocument{"Nil": nil, "Empty": {}} {
		t.Run(name, func(t *testing.T) {
			r := doc.Resolve()

			if r.Version != DefaultRulesVersion {
				t.Errorf("version = %q", r.Version)
			}
			if r.PaymentRate != 1.0 || r.RoundingUnit != 10_000 {
				t.Errorf("rate/unit = %v/%d", r.PaymentRate, r.RoundingUnit)
			}
			if r.MinMonthlyPayment != 0 || r.MaxMonthlyPayment != 0 {
				t.Errorf("bounds = %d/%d", r.MinMonthlyPayment, r.MaxMonthlyPayment)
			}
			if r.MaxPeriodMonths != 60 || r.TaxPriorityDivisorMonths != 0 {
				t.Errorf("periods = %d/%d", r.MaxPeriodMonths, r.TaxPriorityDivisorMonths)
			}
			if r.LivingCosts[1] != 1_435_208 || r.PerExtraPerson != 573_969 {
				t.Errorf("living cost = %d/%d", r.LivingCosts[1], r.PerExtraPerson)
			}
			if len(r.LivingSizes) != 6 || r.LivingSizes[0] != 1 || r.LivingSizes[5] != 6 {
				t.Errorf("living sizes = %v", r.LivingSizes)
			}
			if r.CashDepositExempt != 1_850_000 || r.InsuranceExempt != 1_500_000 || r.VehicleExempt != 0 {
				t.Errorf("exemptions = %d/%d/%d", r.CashDepositExempt, r.InsuranceExempt, r.VehicleExempt)
			}
			if r.RentDeposit[CategorySeoul].Threshold != 165_000_000 || r.RentDeposit[CategoryOther].Deduction != 25_000_000 {
				t.Errorf("rent deposit = %+v", r.RentDeposit)
			}
			if r.BasePeriods[AgeBandYoung] != 24 || r.BasePeriods[AgeBandMiddle] != 36 || r.BasePeriods[AgeBandSenior] != 24 {
				t.Errorf("base periods = %v", r.BasePeriods)
			}
			if r.MinIncome != 1_000_000 || r.UnsecuredCeiling != 1_000_000_000 || r.SecuredCeiling != 1_500_000_000 {
				t.Errorf("eligibility = %d/%d/%d", r.MinIncome, r.UnsecuredCeiling, r.SecuredCeiling)
			}
			if !r.SeoulRegions["서울"] || !r.OvercrowdedCities["suwon"] || !r.MetroRegions["부산"] {
				t.Error("default region sets incomplete")
			}
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	zero := int64(0)
	floor := int64(1_200_000)
	doc := &RulesDocument{
		Version:                 "rules-2025-01",
		PaymentRateOfDisposable: Rate(0.3),
		MinMonthlyPayment:       200_000,
		MaxMonthlyPayment:       1_000_000,
		RoundingUnit:            1_000,
		LivingCostTable: &LivingCostTable{
			Table:          map[string]int64{"1": 1_200_000, " 2 ": 2_000_000, "x": 9},
			PerExtraPerson: 300_000,
		},
		AssetExemptions: &AssetExemptions{InsuranceExempt: &zero},
		RentDepositPolicy: &RentDepositPolicy{
			Categories:   map[string]RentDepositRule{"Seoul": {Threshold: 1, Deduction: 2}},
			SeoulRegions: []string{"Capital"},
		},
		BasePeriodMonthsByAgeBand: map[string]int{AgeBandSenior: 48, AgeBandYoung: -1},
		MaxPeriodMonths:           48,
		TaxPriorityDivisorMonths:  24,
		Eligibility:               &Eligibility{MinIncome: &floor},
	}

	r := doc.Resolve()

	if r.Version != "rules-2025-01" || r.PaymentRate != 0.3 || r.RoundingUnit != 1_000 {
		t.Errorf("scalars not applied: %+v", r)
	}
	if len(r.LivingCosts) != 2 || r.LivingCosts[2] != 2_000_000 || r.PerExtraPerson != 300_000 {
		t.Errorf("living costs = %v/%d", r.LivingCosts, r.PerExtraPerson)
	}
	if r.InsuranceExempt != 0 || r.CashDepositExempt != DefaultCashDepositExempt {
		t.Errorf("exemptions = %d/%d", r.InsuranceExempt, r.CashDepositExempt)
	}
	if r.RentDeposit[CategorySeoul].Threshold != 1 || r.RentDeposit[CategoryMetro].Threshold != 85_000_000 {
		t.Errorf("rent deposit = %+v", r.RentDeposit)
	}
	if !r.SeoulRegions["capital"] || r.SeoulRegions["서울"] {
		t.Errorf("seoul regions = %v", r.SeoulRegions)
	}
	if r.BasePeriods[AgeBandSenior] != 48 || r.BasePeriods[AgeBandYoung] != 24 {
		t.Errorf("base periods = %v", r.BasePeriods)
	}
	if r.MinIncome != 1_200_000 || r.UnsecuredCeiling != DefaultUnsecuredCeiling {
		t.Errorf("eligibility = %d/%d", r.MinIncome, r.UnsecuredCeiling)
	}
	if doc.LivingCostTable.Table["x"] != 9 {
		t.Error("document was mutated")
	}
}

func TestResolvePaymentRate(t *testing.T) {
	tests := []struct {
		name string
		rate *float64
		want float64
	}{
		{"Omitted", nil, DefaultPaymentRate},
		{"ExplicitZero", Rate(0), 0},
		{"Partial", Rate(0.3), 0.3},
		{"NegativeClamped", Rate(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &RulesDocument{PaymentRateOfDisposable: tt.rate}
			if got := doc.Resolve().PaymentRate; got != tt.want {
				t.Errorf("expected rate %v, got %v", tt.want, got)
			}
		})
	}
}

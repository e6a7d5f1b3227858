package domain

import (
	"sort"
	"strconv"
	"strings"
)

// RulesDocument is the versioned policy that parameterises the engine.
// Every field is optional; Resolve fills in the documented defaults.
type RulesDocument struct {
	Version string `json:"version"`

	// PaymentRateOfDisposable is nil for the default; an explicit 0 leaves
	// only the fixed MinMonthlyPayment floor.
	PaymentRateOfDisposable *float64 `json:"paymentRateOfDisposable,omitempty"`
	MinMonthlyPayment       int64    `json:"minMonthlyPayment,omitempty"`
	MaxMonthlyPayment       int64    `json:"maxMonthlyPayment,omitempty"` // 0 = unbounded
	RoundingUnit            int64    `json:"roundingUnit,omitempty"`

	LivingCostTable   *LivingCostTable   `json:"livingCostTable,omitempty"`
	AssetExemptions   *AssetExemptions   `json:"assetExemptions,omitempty"`
	RentDepositPolicy *RentDepositPolicy `json:"rentDepositPolicy,omitempty"`

	BasePeriodMonthsByAgeBand map[string]int `json:"basePeriodMonthsByAgeBand,omitempty"`
	MaxPeriodMonths           int            `json:"maxPeriodMonths,omitempty"`

	// TaxPriorityDivisorMonths of 0 means half of the plan period.
	TaxPriorityDivisorMonths int `json:"taxPriorityDivisorMonths,omitempty"`

	Eligibility  *Eligibility     `json:"eligibility,omitempty"`
	PeriodByDebt []DebtPeriodBand `json:"periodByDebt,omitempty"`
	CustomGates  []GateRule       `json:"customGates,omitempty"`
}

// LivingCostTable maps household size to monthly livelihood cost.
type LivingCostTable struct {
	Table          map[string]int64 `json:"table"`
	PerExtraPerson int64            `json:"perExtraPerson"`
}

// AssetExemptions are flat deductions applied before counting assets.
// Nil fields fall back to defaults; an explicit 0 disables the exemption.
type AssetExemptions struct {
	CashDepositExempt *int64 `json:"cashDepositExempt,omitempty"`
	InsuranceExempt   *int64 `json:"insuranceExempt,omitempty"`
	VehicleExempt     *int64 `json:"vehicleExempt,omitempty"`
}

// RentDepositRule is the small-deposit protection for one location category.
type RentDepositRule struct {
	Threshold int64 `json:"threshold"`
	Deduction int64 `json:"deduction"`
}

// Location categories used by the rent deposit policy.
const (
	CategorySeoul       = "seoul"
	CategoryOvercrowded = "overcrowded"
	CategoryMetro       = "metro"
	CategoryOther       = "other"
)

// RentDepositPolicy classifies the home location and holds per-category rules.
type RentDepositPolicy struct {
	Categories         map[string]RentDepositRule `json:"categories,omitempty"`
	SeoulRegions       []string                   `json:"seoulRegions,omitempty"`
	OvercrowdedRegions []string                   `json:"overcrowdedRegions,omitempty"`
	OvercrowdedCities  []string                   `json:"overcrowdedCities,omitempty"`
	MetroRegions       []string                   `json:"metroRegions,omitempty"`
	MetroCities        []string                   `json:"metroCities,omitempty"`
}

// Eligibility holds the hard policy cutoffs. Nil fields fall back to defaults.
type Eligibility struct {
	MinIncome        *int64 `json:"minIncome,omitempty"`
	UnsecuredCeiling *int64 `json:"unsecuredCeiling,omitempty"`
	SecuredCeiling   *int64 `json:"securedCeiling,omitempty"`
}

// DebtPeriodBand maps a total-debt range to a period. Diagnostic only.
type DebtPeriodBand struct {
	Lte    *int64 `json:"lte,omitempty"`
	Gt     *int64 `json:"gt,omitempty"`
	Months int    `json:"months"`
}

// GateRule is an additional consultation gate written in CEL.
type GateRule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Reason     string `json:"reason"`
}

// Defaults. Living costs follow the 2025 60%-of-median-income table.
const (
	DefaultRulesVersion       = "default"
	DefaultPaymentRate        = 1.0
	DefaultRoundingUnit int64 = 10_000
	DefaultBasePeriodMonths   = 36
	DefaultMaxPeriodMonths    = 60

	DefaultPerExtraPerson    int64 = 573_969
	DefaultCashDepositExempt int64 = 1_850_000
	DefaultInsuranceExempt   int64 = 1_500_000

	DefaultMinIncome        int64 = 1_000_000
	DefaultUnsecuredCeiling int64 = 1_000_000_000
	DefaultSecuredCeiling   int64 = 1_500_000_000
)

// DefaultLivingCosts returns the default household-size table.
func DefaultLivingCosts() map[int]int64 {
	return map[int]int64{
		1: 1_435_208,
		2: 2_359_595,
		3: 3_015_212,
		4: 3_658_664,
		5: 4_264_915,
		6: 4_838_883,
	}
}

// DefaultRentDepositRules returns the default per-category rules.
func DefaultRentDepositRules() map[string]RentDepositRule {
	return map[string]RentDepositRule{
		CategorySeoul:       {Threshold: 165_000_000, Deduction: 55_000_000},
		CategoryOvercrowded: {Threshold: 145_000_000, Deduction: 48_000_000},
		CategoryMetro:       {Threshold: 85_000_000, Deduction: 28_000_000},
		CategoryOther:       {Threshold: 75_000_000, Deduction: 25_000_000},
	}
}

// DefaultBasePeriods returns the default period per age band.
func DefaultBasePeriods() map[string]int {
	return map[string]int{
		AgeBandYoung:  24,
		AgeBandMiddle: 36,
		AgeBandSenior: 24,
	}
}

var (
	defaultSeoulRegions       = []string{"seoul", "서울", "서울특별시"}
	defaultOvercrowdedRegions = []string{"incheon", "인천", "인천광역시", "sejong", "세종", "세종특별자치시"}
	defaultOvercrowdedCities  = []string{
		"suwon", "수원", "seongnam", "성남", "anyang", "안양", "bucheon", "부천",
		"gwangmyeong", "광명", "gwacheon", "과천", "uiwang", "의왕", "gunpo", "군포",
		"goyang", "고양", "uijeongbu", "의정부", "guri", "구리", "hanam", "하남",
		"namyangju", "남양주", "siheung", "시흥", "yongin", "용인", "hwaseong", "화성",
		"gimpo", "김포",
	}
	defaultMetroRegions = []string{
		"busan", "부산", "daegu", "대구", "gwangju", "광주", "daejeon", "대전", "ulsan", "울산",
	}
	defaultMetroCities = []string{"ansan", "안산", "paju", "파주", "icheon", "이천", "pyeongtaek", "평택"}
)

// DefaultPeriodByDebt returns the default months-by-debt bands.
func DefaultPeriodByDebt() []DebtPeriodBand {
	ten, fifty := int64(10_000_000), int64(50_000_000)
	return []DebtPeriodBand{
		{Lte: &ten, Months: 36},
		{Lte: &fifty, Months: 48},
		{Gt: &fifty, Months: 60},
	}
}

// ResolvedRules is a RulesDocument with every default applied.
type ResolvedRules struct {
	Version string

	PaymentRate       float64
	MinMonthlyPayment int64
	MaxMonthlyPayment int64 // 0 = unbounded
	RoundingUnit      int64

	LivingCosts    map[int]int64
	LivingSizes    []int // ascending
	PerExtraPerson int64

	CashDepositExempt int64
	InsuranceExempt   int64
	VehicleExempt     int64

	RentDeposit        map[string]RentDepositRule
	SeoulRegions       map[string]bool
	OvercrowdedRegions map[string]bool
	OvercrowdedCities  map[string]bool
	MetroRegions       map[string]bool
	MetroCities        map[string]bool

	BasePeriods              map[string]int
	MaxPeriodMonths          int
	TaxPriorityDivisorMonths int

	MinIncome        int64
	UnsecuredCeiling int64
	SecuredCeiling   int64

	PeriodByDebt []DebtPeriodBand
}

// Rate returns a payment rate for RulesDocument.PaymentRateOfDisposable.
func Rate(v float64) *float64 {
	return &v
}

// Resolve applies defaults. It is safe on a nil receiver and never mutates d.
func (d *RulesDocument) Resolve() ResolvedRules {
	if d == nil {
		d = &RulesDocument{}
	}

	r := ResolvedRules{
		Version:                  d.Version,
		PaymentRate:              DefaultPaymentRate,
		MinMonthlyPayment:        max(0, d.MinMonthlyPayment),
		MaxMonthlyPayment:        max(0, d.MaxMonthlyPayment),
		RoundingUnit:             d.RoundingUnit,
		PerExtraPerson:           DefaultPerExtraPerson,
		CashDepositExempt:        DefaultCashDepositExempt,
		InsuranceExempt:          DefaultInsuranceExempt,
		MaxPeriodMonths:          d.MaxPeriodMonths,
		TaxPriorityDivisorMonths: max(0, d.TaxPriorityDivisorMonths),
		MinIncome:                DefaultMinIncome,
		UnsecuredCeiling:         DefaultUnsecuredCeiling,
		SecuredCeiling:           DefaultSecuredCeiling,
		PeriodByDebt:             d.PeriodByDebt,
	}

	if r.Version == "" {
		r.Version = DefaultRulesVersion
	}
	if d.PaymentRateOfDisposable != nil {
		r.PaymentRate = max(0, *d.PaymentRateOfDisposable)
	}
	if r.RoundingUnit <= 0 {
		r.RoundingUnit = DefaultRoundingUnit
	}
	if r.MaxPeriodMonths <= 0 {
		r.MaxPeriodMonths = DefaultMaxPeriodMonths
	}
	if len(r.PeriodByDebt) == 0 {
		r.PeriodByDebt = DefaultPeriodByDebt()
	}

	// Living costs
	r.LivingCosts = DefaultLivingCosts()
	if t := d.LivingCostTable; t != nil {
		if len(t.Table) > 0 {
			r.LivingCosts = make(map[int]int64, len(t.Table))
			for k, v := range t.Table {
				size, err := strconv.Atoi(strings.TrimSpace(k))
				if err != nil || size < 1 {
					continue
				}
				r.LivingCosts[size] = max(0, v)
			}
		}
		if t.PerExtraPerson > 0 {
			r.PerExtraPerson = t.PerExtraPerson
		}
	}
	r.LivingSizes = make([]int, 0, len(r.LivingCosts))
	for size := range r.LivingCosts {
		r.LivingSizes = append(r.LivingSizes, size)
	}
	sort.Ints(r.LivingSizes)

	// Exemptions
	if e := d.AssetExemptions; e != nil {
		if e.CashDepositExempt != nil {
			r.CashDepositExempt = max(0, *e.CashDepositExempt)
		}
		if e.InsuranceExempt != nil {
			r.InsuranceExempt = max(0, *e.InsuranceExempt)
		}
		if e.VehicleExempt != nil {
			r.VehicleExempt = max(0, *e.VehicleExempt)
		}
	}

	// Rent deposit policy
	r.RentDeposit = DefaultRentDepositRules()
	seoul, overRegions, overCities := defaultSeoulRegions, defaultOvercrowdedRegions, defaultOvercrowdedCities
	metroRegions, metroCities := defaultMetroRegions, defaultMetroCities
	if p := d.RentDepositPolicy; p != nil {
		for k, v := range p.Categories {
			r.RentDeposit[strings.ToLower(k)] = RentDepositRule{
				Threshold: max(0, v.Threshold),
				Deduction: max(0, v.Deduction),
			}
		}
		if len(p.SeoulRegions) > 0 {
			seoul = p.SeoulRegions
		}
		if len(p.OvercrowdedRegions) > 0 {
			overRegions = p.OvercrowdedRegions
		}
		if len(p.OvercrowdedCities) > 0 {
			overCities = p.OvercrowdedCities
		}
		if len(p.MetroRegions) > 0 {
			metroRegions = p.MetroRegions
		}
		if len(p.MetroCities) > 0 {
			metroCities = p.MetroCities
		}
	}
	r.SeoulRegions = nameSet(seoul)
	r.OvercrowdedRegions = nameSet(overRegions)
	r.OvercrowdedCities = nameSet(overCities)
	r.MetroRegions = nameSet(metroRegions)
	r.MetroCities = nameSet(metroCities)

	// Base periods
	r.BasePeriods = DefaultBasePeriods()
	for band, months := range d.BasePeriodMonthsByAgeBand {
		if months > 0 {
			r.BasePeriods[band] = months
		}
	}

	// Eligibility
	if e := d.Eligibility; e != nil {
		if e.MinIncome != nil {
			r.MinIncome = max(0, *e.MinIncome)
		}
		if e.UnsecuredCeiling != nil {
			r.UnsecuredCeiling = max(0, *e.UnsecuredCeiling)
		}
		if e.SecuredCeiling != nil {
			r.SecuredCeiling = max(0, *e.SecuredCeiling)
		}
	}

	return r
}

// NormalizeName lowercases and trims a region or city name for set lookups.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			set[n] = true
		}
	}
	return set
}

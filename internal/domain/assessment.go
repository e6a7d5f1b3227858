package domain

import (
	"math"
	"strconv"
	"strings"
)

// Amount is a monetary value in whole won.
// Decoding never fails: malformed values become 0 and negatives clamp to 0.
type Amount int64

// UnmarshalJSON accepts numbers, numeric strings with separators
// ("1,200,000원"), null, and garbage.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount(parseLenient(string(data)))
	return nil
}

// Count is a non-negative integer decoded as leniently as Amount.
type Count int

// UnmarshalJSON accepts the same inputs as Amount.
func (c *Count) UnmarshalJSON(data []byte) error {
	v := parseLenient(string(data))
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	*c = Count(v)
	return nil
}

// Flag is a boolean that also accepts "true", "yes", "1" and 1.
type Flag bool

// UnmarshalJSON decodes truthy strings and numbers; anything else is false.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "yes", "y", "1", "on":
		*f = true
	default:
		*f = false
	}
	return nil
}

func parseLenient(raw string) int64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" {
		return 0
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if strings.HasPrefix(s, "-") {
		return 0
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return 0
		}
		if f >= math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(f)
	}

	// Form input: keep digits only.
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Age bands.
const (
	AgeBandYoung  = "19-30"
	AgeBandMiddle = "31-64"
	AgeBandSenior = "65plus"
)

// Marital statuses.
const (
	MaritalSingle   = "single"
	MaritalMarried  = "married"
	MaritalDivorced = "divorced"
	MaritalWidowed  = "widowed"
)

// Care types for divorced applicants.
const (
	CareTypeSelf = "self"
	CareTypeEx   = "ex"
)

// Rent location types.
const (
	LocationHome = "home"
	LocationWork = "work"
)

// AssessmentInput is one applicant snapshot. The engine never mutates it.
type AssessmentInput struct {
	HouseholdSize Count   `json:"householdSize"`
	MonthlyIncome Amount  `json:"monthlyIncome"`
	Incomes       Incomes `json:"incomes,omitempty"`
	MinorChildren Count   `json:"minorChildren,omitempty"`

	Meta              Meta               `json:"meta"`
	DivorceAdjustment *DivorceAdjustment `json:"divorceAdjustment,omitempty"`

	Assets Assets `json:"assets"`
	Debts  Debts  `json:"debts"`
}

// Incomes are the monthly income components collected by the form.
type Incomes struct {
	Employment Amount `json:"employment"`
	Business   Amount `json:"business"`
	Pension    Amount `json:"pension"`
}

// Total returns the sum of all components.
func (i Incomes) Total() Amount {
	return i.Employment + i.Business + i.Pension
}

// Meta holds applicant attributes that drive policy lookups.
type Meta struct {
	AgeBand               string   `json:"ageBand"`
	Marital               string   `json:"marital"`
	Home                  Location `json:"homeLocation"`
	Work                  Location `json:"workLocation,omitempty"`
	DischargeWithin5Years Flag     `json:"dischargeWithin5Years"`
}

// Location is a region plus city as selected on the form.
type Location struct {
	Region string `json:"region"`
	City   string `json:"city"`
}

// DivorceAdjustment is present only for divorced applicants.
type DivorceAdjustment struct {
	CareType              string `json:"careType"`
	AlimonyPaid           Amount `json:"alimonyPaid"`
	SupportReceivedFromEx Amount `json:"supportReceivedFromEx"`
}

// Assets lists everything counted toward the liquidation value.
type Assets struct {
	Rent     []RentItem          `json:"rent"`
	Jeonse   []JeonseItem        `json:"jeonse"`
	Owned    []OwnedPropertyItem `json:"owned"`
	Vehicles []VehicleItem       `json:"vehicles"`

	CashDeposits       Amount `json:"cashDeposits"`
	InsuranceCashValue Amount `json:"insuranceCashValue"`
	SecuritiesValue    Amount `json:"securitiesValue"`
}

// RentItem is a monthly-rent lease.
type RentItem struct {
	Deposit      Amount `json:"deposit"`
	Monthly      Amount `json:"monthly"`
	LocationType string `json:"locationType"`
}

// JeonseItem is a lump-sum lease deposit with no monthly rent.
type JeonseItem struct {
	Deposit Amount `json:"deposit"`
	Loan    Amount `json:"loan"`
}

// OwnedPropertyItem is real estate owned by the applicant.
type OwnedPropertyItem struct {
	Price Amount `json:"price"`
	Loan  Amount `json:"loan"`
}

// VehicleItem is a vehicle owned by the applicant.
type VehicleItem struct {
	Price Amount `json:"price"`
	Loan  Amount `json:"loan"`
}

// Debts groups the applicant's debts.
type Debts struct {
	ByType DebtsByType `json:"byType"`
}

// DebtsByType holds debt totals per category.
type DebtsByType struct {
	Credit      Amount `json:"credit"`
	Tax         Amount `json:"tax"`
	PrivateLoan Amount `json:"privateLoan"`
	Secured     Amount `json:"secured"`
}

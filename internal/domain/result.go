package domain

import (
	"time"
)

// AssessmentResult is the engine output.
// A consult-only result has zero payment and months and at least one flag.
type AssessmentResult struct {
	ConsultOnly      bool      `json:"consultOnly"`
	RulesVersion     string    `json:"rulesVersion"`
	MonthlyRepayment int64     `json:"monthlyRepayment"`
	Months           int       `json:"months"`
	Breakdown        Breakdown `json:"breakdown"`
}

// Breakdown carries the diagnostic detail behind a result.
type Breakdown struct {
	HouseholdSize    int    `json:"householdSize"`
	MonthlyIncome    int64  `json:"monthlyIncome"`
	BaseLivingCost   int64  `json:"baseLivingCost"`
	LivingCost       int64  `json:"livingCost"`
	DisposableIncome int64  `json:"disposableIncome"`
	HomeCategory     string `json:"homeCategory"`

	Liquidation Liquidation `json:"liquidation"`
	MonthlyRent int64       `json:"monthlyRent"`

	UnsecuredTotal int64 `json:"unsecuredTotal"`
	SecuredTotal   int64 `json:"securedTotal"`
	AllDebtTotal   int64 `json:"allDebtTotal"`
	TaxDebt        int64 `json:"taxDebt"`

	BasePeriodMonths  int   `json:"basePeriodMonths,omitempty"`
	LivelihoodPayment int64 `json:"livelihoodPayment,omitempty"`
	TaxDivisorMonths  int   `json:"taxDivisorMonths,omitempty"`
	TaxFloorPayment   int64 `json:"taxFloorPayment,omitempty"`
	MonthsByDebt      int   `json:"monthsByDebt,omitempty"`
	TotalRepayment    int64 `json:"totalRepayment"`

	ConsultReason string   `json:"consultReason,omitempty"`
	Flags         []string `json:"flags"`
}

// Liquidation itemises the liquidation value of assets.
type Liquidation struct {
	RentDeposits int64 `json:"rentDeposits"`
	Jeonse       int64 `json:"jeonse"`
	Owned        int64 `json:"owned"`
	Vehicles     int64 `json:"vehicles"`
	Cash         int64 `json:"cash"`
	Insurance    int64 `json:"insurance"`
	Securities   int64 `json:"securities"`
	Total        int64 `json:"total"`
}

// Assessment is a persisted engine run.
type Assessment struct {
	ID           string             `json:"id"`
	RulesVersion string             `json:"rulesVersion"`
	InputHash    string             `json:"inputHash"`
	Input        *AssessmentInput   `json:"input,omitempty"`
	Result       *AssessmentResult  `json:"result"`
	Display      Display            `json:"display"`
	Metadata     AssessmentMetadata `json:"metadata"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Display holds the human-readable rendering of a result.
type Display struct {
	MonthlyRepayment string `json:"monthlyRepayment"`
	Months           string `json:"months"`
	TotalRepayment   string `json:"totalRepayment,omitempty"`
	Summary          string `json:"summary"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	EngineMs      int64  `json:"engineMs"`
	TotalMs       int64  `json:"totalMs"`
	GatesChecked  int    `json:"gatesChecked"`
	Cached        bool   `json:"cached,omitempty"`
	EngineVersion string `json:"engineVersion"`
}

// AssessmentRequest is the body of an assessment submission.
type AssessmentRequest struct {
	RequestID    string           `json:"requestId,omitempty"`
	TraceID      string           `json:"traceId,omitempty"`
	RulesVersion string           `json:"rulesVersion,omitempty"`
	Input        *AssessmentInput `json:"input"`
}

// StoredRules is a rules document as kept by a repository.
type StoredRules struct {
	Version   string         `json:"version"`
	Document  *RulesDocument `json:"document"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

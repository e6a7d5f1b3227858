package cache

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/opensource-finance/repayplan/internal/domain"
)

var errEmptyKey = errors.New("cache key is required")

const resultPrefix = "result:"

func resultKey(fingerprint string) string {
	return resultPrefix + fingerprint
}

func encodeResult(result *domain.AssessmentResult) ([]byte, error) {
	if result == nil {
		return nil, errors.New("cannot cache nil result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*domain.AssessmentResult, error) {
	var res domain.AssessmentResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &res, nil
}

package services

import (
	"math"
	"sync"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
)

// ThresholdModel holds the minimum-profit configuration shared by the
// detection paths. Reads vastly outnumber writes.
type ThresholdModel struct {
	mu     sync.RWMutex
	config models.ThresholdConfig
}

// NewThresholdModel creates a threshold model seeded with initial values.
// Invalid seeds fall back to the defaults.
func NewThresholdModel(initial models.ThresholdConfig) *ThresholdModel {
	if validateThreshold("percentage", initial.MinProfitPercentage) != nil ||
		validateThreshold("absolute", initial.MinProfitAbsolute) != nil {
		initial = models.DefaultThresholds()
	}
	return &ThresholdModel{config: initial}
}

// Get returns a snapshot of the current thresholds.
func (t *ThresholdModel) Get() models.ThresholdConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// Set updates whichever values are provided. Both values are validated
// before either is applied.
func (t *ThresholdModel) Set(percentage, absolute *float64) error {
	if percentage != nil {
		if err := validateThreshold("percentage", *percentage); err != nil {
			return err
		}
	}
	if absolute != nil {
		if err := validateThreshold("absolute", *absolute); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if percentage != nil {
		t.config.MinProfitPercentage = *percentage
	}
	if absolute != nil {
		t.config.MinProfitAbsolute = *absolute
	}
	return nil
}

func validateThreshold(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return &utils.ThresholdValidationError{Field: field, Value: value}
	}
	return nil
}

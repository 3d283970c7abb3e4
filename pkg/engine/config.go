package engine

import (
	"fmt"
	"time"
)

// Config holds the tunable scheduling policy of the engine.
type Config struct {
	// ConsumptionPolicy decides what completion does with a stage's reservation.
	ConsumptionPolicy ConsumptionPolicy `json:"consumption_policy"`

	// AtRiskSlack widens the at-risk window. A stage is at risk when its
	// scheduled start is later than due date minus duration minus slack.
	AtRiskSlack time.Duration `json:"at_risk_slack"`

	// ConflictRetries is how many times a calendar conflict is retried
	// before the pass fails with an internal error.
	ConflictRetries int `json:"conflict_retries"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ConsumptionPolicy: ConsumptionConsume,
		AtRiskSlack:       0,
		ConflictRetries:   1,
	}
}

// Validate validates the engine configuration.
func (c Config) Validate() error {
	if err := c.ConsumptionPolicy.Validate(); err != nil {
		return NewPermanentError("invalid engine config", err).WithCode(ErrCodeValidation)
	}
	if c.AtRiskSlack < 0 {
		return NewPermanentError(fmt.Sprintf("at-risk slack must not be negative: %s", c.AtRiskSlack), nil).
			WithCode(ErrCodeValidation)
	}
	if c.ConflictRetries < 0 {
		return NewPermanentError("conflict retries must not be negative", nil).
			WithCode(ErrCodeValidation)
	}
	return nil
}

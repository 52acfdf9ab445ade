package config

import (
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
)

// Validator is an utility struct for validating a configuration.
type Validator struct {
	tel *telemetry.Telemetry
}

// NewValidator returns a new validator.
func NewValidator(tel *telemetry.Telemetry) *Validator {
	return &Validator{
		tel: tel,
	}
}

// Validate validates the given configuration and logs every anomaly found.
// It returns the number of anomalies.
func (v *Validator) Validate(config Config) int {
	ac := newAnomalyCollector()
	config.Validate(ac)

	for an := range ac.iter() {
		v.tel.LogWarn("config anomaly",
			"field", an.field, "reason", an.reason,
			"actual", an.actual, "fallback", an.fallback)
	}

	return ac.Len()
}

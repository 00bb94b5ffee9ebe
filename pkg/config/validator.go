package config

import "fmt"

// Validator validates a loaded Config comprehensively, with clear
// per-component error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section, returning the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return err
	}
	if err := v.validatePipeline(); err != nil {
		return err
	}
	if err := v.validateTransports(); err != nil {
		return err
	}
	if err := v.validateProfiles(); err != nil {
		return err
	}
	if err := v.validateShippers(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	db := v.cfg.Database
	if db.Host == "" {
		return NewValidationError("database", "", "host", ErrMissingRequiredField)
	}
	if db.Port == 0 {
		return NewValidationError("database", "", "port", ErrMissingRequiredField)
	}
	if db.Name == "" {
		return NewValidationError("database", "", "name", ErrMissingRequiredField)
	}
	if db.User == "" {
		return NewValidationError("database", "", "user", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validatePipeline() error {
	p := v.cfg.Pipeline
	if p.QueueSize <= 0 {
		return NewValidationError("pipeline", "", "queue_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if p.Timeout <= 0 {
		return NewValidationError("pipeline", "", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateTransports() error {
	if len(v.cfg.Transports) == 0 {
		return NewValidationError("transports", "", "", fmt.Errorf("%w: at least one transport is required", ErrMissingRequiredField))
	}
	for name, t := range v.cfg.Transports {
		if t.Class == "" {
			return NewValidationError("transport", name, "class", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *Validator) validateProfiles() error {
	if len(v.cfg.Profiles) == 0 {
		return NewValidationError("profiles", "", "", fmt.Errorf("%w: at least one profile is required", ErrMissingRequiredField))
	}
	for name, p := range v.cfg.Profiles {
		if p.Class == "" {
			return NewValidationError("profile", name, "class", ErrMissingRequiredField)
		}
		if p.Collector.Class == "" {
			return NewValidationError("profile", name, "collector.class", ErrMissingRequiredField)
		}
		if p.Analyzer.Class == "" {
			return NewValidationError("profile", name, "analyzer.class", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *Validator) validateShippers() error {
	if len(v.cfg.Shippers) == 0 {
		return NewValidationError("shippers", "", "", fmt.Errorf("%w: at least one shipper is required", ErrMissingRequiredField))
	}
	for name, s := range v.cfg.Shippers {
		if s.Class == "" {
			return NewValidationError("shipper", name, "class", ErrMissingRequiredField)
		}
		if s.Limit < 0 {
			return NewValidationError("shipper", name, "limit", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}
	return nil
}

package config

import (
	"fmt"
	"regexp"
	"time"
)

var (
	// Group name: letters, digits, dots, hyphens (e.g. "openshift-4.1").
	groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	// Distgit key: the config file basename used with -i/-r/-x.
	targetKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateGroup checks a group configuration for errors.
func ValidateGroup(cfg *GroupConfig) error {
	if cfg.Name != "" && !groupNamePattern.MatchString(cfg.Name) {
		return &ValidationError{Field: "name", Message: "must match pattern ^[A-Za-z0-9][A-Za-z0-9._-]*$"}
	}

	for repoType, repo := range cfg.Repos {
		if repo.BaseURL == "" {
			return &ValidationError{Field: fmt.Sprintf("repos.%s.baseurl", repoType), Message: "is required"}
		}
	}

	for i, reg := range cfg.Registries {
		if reg == "" {
			return &ValidationError{Field: fmt.Sprintf("registries[%d]", i), Message: "must not be empty"}
		}
	}

	if cfg.Build != nil && cfg.Build.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Build.PollInterval)
		if err != nil || d <= 0 {
			return &ValidationError{Field: "build.poll_interval", Message: "must be a positive duration like 30s"}
		}
	}

	return nil
}

// ValidateTarget checks a target configuration for errors.
func ValidateTarget(key string, cfg *TargetConfig) error {
	if err := ValidateTargetKey(key); err != nil {
		return err
	}

	if cfg.Name == "" {
		return &ValidationError{Field: key + ".name", Message: "is required"}
	}

	switch cfg.Mode {
	case ModeEnabled, ModeDisabled, ModeWIP:
	default:
		return &ValidationError{
			Field:   key + ".mode",
			Message: fmt.Sprintf("must be %q, %q or %q", ModeEnabled, ModeDisabled, ModeWIP),
		}
	}

	return nil
}

// ValidateTargetKey checks if a distgit key is valid.
func ValidateTargetKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "distgit key", Message: "is required"}
	}
	if !targetKeyPattern.MatchString(key) {
		return &ValidationError{
			Field:   "distgit key",
			Message: fmt.Sprintf("%q must match pattern ^[A-Za-z0-9][A-Za-z0-9._+-]*$", key),
		}
	}
	return nil
}

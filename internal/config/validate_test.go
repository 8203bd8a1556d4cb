package config

import (
	"errors"
	"testing"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		cfg     TargetConfig
		wantErr string
	}{
		{"ok", "ose-cli", TargetConfig{Name: "openshift3/ose-cli", Mode: ModeEnabled}, ""},
		{"wip", "ose", TargetConfig{Name: "openshift3/ose", Mode: ModeWIP}, ""},
		{"missing name", "ose", TargetConfig{Mode: ModeEnabled}, "ose.name"},
		{"bad mode", "ose", TargetConfig{Name: "x", Mode: "on"}, "ose.mode"},
		{"empty key", "", TargetConfig{Name: "x", Mode: ModeEnabled}, "distgit key"},
		{"bad key", "a b", TargetConfig{Name: "x", Mode: ModeEnabled}, "distgit key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.key, &tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateTarget() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ValidateTarget() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantErr)
			}
		})
	}
}

func TestValidateGroup(t *testing.T) {
	tests := []struct {
		name  string
		cfg   GroupConfig
		field string
	}{
		{"empty ok", GroupConfig{}, ""},
		{"repo without baseurl", GroupConfig{Repos: map[string]RepoConfig{"signed": {}}}, "repos.signed.baseurl"},
		{"empty registry", GroupConfig{Registries: []string{"r.example.com", ""}}, "registries[1]"},
		{"zero poll", GroupConfig{Build: &BuildConfig{PollInterval: "0s"}}, "build.poll_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroup(&tt.cfg)
			if tt.field == "" {
				if err != nil {
					t.Errorf("ValidateGroup() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("ValidateGroup() error = %v, want field %q", err, tt.field)
			}
		})
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.DispatchInterval != 15*time.Minute {
		t.Errorf("expected 15m dispatch interval, got %s", cfg.DispatchInterval)
	}
	if len(cfg.GrowSurveyMilestones) != 0 {
		t.Errorf("expected no GROW milestone overrides, got %v", cfg.GrowSurveyMilestones)
	}
	if !cfg.WeeklyDigestOnly {
		t.Error("expected weekly subscribers to get only the digest by default")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DISPATCH_INTERVAL", "0s")
	t.Setenv("PORTAL_ALLOWED_ORIGINS", "https://portal.example.com, https://admin.example.com")
	t.Setenv("GROW_SURVEY_MILESTONES", "1:grow_baseline,12:grow_midpoint,24:grow_end")
	t.Setenv("SLACK_SIGNING_SECRET", "shh")
	t.Setenv("WEEKLY_DIGEST_ONLY", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DispatchInterval != 0 {
		t.Errorf("expected timer disabled, got %s", cfg.DispatchInterval)
	}
	if len(cfg.PortalAllowedOrigins) != 2 || cfg.PortalAllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("unexpected origins: %v", cfg.PortalAllowedOrigins)
	}
	if cfg.GrowSurveyMilestones[12] != "grow_midpoint" {
		t.Errorf("expected ordinal 12 to map to grow_midpoint, got %q", cfg.GrowSurveyMilestones[12])
	}
	if cfg.SlackSigningSecret != "shh" {
		t.Errorf("expected signing secret to be read")
	}
	if cfg.WeeklyDigestOnly {
		t.Error("expected WEEKLY_DIGEST_ONLY=false to be read")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "eighty"},
		{"bad interval", "DISPATCH_INTERVAL", "often"},
		{"negative interval", "DISPATCH_INTERVAL", "-5m"},
		{"bad slack timeout", "SLACK_TIMEOUT", "soon"},
		{"bad milestones", "GROW_SURVEY_MILESTONES", "one:grow_baseline"},
		{"zero rate limit", "DISPATCH_RATE_LIMIT", "0"},
		{"bad weekly digest flag", "WEEKLY_DIGEST_ONLY", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestParseMilestoneKinds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[int]string
		wantErr bool
	}{
		{"single", "1:grow_baseline", map[int]string{1: "grow_baseline"}, false},
		{"spaces", " 6 : grow_midpoint , 12:grow_end ", map[int]string{6: "grow_midpoint", 12: "grow_end"}, false},
		{"missing colon", "6", nil, true},
		{"zero ordinal", "0:grow_end", nil, true},
		{"unknown kind", "6:grow_sideways", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMilestoneKinds(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ordinal %d: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

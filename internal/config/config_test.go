package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("org-1")
	if cfg.Org.ID != "org-1" {
		t.Fatalf("expected org id org-1, got %s", cfg.Org.ID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.RBAC.Roles) == 0 {
		t.Fatal("expected default roles")
	}
	if _, ok := cfg.RBAC.Roles["hr_admin"]; !ok {
		t.Fatal("expected hr_admin role")
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("acme")))
	if err != nil {
		t.Fatalf("parse generated default: %v", err)
	}
	if cfg.Org.ID != "acme" {
		t.Fatalf("expected acme, got %s", cfg.Org.ID)
	}
}

func TestChainFor(t *testing.T) {
	cfg := Default("org-1")
	chain := cfg.ChainFor("expense_claim")
	if len(chain) != 2 || chain[0] != "hr_manager" || chain[1] != "finance_manager" {
		t.Fatalf("unexpected chain: %v", chain)
	}
	fallback := cfg.ChainFor("salary_adjustment")
	if len(fallback) != 1 || fallback[0] != "hr_manager" {
		t.Fatalf("unexpected fallback chain: %v", fallback)
	}
}

func TestAllowanceFor(t *testing.T) {
	cfg := Default("org-1")
	if got := cfg.AllowanceFor("annual"); got != 25 {
		t.Fatalf("annual allowance: got %d", got)
	}
	if got := cfg.AllowanceFor("unpaid"); got != 0 {
		t.Fatalf("unpaid allowance: got %d", got)
	}
	if got := cfg.AllowanceFor("sabbatical"); got != -1 {
		t.Fatalf("unknown type: got %d", got)
	}
}

func TestFromYAMLRejectsBadInput(t *testing.T) {
	if _, err := FromYAML([]byte("org: [")); err == nil {
		t.Fatal("expected yaml error")
	}
	if _, err := FromYAML([]byte("org:\n  name: no-id\n")); err == nil || !strings.Contains(err.Error(), "org.id") {
		t.Fatalf("expected org.id error, got %v", err)
	}
}

func TestValidateChainUnknownRole(t *testing.T) {
	cfg := Default("org-1")
	cfg.Approvals.Chains["equipment_request"] = []string{"it_manager"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestValidateEmptyChain(t *testing.T) {
	cfg := Default("org-1")
	cfg.Approvals.Chains["equipment_request"] = nil
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty chain error, got %v", err)
	}
}

func TestValidateRequiresHRAdmin(t *testing.T) {
	cfg := Default("org-1")
	delete(cfg.RBAC.Roles, "hr_admin")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "hr_admin") {
		t.Fatalf("expected hr_admin error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "hrline.yml"), []byte(GenerateDefault("org-2")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || cfg.Org.ID != "org-2" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

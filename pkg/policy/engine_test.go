package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/airlock"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop(), 3)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func testRequest() *airlock.AirlockRequest {
	return &airlock.AirlockRequest{
		ID:                    "req-1",
		WorkspaceID:           "ws-abcd1234",
		Type:                  airlock.RequestTypeImport,
		Status:                airlock.StatusDraft,
		BusinessJustification: "importing a public dataset",
	}
}

func TestEvaluateRequestAllowed(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.EvaluateRequest(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("result = %+v, want allowed", result)
	}
	if len(result.Violations) != 0 {
		t.Errorf("violations = %v, want none", result.Violations)
	}
}

func TestEvaluateRequestMissingJustificationBlocks(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name          string
		justification string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := testRequest()
			request.BusinessJustification = tt.justification

			result, err := e.EvaluateRequest(context.Background(), request)
			if err != nil {
				t.Fatalf("EvaluateRequest() error = %v", err)
			}
			if result.Allowed {
				t.Fatalf("result = %+v, want blocked", result)
			}
			if len(result.Violations) == 0 {
				t.Fatal("no violations reported")
			}
			if result.Violations[0].Policy != "business-justification" {
				t.Errorf("violation policy = %s", result.Violations[0].Policy)
			}
			if !result.Violations[0].Blocking() {
				t.Errorf("violation = %+v, want blocking", result.Violations[0])
			}
		})
	}
}

func TestEvaluateRequestExportFileCount(t *testing.T) {
	e := newTestEngine(t)

	request := testRequest()
	request.Type = airlock.RequestTypeExport
	for i := 0; i < 4; i++ {
		request.Files = append(request.Files, airlock.FileReference{Name: "data.csv", Size: 10})
	}

	result, err := e.EvaluateRequest(context.Background(), request)
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if result.Allowed {
		t.Fatalf("result = %+v, want blocked at 4 files with limit 3", result)
	}

	// An import with the same file count is not bounded.
	request.Type = airlock.RequestTypeImport
	result, err = e.EvaluateRequest(context.Background(), request)
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("import result = %+v, want allowed", result)
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetEnabled("business-justification", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	request := testRequest()
	request.BusinessJustification = ""

	result, err := e.EvaluateRequest(context.Background(), request)
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("result = %+v, want allowed with policy disabled", result)
	}
}

func TestSetEnabledUnknownPolicy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetEnabled("nope", true); err == nil {
		t.Fatal("SetEnabled() accepted unknown policy")
	}
}

func TestLoadPoliciesFromDir(t *testing.T) {
	dir := t.TempDir()
	custom := `package atrium.policies.custom

import rego.v1

deny contains violation if {
	input.request.workspaceId == ""
	violation := {
		"message": "request has no workspace",
		"severity": "error",
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "workspace-required.rego"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), dir); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	if _, err := e.GetPolicy("workspace-required"); err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}

	request := testRequest()
	request.WorkspaceID = ""
	result, err := e.EvaluateRequest(context.Background(), request)
	if err != nil {
		t.Fatalf("EvaluateRequest() error = %v", err)
	}
	if result.Allowed {
		t.Errorf("result = %+v, want blocked by custom policy", result)
	}
}

func TestListPolicies(t *testing.T) {
	e := newTestEngine(t)
	policies := e.ListPolicies()
	if len(policies) != 2 {
		t.Fatalf("ListPolicies() returned %d policies, want 2", len(policies))
	}
}

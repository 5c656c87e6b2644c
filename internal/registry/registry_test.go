package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reqlens/reqlens/internal/log"
)

const testServices = `[
  {"code": "billing", "name": "Billing", "platform": false},
  {"code": "auth", "name": "Auth Platform", "platform": true},
  {"code": "notify", "name": "Notifications", "platform": true},
  {"code": "crm", "name": "CRM"}
]`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(testServices), log.NewNop())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := len(r.Services()); got != 4 {
		t.Fatalf("Services() len = %d, want 4", got)
	}

	svc, ok := r.Get("auth")
	if !ok {
		t.Fatal("Get(auth) not found")
	}
	if svc.Name != "Auth Platform" || !svc.Platform {
		t.Errorf("Get(auth) = %+v", svc)
	}

	if !r.Valid("crm") {
		t.Error("Valid(crm) = false, want true")
	}
	if r.Valid("unknown") {
		t.Error("Valid(unknown) = true, want false")
	}
}

func TestPlatformCodes(t *testing.T) {
	r, err := Parse([]byte(testServices), log.NewNop())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := r.PlatformCodes()
	want := []string{"auth", "notify"}
	if len(got) != len(want) {
		t.Fatalf("PlatformCodes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PlatformCodes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsPlatform(t *testing.T) {
	r, err := Parse([]byte(testServices), log.NewNop())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		code string
		want bool
	}{
		{"auth", true},
		{"billing", false},
		{"crm", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		if got := r.IsPlatform(tt.code); got != tt.want {
			t.Errorf("IsPlatform(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestParseDuplicateCode(t *testing.T) {
	data := `[
	  {"code": "billing", "name": "First"},
	  {"code": "billing", "name": "Second"}
	]`

	r, err := Parse([]byte(data), log.NewNop())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := len(r.Services()); got != 1 {
		t.Fatalf("Services() len = %d, want 1", got)
	}
	svc, _ := r.Get("billing")
	if svc.Name != "First" {
		t.Errorf("Get(billing).Name = %q, want First", svc.Name)
	}
}

func TestParseEmptyCode(t *testing.T) {
	if _, err := Parse([]byte(`[{"code": "", "name": "Broken"}]`), log.NewNop()); err == nil {
		t.Fatal("Parse() error = nil, want error for empty code")
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`), log.NewNop()); err == nil {
		t.Fatal("Parse() error = nil, want error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	if err := os.WriteFile(path, []byte(testServices), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path, log.NewNop())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !r.Valid("billing") {
		t.Error("Valid(billing) = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json"), log.NewNop()); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

//go:build governance

package core_test

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/leapcalc"

// =============================================================================
// LAYERING TEST - Dependencies point from the CLI down to pkg/units
// =============================================================================

// layerRules maps a package prefix to the module packages it must not import.
var layerRules = []struct {
	from      string
	forbidden []string
	reason    string
}{
	{"pkg/", []string{"internal/", "cmd/"}, "public packages must not depend on internals"},
	{"pkg/units", []string{"pkg/core"}, "units is the bottom layer"},
	{"internal/casestudy", []string{"internal/model", "internal/cli"}, "the model drives case studies, not the reverse"},
	{"internal/scenario", []string{"internal/model", "internal/casestudy", "internal/cli"}, "scenarios are plain data"},
	{"internal/report", []string{"internal/model", "internal/cli"}, "reports render data handed to them"},
	{"internal/validation", []string{"internal/model", "internal/cli"}, "validation is pure"},
	{"internal/starlark", []string{"internal/model", "internal/cli"}, "engines know nothing about models"},
	{"internal/model", []string{"internal/cli"}, "the model is UI independent"},
}

// TestGovernance_Layering loads the module and checks every import edge
// against layerRules.
func TestGovernance_Layering(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	base := modulePath + "/"
	for _, p := range pkgs {
		from := strings.TrimPrefix(p.PkgPath, base)
		for imp := range p.Imports {
			if !strings.HasPrefix(imp, base) {
				continue
			}
			to := strings.TrimPrefix(imp, base)
			for _, rule := range layerRules {
				if !strings.HasPrefix(from, rule.from) {
					continue
				}
				for _, f := range rule.forbidden {
					if strings.HasPrefix(to, f) {
						t.Errorf("LAYERING VIOLATION: '%s' imports '%s' (%s)", from, to, rule.reason)
					}
				}
			}
		}
	}
}

package resolver

import "testing"

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		wantIssues bool
	}{
		{name: "empty placeholder", template: "{{}}", wantIssues: true},
		{name: "single char path", template: "{{a}}", wantIssues: true},
		{name: "index only", template: "{{[0]}}", wantIssues: true},
		{name: "wildcard only", template: "{{[*]}}", wantIssues: true},
		{name: "trailing dot", template: "{{a.}}", wantIssues: true},
		{name: "nested brackets", template: "{{a[[0]]}}", wantIssues: true},
		{name: "unmatched open bracket", template: "{{ab[0}}", wantIssues: true},
		{name: "unmatched close bracket", template: "{{ab0]}}", wantIssues: true},
		{name: "uneven braces", template: "Hi {{ab}} }", wantIssues: true},
		{name: "two char path ok", template: "{{ab}}", wantIssues: false},
		{name: "dotted path ok", template: "{{a.b}}", wantIssues: false},
		{name: "wildcard path ok", template: "{{items[*].sku}}", wantIssues: false},
		{name: "indexed path ok", template: "{{items[2].sku}}", wantIssues: false},
		{name: "plain text ok", template: "no placeholders here", wantIssues: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			issues := ValidateTemplate(tc.template)
			if tc.wantIssues && len(issues) == 0 {
				t.Fatalf("expected issues for %q", tc.template)
			}
			if !tc.wantIssues && len(issues) > 0 {
				t.Fatalf("unexpected issues for %q: %v", tc.template, issues)
			}
		})
	}
}

package source

import "testing"

func TestParseSpec(t *testing.T) {
	tests := []struct {
		alias string
		spec  string
		want  Spec
	}{
		{"react", "^18", Spec{Kind: SpecRegistry, Name: "react", Range: "^18"}},
		{"react", "", Spec{Kind: SpecRegistry, Name: "react", Range: "latest"}},
		{"r", "npm:react@^18", Spec{Kind: SpecRegistry, Name: "react", Range: "^18"}},
		{"s", "npm:@scope/pkg@1.0.0", Spec{Kind: SpecRegistry, Name: "@scope/pkg", Range: "1.0.0"}},
		{"s", "npm:@scope/pkg", Spec{Kind: SpecRegistry, Name: "@scope/pkg", Range: "latest"}},
		{"ui", "workspace:*", Spec{Kind: SpecWorkspace, Name: "ui", Range: "*"}},
		{"ui", "link:../ui", Spec{Kind: SpecLink, Name: "ui", Path: "../ui"}},
		{"ui", "file:../ui", Spec{Kind: SpecFile, Name: "ui", Path: "../ui"}},
	}
	for _, tt := range tests {
		t.Run(tt.alias+"@"+tt.spec, func(t *testing.T) {
			if got := ParseSpec(tt.alias, tt.spec); got != tt.want {
				t.Errorf("ParseSpec(%q, %q) = %+v, want %+v", tt.alias, tt.spec, got, tt.want)
			}
		})
	}
}

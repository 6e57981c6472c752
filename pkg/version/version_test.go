package version

import (
	"reflect"
	"testing"
)

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version string
		spec    string
		want    bool
	}{
		{"18.2.0", "^18", true},
		{"18.2.0", "^18.0.0", true},
		{"17.0.2", "^18", false},
		{"2.0.0", "1.x || 2.x", true},
		{"1.5.0", ">=1.2.0 <2.0.0", true},
		{"1.0.0", "", true},
		{"1.0.0", "*", true},
		{"1.0.0", "latest", true},
		{"1.0.0", "workspace:*", true},
		{"1.0.0", "workspace:^1.0.0", true},
		{"2.0.0", "workspace:^1.0.0", false},
		{"18.3.0-rc.1", "^18", true},
		{"19.0.0-rc.1", "^18", false},
		{"18.0.0-rc.1", ">=18.0.0", false},
		{"18.0.0-rc.1", "^18.0.0", false},
		{"18.0.0-rc.1", "<18.0.0", true},
		{"18.0.0-rc.2", ">=18.0.0-rc.1", true},
		{"2.0.0-beta.1", "*", true},
		{"not-a-version", "^1", false},
		{"1.0.0", "not a range", false},
		{"next", "next", true},
	}

	for _, tt := range tests {
		t.Run(tt.version+" "+tt.spec, func(t *testing.T) {
			if got := Satisfies(tt.version, tt.spec); got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.version, tt.spec, got, tt.want)
			}
		})
	}
}

func TestMaxSatisfying(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		spec     string
		want     string
		ok       bool
	}{
		{"highest in range", []string{"1.0.0", "1.2.0", "1.10.0", "2.0.0", "bogus"}, "^1", "1.10.0", true},
		{"no match", []string{"1.0.0", "2.0.0"}, "^3", "", false},
		{"skips canary", []string{"17.0.2", "17.1.0-canary.1"}, "^17.0.0", "17.0.2", true},
		{"skips beta for any", []string{"1.0.0", "2.0.0-beta.1"}, "*", "1.0.0", true},
		{"skips beta for latest", []string{"1.0.0", "2.0.0-beta.1"}, "latest", "1.0.0", true},
		{"prerelease range", []string{"1.0.0", "1.1.0-beta.1", "1.1.0-beta.2"}, ">=1.1.0-beta.1", "1.1.0-beta.2", true},
		{"only prereleases", []string{"2.0.0-rc.1"}, "^2.0.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MaxSatisfying(tt.versions, tt.spec)
			if got != tt.want || ok != tt.ok {
				t.Errorf("MaxSatisfying(%v, %q) = %q, %v, want %q, %v", tt.versions, tt.spec, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSort(t *testing.T) {
	versions := []string{"1.10.0", "1.2.0", "junk", "1.2.0-beta.1"}
	Sort(versions)
	want := []string{"junk", "1.2.0-beta.1", "1.2.0", "1.10.0"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("Sort() = %v, want %v", versions, want)
	}
}

func TestPinnedSpec(t *testing.T) {
	tests := []struct {
		version string
		pin     Pin
		want    string
	}{
		{"1.2.3", PinMajor, "^1.2.3"},
		{"1.2.3", PinMinor, "~1.2.3"},
		{"1.2.3", PinPatch, "1.2.3"},
		{"1.2.3", PinNone, "*"},
		{"1.2.3-rc.0", PinMajor, "1.2.3-rc.0"},
		{"file:../x", PinMajor, "file:../x"},
	}
	for _, tt := range tests {
		if got := PinnedSpec(tt.version, tt.pin); got != tt.want {
			t.Errorf("PinnedSpec(%q, %q) = %q, want %q", tt.version, tt.pin, got, tt.want)
		}
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name   string
		ranges []string
		want   string
		ok     bool
	}{
		{"empty", nil, "*", true},
		{"single", []string{"^18"}, "^18", true},
		{"dedupes", []string{"^18", "^18"}, "^18", true},
		{"joins", []string{"^18", ">=18.2.0"}, "^18 >=18.2.0", true},
		{"ignores any", []string{"*", "^1"}, "^1", true},
		{"disjunction", []string{"^1 || ^2", "^2"}, "", false},
		{"invalid", []string{"^1", "nope nope"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Intersect(tt.ranges)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Intersect(%v) = %q, %v, want %q, %v", tt.ranges, got, ok, tt.want, tt.ok)
			}
		})
	}
}

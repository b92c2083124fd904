package severity

import (
	"sort"
	"testing"
)

func TestLevel_Priority(t *testing.T) {
	tests := []struct {
		level    Level
		expected int
	}{
		{Critical, 4},
		{High, 3},
		{Medium, 2},
		{Low, 1},
		{Level("invalid"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := tt.level.Priority(); got != tt.expected {
				t.Errorf("Level.Priority() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLevel_IsValid(t *testing.T) {
	for _, l := range AllLevels() {
		if !l.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", l)
		}
	}
	for _, l := range []Level{"", "info", "unknown", "high"} {
		if l.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", l)
		}
	}
}

func TestFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"CRITICAL", Critical},
		{"critical", Critical},
		{"HIGH", High},
		{"error", High},
		{"  Medium  ", Medium},
		{"warning", Medium},
		{"moderate", Medium},
		{"LOW", Low},
		{"informational", Low},
		{"note", Low},
		{"UNDEFINED", Medium},
		{"", Medium},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FromString(tt.input); got != tt.expected {
				t.Errorf("FromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	if _, ok := Parse("bogus"); ok {
		t.Error("Parse(bogus) ok = true, want false")
	}
}

func TestFromCVSS(t *testing.T) {
	tests := []struct {
		score    float64
		expected Level
	}{
		{10.0, Critical},
		{9.0, Critical},
		{8.9, High},
		{7.0, High},
		{6.9, Medium},
		{4.0, Medium},
		{3.9, Low},
		{0.0, Low},
	}

	for _, tt := range tests {
		if got := FromCVSS(tt.score); got != tt.expected {
			t.Errorf("FromCVSS(%v) = %v, want %v", tt.score, got, tt.expected)
		}
	}
}

func TestFromPriority(t *testing.T) {
	tests := []struct {
		p        int
		expected Level
		ok       bool
	}{
		{0, Critical, true},
		{1, High, true},
		{2, Medium, true},
		{3, Low, true},
		{4, Low, true},
		{5, "", false},
	}

	for _, tt := range tests {
		got, ok := FromPriority(tt.p)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("FromPriority(%d) = (%v, %v), want (%v, %v)", tt.p, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestCompare_SortsDescending(t *testing.T) {
	levels := []Level{Low, Critical, Medium, High, Low}
	sort.SliceStable(levels, func(i, j int) bool {
		return Compare(levels[i], levels[j]) > 0
	})

	want := []Level{Critical, High, Medium, Low, Low}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", levels, want)
		}
	}
}

func TestMax(t *testing.T) {
	if got := Max(Low, High); got != High {
		t.Errorf("Max(Low, High) = %v, want High", got)
	}
	if got := Max(Critical, Medium); got != Critical {
		t.Errorf("Max(Critical, Medium) = %v, want Critical", got)
	}
}

func TestCountBySeverity(t *testing.T) {
	var c CountBySeverity
	if _, ok := c.HighestSeverity(); ok {
		t.Error("empty counter reported a highest severity")
	}

	for _, l := range []Level{Low, Medium, High, Medium} {
		c.Increment(l)
	}

	if c.Total != 4 || c.Medium != 2 || c.High != 1 || c.Low != 1 {
		t.Errorf("counts = %+v", c)
	}
	if got, _ := c.HighestSeverity(); got != High {
		t.Errorf("HighestSeverity() = %v, want High", got)
	}
}

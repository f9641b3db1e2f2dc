package expr

import "testing"

func mustCompile(t *testing.T, src string) *Expr {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) error = %v", src, err)
	}
	return e
}

func TestCompileRejectsMalformed(t *testing.T) {
	cases := []string{
		"turn >=",
		"(turn > 3",
		`location == "open`,
		"turn >> 3",
		"turn > 3 extra",
	}
	for _, src := range cases {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) error = nil, want parse failure", src)
		}
	}
}

func TestEvalComparisons(t *testing.T) {
	env := MapEnv{
		"turn":           10,
		"elara_affinity": 35,
		"location":       "observatory",
		"time":           "night",
	}

	cases := []struct {
		src  string
		want bool
	}{
		{"", true},
		{"turn >= 10", true},
		{"turn > 10", false},
		{"turn <= 10 AND elara_affinity > 30", true},
		{"turn > 20 OR elara_affinity > 30", true},
		{"turn > 20 AND elara_affinity > 30", false},
		{`location == "observatory"`, true},
		{`location == "Observatory"`, true},
		{`location != "garden"`, true},
		{`time == "night" AND (turn >= 5 OR elara_affinity >= 50)`, true},
		{"NOT turn > 20", true},
		{"elara_affinity >= 35 and elara_affinity <= 35", true},
	}

	for _, tc := range cases {
		got, err := mustCompile(t, tc.src).Eval(env)
		if err != nil {
			t.Errorf("Eval(%q) error = %v", tc.src, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Eval(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestEvalBareIdentifierTruthiness(t *testing.T) {
	env := MapEnv{
		"met_rival":   true,
		"night_visit": false,
	}

	cases := []struct {
		src  string
		want bool
	}{
		{"met_rival", true},
		{"night_visit", false},
		{"unknown_flag", false},
		{"met_rival AND NOT night_visit", true},
	}

	for _, tc := range cases {
		got, err := mustCompile(t, tc.src).Eval(env)
		if err != nil {
			t.Errorf("Eval(%q) error = %v", tc.src, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Eval(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestEvalOrderedComparisonOnStringsErrors(t *testing.T) {
	env := MapEnv{"location": "garden"}

	_, err := mustCompile(t, `location > "atrium"`).Eval(env)
	if err == nil {
		t.Fatal("Eval() error = nil, want non-numeric comparison error")
	}
}

func TestEvalUnknownIdentifierComparesUnequal(t *testing.T) {
	got, err := mustCompile(t, `missing == "anything"`).Eval(MapEnv{})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if got {
		t.Fatal("Eval(missing == anything) = true, want false")
	}
}

func TestSingleEqualsAccepted(t *testing.T) {
	got, err := mustCompile(t, `time = "night"`).Eval(MapEnv{"time": "night"})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if !got {
		t.Fatal("Eval(time = night) = false, want true")
	}
}

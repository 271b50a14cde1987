package domain

import "testing"

func TestTimeWindowContains(t *testing.T) {
	day := TimeWindow{Start: MustClock("08:00"), End: MustClock("23:00")}
	night := TimeWindow{Start: MustClock("23:00"), End: MustClock("08:00")}

	tests := []struct {
		name   string
		window TimeWindow
		at     string
		want   bool
	}{
		{name: "day start included", window: day, at: "08:00", want: true},
		{name: "day middle", window: day, at: "14:30", want: true},
		{name: "day last minute", window: day, at: "22:59", want: true},
		{name: "day end excluded", window: day, at: "23:00", want: false},
		{name: "day before start", window: day, at: "07:59", want: false},
		{name: "night start included", window: night, at: "23:00", want: true},
		{name: "night after midnight", window: night, at: "00:00", want: true},
		{name: "night early morning", window: night, at: "07:59", want: true},
		{name: "night end excluded", window: night, at: "08:00", want: false},
		{name: "night daytime", window: night, at: "12:00", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(MustClock(tt.at)); got != tt.want {
				t.Fatalf("%s-%s Contains(%s) = %v, want %v", tt.window.Start, tt.window.End, tt.at, got, tt.want)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	if p, err := ParsePlatform("instagram"); err != nil || p != PlatformInstagram {
		t.Fatalf("ParsePlatform(instagram) = %q, %v", p, err)
	}
	_, err := ParsePlatform("fax")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClockTimeText(t *testing.T) {
	var c ClockTime
	if err := c.UnmarshalText([]byte("06:05")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Hour != 6 || c.Minute != 5 {
		t.Fatalf("unexpected clock %+v", c)
	}
	if c.String() != "06:05" {
		t.Fatalf("String() = %q", c.String())
	}
	if err := c.UnmarshalText([]byte("25:00")); err == nil {
		t.Fatalf("expected error for invalid clock")
	}
}

func TestDecisionInitialStatus(t *testing.T) {
	cases := map[DecisionType]ContentStatus{
		DecisionAutoPublish:     ContentStatusAutoReady,
		DecisionRequireApproval: ContentStatusPendingApproval,
		DecisionBlock:           ContentStatusBlocked,
		DecisionSchedule:        ContentStatusScheduled,
	}
	for decision, want := range cases {
		if got := decision.InitialStatus(); got != want {
			t.Fatalf("%s.InitialStatus() = %s, want %s", decision, got, want)
		}
	}
}

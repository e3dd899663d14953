package recurrence

import (
	"testing"
	"time"
)

func TestParseWeekdaySet(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "short names", input: "mon,wed,fri", want: "mon,wed,fri"},
		{name: "full names", input: "monday,friday", want: "mon,fri"},
		{name: "mixed case and spaces", input: " Tue , SATURDAY ", want: "tue,sat"},
		{name: "duplicates collapse", input: "mon,mon,monday", want: "mon"},
		{name: "unsorted input normalizes", input: "sat,sun", want: "sun,sat"},
		{name: "unknown day", input: "mon,funday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseWeekdaySet(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWeekdaySet(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && set.String() != tt.want {
				t.Errorf("ParseWeekdaySet(%q) = %q, want %q", tt.input, set.String(), tt.want)
			}
		})
	}
}

func TestWeekdaySet_Contains(t *testing.T) {
	set := NewWeekdaySet(time.Monday, time.Friday)

	if !set.Contains(time.Monday) || !set.Contains(time.Friday) {
		t.Error("Contains() missing selected days")
	}
	if set.Contains(time.Sunday) {
		t.Error("Contains() reports unselected day")
	}
}

func TestWeekdaySet_Weekdays(t *testing.T) {
	set := NewWeekdaySet(time.Saturday, time.Sunday, time.Wednesday)

	got := set.Weekdays()
	want := []time.Weekday{time.Sunday, time.Wednesday, time.Saturday}
	if len(got) != len(want) {
		t.Fatalf("Weekdays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Weekdays()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWeekdaySet_Empty(t *testing.T) {
	var set WeekdaySet
	if !set.IsEmpty() {
		t.Error("zero set should be empty")
	}
	if set.String() != "" {
		t.Errorf("empty set String() = %q, want empty", set.String())
	}
}

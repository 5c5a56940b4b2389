package units

import (
	"strings"
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		expected bool
	}{
		{"valid UTC", "UTC", true},
		{"valid America/New_York", "America/New_York", true},
		{"invalid", "Invalid/Timezone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := IsTimezoneValid(tt.timezone)
			if res != tt.expected {
				t.Errorf("IsTimezoneValid(%s) = %v, want %v", tt.timezone, res, tt.expected)
			}
		})
	}
}

func TestGetValidTimezonesString(t *testing.T) {
	res := GetValidTimezonesString()
	if res == "" {
		t.Fatal("GetValidTimezonesString returned empty string")
	}
	for _, s := range []string{"UTC", "America/New_York", "Europe/Berlin"} {
		if !strings.Contains(res, s) {
			t.Fatalf("GetValidTimezonesString missing %s", s)
		}
	}
}

func TestCommonTimezonesLoadable(t *testing.T) {
	for _, tz := range CommonTimezones {
		if _, err := time.LoadLocation(tz); err != nil {
			t.Errorf("timezone %s not loadable: %v", tz, err)
		}
	}
}

func TestLoadTimezone(t *testing.T) {
	t.Run("empty defaults to UTC", func(t *testing.T) {
		loc, err := LoadTimezone("")
		if err != nil {
			t.Fatalf("LoadTimezone error: %v", err)
		}
		if loc != time.UTC {
			t.Fatalf("LoadTimezone(\"\") = %v, want UTC", loc)
		}
	})
	t.Run("named zone", func(t *testing.T) {
		loc, err := LoadTimezone("America/Chicago")
		if err != nil {
			t.Fatalf("LoadTimezone error: %v", err)
		}
		if loc.String() != "America/Chicago" {
			t.Fatalf("LoadTimezone returned %v", loc)
		}
	})
	t.Run("invalid zone errors", func(t *testing.T) {
		if _, err := LoadTimezone("Invalid/Timezone"); err == nil {
			t.Fatal("expected error for invalid timezone")
		}
	})
}

func TestConvertTime(t *testing.T) {
	utcTime := time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC)
	t.Run("UTC to UTC", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "UTC")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if !out.Equal(utcTime) {
			t.Fatalf("ConvertTime returned %v, want %v", out, utcTime)
		}
	})
	t.Run("UTC to New York", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "America/New_York")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if !out.Equal(utcTime) {
			t.Fatal("converted time is a different instant")
		}
		if out.Hour() != 8 { // EDT is UTC-4 in September
			t.Fatalf("ConvertTime hour = %d, want 8", out.Hour())
		}
	})
	t.Run("invalid timezone", func(t *testing.T) {
		if _, err := ConvertTime(utcTime, "Invalid/Timezone"); err == nil {
			t.Fatal("expected error for invalid timezone")
		}
	})
}

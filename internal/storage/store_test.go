package storage

import (
	"errors"
	"testing"
)

func TestValidateDate(t *testing.T) {
	tests := []struct {
		date  string
		valid bool
	}{
		{"2024-03-01", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-3-1", false},
		{"../../etc", false},
		{"", false},
		{"today", false},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			err := ValidateDate(tt.date)
			if tt.valid && err != nil {
				t.Errorf("Expected %q to be valid, got %v", tt.date, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidDate) {
				t.Errorf("Expected ErrInvalidDate for %q, got %v", tt.date, err)
			}
		})
	}
}

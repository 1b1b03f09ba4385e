package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"500", "500", true},
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{" 0.5 ", "0.5", true},
		{".5", "0.5", true},
		{"0", "", false},
		{"0.00", "", false},
		{"-3", "", false},
		{"+3", "", false},
		{"1e3", "", false},
		{"1.2.3", "", false},
		{"1,000.50", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if !tc.ok {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error %v", tc.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("ParseAmount(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoerceAmount(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"nil", nil, "0", false},
		{"float", 12.5, "12.5", false},
		{"int", 7, "7", false},
		{"int64", int64(9), "9", false},
		{"json number", json.Number("3.25"), "3.25", false},
		{"numeric string", "10,5", "10.5", false},
		{"blank string", "  ", "0", false},
		{"decimal", decimal.NewFromInt(4), "4", false},
		{"text", "ten", "0", true},
		{"nan", math.NaN(), "0", true},
		{"inf", math.Inf(1), "0", true},
		{"negative", -2.0, "0", true},
		{"bool", true, "0", true},
		{"map", map[string]any{"x": 1}, "0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceAmount(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CoerceAmount(%v) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("CoerceAmount(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

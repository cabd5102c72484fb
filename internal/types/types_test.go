package types

import (
	"math/big"
	"testing"
)

func TestBaitTypeName(t *testing.T) {
	tests := []struct {
		bait BaitType
		want string
	}{
		{BaitCommon, "Common"},
		{BaitRare, "Rare"},
		{BaitEpic, "Epic"},
		{BaitLegendary, "Legendary"},
		{BaitType(7), "Unknown(7)"},
	}

	for _, tt := range tests {
		if got := tt.bait.Name(); got != tt.want {
			t.Errorf("Name(%d) = %v, want %v", tt.bait, got, tt.want)
		}
	}
}

func TestBaitTypeValid(t *testing.T) {
	if !BaitLegendary.Valid() {
		t.Error("BaitLegendary should be valid")
	}
	if BaitType(4).Valid() {
		t.Error("BaitType(4) should be invalid")
	}
}

func TestFlightKey(t *testing.T) {
	ev := &CaughtFishEvent{User: "0xABCdef", Timestamp: 1000}
	if got := ev.FlightKey(); got != "0xabcdef-1000" {
		t.Errorf("FlightKey() = %v, want 0xabcdef-1000", got)
	}
}

func TestFormatEther(t *testing.T) {
	ether := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			t.Fatalf("bad big int literal %q", s)
		}
		return v
	}

	tests := []struct {
		name string
		wei  *big.Int
		want string
	}{
		{"nil", nil, "0"},
		{"zero", big.NewInt(0), "0"},
		{"whole tokens", ether("5000000000000000000"), "5"},
		{"fractional", ether("1500000000000000000"), "1.5"},
		{"sub token", ether("1"), "0.000000000000000001"},
		{"large stake", ether("12345000000000000000000"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEther(tt.wei); got != tt.want {
				t.Errorf("FormatEther() = %v, want %v", got, tt.want)
			}
		})
	}
}

package idhash

import (
	"testing"
)

func TestComputeLotID(t *testing.T) {
	tests := []struct {
		name       string
		address    string
		token      string
		acquiredTx string
		acquiredAt int64
		seq        int
	}{
		{
			name:       "erc20 lot",
			address:    "0x1111111111111111111111111111111111111111",
			token:      "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			acquiredTx: "0xabc",
			acquiredAt: 1704067234567,
		},
		{
			name:       "native lot second in tx",
			address:    "0x1111111111111111111111111111111111111111",
			token:      "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
			acquiredTx: "0xdef",
			acquiredAt: 1704067300000,
			seq:        1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLotID(tt.address, tt.token, tt.acquiredTx, tt.acquiredAt, tt.seq)

			if len(got) != 64 {
				t.Errorf("ComputeLotID() length = %d, want 64", len(got))
			}

			got2 := ComputeLotID(tt.address, tt.token, tt.acquiredTx, tt.acquiredAt, tt.seq)
			if got != got2 {
				t.Errorf("ComputeLotID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeLotID_SeqDistinguishes(t *testing.T) {
	a := ComputeLotID("0x1", "0x2", "0xabc", 1000, 0)
	b := ComputeLotID("0x1", "0x2", "0xabc", 1000, 1)
	if a == b {
		t.Error("different seq should produce different lot ids")
	}
}

func TestComputeEventID_DifferentInputs(t *testing.T) {
	base := ComputeEventID("ethereum", "0xabc", "0x1", 0)

	variants := map[string]string{
		"network": ComputeEventID("polygon", "0xabc", "0x1", 0),
		"tx":      ComputeEventID("ethereum", "0xabd", "0x1", 0),
		"address": ComputeEventID("ethereum", "0xabc", "0x2", 0),
		"index":   ComputeEventID("ethereum", "0xabc", "0x1", 1),
	}
	for field, v := range variants {
		if v == base {
			t.Errorf("changing %s should change the event id", field)
		}
	}
}

func TestComputeJobKey_Determinism(t *testing.T) {
	a := ComputeJobKey("0x1", "ethereum", 1000, 2000, 0, 0, "none")
	b := ComputeJobKey("0x1", "ethereum", 1000, 2000, 0, 0, "none")
	if a != b {
		t.Errorf("ComputeJobKey() not deterministic: %s != %s", a, b)
	}

	variants := map[string]string{
		"period end": ComputeJobKey("0x1", "ethereum", 1000, 2001, 0, 0, "none"),
		"from block": ComputeJobKey("0x1", "ethereum", 1000, 2000, 5, 0, "none"),
		"to block":   ComputeJobKey("0x1", "ethereum", 1000, 2000, 0, 9, "none"),
		"unrealized": ComputeJobKey("0x1", "ethereum", 1000, 2000, 0, 0, "now"),
	}
	for field, v := range variants {
		if v == a {
			t.Errorf("changing %s should change the job key", field)
		}
	}
}

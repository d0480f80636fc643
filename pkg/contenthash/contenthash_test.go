package contenthash

import "testing"

func TestHexSumDeterministic(t *testing.T) {
	p := []byte("unauthorized access attempt detected")
	h1 := HexSum(p)
	h2 := HexSum(p)
	if h1 == "" || h1 != h2 {
		t.Fatalf("digest not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != Size*2 {
		t.Fatalf("digest length = %d, want %d", len(h1), Size*2)
	}
}

func TestHexSumDistinctPayloads(t *testing.T) {
	samples := [][]byte{
		[]byte("normal GET /home 200"),
		[]byte("normal GET /home 200 "),
		[]byte("ssh denied for root"),
		[]byte(""),
		{0x00},
	}
	seen := make(map[string][]byte, len(samples))
	for _, s := range samples {
		h := HexSum(s)
		if prev, ok := seen[h]; ok {
			t.Fatalf("collision between %q and %q", prev, s)
		}
		seen[h] = s
	}
}

func TestEmptyPayloadHashes(t *testing.T) {
	h := HexSum(nil)
	if len(h) != Size*2 {
		t.Fatalf("empty payload digest length = %d, want %d", len(h), Size*2)
	}
	if h != HexSum([]byte{}) {
		t.Fatal("nil and empty slice should hash identically")
	}
}

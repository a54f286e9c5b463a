package byteutil

import "testing"

func TestGetSet2Bytes(t *testing.T) {
	buf := make([]byte, 4)
	Set2Bytes(buf, 1, 0xABCD)
	if got := Get2Bytes(buf, 1); got != 0xABCD {
		t.Fatalf("got %x, want ABCD", got)
	}
}

func TestGetSet3Bytes(t *testing.T) {
	buf := make([]byte, 5)
	Set3Bytes(buf, 1, 0x0102FF)
	if got := Get3Bytes(buf, 1); got != 0x0102FF {
		t.Fatalf("got %x, want 0102FF", got)
	}
}

func TestGetSet4Bytes(t *testing.T) {
	buf := make([]byte, 6)
	Set4Bytes(buf, 1, 0x12345678)
	if got := Get4Bytes(buf, 1); got != 0x12345678 {
		t.Fatalf("got %x, want 12345678", got)
	}
}

func TestPadTo4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 13: 16}
	for in, want := range cases {
		if got := PadTo4(in); got != want {
			t.Fatalf("PadTo4(%d) = %d, want %d", in, got, want)
		}
	}
}

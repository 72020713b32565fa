package quicwire

import "testing"

func TestReadVarInt(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantVal uint64
		wantLen int
		wantErr bool
	}{
		{"1 byte", []byte{0x25}, 37, 1, false},
		{"2 bytes", []byte{0x7b, 0xbd}, 15293, 2, false},
		{"4 bytes", []byte{0x9d, 0x7f, 0x3e, 0x7d}, 494878333, 4, false},
		{"8 bytes", []byte{0xc2, 0x19, 0x7c, 0x5e, 0xff, 0x14, 0xe8, 0x8c}, 151288809941952652, 8, false},
		{"too short", []byte{0x40}, 0, 0, true},
		{"empty", []byte{}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotVal, gotLen, err := ReadVarInt(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadVarInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if gotVal != tt.wantVal || gotLen != tt.wantLen {
				t.Errorf("ReadVarInt() = (%v, %v), want (%v, %v)", gotVal, gotLen, tt.wantVal, tt.wantLen)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 37, 63, 64, 16383, 16384, 494878333, 1<<30 - 1, 1 << 30, 151288809941952652, 1<<62 - 1}
	for _, v := range values {
		enc := EncodeVarInt(v)
		got, n, err := ReadVarInt(enc)
		if err != nil {
			t.Fatalf("ReadVarInt(%x) failed: %v", enc, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %x -> %d", v, enc, got)
		}
		if n != len(enc) {
			t.Errorf("consumed %d, want %d", n, len(enc))
		}
	}
}

func TestEncodeChoosesShortestWidth(t *testing.T) {
	cases := []struct {
		n    uint64
		want int
	}{
		{0, 1}, {63, 1}, {64, 2}, {16383, 2}, {16384, 4},
		{1<<30 - 1, 4}, {1 << 30, 8}, {1<<62 - 1, 8},
	}
	for _, c := range cases {
		if got := VarIntLen(c.n); got != c.want {
			t.Errorf("VarIntLen(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestEncodeVarIntTooLarge(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for out-of-range varint")
		}
	}()
	EncodeVarInt(1 << 62)
}

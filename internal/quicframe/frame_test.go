package quicframe

import (
	"bytes"
	"testing"
)

func TestParseFramesPaddingPingCrypto(t *testing.T) {
	var payload []byte
	payload = AppendPadding(payload, 2)
	payload = append(payload, TypePing)
	payload = AppendCryptoFrame(payload, 0, []byte("clienthello"))

	frames, err := ParseFrames(payload)
	if err != nil {
		t.Fatalf("ParseFrames: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	if frames[0].Type != TypePadding || frames[1].Type != TypePadding {
		t.Errorf("expected two padding frames first")
	}
	if frames[2].Type != TypePing || !frames[2].AckEliciting {
		t.Errorf("expected ack-eliciting PING")
	}
	if frames[3].Type != TypeCrypto || !bytes.Equal(frames[3].CryptoData, []byte("clienthello")) {
		t.Errorf("crypto frame mismatch: %+v", frames[3])
	}
}

func TestParseFramesStream(t *testing.T) {
	var payload []byte
	payload = AppendStreamFrame(payload, 0, 0, []byte("GET /"), true)

	frames, err := ParseFrames(payload)
	if err != nil {
		t.Fatalf("ParseFrames: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.StreamID != 0 || !f.StreamFin || !bytes.Equal(f.StreamData, []byte("GET /")) {
		t.Errorf("unexpected stream frame: %+v", f)
	}
}

func TestParseFramesAck(t *testing.T) {
	var payload []byte
	payload = AppendAckFrame(payload, 5)
	payload = append(payload, TypePing) // something must follow correctly

	frames, err := ParseFrames(payload)
	if err != nil {
		t.Fatalf("ParseFrames: %v", err)
	}
	if len(frames) != 2 || frames[0].Type != TypeAck || frames[1].Type != TypePing {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestParseFramesUnknownType(t *testing.T) {
	_, err := ParseFrames([]byte{0x1e})
	if err != ErrUnknownFrame {
		t.Errorf("err = %v, want ErrUnknownFrame", err)
	}
}

func TestParseFramesTruncatedCrypto(t *testing.T) {
	_, err := ParseFrames([]byte{TypeCrypto, 0x00, 0x10}) // declares 16 bytes, has none
	if err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

package limits

import "testing"

func TestValidateProcessingBufferEmpty(t *testing.T) {
	if err := ValidateProcessingBuffer(nil); err != ErrEmpty {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestValidateProcessingBufferTooLarge(t *testing.T) {
	data := make([]byte, MaxProcessingBuffer+1)
	if err := ValidateProcessingBuffer(data); err == nil {
		t.Fatal("expected error for oversized buffer")
	}
}

func TestValidateProcessingBufferOK(t *testing.T) {
	if err := ValidateProcessingBuffer([]byte{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateChannelFrameLength(t *testing.T) {
	if err := ValidateChannelFrameLength(100, DefaultChannelBufferSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateChannelFrameLength(DefaultChannelBufferSize+1, DefaultChannelBufferSize); err == nil {
		t.Fatal("expected error for frame length exceeding buffer size")
	}
	if err := ValidateChannelFrameLength(-1, DefaultChannelBufferSize); err == nil {
		t.Fatal("expected error for negative length")
	}
}

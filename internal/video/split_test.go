package video

import (
	"bufio"
	"bytes"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00}
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...)

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// Trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Unexpected scanner error: %v", err)
	}
}

func TestSplitJpeg_Consecutive(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	stream := append(append([]byte{}, a...), b...)
	// Truncated third frame must be dropped, not returned
	stream = append(stream, 0xFF, 0xD8, 0xCC)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte(nil), scanner.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Frames mismatch: %X %X", got[0], got[1])
	}
}

package pbf

import (
	"errors"
	"testing"
)

func TestBufferGrowAndRead(t *testing.T) {
	b := NewBuffer(nil)
	for i := 0; i < 100; i++ {
		b.WriteByte(byte(i))
	}
	b.Write([]byte{0x01, 0x00, 0x00, 0x80})

	if b.Len() != 104 {
		t.Fatalf("len=%d, want 104", b.Len())
	}
	v, err := b.Int32(100)
	if err != nil {
		t.Fatal(err)
	}
	if v != -2147483647 {
		t.Fatalf("int32=%d, want -2147483647", v)
	}
	if _, err := b.Uint64(100); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v, want ErrTruncated", err)
	}
	if _, err := b.Uint32(-1); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v, want ErrTruncated", err)
	}
}

func TestBufferString(t *testing.T) {
	b := NewBuffer([]byte("abc\xffdef"))
	s, err := b.String(0, 3)
	if err != nil || s != "abc" {
		t.Fatalf("s=%q err=%v", s, err)
	}
	s, err = b.String(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if s != "c�d" {
		t.Fatalf("s=%q, want replacement character", s)
	}
	if _, err := b.String(5, 3); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v, want ErrTruncated", err)
	}
}

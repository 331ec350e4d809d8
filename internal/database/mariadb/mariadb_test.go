package mariadb

import (
	"testing"
)

func TestDescriptorPackRoundTrip(t *testing.T) {
	in := make([]float32, 132)
	for i := range in {
		in[i] = float32(i) * 0.007
	}

	out, err := unpackDescriptor(packDescriptor(in))
	if err != nil {
		t.Fatalf("unpackDescriptor() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("unpacked length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("value %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestUnpackDescriptorBadLength(t *testing.T) {
	if _, err := unpackDescriptor(make([]byte, 7)); err == nil {
		t.Error("unpackDescriptor() accepted a blob of length 7")
	}
}

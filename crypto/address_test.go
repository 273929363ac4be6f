package crypto

import "testing"

func TestAddressRoundTrip(t *testing.T) {
	addr := DeriveAddress([]byte("owner"))
	encoded := addr.String()
	if encoded[:4] != "cdp1" {
		t.Fatalf("unexpected prefix in %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %x != %x", decoded, addr)
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	addr := DeriveAddress([]byte("owner"))
	encoded := addr.String()
	if _, err := DecodeAddress("x" + encoded); err == nil {
		t.Fatalf("expected error for corrupted address")
	}
}

func TestModuleAddressIsStable(t *testing.T) {
	if ModuleAddress("hub") != ModuleAddress(" HUB ") {
		t.Fatalf("module address must ignore case and whitespace")
	}
	if ModuleAddress("hub") == ModuleAddress("roller") {
		t.Fatalf("distinct modules must not collide")
	}
}

func TestBytesToAddressLeftPads(t *testing.T) {
	addr := BytesToAddress([]byte{0x01, 0x02})
	if addr[18] != 0x01 || addr[19] != 0x02 || !BytesToAddress(nil).IsZero() {
		t.Fatalf("unexpected padding: %x", addr)
	}
}

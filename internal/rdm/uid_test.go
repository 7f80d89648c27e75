package rdm

import "testing"

func TestUIDPackParseRoundTrip(t *testing.T) {
	u := NewUID(0x1234, 0x56789ABC)
	var buf [6]byte
	u.Pack(buf[:])

	got, err := ParseUID(buf[:])
	if err != nil {
		t.Fatalf("ParseUID() error = %v", err)
	}
	if got != u {
		t.Errorf("ParseUID(Pack(u)) = %s; want %s", got, u)
	}
	if got.Manufacturer() != 0x1234 {
		t.Errorf("Manufacturer() = %04X; want 1234", got.Manufacturer())
	}
	if got.Device() != 0x56789ABC {
		t.Errorf("Device() = %08X; want 56789ABC", got.Device())
	}
}

func TestUIDParseUIDShortInput(t *testing.T) {
	if _, err := ParseUID([]byte{1, 2, 3}); err == nil {
		t.Error("ParseUID(3 bytes) error = nil; want error")
	}
}

func TestUIDIsBroadcast(t *testing.T) {
	cases := []struct {
		uid  UID
		want bool
	}{
		{Broadcast, true},
		{NewUID(0x1234, 0xFFFFFFFF), true},
		{NewUID(0x1234, 0x00000001), false},
	}
	for _, c := range cases {
		if got := c.uid.IsBroadcast(); got != c.want {
			t.Errorf("%s.IsBroadcast() = %v; want %v", c.uid, got, c.want)
		}
	}
}

func TestGenerateControllerUIDStable(t *testing.T) {
	a := GenerateControllerUID("/dev/ttyUSB0")
	b := GenerateControllerUID("/dev/ttyUSB0")
	if a != b {
		t.Errorf("GenerateControllerUID not stable: %s != %s", a, b)
	}
	if a.Manufacturer() != manufacturerID {
		t.Errorf("GenerateControllerUID manufacturer = %04X; want %04X", a.Manufacturer(), manufacturerID)
	}
	if a.IsBroadcast() {
		t.Errorf("GenerateControllerUID device collides with manufacturer-broadcast id")
	}

	c := GenerateControllerUID("/dev/ttyUSB1")
	if a == c {
		t.Error("GenerateControllerUID gave the same UID for two different descriptors")
	}
}

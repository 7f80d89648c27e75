package rdm

import (
	"bytes"
	"testing"
)

func TestPacketPackParseRoundTrip(t *testing.T) {
	for _, pdl := range []int{0, 1, 231} {
		pdata := make([]byte, pdl)
		for i := range pdata {
			pdata[i] = byte(i)
		}
		src := NewUID(0x1234, 1)
		dest := NewUID(0x5678, 2)
		want := NewPacket(dest, src, 7, 1, 0, 0, CCGetCommand, PIDDiscUniqueBranch, pdata)

		buf := make([]byte, 1+25+MaxPDL)
		buf[0] = StartCodeRDM
		n := want.Pack(buf[1:])

		got, err := Parse(buf[:1+n], dest)
		if err != nil {
			t.Fatalf("pdl=%d: Parse() error = %v", pdl, err)
		}
		if got.Dest != want.Dest || got.Src != want.Src {
			t.Errorf("pdl=%d: dest/src = %s/%s; want %s/%s", pdl, got.Dest, got.Src, want.Dest, want.Src)
		}
		if got.TN != want.TN || got.PortOrResp != want.PortOrResp || got.CC != want.CC || got.PID != want.PID {
			t.Errorf("pdl=%d: header fields mismatch: %+v vs %+v", pdl, got, want)
		}
		if got.PDL != want.PDL {
			t.Errorf("pdl=%d: PDL = %d; want %d", pdl, got.PDL, want.PDL)
		}
		if !bytes.Equal(got.PData[:got.PDL], want.PData[:want.PDL]) {
			t.Errorf("pdl=%d: pdata = %v; want %v", pdl, got.PData[:got.PDL], want.PData[:want.PDL])
		}
	}
}

func TestPacketPackLengthField(t *testing.T) {
	p := NewPacket(NewUID(1, 1), NewUID(1, 2), 0, 0, 0, 0, CCGetCommand, PIDDiscMute, nil)
	buf := make([]byte, 64)
	n := p.Pack(buf)

	if got, want := int(buf[1]), 24; got != want {
		t.Errorf("length field = %d; want %d", got, want)
	}
	if n != 25 {
		t.Errorf("Pack() returned %d bytes; want 25", n)
	}
}

func TestPacketParseRejectsBadChecksum(t *testing.T) {
	p := NewPacket(NewUID(1, 1), NewUID(1, 2), 0, 0, 0, 0, CCGetCommand, PIDDiscMute, []byte{0xAB})
	buf := make([]byte, 1+MaxPDL+3)
	buf[0] = StartCodeRDM
	n := p.Pack(buf[1:])
	frame := buf[:1+n]
	frame[len(frame)-1] ^= 0xFF

	if _, err := Parse(frame, p.Dest); err == nil {
		t.Error("Parse() accepted a corrupted checksum")
	}
}

func TestPacketParseRejectsWrongDest(t *testing.T) {
	p := NewPacket(NewUID(1, 1), NewUID(1, 2), 0, 0, 0, 0, CCGetCommand, PIDDiscMute, nil)
	buf := make([]byte, 1+MaxPDL+3)
	buf[0] = StartCodeRDM
	n := p.Pack(buf[1:])

	if _, err := Parse(buf[:1+n], NewUID(9, 9)); err == nil {
		t.Error("Parse() accepted a frame addressed to a different UID")
	}
}

func TestPacketParseRejectsShortFrame(t *testing.T) {
	if _, err := Parse(make([]byte, 10), NewUID(1, 1)); err == nil {
		t.Error("Parse() accepted a too-short frame")
	}
}

package cmd

import (
	"bytes"
	"testing"
)

func marshaled(t *testing.T, c interface {
	Len() int
	Marshal([]byte) error
}) []byte {
	t.Helper()
	b := make([]byte, c.Len())
	if err := c.Marshal(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInquiryMarshal(t *testing.T) {
	b := marshaled(t, &Inquiry{
		LAP:           [3]byte{0x33, 0x8b, 0x9e},
		InquiryLength: 0x08,
	})
	want := []byte{0x33, 0x8b, 0x9e, 0x08, 0x00}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %x want %x", b, want)
	}
}

func TestDisconnectMarshal(t *testing.T) {
	b := marshaled(t, &Disconnect{ConnectionHandle: 0x0040, Reason: 0x13})
	want := []byte{0x40, 0x00, 0x13}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %x want %x", b, want)
	}
}

func TestLECreateConnectionMarshal(t *testing.T) {
	b := marshaled(t, &LECreateConnection{
		LEScanInterval:     0x0060,
		LEScanWindow:       0x0030,
		PeerAddressType:    0x01,
		PeerAddress:        [6]byte{0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
		ConnIntervalMin:    0x0018,
		ConnIntervalMax:    0x0028,
		SupervisionTimeout: 0x00c8,
	})
	want := []byte{
		0x60, 0x00, 0x30, 0x00,
		0x00, // filter policy
		0x01, // peer address type
		0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0x00,       // own address type
		0x18, 0x00, // interval min
		0x28, 0x00, // interval max
		0x00, 0x00, // latency
		0xc8, 0x00, // supervision timeout
		0x00, 0x00, // min CE
		0x00, 0x00, // max CE
	}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %x want %x", b, want)
	}
}

func TestSetAdvertisingDataFixedBlock(t *testing.T) {
	c := &LESetAdvertisingData{AdvertisingDataLength: 3}
	copy(c.AdvertisingData[:], []byte{0x02, 0x01, 0x06})
	b := marshaled(t, c)
	if len(b) != 32 {
		t.Fatalf("len %d, want fixed 32", len(b))
	}
	if b[0] != 3 || !bytes.Equal(b[1:4], []byte{0x02, 0x01, 0x06}) {
		t.Fatalf("got %x", b)
	}
	for _, v := range b[4:] {
		if v != 0 {
			t.Fatalf("padding not zeroed: %x", b)
		}
	}
}

func TestReadScanEnableRPUnmarshal(t *testing.T) {
	var rp ReadScanEnableRP
	if err := rp.Unmarshal([]byte{0x00, 0x03}); err != nil {
		t.Fatal(err)
	}
	if rp.Status != 0 || rp.ScanEnable != 0x03 {
		t.Fatalf("rp %+v", rp)
	}
	if err := rp.Unmarshal([]byte{0x00}); err == nil {
		t.Fatal("short return parameters must not unmarshal")
	}
}

func TestLenMatchesMarshaledSize(t *testing.T) {
	cmds := []interface {
		OpCode() int
		Len() int
		Marshal([]byte) error
	}{
		&Inquiry{}, &InquiryCancel{}, &Disconnect{}, &RemoteNameRequest{},
		&ReadRemoteVersionInformation{}, &ReadScanEnable{}, &WriteScanEnable{},
		&LESetAdvertisingParameters{}, &LESetAdvertisingData{}, &LESetScanResponseData{},
		&LESetAdvertiseEnable{}, &LESetScanParameters{}, &LESetScanEnable{},
		&LECreateConnection{}, &LECreateConnectionCancel{}, &LEReadRemoteFeatures{},
	}
	for _, c := range cmds {
		b := make([]byte, c.Len())
		if err := c.Marshal(b); err != nil {
			t.Fatalf("opcode 0x%04x: %v", c.OpCode(), err)
		}
	}
}

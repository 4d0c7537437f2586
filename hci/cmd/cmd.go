// Package cmd defines the HCI command packets this stack issues.
// Commands marshal their parameter block little-endian in field order;
// RP types unmarshal the matching return parameters.
package cmd

import (
	"bytes"
	"encoding/binary"
)

func marshal(c interface{}, b []byte) error {
	buf := bytes.NewBuffer(b[:0])
	return binary.Write(buf, binary.LittleEndian, c)
}

func unmarshal(c interface{}, b []byte) error {
	buf := bytes.NewBuffer(b)
	return binary.Read(buf, binary.LittleEndian, c)
}

// Inquiry starts the BR/EDR inquiry procedure [Vol 4, Part E, 7.1.1].
// Completes with an Inquiry Complete event.
type Inquiry struct {
	LAP           [3]byte
	InquiryLength uint8
	NumResponses  uint8
}

func (c *Inquiry) OpCode() int { return 0x0401 }
func (c *Inquiry) Len() int    { return 5 }
func (c *Inquiry) Marshal(b []byte) error { return marshal(c, b) }

// InquiryCancel stops an active inquiry [Vol 4, Part E, 7.1.2].
type InquiryCancel struct{}

func (c *InquiryCancel) OpCode() int { return 0x0402 }
func (c *InquiryCancel) Len() int    { return 0 }
func (c *InquiryCancel) Marshal(b []byte) error { return marshal(c, b) }

type InquiryCancelRP struct {
	Status uint8
}

func (c *InquiryCancelRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// Disconnect tears down an established link [Vol 4, Part E, 7.1.6].
// Completes with a Disconnection Complete event.
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int { return 0x0406 }
func (c *Disconnect) Len() int    { return 3 }
func (c *Disconnect) Marshal(b []byte) error { return marshal(c, b) }

// RemoteNameRequest reads a BR/EDR peer's user-friendly name
// [Vol 4, Part E, 7.1.19]. Completes with a Remote Name Request
// Complete event.
type RemoteNameRequest struct {
	BDADDR                 [6]byte
	PageScanRepetitionMode uint8
	Reserved               uint8
	ClockOffset            uint16
}

func (c *RemoteNameRequest) OpCode() int { return 0x0419 }
func (c *RemoteNameRequest) Len() int    { return 10 }
func (c *RemoteNameRequest) Marshal(b []byte) error { return marshal(c, b) }

// ReadRemoteVersionInformation [Vol 4, Part E, 7.1.23]. Completes with
// its own completion event.
type ReadRemoteVersionInformation struct {
	ConnectionHandle uint16
}

func (c *ReadRemoteVersionInformation) OpCode() int { return 0x041D }
func (c *ReadRemoteVersionInformation) Len() int    { return 2 }
func (c *ReadRemoteVersionInformation) Marshal(b []byte) error { return marshal(c, b) }

// ReadScanEnable [Vol 4, Part E, 7.3.17].
type ReadScanEnable struct{}

func (c *ReadScanEnable) OpCode() int { return 0x0C19 }
func (c *ReadScanEnable) Len() int    { return 0 }
func (c *ReadScanEnable) Marshal(b []byte) error { return marshal(c, b) }

type ReadScanEnableRP struct {
	Status     uint8
	ScanEnable uint8
}

func (c *ReadScanEnableRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// WriteScanEnable [Vol 4, Part E, 7.3.18].
type WriteScanEnable struct {
	ScanEnable uint8
}

func (c *WriteScanEnable) OpCode() int { return 0x0C1A }
func (c *WriteScanEnable) Len() int    { return 1 }
func (c *WriteScanEnable) Marshal(b []byte) error { return marshal(c, b) }

type WriteScanEnableRP struct {
	Status uint8
}

func (c *WriteScanEnableRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LESetAdvertisingParameters [Vol 4, Part E, 7.8.5].
type LESetAdvertisingParameters struct {
	AdvertisingIntervalMin  uint16
	AdvertisingIntervalMax  uint16
	AdvertisingType         uint8
	OwnAddressType          uint8
	DirectAddressType       uint8
	DirectAddress           [6]byte
	AdvertisingChannelMap   uint8
	AdvertisingFilterPolicy uint8
}

func (c *LESetAdvertisingParameters) OpCode() int { return 0x2006 }
func (c *LESetAdvertisingParameters) Len() int    { return 15 }
func (c *LESetAdvertisingParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertisingData [Vol 4, Part E, 7.8.7].
type LESetAdvertisingData struct {
	AdvertisingDataLength uint8
	AdvertisingData       [31]byte
}

func (c *LESetAdvertisingData) OpCode() int { return 0x2008 }
func (c *LESetAdvertisingData) Len() int    { return 32 }
func (c *LESetAdvertisingData) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanResponseData [Vol 4, Part E, 7.8.8].
type LESetScanResponseData struct {
	ScanResponseDataLength uint8
	ScanResponseData       [31]byte
}

func (c *LESetScanResponseData) OpCode() int { return 0x2009 }
func (c *LESetScanResponseData) Len() int    { return 32 }
func (c *LESetScanResponseData) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertiseEnable [Vol 4, Part E, 7.8.9].
type LESetAdvertiseEnable struct {
	AdvertisingEnable uint8
}

func (c *LESetAdvertiseEnable) OpCode() int { return 0x200A }
func (c *LESetAdvertiseEnable) Len() int    { return 1 }
func (c *LESetAdvertiseEnable) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanParameters [Vol 4, Part E, 7.8.10].
type LESetScanParameters struct {
	LEScanType           uint8
	LEScanInterval       uint16
	LEScanWindow         uint16
	OwnAddressType       uint8
	ScanningFilterPolicy uint8
}

func (c *LESetScanParameters) OpCode() int { return 0x200B }
func (c *LESetScanParameters) Len() int    { return 7 }
func (c *LESetScanParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanEnable [Vol 4, Part E, 7.8.11].
type LESetScanEnable struct {
	LEScanEnable     uint8
	FilterDuplicates uint8
}

func (c *LESetScanEnable) OpCode() int { return 0x200C }
func (c *LESetScanEnable) Len() int    { return 2 }
func (c *LESetScanEnable) Marshal(b []byte) error { return marshal(c, b) }

// LECreateConnection [Vol 4, Part E, 7.8.12]. Completes with an LE
// Connection Complete meta event.
type LECreateConnection struct {
	LEScanInterval        uint16
	LEScanWindow          uint16
	InitiatorFilterPolicy uint8
	PeerAddressType       uint8
	PeerAddress           [6]byte
	OwnAddressType        uint8
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MinimumCELength       uint16
	MaximumCELength       uint16
}

func (c *LECreateConnection) OpCode() int { return 0x200D }
func (c *LECreateConnection) Len() int    { return 25 }
func (c *LECreateConnection) Marshal(b []byte) error { return marshal(c, b) }

// LECreateConnectionCancel [Vol 4, Part E, 7.8.13].
type LECreateConnectionCancel struct{}

func (c *LECreateConnectionCancel) OpCode() int { return 0x200E }
func (c *LECreateConnectionCancel) Len() int    { return 0 }
func (c *LECreateConnectionCancel) Marshal(b []byte) error { return marshal(c, b) }

// LEReadRemoteFeatures [Vol 4, Part E, 7.8.21]. Completes with an LE
// Read Remote Features Complete meta event.
type LEReadRemoteFeatures struct {
	ConnectionHandle uint16
}

func (c *LEReadRemoteFeatures) OpCode() int { return 0x2016 }
func (c *LEReadRemoteFeatures) Len() int    { return 2 }
func (c *LEReadRemoteFeatures) Marshal(b []byte) error { return marshal(c, b) }

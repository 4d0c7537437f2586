package hci

import "time"

// HCI packet indicator types.
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeSCOData uint8 = 0x03
	pktTypeEvent   uint8 = 0x04
	pktTypeVendor  uint8 = 0xFF
)

const (
	chCmdBufChanSize    = 16
	chCmdBufElementSize = 260 // 4 byte header + up to 255 parameter bytes
	chCmdBufTimeout     = time.Second * 5
	cmdResponseTimeout  = time.Second * 10
)

// Connection roles in LE Connection Complete.
const (
	RoleMaster = 0x00
	RoleSlave  = 0x01
)

// Generic scan-enable bits (Read/Write Scan Enable).
const (
	ScanEnableInquiry uint8 = 0x01
	ScanEnablePage    uint8 = 0x02
)

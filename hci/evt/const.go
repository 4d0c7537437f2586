package evt

// Event codes handled by this stack.
const (
	InquiryCompleteCode                      = 0x01
	InquiryResultCode                        = 0x02
	ConnectionCompleteCode                   = 0x03
	DisconnectionCompleteCode                = 0x05
	RemoteNameRequestCompleteCode            = 0x07
	ReadRemoteVersionInformationCompleteCode = 0x0C
	CommandCompleteCode                      = 0x0E
	CommandStatusCode                        = 0x0F
	InquiryResultWithRSSICode                = 0x22
	ExtendedInquiryResultCode                = 0x2F
	LEMetaCode                               = 0x3E
)

// LE meta subevent codes.
const (
	LEConnectionCompleteSubCode         = 0x01
	LEAdvertisingReportSubCode          = 0x02
	LEReadRemoteFeaturesCompleteSubCode = 0x04
)

// Advertising report event types.
const (
	AdvTypeAdvInd        = 0x00
	AdvTypeAdvDirectInd  = 0x01
	AdvTypeAdvScanInd    = 0x02
	AdvTypeAdvNonconnInd = 0x03
	AdvTypeScanRsp       = 0x04
)

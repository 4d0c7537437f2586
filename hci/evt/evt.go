// Package evt types HCI event parameter blocks as byte slices with
// field accessors. The plain accessors swallow framing errors; the WErr
// variants report them.
package evt

type CommandComplete []byte
type CommandStatus []byte
type DisconnectionComplete []byte
type InquiryComplete []byte
type InquiryResult []byte
type InquiryResultWithRSSI []byte
type ExtendedInquiryResult []byte
type RemoteNameRequestComplete []byte
type ReadRemoteVersionInformationComplete []byte
type LEConnectionComplete []byte
type LEAdvertisingReport []byte
type LEReadRemoteFeaturesComplete []byte

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

func (e CommandStatus) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e DisconnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := e.ReasonWErr()
	return v
}

func (e InquiryComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e InquiryResult) NumResponses() uint8 {
	v, _ := e.NumResponsesWErr()
	return v
}

func (e InquiryResult) BDADDR(i int) [6]byte {
	v, _ := e.BDADDRWErr(i)
	return v
}

func (e InquiryResult) ClassOfDevice(i int) [3]byte {
	v, _ := e.ClassOfDeviceWErr(i)
	return v
}

func (e InquiryResult) ClockOffset(i int) uint16 {
	v, _ := e.ClockOffsetWErr(i)
	return v
}

func (e InquiryResultWithRSSI) NumResponses() uint8 {
	v, _ := e.NumResponsesWErr()
	return v
}

func (e InquiryResultWithRSSI) BDADDR(i int) [6]byte {
	v, _ := e.BDADDRWErr(i)
	return v
}

func (e InquiryResultWithRSSI) ClassOfDevice(i int) [3]byte {
	v, _ := e.ClassOfDeviceWErr(i)
	return v
}

func (e InquiryResultWithRSSI) RSSI(i int) int8 {
	v, _ := e.RSSIWErr(i)
	return v
}

func (e ExtendedInquiryResult) NumResponses() uint8 {
	v, _ := e.NumResponsesWErr()
	return v
}

func (e ExtendedInquiryResult) BDADDR() [6]byte {
	v, _ := e.BDADDRWErr()
	return v
}

func (e ExtendedInquiryResult) ClassOfDevice() [3]byte {
	v, _ := e.ClassOfDeviceWErr()
	return v
}

func (e ExtendedInquiryResult) RSSI() int8 {
	v, _ := e.RSSIWErr()
	return v
}

func (e ExtendedInquiryResult) ExtendedInquiryResponse() []byte {
	v, _ := e.ExtendedInquiryResponseWErr()
	return v
}

func (e RemoteNameRequestComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e RemoteNameRequestComplete) BDADDR() [6]byte {
	v, _ := e.BDADDRWErr()
	return v
}

// RemoteName returns the UTF-8 name with the zero padding stripped.
func (e RemoteNameRequestComplete) RemoteName() string {
	v, _ := e.RemoteNameWErr()
	return v
}

func (e ReadRemoteVersionInformationComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e ReadRemoteVersionInformationComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e ReadRemoteVersionInformationComplete) Version() uint8 {
	v, _ := e.VersionWErr()
	return v
}

func (e ReadRemoteVersionInformationComplete) ManufacturerName() uint16 {
	v, _ := e.ManufacturerNameWErr()
	return v
}

func (e ReadRemoteVersionInformationComplete) Subversion() uint16 {
	v, _ := e.SubversionWErr()
	return v
}

func (e LEConnectionComplete) SubeventCode() uint8 {
	v, _ := e.SubeventCodeWErr()
	return v
}

func (e LEConnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e LEConnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e LEConnectionComplete) Role() uint8 {
	v, _ := e.RoleWErr()
	return v
}

func (e LEConnectionComplete) PeerAddressType() uint8 {
	v, _ := e.PeerAddressTypeWErr()
	return v
}

func (e LEConnectionComplete) PeerAddress() [6]byte {
	v, _ := e.PeerAddressWErr()
	return v
}

func (e LEConnectionComplete) ConnInterval() uint16 {
	v, _ := e.ConnIntervalWErr()
	return v
}

func (e LEAdvertisingReport) SubeventCode() uint8 {
	v, _ := e.SubeventCodeWErr()
	return v
}

func (e LEAdvertisingReport) NumReports() uint8 {
	v, _ := e.NumReportsWErr()
	return v
}

func (e LEAdvertisingReport) EventType(i int) uint8 {
	v, _ := e.EventTypeWErr(i)
	return v
}

func (e LEAdvertisingReport) AddressType(i int) uint8 {
	v, _ := e.AddressTypeWErr(i)
	return v
}

func (e LEAdvertisingReport) Address(i int) [6]byte {
	v, _ := e.AddressWErr(i)
	return v
}

func (e LEAdvertisingReport) LengthData(i int) uint8 {
	v, _ := e.LengthDataWErr(i)
	return v
}

func (e LEAdvertisingReport) Data(i int) []byte {
	v, _ := e.DataWErr(i)
	return v
}

func (e LEAdvertisingReport) RSSI(i int) int8 {
	v, _ := e.RSSIWErr(i)
	return v
}

func (e LEReadRemoteFeaturesComplete) SubeventCode() uint8 {
	v, _ := e.SubeventCodeWErr()
	return v
}

func (e LEReadRemoteFeaturesComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e LEReadRemoteFeaturesComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e LEReadRemoteFeaturesComplete) LEFeatures() uint64 {
	v, _ := e.LEFeaturesWErr()
	return v
}

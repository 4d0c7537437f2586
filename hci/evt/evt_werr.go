package evt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

func (e CommandComplete) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e CommandComplete) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e CommandComplete) ReturnParametersWErr() ([]byte, error) {
	return getBytes(e, 3, -1)
}

func (e CommandStatus) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e CommandStatus) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e CommandStatus) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e DisconnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e DisconnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e DisconnectionComplete) ReasonWErr() (uint8, error) {
	return getByte(e, 3, 0xff)
}

func (e InquiryComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

// Inquiry Result carries its fields as per-field arrays, one element per
// response [Vol 4, Part E, 7.7.2].

func (e InquiryResult) NumResponsesWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e InquiryResult) BDADDRWErr(i int) ([6]byte, error) {
	return getAddr(e, 1+6*i)
}

func (e InquiryResult) ClassOfDeviceWErr(i int) ([3]byte, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return [3]byte{}, err
	}
	return getClass(e, 1+int(nr)*9+3*i)
}

func (e InquiryResult) ClockOffsetWErr(i int) (uint16, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	return getUint16LE(e, 1+int(nr)*12+2*i, 0)
}

// Inquiry Result with RSSI drops one reserved byte relative to Inquiry
// Result and appends a per-response RSSI [Vol 4, Part E, 7.7.33].

func (e InquiryResultWithRSSI) NumResponsesWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e InquiryResultWithRSSI) BDADDRWErr(i int) ([6]byte, error) {
	return getAddr(e, 1+6*i)
}

func (e InquiryResultWithRSSI) ClassOfDeviceWErr(i int) ([3]byte, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return [3]byte{}, err
	}
	return getClass(e, 1+int(nr)*8+3*i)
}

func (e InquiryResultWithRSSI) RSSIWErr(i int) (int8, error) {
	nr, err := e.NumResponsesWErr()
	if err != nil {
		return 0, err
	}
	v, err := getByte(e, 1+int(nr)*13+i, 0x80)
	return int8(v), err
}

// Extended Inquiry Result always carries exactly one response
// [Vol 4, Part E, 7.7.38].

func (e ExtendedInquiryResult) NumResponsesWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e ExtendedInquiryResult) BDADDRWErr() ([6]byte, error) {
	return getAddr(e, 1)
}

func (e ExtendedInquiryResult) ClassOfDeviceWErr() ([3]byte, error) {
	return getClass(e, 9)
}

func (e ExtendedInquiryResult) RSSIWErr() (int8, error) {
	v, err := getByte(e, 14, 0x80)
	return int8(v), err
}

func (e ExtendedInquiryResult) ExtendedInquiryResponseWErr() ([]byte, error) {
	return getBytes(e, 15, -1)
}

func (e RemoteNameRequestComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e RemoteNameRequestComplete) BDADDRWErr() ([6]byte, error) {
	return getAddr(e, 1)
}

func (e RemoteNameRequestComplete) RemoteNameWErr() (string, error) {
	b, err := getBytes(e, 7, -1)
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

func (e ReadRemoteVersionInformationComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e ReadRemoteVersionInformationComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e ReadRemoteVersionInformationComplete) VersionWErr() (uint8, error) {
	return getByte(e, 3, 0)
}

func (e ReadRemoteVersionInformationComplete) ManufacturerNameWErr() (uint16, error) {
	return getUint16LE(e, 4, 0)
}

func (e ReadRemoteVersionInformationComplete) SubversionWErr() (uint16, error) {
	return getUint16LE(e, 6, 0)
}

func (e LEConnectionComplete) SubeventCodeWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e LEConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 1, 0xff)
}

func (e LEConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e LEConnectionComplete) RoleWErr() (uint8, error) {
	return getByte(e, 4, 0xff)
}

func (e LEConnectionComplete) PeerAddressTypeWErr() (uint8, error) {
	return getByte(e, 5, 0xff)
}

func (e LEConnectionComplete) PeerAddressWErr() ([6]byte, error) {
	return getAddr(e, 6)
}

func (e LEConnectionComplete) ConnIntervalWErr() (uint16, error) {
	return getUint16LE(e, 12, 0)
}

func (e LEAdvertisingReport) SubeventCodeWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e LEAdvertisingReport) NumReportsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e LEAdvertisingReport) EventTypeWErr(i int) (uint8, error) {
	return getByte(e, 2+i, 0xff)
}

func (e LEAdvertisingReport) AddressTypeWErr(i int) (uint8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}
	return getByte(e, 2+int(nr)+i, 0xff)
}

func (e LEAdvertisingReport) AddressWErr(i int) ([6]byte, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return [6]byte{}, err
	}
	return getAddr(e, 2+int(nr)*2+6*i)
}

func (e LEAdvertisingReport) LengthDataWErr(i int) (uint8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}
	return getByte(e, 2+int(nr)*8+i, 0)
}

func (e LEAdvertisingReport) DataWErr(i int) ([]byte, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return nil, err
	}
	l := 0
	for j := 0; j < i; j++ {
		ll, err := e.LengthDataWErr(j)
		if err != nil {
			return nil, err
		}
		l += int(ll)
	}
	ll, err := e.LengthDataWErr(i)
	if err != nil {
		return nil, err
	}
	return getBytes(e, 2+int(nr)*9+l, int(ll))
}

func (e LEAdvertisingReport) RSSIWErr(i int) (int8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}
	l := 0
	for j := 0; j < int(nr); j++ {
		ll, err := e.LengthDataWErr(j)
		if err != nil {
			return 0, err
		}
		l += int(ll)
	}
	v, err := getByte(e, 2+int(nr)*9+l+i, 0x80)
	return int8(v), err
}

func (e LEReadRemoteFeaturesComplete) SubeventCodeWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e LEReadRemoteFeaturesComplete) StatusWErr() (uint8, error) {
	return getByte(e, 1, 0xff)
}

func (e LEReadRemoteFeaturesComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e LEReadRemoteFeaturesComplete) LEFeaturesWErr() (uint64, error) {
	b, err := getBytes(e, 4, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func getByte(b []byte, i int, dflt uint8) (uint8, error) {
	if i >= len(b) {
		return dflt, fmt.Errorf("buffer too short: have %v, need %v", len(b), i+1)
	}
	return b[i], nil
}

func getUint16LE(b []byte, i int, dflt uint16) (uint16, error) {
	if i+2 > len(b) {
		return dflt, fmt.Errorf("buffer too short: have %v, need %v", len(b), i+2)
	}
	return binary.LittleEndian.Uint16(b[i:]), nil
}

// getBytes returns n bytes at offset i, or the rest of the buffer when
// n < 0.
func getBytes(b []byte, i, n int) ([]byte, error) {
	if n < 0 {
		if i > len(b) {
			return nil, fmt.Errorf("buffer too short: have %v, need %v", len(b), i)
		}
		return b[i:], nil
	}
	if i+n > len(b) {
		return nil, fmt.Errorf("buffer too short: have %v, need %v", len(b), i+n)
	}
	return b[i : i+n], nil
}

func getAddr(b []byte, i int) ([6]byte, error) {
	bb, err := getBytes(b, i, 6)
	if err != nil {
		return [6]byte{}, err
	}
	var out [6]byte
	copy(out[:], bb)
	return out, nil
}

func getClass(b []byte, i int) ([3]byte, error) {
	bb, err := getBytes(b, i, 3)
	if err != nil {
		return [3]byte{}, err
	}
	var out [3]byte
	copy(out[:], bb)
	return out, nil
}

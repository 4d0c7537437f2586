package gap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch/dispatchtest"
	"github.com/corvidlabs/bthost/hci/evt"
	"github.com/corvidlabs/bthost/hci/hcitest"
)

const (
	opLESetScanParameters = 0x200B
	opLESetScanEnable     = 0x200C
)

type recordingScanDelegate struct {
	results  []ScanResult
	directed []bthost.DeviceAddr
}

func (d *recordingScanDelegate) OnPeerFound(r ScanResult) { d.results = append(d.results, r) }
func (d *recordingScanDelegate) OnDirectedAdvertisement(a bthost.DeviceAddr) {
	d.directed = append(d.directed, a)
}

// advReport builds an LE Advertising Report with a single report.
func advReport(evtType, addrType uint8, a bthost.DeviceAddr, data []byte, rssi byte) []byte {
	w := a.WireBytes()
	b := []byte{evt.LEAdvertisingReportSubCode, 0x01, evtType, addrType}
	b = append(b, w[:]...)
	b = append(b, byte(len(data)))
	b = append(b, data...)
	return append(b, rssi)
}

func newScanFixture(t *testing.T, opt ScanOptions) (*dispatchtest.Queue, *hcitest.Channel, *PeerCache, *LowEnergyScanner, *recordingScanDelegate) {
	q := dispatchtest.NewQueue()
	ch := hcitest.NewChannel()
	cache := NewPeerCache(q)
	s := NewLowEnergyScanner(q, ch, cache)
	d := &recordingScanDelegate{}

	var started bool
	s.StartScan(opt, d, func(err error) {
		require.NoError(t, err)
		started = true
	})
	q.RunUntilIdle()
	ch.CompleteCommand(opLESetScanParameters, 0)
	q.RunUntilIdle()
	ch.CompleteCommand(opLESetScanEnable, 0)
	q.RunUntilIdle()
	require.True(t, started)
	return q, ch, cache, s, d
}

func TestStartScanSendsParametersThenEnable(t *testing.T) {
	q := dispatchtest.NewQueue()
	ch := hcitest.NewChannel()
	s := NewLowEnergyScanner(q, ch, NewPeerCache(q))

	var cbErr error
	done := false
	s.StartScan(ScanOptions{Active: true}, &recordingScanDelegate{}, func(err error) {
		cbErr = err
		done = true
	})
	q.RunUntilIdle()

	// the enable waits for the parameter write
	require.Equal(t, []int{opLESetScanParameters}, ch.SentOpCodes())
	assert.Equal(t, ScanInitiating, s.State())

	ch.CompleteCommand(opLESetScanParameters, 0)
	q.RunUntilIdle()
	require.Equal(t, []int{opLESetScanParameters, opLESetScanEnable}, ch.SentOpCodes())

	ch.CompleteCommand(opLESetScanEnable, 0)
	q.RunUntilIdle()
	require.True(t, done)
	assert.NoError(t, cbErr)
	assert.Equal(t, ScanActive, s.State())

	// active scan type in the parameter block
	assert.Equal(t, uint8(0x01), ch.Sent()[0].Params[0])
}

func TestStartScanRejectedWhileScanning(t *testing.T) {
	q, _, _, s, _ := newScanFixture(t, ScanOptions{})

	var gotErr error
	s.StartScan(ScanOptions{}, &recordingScanDelegate{}, func(err error) { gotErr = err })
	q.RunUntilIdle()
	assert.Error(t, gotErr)
	assert.Equal(t, ScanPassive, s.State())
}

func TestStartScanEnableFailureReturnsToIdle(t *testing.T) {
	q := dispatchtest.NewQueue()
	ch := hcitest.NewChannel()
	s := NewLowEnergyScanner(q, ch, NewPeerCache(q))

	var gotErr error
	s.StartScan(ScanOptions{}, &recordingScanDelegate{}, func(err error) { gotErr = err })
	q.RunUntilIdle()
	ch.CompleteCommand(opLESetScanParameters, 0x12)
	q.RunUntilIdle()

	assert.Error(t, gotErr)
	assert.Equal(t, ScanIdle, s.State())
}

func TestPassiveScanDeliversImmediately(t *testing.T) {
	q, ch, cache, _, d := newScanFixture(t, ScanOptions{})

	a := addr(bthost.AddrLEPublic, 0x10)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvInd, 0x00, a, []byte{0x02, 0x01, 0x06}, 0xc4))
	q.RunUntilIdle()

	require.Len(t, d.results, 1)
	r := d.results[0]
	assert.Equal(t, a, r.Address)
	assert.True(t, r.Connectable)
	assert.False(t, r.ScanResponse)
	assert.Equal(t, int8(-60), r.RSSI)
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, r.Data)

	peer := cache.FindByAddress(a)
	require.NotNil(t, peer)
	assert.Equal(t, r.PeerID, peer.ID())
	assert.Equal(t, TechnologyLowEnergy, peer.Technology())
}

func TestActiveScanPairsScanResponse(t *testing.T) {
	q, ch, _, _, d := newScanFixture(t, ScanOptions{Active: true})

	a := addr(bthost.AddrLERandom, 0x11)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvInd, 0x01, a, []byte{0x02, 0x01, 0x06}, 0xc4))
	q.RunUntilIdle()
	// held back until the scan response arrives
	assert.Empty(t, d.results)

	ch.InjectLEMeta(advReport(evt.AdvTypeScanRsp, 0x01, a, []byte{0x04, 0x09, 'd', 'e', 'v'}, 0xc6))
	q.RunUntilIdle()

	require.Len(t, d.results, 2)
	assert.False(t, d.results[0].ScanResponse)
	assert.True(t, d.results[0].Connectable)
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, d.results[0].Data)
	assert.True(t, d.results[1].ScanResponse)
	assert.False(t, d.results[1].Connectable)
	assert.Equal(t, []byte{0x04, 0x09, 'd', 'e', 'v'}, d.results[1].Data)
	assert.Equal(t, d.results[0].PeerID, d.results[1].PeerID)
}

func TestActiveScanNewAdvertisementReleasesStaleOne(t *testing.T) {
	q, ch, _, _, d := newScanFixture(t, ScanOptions{Active: true})

	a := addr(bthost.AddrLEPublic, 0x12)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvScanInd, 0x00, a, []byte{0x01, 0xff}, 0xc4))
	q.RunUntilIdle()
	require.Empty(t, d.results)

	ch.InjectLEMeta(advReport(evt.AdvTypeAdvScanInd, 0x00, a, []byte{0x02, 0xff, 0x4c}, 0xc8))
	q.RunUntilIdle()

	// the stale advertisement goes out, the fresh one replaces it
	require.Len(t, d.results, 1)
	assert.Equal(t, []byte{0x01, 0xff}, d.results[0].Data)
}

func TestNonScannableDeliveredUnderActiveScan(t *testing.T) {
	q, ch, _, _, d := newScanFixture(t, ScanOptions{Active: true})

	a := addr(bthost.AddrLEPublic, 0x13)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvNonconnInd, 0x00, a, []byte{0x02, 0x01, 0x04}, 0xc4))
	q.RunUntilIdle()

	require.Len(t, d.results, 1)
	assert.False(t, d.results[0].Connectable)
}

func TestDirectedAdvertisementBypassesCache(t *testing.T) {
	q, ch, cache, _, d := newScanFixture(t, ScanOptions{})

	a := addr(bthost.AddrLEPublic, 0x14)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvDirectInd, 0x00, a, nil, 0xc4))
	q.RunUntilIdle()

	assert.Empty(t, d.results)
	require.Len(t, d.directed, 1)
	assert.Equal(t, a, d.directed[0])
	assert.Nil(t, cache.FindByAddress(a))
}

func TestStopScanFlushesPendingResult(t *testing.T) {
	q, ch, _, s, d := newScanFixture(t, ScanOptions{Active: true})

	a := addr(bthost.AddrLEPublic, 0x15)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvInd, 0x00, a, []byte{0x02, 0x01, 0x06}, 0xc4))
	q.RunUntilIdle()
	require.Empty(t, d.results)

	var stopped bool
	s.StopScan(func(err error) {
		require.NoError(t, err)
		stopped = true
	})
	// the held-back result is flushed before the disable settles
	require.Len(t, d.results, 1)
	assert.False(t, d.results[0].ScanResponse)

	ch.CompleteCommand(opLESetScanEnable, 0)
	q.RunUntilIdle()
	require.True(t, stopped)
	assert.Equal(t, ScanIdle, s.State())
}

func TestScanPeriodTimeoutStopsScan(t *testing.T) {
	q, ch, _, s, d := newScanFixture(t, ScanOptions{Active: true, Period: 5 * time.Second})

	a := addr(bthost.AddrLEPublic, 0x16)
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvInd, 0x00, a, []byte{0x02, 0x01, 0x06}, 0xc4))
	q.RunUntilIdle()
	require.Empty(t, d.results)

	q.Advance(5 * time.Second)
	q.RunUntilIdle()

	require.Len(t, d.results, 1)
	assert.Equal(t, ScanStopping, s.State())
	ch.CompleteCommand(opLESetScanEnable, 0)
	q.RunUntilIdle()
	assert.Equal(t, ScanIdle, s.State())

	// reports after the period are dropped
	ch.InjectLEMeta(advReport(evt.AdvTypeAdvInd, 0x00, a, []byte{0x02, 0x01, 0x06}, 0xc4))
	q.RunUntilIdle()
	assert.Len(t, d.results, 1)
}

package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch/dispatchtest"
	"github.com/corvidlabs/bthost/hci/evt"
	"github.com/corvidlabs/bthost/hci/hcitest"
)

const (
	opInquiry           = 0x0401
	opInquiryCancel     = 0x0402
	opRemoteNameRequest = 0x0419
	opReadScanEnable    = 0x0C19
	opWriteScanEnable   = 0x0C1A
)

func newBrEdrFixture() (*dispatchtest.Queue, *hcitest.Channel, *PeerCache, *BrEdrDiscoveryManager) {
	q := dispatchtest.NewQueue()
	ch := hcitest.NewChannel()
	cache := NewPeerCache(q)
	return q, ch, cache, NewBrEdrDiscoveryManager(q, ch, cache)
}

// withRSSIResult builds an Inquiry Result with RSSI event holding one
// response for a.
func withRSSIResult(a bthost.DeviceAddr, rssi byte) []byte {
	w := a.WireBytes()
	b := []byte{0x01}
	b = append(b, w[:]...)
	b = append(b,
		0x01,             // page scan repetition mode
		0x00,             // reserved
		0x0c, 0x02, 0x7a, // class of device
		0x34, 0x12, // clock offset
		rssi,
	)
	return b
}

func TestDiscoverySessionsShareOneInquiry(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var s1, s2 *BrEdrDiscoverySession
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
		s1 = s
	})
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
		s2 = s
	})
	assert.Equal(t, 1, ch.CountSent(opInquiry))
	assert.Nil(t, s1)

	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()
	require.NotNil(t, s1)
	require.NotNil(t, s2)

	// with inquiry already active the third session resolves
	// synchronously and sends nothing
	var s3 *BrEdrDiscoverySession
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
		s3 = s
	})
	assert.NotNil(t, s3)
	assert.Equal(t, 1, ch.CountSent(opInquiry))
}

func TestInquiryRestartsWhileSessionsRemain(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
	})
	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()

	ch.CompleteExclusive(evt.InquiryCompleteCode, []byte{0x00})
	q.RunUntilIdle()
	assert.Equal(t, 2, ch.CountSent(opInquiry))
}

func TestInquiryNotRestartedAfterLastSessionCloses(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var session *BrEdrDiscoverySession
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
		session = s
	})
	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()
	require.NotNil(t, session)

	// closing the last session lets the in-flight round run out; no
	// cancel is issued and the round is not restarted
	session.Close()
	assert.Equal(t, 0, ch.CountSent(opInquiryCancel))

	ch.CompleteExclusive(evt.InquiryCompleteCode, []byte{0x00})
	q.RunUntilIdle()
	assert.Equal(t, 1, ch.CountSent(opInquiry))
}

func TestInquiryStartFailureFailsAllPending(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var errs []error
	cb := func(s *BrEdrDiscoverySession, err error) {
		assert.Nil(t, s)
		errs = append(errs, err)
	}
	m.RequestDiscovery(cb)
	m.RequestDiscovery(cb)
	ch.StatusCommand(opInquiry, 0x0c)
	q.RunUntilIdle()

	require.Len(t, errs, 2)
	assert.Error(t, errs[0])

	// manager recovers: a later request starts a fresh inquiry
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {})
	assert.Equal(t, 2, ch.CountSent(opInquiry))
}

func TestInquiryResultNotifiesSessionsAndRequestsName(t *testing.T) {
	q, ch, cache, m := newBrEdrFixture()

	var found []*Peer
	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
		s.OnResult(func(p *Peer) { found = append(found, p) })
	})
	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()

	a := addr(bthost.AddrBrEdr, 0x42)
	ch.InjectEvent(evt.InquiryResultWithRSSICode, withRSSIResult(a, 0xc4))
	q.RunUntilIdle()

	require.Len(t, found, 1)
	peer := cache.FindByAddress(a)
	require.NotNil(t, peer)
	assert.Equal(t, TechnologyClassic, peer.Technology())
	assert.Equal(t, int8(-60), peer.RSSI())
	require.NotNil(t, peer.BrEdr())
	assert.Equal(t, 1, ch.CountSent(opRemoteNameRequest))

	// a second result for the same peer refreshes it but does not
	// stack another name request
	ch.InjectEvent(evt.InquiryResultWithRSSICode, withRSSIResult(a, 0xc8))
	q.RunUntilIdle()
	require.Len(t, found, 2)
	assert.Equal(t, 1, ch.CountSent(opRemoteNameRequest))
}

func TestRemoteNameRequestCompleteSetsName(t *testing.T) {
	q, ch, cache, m := newBrEdrFixture()

	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
	})
	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()

	a := addr(bthost.AddrBrEdr, 0x42)
	ch.InjectEvent(evt.InquiryResultWithRSSICode, withRSSIResult(a, 0xc4))
	q.RunUntilIdle()
	require.Equal(t, 1, ch.CountSent(opRemoteNameRequest))

	w := a.WireBytes()
	payload := append([]byte{0x00}, w[:]...)
	payload = append(payload, []byte("thermostat\x00")...)
	ch.CompleteExclusive(evt.RemoteNameRequestCompleteCode, payload)
	q.RunUntilIdle()

	peer := cache.FindByAddress(a)
	require.NotNil(t, peer)
	assert.Equal(t, "thermostat", peer.Name())

	// the name is known now, so further results leave it alone
	ch.InjectEvent(evt.InquiryResultWithRSSICode, withRSSIResult(a, 0xc4))
	q.RunUntilIdle()
	assert.Equal(t, 1, ch.CountSent(opRemoteNameRequest))
}

func TestExtendedInquiryResultNameSkipsNameRequest(t *testing.T) {
	q, ch, cache, m := newBrEdrFixture()

	m.RequestDiscovery(func(s *BrEdrDiscoverySession, err error) {
		require.NoError(t, err)
	})
	ch.StatusCommand(opInquiry, 0)
	q.RunUntilIdle()

	a := addr(bthost.AddrBrEdr, 0x43)
	w := a.WireBytes()
	b := []byte{0x01}
	b = append(b, w[:]...)
	b = append(b,
		0x01,             // page scan repetition mode
		0x00,             // reserved
		0x0c, 0x02, 0x7a, // class of device
		0x34, 0x12, // clock offset
		0xc4, // RSSI
	)
	b = append(b, 0x07, 0x09, 's', 'e', 'n', 's', 'o', 'r')
	ch.InjectEvent(evt.ExtendedInquiryResultCode, b)
	q.RunUntilIdle()

	peer := cache.FindByAddress(a)
	require.NotNil(t, peer)
	assert.Equal(t, "sensor", peer.Name())
	assert.Equal(t, 0, ch.CountSent(opRemoteNameRequest))
}

func TestDiscoverableRequestsCoalesce(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var sessions []*BrEdrDiscoverableSession
	cb := func(s *BrEdrDiscoverableSession, err error) {
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	m.RequestDiscoverable(cb)
	m.RequestDiscoverable(cb)
	assert.Equal(t, 1, ch.CountSent(opReadScanEnable))

	ch.CompleteCommand(opReadScanEnable, 0, 0x02)
	q.RunUntilIdle()
	sent := ch.Sent()
	require.Equal(t, 1, ch.CountSent(opWriteScanEnable))
	assert.Equal(t, []byte{0x03}, sent[len(sent)-1].Params)

	ch.CompleteCommand(opWriteScanEnable, 0)
	q.RunUntilIdle()
	require.Len(t, sessions, 2)

	// already discoverable: resolves synchronously
	m.RequestDiscoverable(cb)
	require.Len(t, sessions, 3)
	assert.Equal(t, 1, ch.CountSent(opReadScanEnable))
}

func TestDiscoverableSkipsWriteWhenBitAlreadySet(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var got *BrEdrDiscoverableSession
	m.RequestDiscoverable(func(s *BrEdrDiscoverableSession, err error) {
		require.NoError(t, err)
		got = s
	})
	ch.CompleteCommand(opReadScanEnable, 0, 0x03)
	q.RunUntilIdle()

	assert.NotNil(t, got)
	assert.Equal(t, 0, ch.CountSent(opWriteScanEnable))
}

func TestDiscoverableDisabledWhenLastSessionCloses(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var s1, s2 *BrEdrDiscoverableSession
	m.RequestDiscoverable(func(s *BrEdrDiscoverableSession, err error) { s1 = s })
	ch.CompleteCommand(opReadScanEnable, 0, 0x00)
	q.RunUntilIdle()
	ch.CompleteCommand(opWriteScanEnable, 0)
	q.RunUntilIdle()
	m.RequestDiscoverable(func(s *BrEdrDiscoverableSession, err error) { s2 = s })
	require.NotNil(t, s1)
	require.NotNil(t, s2)

	s1.Close()
	assert.Equal(t, 1, ch.CountSent(opReadScanEnable))

	s2.Close()
	require.Equal(t, 2, ch.CountSent(opReadScanEnable))
	ch.CompleteCommand(opReadScanEnable, 0, 0x03)
	q.RunUntilIdle()
	sent := ch.Sent()
	require.Equal(t, 2, ch.CountSent(opWriteScanEnable))
	assert.Equal(t, []byte{0x02}, sent[len(sent)-1].Params)
}

func TestDiscoverableReenablesAfterPendingDisable(t *testing.T) {
	q, ch, _, m := newBrEdrFixture()

	var s1 *BrEdrDiscoverableSession
	m.RequestDiscoverable(func(s *BrEdrDiscoverableSession, err error) { s1 = s })
	ch.CompleteCommand(opReadScanEnable, 0, 0x00)
	q.RunUntilIdle()
	ch.CompleteCommand(opWriteScanEnable, 0)
	q.RunUntilIdle()
	require.NotNil(t, s1)

	// disable round trip starts, then a new request arrives before it
	// finishes
	s1.Close()
	var s2 *BrEdrDiscoverableSession
	m.RequestDiscoverable(func(s *BrEdrDiscoverableSession, err error) { s2 = s })

	ch.CompleteCommand(opReadScanEnable, 0, 0x01)
	q.RunUntilIdle()
	ch.CompleteCommand(opWriteScanEnable, 0)
	q.RunUntilIdle()

	// the manager turns inquiry scan back on for the new session
	require.Equal(t, 3, ch.CountSent(opReadScanEnable))
	ch.CompleteCommand(opReadScanEnable, 0, 0x00)
	q.RunUntilIdle()
	ch.CompleteCommand(opWriteScanEnable, 0)
	q.RunUntilIdle()
	assert.NotNil(t, s2)
}

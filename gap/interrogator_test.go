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
	opReadRemoteVersionInformation = 0x041D
	opLEReadRemoteFeatures         = 0x2016
)

func versionComplete(handle uint16) []byte {
	return []byte{
		0x00, // status
		byte(handle), byte(handle >> 8),
		0x09,       // version 5.0
		0xe0, 0x02, // manufacturer
		0x34, 0x12, // subversion
	}
}

func featuresComplete(handle uint16, features uint64) []byte {
	b := []byte{evt.LEReadRemoteFeaturesCompleteSubCode, 0x00, byte(handle), byte(handle >> 8)}
	for i := 0; i < 8; i++ {
		b = append(b, byte(features>>(8*i)))
	}
	return b
}

func newInterrogationFixture(t *testing.T) (*dispatchtest.Queue, *hcitest.Channel, *PeerCache, *Interrogator, *Peer, *Connection) {
	q := dispatchtest.NewQueue()
	ch := hcitest.NewChannel()
	cache := NewPeerCache(q)

	a := addr(bthost.AddrLEPublic, 0x30)
	peer := cache.NewPeer(a, true)
	require.NotNil(t, peer)
	conn := NewConnection(ch, q, 0x0040, addr(bthost.AddrLEPublic, 0x01), a)
	return q, ch, cache, NewInterrogator(q, ch, cache), peer, conn
}

func TestInterrogationReadsVersionAndFeatures(t *testing.T) {
	q, ch, _, i, peer, conn := newInterrogationFixture(t)

	var done bool
	i.Start(peer.ID(), conn, func(err error) {
		require.NoError(t, err)
		done = true
	})
	q.RunUntilIdle()
	assert.ElementsMatch(t, []int{opReadRemoteVersionInformation, opLEReadRemoteFeatures}, ch.SentOpCodes())

	ch.CompleteExclusive(evt.ReadRemoteVersionInformationCompleteCode, versionComplete(0x0040))
	q.RunUntilIdle()
	require.False(t, done)

	ch.CompleteExclusive(evt.LEMetaCode, featuresComplete(0x0040, 0x0000000000000001))
	q.RunUntilIdle()
	require.True(t, done)

	require.True(t, peer.VersionKnown())
	version, manufacturer, subversion := peer.Version()
	assert.Equal(t, uint8(0x09), version)
	assert.Equal(t, uint16(0x02e0), manufacturer)
	assert.Equal(t, uint16(0x1234), subversion)
	require.True(t, peer.LE().FeaturesKnown())
	assert.Equal(t, uint64(1), peer.LE().Features())
}

func TestInterrogationSkipsKnownFeatures(t *testing.T) {
	q, ch, _, i, peer, conn := newInterrogationFixture(t)
	peer.MutLE().SetFeatures(0x01)

	var done bool
	i.Start(peer.ID(), conn, func(err error) {
		require.NoError(t, err)
		done = true
	})
	q.RunUntilIdle()
	require.Equal(t, []int{opReadRemoteVersionInformation}, ch.SentOpCodes())

	ch.CompleteExclusive(evt.ReadRemoteVersionInformationCompleteCode, versionComplete(0x0040))
	q.RunUntilIdle()
	assert.True(t, done)
}

func TestInterrogationReportsFirstFailure(t *testing.T) {
	q, ch, _, i, peer, conn := newInterrogationFixture(t)

	var gotErr error
	done := false
	i.Start(peer.ID(), conn, func(err error) {
		gotErr = err
		done = true
	})
	q.RunUntilIdle()

	ch.StatusCommand(opLEReadRemoteFeatures, 0x02)
	q.RunUntilIdle()
	require.False(t, done)

	ch.CompleteExclusive(evt.ReadRemoteVersionInformationCompleteCode, versionComplete(0x0040))
	q.RunUntilIdle()
	require.True(t, done)
	assert.Error(t, gotErr)

	// the version read that did complete still landed in the cache
	assert.True(t, peer.VersionKnown())
	assert.False(t, peer.LE().FeaturesKnown())
}

func TestCancelSuppressesCallback(t *testing.T) {
	q, ch, _, i, peer, conn := newInterrogationFixture(t)

	called := false
	i.Start(peer.ID(), conn, func(error) { called = true })
	q.RunUntilIdle()

	i.Cancel()
	q.RunUntilIdle()
	assert.False(t, called)

	// in-flight completions still update the cache
	ch.CompleteExclusive(evt.ReadRemoteVersionInformationCompleteCode, versionComplete(0x0040))
	q.RunUntilIdle()
	assert.False(t, called)
	assert.True(t, peer.VersionKnown())
}

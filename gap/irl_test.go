package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/bthost"
)

// Sample data from Vol 3, Part H, Appendix D.7: with this IRK,
// ah(0x708194) = 0x0dfbaa.
var sampleIRK = [16]byte{
	0xec, 0x02, 0x34, 0xa3, 0x57, 0xc8, 0xad, 0x05,
	0x34, 0x10, 0x10, 0xa6, 0x0a, 0x39, 0x7d, 0x9b,
}

var sampleRPA = bthost.DeviceAddr{
	Kind: bthost.AddrLERandom,
	MAC:  [6]byte{0x70, 0x81, 0x94, 0x0d, 0xfb, 0xaa},
}

func TestAhSampleData(t *testing.T) {
	got := ah(sampleIRK, [3]byte{0x70, 0x81, 0x94})
	assert.Equal(t, [3]byte{0x0d, 0xfb, 0xaa}, got)
}

func TestResolveSampleRPA(t *testing.T) {
	l := NewIdentityResolvingList()
	identity := addr(bthost.AddrLEPublic, 0x20)
	l.Register(identity, sampleIRK)

	require.True(t, sampleRPA.IsResolvablePrivate())
	got, ok := l.Resolve(sampleRPA)
	require.True(t, ok)
	assert.Equal(t, identity, got)
}

func TestResolveRejectsWrongHash(t *testing.T) {
	l := NewIdentityResolvingList()
	l.Register(addr(bthost.AddrLEPublic, 0x21), sampleIRK)

	bad := sampleRPA
	bad.MAC[5] ^= 0x01
	_, ok := l.Resolve(bad)
	assert.False(t, ok)
}

func TestResolveIgnoresNonRPA(t *testing.T) {
	l := NewIdentityResolvingList()
	l.Register(addr(bthost.AddrLEPublic, 0x22), sampleIRK)

	static := sampleRPA
	static.MAC[0] |= 0xc0
	require.True(t, static.IsStaticRandom())
	_, ok := l.Resolve(static)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	l := NewIdentityResolvingList()
	identity := addr(bthost.AddrLEPublic, 0x23)
	l.Register(identity, sampleIRK)
	l.Remove(identity)
	_, ok := l.Resolve(sampleRPA)
	assert.False(t, ok)
}

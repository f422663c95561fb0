package av

import (
	"testing"

	"github.com/opd-ai/roomcall/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerManagerAddRemove(t *testing.T) {
	sink := newFakeSink()
	m := NewPeerManager(testSelf, config.Default(), sink)

	var removed []string
	m.onRemove = func(p *Peer) { removed = append(removed, p.ID()) }

	_, ok := m.Add(testSelf)
	assert.False(t, ok, "self is never a peer")
	_, ok = m.Add("")
	assert.False(t, ok)

	p, ok := m.Add("bob")
	require.True(t, ok)
	again, ok := m.Add("bob")
	assert.False(t, ok)
	assert.Same(t, p, again)

	assert.True(t, m.Remove("bob"))
	assert.False(t, m.Remove("bob"))
	assert.Equal(t, 1, sink.closeCount("bob"))
	assert.Equal(t, []string{"bob"}, removed)
	assert.Equal(t, 0, m.Len())
}

func TestPeerManagerReconcile(t *testing.T) {
	m := NewPeerManager(testSelf, config.Default(), newFakeSink())
	m.Add("bob")
	m.Add("carol")

	added, removed := m.Reconcile([]string{"carol", "erin", "dave", testSelf, ""})
	assert.Equal(t, []string{"dave", "erin"}, added)
	assert.Equal(t, []string{"bob"}, removed)
	assert.Equal(t, []string{"carol", "dave", "erin"}, m.IDs())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestPeerManagerApplyConfigUpdatesNewPeers(t *testing.T) {
	m := NewPeerManager(testSelf, config.Default(), nil)
	m.Add("bob")

	snap := config.Default()
	snap.Audio.TalkingRMSThreshold = 0.9
	m.ApplyConfig(snap)

	carol, _ := m.Add("carol")
	assert.False(t, carol.activity.Observe(0.5, testClockStart()), "new peers use the new threshold")

	bob, _ := m.Get("bob")
	assert.False(t, bob.activity.Observe(0.5, testClockStart()))
}

func TestDisplaySlotReleasesOnce(t *testing.T) {
	var slot displaySlot
	a := &countingResource{}
	b := &countingResource{}

	slot.Replace(a)
	slot.Replace(b)
	assert.Equal(t, 1, a.released)
	assert.Equal(t, 0, b.released)

	slot.Release()
	slot.Release()
	assert.Equal(t, 1, b.released)
}

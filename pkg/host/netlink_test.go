package host

import (
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("requires root/CAP_NET_ADMIN")
	}
}

func TestReturnToKeepsThreadLockedOnFailure(t *testing.T) {
	unlocked := 0
	unlock := func() { unlocked++ }

	err := returnTo(netns.None(), func(netns.NsHandle) error { return unix.EPERM }, unlock)
	assert.ErrorIs(t, err, unix.EPERM)
	assert.Zero(t, unlocked, "a thread left in a foreign namespace must not be unlocked")

	var got netns.NsHandle
	err = returnTo(netns.NsHandle(7), func(h netns.NsHandle) error { got = h; return nil }, unlock)
	require.NoError(t, err)
	assert.Equal(t, netns.NsHandle(7), got)
	assert.Equal(t, 1, unlocked)
}

func TestNetlinkNamespaceLifecycle(t *testing.T) {
	requireRoot(t)
	h := NewNetlink(logrus.NewEntry(logrus.New()))
	name := fmt.Sprintf("pns-test-%d", os.Getpid())

	require.NoError(t, h.CreateNamespace(name))
	defer h.DeleteNamespace(name)

	assert.ErrorIs(t, h.CreateNamespace(name), ErrNamespaceExists)

	ok, err := h.NamespaceExists(name)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.DeleteNamespace(name))
	require.NoError(t, h.DeleteNamespace(name))

	ok, err = h.NamespaceExists(name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNetlinkVethIntoNamespace(t *testing.T) {
	requireRoot(t)
	h := NewNetlink(logrus.NewEntry(logrus.New()))
	name := fmt.Sprintf("pns-veth-%d", os.Getpid())
	a, b := fmt.Sprintf("pns%da", os.Getpid()%100000), fmt.Sprintf("pns%db", os.Getpid()%100000)
	macA, _ := net.ParseMAC("02:00:00:00:10:01")
	macB, _ := net.ParseMAC("02:00:00:00:10:02")

	require.NoError(t, h.CreateNamespace(name))
	defer h.DeleteNamespace(name)
	require.NoError(t, h.CreateVethPair(a, macA, b, macB))
	defer h.DeleteLink(b)

	assert.ErrorIs(t, h.CreateVethPair(a, macA, b, macB), ErrInterfaceCreation)

	require.NoError(t, h.MoveEndpoint(a, name))
	addr := &net.IPNet{IP: net.ParseIP("10.254.0.1").To4(), Mask: net.CIDRMask(24, 32)}
	require.NoError(t, h.AssignAddress(name, a, addr))
	assert.ErrorIs(t, h.AssignAddress(name, a, addr), ErrAddressConflict)
	require.NoError(t, h.SetMTU(name, a, 1400))
	require.NoError(t, h.SetLinkUp(name, a))
	require.NoError(t, h.SetLinkUp(name, "lo"))

	state, err := h.Inspect(name)
	require.NoError(t, err)
	l, ok := state.Link(a)
	require.True(t, ok)
	assert.True(t, l.Up)
	assert.Equal(t, 1400, l.MTU)
	assert.Equal(t, macA.String(), l.MAC)
	assert.True(t, l.HasAddr("10.254.0.1/24"))

	require.NoError(t, h.DeleteLink(b))
	require.NoError(t, h.DeleteLink(b))
	state, err = h.Inspect(name)
	require.NoError(t, err)
	_, ok = state.Link(a)
	assert.False(t, ok, "deleting the root end removes the moved peer")
}

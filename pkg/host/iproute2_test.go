package host

import (
	"net"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	utilexec "k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"
)

type step struct {
	out string
	err error
}

// fakeIP returns an IPRoute2 whose `ip` invocations play steps in order and
// the recorded command lines.
func fakeIP(t *testing.T, steps ...step) (*IPRoute2, *[]string) {
	t.Helper()
	var argv []string
	fexec := &testingexec.FakeExec{}
	for _, s := range steps {
		s := s
		fexec.CommandScript = append(fexec.CommandScript, func(cmd string, args ...string) utilexec.Cmd {
			argv = append(argv, strings.Join(append([]string{cmd}, args...), " "))
			fcmd := &testingexec.FakeCmd{
				CombinedOutputScript: []testingexec.FakeAction{
					func() ([]byte, []byte, error) { return []byte(s.out), nil, s.err },
				},
			}
			return testingexec.InitFakeCmd(fcmd, cmd, args...)
		})
	}
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	return NewIPRoute2(fexec, logrus.NewEntry(log)), &argv
}

var exit1 = testingexec.FakeExitError{Status: 1}

func TestIPRoute2Commands(t *testing.T) {
	h, argv := fakeIP(t, step{}, step{}, step{}, step{}, step{}, step{}, step{}, step{})

	macA, _ := net.ParseMAC("02:00:0a:00:64:0a")
	macB, _ := net.ParseMAC("02:00:0a:00:64:14")
	addr := &net.IPNet{IP: net.ParseIP("10.0.100.10").To4(), Mask: net.CIDRMask(24, 32)}

	require.NoError(t, h.CreateNamespace("client"))
	require.NoError(t, h.CreateVethPair("client", macA, "sim-client", macB))
	require.NoError(t, h.MoveEndpoint("client", "client"))
	require.NoError(t, h.AssignAddress("client", "client", addr))
	require.NoError(t, h.SetMTU("simulator", "sim-client", 1400))
	require.NoError(t, h.SetLinkUp("client", "client"))
	require.NoError(t, h.AddDefaultRoute("client", "client", net.ParseIP("10.0.100.20")))
	require.NoError(t, h.DeleteLink("sim-client"))

	assert.Equal(t, []string{
		"ip netns add client",
		"ip link add client address 02:00:0a:00:64:0a type veth peer name sim-client address 02:00:0a:00:64:14",
		"ip link set dev client netns client",
		"ip -n client addr add 10.0.100.10/24 dev client",
		"ip -n simulator link set dev sim-client mtu 1400",
		"ip -n client link set dev client up",
		"ip -n client route add default via 10.0.100.20 dev client",
		"ip link delete dev sim-client",
	}, *argv)
}

func TestIPRoute2Errors(t *testing.T) {
	t.Run("namespace exists", func(t *testing.T) {
		h, _ := fakeIP(t, step{`Cannot create namespace file "/var/run/netns/client": File exists`, exit1})
		err := h.CreateNamespace("client")
		assert.ErrorIs(t, err, ErrNamespaceExists)
		assert.ErrorIs(t, err, unix.EEXIST)
		assert.Contains(t, err.Error(), "ip netns add client")
	})

	t.Run("not permitted", func(t *testing.T) {
		h, _ := fakeIP(t, step{"mount --make-shared /run/netns failed: Operation not permitted", exit1})
		assert.ErrorIs(t, h.CreateNamespace("client"), ErrPrivilege)
	})

	t.Run("ip missing", func(t *testing.T) {
		h, _ := fakeIP(t, step{"", utilexec.ErrExecutableNotFound})
		assert.ErrorIs(t, h.CreateNamespace("client"), ErrPrivilege)
	})

	t.Run("veth exists", func(t *testing.T) {
		h, _ := fakeIP(t, step{"RTNETLINK answers: File exists", exit1})
		macA, _ := net.ParseMAC("02:00:00:00:00:01")
		macB, _ := net.ParseMAC("02:00:00:00:00:02")
		assert.ErrorIs(t, h.CreateVethPair("a", macA, "b", macB), ErrInterfaceCreation)
	})

	t.Run("address conflict", func(t *testing.T) {
		h, _ := fakeIP(t, step{"RTNETLINK answers: File exists", exit1})
		addr := &net.IPNet{IP: net.ParseIP("10.0.100.10").To4(), Mask: net.CIDRMask(24, 32)}
		assert.ErrorIs(t, h.AssignAddress("client", "client", addr), ErrAddressConflict)
	})

	t.Run("unknown failure", func(t *testing.T) {
		h, _ := fakeIP(t, step{"Error: argument is wrong", exit1})
		err := h.SetMTU("client", "client", 1)
		assert.ErrorIs(t, err, ErrCommandFailure)
		assert.Equal(t, CommandFailure, KindOf(err))
	})
}

func TestIPRoute2IdempotentDeletes(t *testing.T) {
	h, argv := fakeIP(t,
		step{`Cannot remove namespace file "/var/run/netns/client": No such file or directory`, exit1},
		step{`Cannot find device "sim-client"`, exit1},
		step{"Device or resource busy", exit1},
	)

	assert.NoError(t, h.DeleteNamespace("client"))
	assert.NoError(t, h.DeleteLink("sim-client"))
	assert.ErrorIs(t, h.DeleteNamespace("simulator"), ErrCommandFailure)
	assert.Len(t, *argv, 3)
}

func TestIPRoute2NamespaceExists(t *testing.T) {
	h, _ := fakeIP(t,
		step{"simulator (id: 2)\nserver (id: 1)\nclient\n", nil},
		step{"", nil},
	)

	ok, err := h.NamespaceExists("client")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.NamespaceExists("client")
	require.NoError(t, err)
	assert.False(t, ok)
}

const addrJSON = `[{"ifindex":1,"ifname":"lo","flags":["LOOPBACK","UP","LOWER_UP"],"mtu":65536,
"operstate":"UNKNOWN","address":"00:00:00:00:00:00","addr_info":[{"family":"inet","local":"127.0.0.1","prefixlen":8}]},
{"ifindex":5,"ifname":"sim-client","flags":["BROADCAST","MULTICAST","UP","LOWER_UP"],"mtu":1500,
"operstate":"UP","address":"02:00:0a:00:64:14","addr_info":[{"family":"inet","local":"10.0.100.20","prefixlen":24}]},
{"ifindex":7,"ifname":"sim-server","flags":["BROADCAST","MULTICAST"],"mtu":1500,
"operstate":"DOWN","address":"02:00:0a:00:c8:14","addr_info":[]}]`

func TestIPRoute2Inspect(t *testing.T) {
	h, argv := fakeIP(t,
		step{addrJSON, nil},
		step{`[{"dst":"default","gateway":"10.0.100.20","dev":"client","flags":[]}]`, nil},
	)

	state, err := h.Inspect("simulator")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ip -j -n simulator addr show",
		"ip -j -n simulator -4 route show default",
	}, *argv)

	require.Len(t, state.Links, 3)
	lo, ok := state.Link("lo")
	require.True(t, ok)
	assert.True(t, lo.Up)

	sc, ok := state.Link("sim-client")
	require.True(t, ok)
	assert.True(t, sc.Up)
	assert.True(t, sc.HasAddr("10.0.100.20/24"))
	assert.Equal(t, "02:00:0a:00:64:14", sc.MAC)

	ss, ok := state.Link("sim-server")
	require.True(t, ok)
	assert.False(t, ss.Up)
	assert.Empty(t, ss.Addrs)

	assert.Equal(t, "10.0.100.20", state.Gateway)
}

func TestIPRoute2InspectMissingNamespace(t *testing.T) {
	h, _ := fakeIP(t, step{`Cannot open network namespace "nope": No such file or directory`, exit1})
	_, err := h.Inspect("nope")
	assert.True(t, IsNotExist(err))
}

func TestIPRoute2InspectEmptyRoutes(t *testing.T) {
	h, _ := fakeIP(t, step{"[]", nil}, step{"", nil})
	state, err := h.Inspect("simulator")
	require.NoError(t, err)
	assert.Empty(t, state.Links)
	assert.Empty(t, state.Gateway)
}

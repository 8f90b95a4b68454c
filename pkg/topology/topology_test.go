package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	topo := Default()
	require.NoError(t, topo.Validate())

	assert.Equal(t, []string{"client", "server", "simulator"}, topo.NamespaceNames())
	assert.Equal(t, []string{"client", "sim-client", "server", "sim-server"}, topo.RootInterfaceNames())

	sim := topo.Endpoints("simulator")
	require.Len(t, sim, 2)
	assert.Equal(t, "10.0.100.20/24", sim[0].Address)
	assert.Equal(t, "10.0.200.20/24", sim[1].Address)

	dev, err := topo.GatewayDevice(topo.Namespaces[0])
	require.NoError(t, err)
	assert.Equal(t, "client", dev)

	dev, err = topo.GatewayDevice(topo.Namespaces[1])
	require.NoError(t, err)
	assert.Equal(t, "server", dev)

	assert.Empty(t, topo.Namespaces[2].Gateway, "the simulator namespace has no default route")
}

func TestParseAddrKeepsHostPart(t *testing.T) {
	addr, err := ParseAddr("10.0.100.10/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.100.10/24", addr.String())

	_, err = ParseAddr("10.0.100.10")
	assert.Error(t, err)
}

func TestDefaultLeavesMTUUnset(t *testing.T) {
	for _, l := range Default().Links {
		assert.Zero(t, l.A.MTU, l.A.Name)
		assert.Zero(t, l.B.MTU, l.B.Name)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Topology)
		errMsg string
	}{
		{
			name:   "no namespaces",
			mutate: func(t *Topology) { t.Namespaces = nil },
			errMsg: "no namespaces",
		},
		{
			name:   "duplicate namespace",
			mutate: func(t *Topology) { t.Namespaces[1].Name = "client" },
			errMsg: "duplicate namespace client",
		},
		{
			name:   "unknown namespace",
			mutate: func(t *Topology) { t.Links[0].B.Namespace = "nowhere" },
			errMsg: "unknown namespace nowhere",
		},
		{
			name:   "duplicate interface",
			mutate: func(t *Topology) { t.Links[1].B.Name = "sim-client" },
			errMsg: "duplicate interface name sim-client",
		},
		{
			name:   "interface name too long",
			mutate: func(t *Topology) { t.Links[0].A.Name = "a-very-long-interface" },
			errMsg: "longer than 15 characters",
		},
		{
			name:   "loopback is reserved",
			mutate: func(t *Topology) { t.Links[0].A.Name = Loopback },
			errMsg: "reserved",
		},
		{
			name:   "bad MAC",
			mutate: func(t *Topology) { t.Links[0].A.MAC = "zz:00" },
			errMsg: "invalid MAC address of client",
		},
		{
			name:   "bad address",
			mutate: func(t *Topology) { t.Links[0].A.Address = "10.0.100.10" },
			errMsg: "invalid address",
		},
		{
			name:   "gateway off subnet",
			mutate: func(t *Topology) { t.Namespaces[0].Gateway = "10.0.200.20" },
			errMsg: "not on a connected subnet",
		},
		{
			name:   "namespace escapes the netns directory",
			mutate: func(t *Topology) { t.Namespaces[2].Name = "../../etc/simulator" },
			errMsg: "path separator",
		},
		{
			name:   "namespace with a slash",
			mutate: func(t *Topology) { t.Namespaces[0].Name = "run/client" },
			errMsg: "path separator",
		},
		{
			name:   "namespace named dot",
			mutate: func(t *Topology) { t.Namespaces[1].Name = "." },
			errMsg: "reserved",
		},
		{
			name:   "namespace named dot dot",
			mutate: func(t *Topology) { t.Namespaces[1].Name = ".." },
			errMsg: "reserved",
		},
		{
			name:   "negative MTU",
			mutate: func(t *Topology) { t.Links[0].B.MTU = -1 },
			errMsg: "negative MTU",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			topo := Default()
			tc.mutate(topo)
			err := topo.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidateIgnoresAddressCollisions(t *testing.T) {
	topo := Default()
	topo.Links[1].B.Address = "10.0.200.10/24"
	assert.NoError(t, topo.Validate())
}

const lineTopology = `
namespaces:
  - name: left
    gateway: 192.168.1.1
  - name: middle
    loopback: true
  - name: right
    gateway: 192.168.2.1
links:
  - a: {name: left0, mac: "02:00:00:00:01:02", namespace: left, address: 192.168.1.2/24}
    b: {name: mid-left, mac: "02:00:00:00:01:01", namespace: middle, address: 192.168.1.1/24, mtu: 1400}
  - a: {name: right0, mac: "02:00:00:00:02:02", namespace: right, address: 192.168.2.2/24}
    b: {name: mid-right, mac: "02:00:00:00:02:01", namespace: middle, address: 192.168.2.1/24, mtu: 1400}
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lineTopology), 0o644))

	topo, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "middle", "right"}, topo.NamespaceNames())
	assert.True(t, topo.Namespaces[1].Loopback)
	assert.Equal(t, 1400, topo.Links[0].B.MTU)
	assert.Equal(t, "middle", topo.Links[1].B.Namespace)
}

func TestParseJSON(t *testing.T) {
	doc := `{"namespaces":[{"name":"a"},{"name":"b"}],
	"links":[{"a":{"name":"a0","mac":"02:00:00:00:00:01","namespace":"a","address":"10.1.0.1/30"},
	          "b":{"name":"b0","mac":"02:00:00:00:00:02","namespace":"b","address":"10.1.0.2/30"}}]}`
	topo, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, topo.Links, 1)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("namespaces: [name: x"))
	assert.Error(t, err)

	_, err = Parse([]byte("namespaces: []"))
	assert.ErrorContains(t, err, "invalid topology")
}

// Package host is the boundary to the kernel's network state: namespaces,
// links, addresses and routes. The state is owned by the host, not by this
// program, so it is reached through the Host interface and tests can swap in
// an in-memory implementation.
package host

import (
	"net"
	"sort"
)

// Host issues privileged network operations. Deletions are idempotent:
// removing something that does not exist is not an error.
type Host interface {
	// CreateNamespace creates a named network namespace. It fails with
	// NamespaceExistsError if the name is taken.
	CreateNamespace(name string) error
	// DeleteNamespace deletes a named network namespace and everything in it.
	DeleteNamespace(name string) error
	NamespaceExists(name string) (bool, error)

	// CreateVethPair creates both ends of a veth pair in the root namespace.
	CreateVethPair(name string, mac net.HardwareAddr, peer string, peerMAC net.HardwareAddr) error
	// MoveEndpoint moves a root namespace interface into namespace.
	MoveEndpoint(name, namespace string) error
	// DeleteLink deletes a root namespace interface. A veth peer goes with it.
	DeleteLink(name string) error

	AssignAddress(namespace, name string, addr *net.IPNet) error
	SetMTU(namespace, name string, mtu int) error
	SetLinkUp(namespace, name string) error
	AddDefaultRoute(namespace, name string, via net.IP) error

	Inspect(namespace string) (*NamespaceState, error)
}

// NamespaceState is a snapshot of a namespace's links and default route.
type NamespaceState struct {
	Name    string      `json:"name"`
	Links   []LinkState `json:"links"`
	Gateway string      `json:"gateway,omitempty"`
}

// LinkState is a snapshot of one network device.
type LinkState struct {
	Name  string   `json:"name"`
	MAC   string   `json:"mac,omitempty"`
	MTU   int      `json:"mtu"`
	Up    bool     `json:"up"`
	Addrs []string `json:"addrs,omitempty"`
}

// Link returns the state of the named link.
func (s *NamespaceState) Link(name string) (LinkState, bool) {
	for _, l := range s.Links {
		if l.Name == name {
			return l, true
		}
	}
	return LinkState{}, false
}

// HasAddr reports whether the link holds addr, in CIDR notation.
func (l LinkState) HasAddr(addr string) bool {
	for _, a := range l.Addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func sortLinks(links []LinkState) {
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
}

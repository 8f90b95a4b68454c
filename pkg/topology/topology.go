package topology

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Loopback is the name of the loopback device every namespace is born with.
const Loopback = "lo"

// Topology describes the namespaces to create and the point-to-point veth
// links wired between them.
type Topology struct {
	Namespaces []Namespace `json:"namespaces"`
	Links      []Link      `json:"links"`
}

// Namespace is a network namespace of the topology.
type Namespace struct {
	Name string `json:"name"`
	// Loopback brings the namespace's lo device up.
	Loopback bool `json:"loopback,omitempty"`
	// Gateway, when set, is installed as the default route. Only leaf
	// namespaces carry one.
	Gateway string `json:"gateway,omitempty"`
}

// Link is a veth pair. Both endpoints are created in the root namespace and
// then moved into their own namespaces.
type Link struct {
	A Endpoint `json:"a"`
	B Endpoint `json:"b"`
}

// Endpoint is one end of a veth pair.
type Endpoint struct {
	Name      string `json:"name"`
	MAC       string `json:"mac"`
	Namespace string `json:"namespace"`
	Address   string `json:"address"`
	MTU       int    `json:"mtu,omitempty"`
}

// Default returns the client / server / simulator topology the simulator's
// own configuration expects. Its links carry no MTU, so every interface keeps
// the kernel default; a topology file sets one where a reduced MTU is needed.
func Default() *Topology {
	return &Topology{
		Namespaces: []Namespace{
			{Name: "client", Gateway: "10.0.100.20"},
			{Name: "server", Gateway: "10.0.200.20"},
			{Name: "simulator", Loopback: true},
		},
		Links: []Link{
			{
				A: Endpoint{Name: "client", MAC: "02:00:0a:00:64:0a", Namespace: "client", Address: "10.0.100.10/24"},
				B: Endpoint{Name: "sim-client", MAC: "02:00:0a:00:64:14", Namespace: "simulator", Address: "10.0.100.20/24"},
			},
			{
				A: Endpoint{Name: "server", MAC: "02:00:0a:00:c8:0a", Namespace: "server", Address: "10.0.200.10/24"},
				B: Endpoint{Name: "sim-server", MAC: "02:00:0a:00:c8:14", Namespace: "simulator", Address: "10.0.200.20/24"},
			},
		},
	}
}

// NamespaceNames returns the namespace names in declaration order.
func (t *Topology) NamespaceNames() []string {
	names := make([]string, 0, len(t.Namespaces))
	for _, ns := range t.Namespaces {
		names = append(names, ns.Name)
	}
	return names
}

// RootInterfaceNames returns the names of every veth endpoint, i.e. the
// names that exist in the root namespace between creation and move.
func (t *Topology) RootInterfaceNames() []string {
	names := make([]string, 0, 2*len(t.Links))
	for _, l := range t.Links {
		names = append(names, l.A.Name, l.B.Name)
	}
	return names
}

// Endpoints returns the endpoints living in the given namespace, in link
// declaration order.
func (t *Topology) Endpoints(namespace string) []Endpoint {
	var eps []Endpoint
	for _, l := range t.Links {
		for _, ep := range []Endpoint{l.A, l.B} {
			if ep.Namespace == namespace {
				eps = append(eps, ep)
			}
		}
	}
	return eps
}

// GatewayDevice returns the endpoint of the namespace whose subnet contains
// the namespace gateway.
func (t *Topology) GatewayDevice(ns Namespace) (string, error) {
	gw := net.ParseIP(ns.Gateway)
	if gw == nil {
		return "", fmt.Errorf("invalid gateway %q of namespace %s", ns.Gateway, ns.Name)
	}
	for _, ep := range t.Endpoints(ns.Name) {
		_, subnet, err := net.ParseCIDR(ep.Address)
		if err != nil {
			continue
		}
		if subnet.Contains(gw) {
			return ep.Name, nil
		}
	}
	return "", fmt.Errorf("gateway %s of namespace %s is not on a connected subnet", ns.Gateway, ns.Name)
}

// Validate checks that the topology is well formed. Address collisions are
// not checked here, the kernel reports them.
func (t *Topology) Validate() error {
	if len(t.Namespaces) == 0 {
		return fmt.Errorf("topology declares no namespaces")
	}

	namespaces := sets.New[string]()
	for _, ns := range t.Namespaces {
		if err := validateNamespaceName(ns.Name); err != nil {
			return err
		}
		if namespaces.Has(ns.Name) {
			return fmt.Errorf("duplicate namespace %s", ns.Name)
		}
		namespaces.Insert(ns.Name)
	}

	links := sets.New[string]()
	for i, l := range t.Links {
		for _, ep := range []Endpoint{l.A, l.B} {
			if err := ep.validate(); err != nil {
				return fmt.Errorf("link %d: %w", i, err)
			}
			if !namespaces.Has(ep.Namespace) {
				return fmt.Errorf("link %d: endpoint %s references unknown namespace %s", i, ep.Name, ep.Namespace)
			}
			if links.Has(ep.Name) {
				return fmt.Errorf("link %d: duplicate interface name %s", i, ep.Name)
			}
			links.Insert(ep.Name)
		}
	}

	for _, ns := range t.Namespaces {
		if ns.Gateway == "" {
			continue
		}
		if _, err := t.GatewayDevice(ns); err != nil {
			return err
		}
	}

	return nil
}

// validateNamespaceName only accepts names that stay a single entry of the
// named namespace directory.
func validateNamespaceName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("namespace name could not be empty string")
	case name == "." || name == "..":
		return fmt.Errorf("namespace name %q is reserved", name)
	case strings.ContainsRune(name, '/') || filepath.Base(name) != name:
		return fmt.Errorf("namespace name %q must not contain a path separator", name)
	}
	return nil
}

func (ep Endpoint) validate() error {
	switch {
	case ep.Name == "":
		return fmt.Errorf("interface name could not be empty string")
	case len(ep.Name) > 15:
		return fmt.Errorf("interface name %s is longer than 15 characters", ep.Name)
	case ep.Name == Loopback:
		return fmt.Errorf("interface name %s is reserved", ep.Name)
	case ep.MTU < 0:
		return fmt.Errorf("interface %s has negative MTU %d", ep.Name, ep.MTU)
	}
	if _, err := ep.HardwareAddr(); err != nil {
		return err
	}
	if _, err := ep.IPNet(); err != nil {
		return err
	}
	return nil
}

// HardwareAddr parses the endpoint MAC address.
func (ep Endpoint) HardwareAddr() (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(ep.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address of %s, error: %w", ep.Name, err)
	}
	return mac, nil
}

// IPNet parses the endpoint address, keeping the host part.
func (ep Endpoint) IPNet() (*net.IPNet, error) {
	return ParseAddr(ep.Address)
}

// ParseAddr parses an address in CIDR notation, keeping the host part
// (10.0.100.10/24 stays 10.0.100.10/24).
func ParseAddr(cidr string) (*net.IPNet, error) {
	ip, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q, error: %w", cidr, err)
	}
	return &net.IPNet{IP: ip, Mask: subnet.Mask}, nil
}

// Package fake is an in-memory host.Host. It keeps a namespace table and a
// link table the way the kernel does, including veth peers vanishing
// together, and lets tests make any operation fail.
package fake

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rancher/pocketscion-netns/pkg/host"
)

// Root is the namespace field of links that live in the root namespace.
const Root = ""

type link struct {
	name      string
	namespace string
	mac       string
	mtu       int
	up        bool
	addrs     []*net.IPNet
	peer      *link
}

type namespace struct {
	gateway string
}

// Host is an in-memory host.Host. The zero value is not usable, use New.
type Host struct {
	mu         sync.Mutex
	namespaces map[string]*namespace
	links      []*link
	failures   map[string]error
	calls      []string
}

var _ host.Host = (*Host)(nil)

func New() *Host {
	return &Host{
		namespaces: map[string]*namespace{},
		failures:   map[string]error{},
	}
}

// FailOn makes op fail with err when issued against target, a namespace name
// for namespace operations and a link name otherwise.
func (h *Host) FailOn(op, target string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op+"/"+target] = err
}

// Calls returns the journal of issued operations, "<op> <target>".
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Namespaces returns the sorted namespace names.
func (h *Host) Namespaces() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.namespaces))
	for name := range h.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RootLinks returns the sorted names of the links left in the root
// namespace.
func (h *Host) RootLinks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	for _, l := range h.links {
		if l.namespace == Root {
			names = append(names, l.name)
		}
	}
	sort.Strings(names)
	return names
}

// begin records the call and returns the injected failure, if any.
func (h *Host) begin(op, target string) error {
	h.calls = append(h.calls, op+" "+target)
	return h.failures[op+"/"+target]
}

func (h *Host) find(namespace, name string) *link {
	for _, l := range h.links {
		if l.namespace == namespace && l.name == name {
			return l
		}
	}
	return nil
}

func (h *Host) remove(l *link) {
	kept := h.links[:0]
	for _, o := range h.links {
		if o != l && o != l.peer {
			kept = append(kept, o)
		}
	}
	h.links = kept
}

// lookup resolves a link inside an existing namespace.
func (h *Host) lookup(op, namespace, name string) (*link, error) {
	if _, ok := h.namespaces[namespace]; !ok {
		return nil, host.NewError(op, namespace, name, unix.ENOENT)
	}
	l := h.find(namespace, name)
	if l == nil {
		return nil, host.NewError(op, namespace, name, unix.ENODEV)
	}
	return l, nil
}

func (h *Host) CreateNamespace(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpCreateNamespace, name); err != nil {
		return host.NewError(host.OpCreateNamespace, name, "", err)
	}
	if _, ok := h.namespaces[name]; ok {
		return host.NewError(host.OpCreateNamespace, name, "", unix.EEXIST)
	}
	h.namespaces[name] = &namespace{}
	h.links = append(h.links, &link{name: "lo", namespace: name, mtu: 65536})
	return nil
}

func (h *Host) DeleteNamespace(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpDeleteNamespace, name); err != nil {
		return host.NewError(host.OpDeleteNamespace, name, "", err)
	}
	if _, ok := h.namespaces[name]; !ok {
		return nil
	}
	delete(h.namespaces, name)
	for _, l := range append([]*link(nil), h.links...) {
		if l.namespace == name {
			h.remove(l)
		}
	}
	return nil
}

func (h *Host) NamespaceExists(name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpLookupNamespace, name); err != nil {
		return false, host.NewError(host.OpLookupNamespace, name, "", err)
	}
	_, ok := h.namespaces[name]
	return ok, nil
}

func (h *Host) CreateVethPair(name string, mac net.HardwareAddr, peer string, peerMAC net.HardwareAddr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpCreateVeth, name); err != nil {
		return host.NewError(host.OpCreateVeth, "", name, err)
	}
	if name == peer || h.find(Root, name) != nil || h.find(Root, peer) != nil {
		return host.NewError(host.OpCreateVeth, "", name, unix.EEXIST)
	}
	a := &link{name: name, namespace: Root, mac: mac.String(), mtu: 1500}
	b := &link{name: peer, namespace: Root, mac: peerMAC.String(), mtu: 1500}
	a.peer, b.peer = b, a
	h.links = append(h.links, a, b)
	return nil
}

func (h *Host) MoveEndpoint(name, namespace string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpMoveEndpoint, name); err != nil {
		return host.NewError(host.OpMoveEndpoint, namespace, name, err)
	}
	l := h.find(Root, name)
	if l == nil {
		return host.NewError(host.OpMoveEndpoint, namespace, name, unix.ENODEV)
	}
	if _, ok := h.namespaces[namespace]; !ok {
		return host.NewError(host.OpMoveEndpoint, namespace, name, unix.ENOENT)
	}
	if h.find(namespace, name) != nil {
		return host.NewError(host.OpMoveEndpoint, namespace, name, unix.EEXIST)
	}
	// moving a device drops its addresses and takes it down
	l.namespace = namespace
	l.up = false
	l.addrs = nil
	return nil
}

func (h *Host) DeleteLink(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpDeleteLink, name); err != nil {
		return host.NewError(host.OpDeleteLink, "", name, err)
	}
	if l := h.find(Root, name); l != nil {
		h.remove(l)
	}
	return nil
}

func (h *Host) AssignAddress(namespace, name string, addr *net.IPNet) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpAssignAddress, name); err != nil {
		return host.NewError(host.OpAssignAddress, namespace, name, err)
	}
	l, err := h.lookup(host.OpAssignAddress, namespace, name)
	if err != nil {
		return err
	}
	for _, a := range l.addrs {
		if a.IP.Equal(addr.IP) {
			return host.NewError(host.OpAssignAddress, namespace, name, unix.EEXIST)
		}
	}
	l.addrs = append(l.addrs, &net.IPNet{IP: addr.IP, Mask: addr.Mask})
	return nil
}

func (h *Host) SetMTU(namespace, name string, mtu int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpSetMTU, name); err != nil {
		return host.NewError(host.OpSetMTU, namespace, name, err)
	}
	l, err := h.lookup(host.OpSetMTU, namespace, name)
	if err != nil {
		return err
	}
	if mtu < 68 {
		return host.NewError(host.OpSetMTU, namespace, name, unix.EINVAL)
	}
	l.mtu = mtu
	return nil
}

func (h *Host) SetLinkUp(namespace, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpSetLinkUp, name); err != nil {
		return host.NewError(host.OpSetLinkUp, namespace, name, err)
	}
	l, err := h.lookup(host.OpSetLinkUp, namespace, name)
	if err != nil {
		return err
	}
	l.up = true
	return nil
}

func (h *Host) AddDefaultRoute(namespace, name string, via net.IP) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpAddDefaultRoute, name); err != nil {
		return host.NewError(host.OpAddDefaultRoute, namespace, name, err)
	}
	l, err := h.lookup(host.OpAddDefaultRoute, namespace, name)
	if err != nil {
		return err
	}
	ns := h.namespaces[namespace]
	if ns.gateway != "" {
		return host.NewError(host.OpAddDefaultRoute, namespace, name, unix.EEXIST)
	}
	// the gateway has to sit on a connected subnet of an up link
	reachable := false
	for _, a := range l.addrs {
		if l.up && a.Contains(via) {
			reachable = true
		}
	}
	if !reachable {
		return host.NewError(host.OpAddDefaultRoute, namespace, name, unix.ENETUNREACH)
	}
	ns.gateway = via.String()
	return nil
}

func (h *Host) Inspect(namespace string) (*host.NamespaceState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(host.OpInspect, namespace); err != nil {
		return nil, host.NewError(host.OpInspect, namespace, "", err)
	}
	ns, ok := h.namespaces[namespace]
	if !ok {
		return nil, host.NewError(host.OpInspect, namespace, "", unix.ENOENT)
	}

	state := &host.NamespaceState{Name: namespace, Gateway: ns.gateway}
	for _, l := range h.links {
		if l.namespace != namespace {
			continue
		}
		ls := host.LinkState{Name: l.name, MAC: l.mac, MTU: l.mtu, Up: l.up}
		for _, a := range l.addrs {
			ls.Addrs = append(ls.Addrs, a.String())
		}
		state.Links = append(state.Links, ls)
	}
	sort.Slice(state.Links, func(i, j int) bool { return state.Links[i].Name < state.Links[j].Name })
	return state, nil
}

// String renders the namespace and root link tables, for test failure
// messages.
func (h *Host) String() string {
	return fmt.Sprintf("namespaces: %v, root links: %v", h.Namespaces(), h.RootLinks())
}

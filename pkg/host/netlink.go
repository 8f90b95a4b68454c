package host

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netns"

	"github.com/rancher/pocketscion-netns/pkg/network/iface"
)

// NetnsDir is where named namespaces are bind mounted, shared with
// `ip netns`.
const NetnsDir = "/run/netns"

// Netlink talks to the kernel directly over netlink sockets.
type Netlink struct {
	log *logrus.Entry
}

func NewNetlink(log *logrus.Entry) *Netlink {
	return &Netlink{log: log.WithField("backend", "netlink")}
}

func nsPath(name string) string {
	return filepath.Join(NetnsDir, name)
}

// within runs fn on a thread switched into the named namespace.
func (h *Netlink) within(namespace string, fn func() error) error {
	return ns.WithNetNSPath(nsPath(namespace), func(ns.NetNS) error {
		return fn()
	})
}

// returnTo switches the locked thread back to origin and unlocks it. A thread
// that cannot switch back stays locked and exits with its goroutine.
func returnTo(origin netns.NsHandle, set func(netns.NsHandle) error, unlock func()) error {
	if err := set(origin); err != nil {
		return err
	}
	unlock()
	return nil
}

func (h *Netlink) CreateNamespace(name string) error {
	// netns.NewNamed leaves the calling thread inside the new namespace
	runtime.LockOSThread()

	origin, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return NewError(OpCreateNamespace, name, "", fmt.Errorf("could not get current namespace, error: %w", err))
	}
	defer origin.Close()

	handle, err := netns.NewNamed(name)
	if rerr := returnTo(origin, netns.Set, runtime.UnlockOSThread); rerr != nil {
		return NewError(OpCreateNamespace, name, "", fmt.Errorf("could not return to the root namespace, error: %w", rerr))
	}
	if err != nil {
		return NewError(OpCreateNamespace, name, "", err)
	}
	handle.Close()

	h.log.WithField("namespace", name).Debug("namespace created")
	return nil
}

func (h *Netlink) DeleteNamespace(name string) error {
	exists, err := h.NamespaceExists(name)
	if err != nil {
		return NewError(OpDeleteNamespace, name, "", err)
	}
	if !exists {
		return nil
	}

	if err := netns.DeleteNamed(name); err != nil && !os.IsNotExist(err) {
		return NewError(OpDeleteNamespace, name, "", err)
	}

	h.log.WithField("namespace", name).Debug("namespace deleted")
	return nil
}

func (h *Netlink) NamespaceExists(name string) (bool, error) {
	_, err := os.Stat(nsPath(name))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, NewError(OpLookupNamespace, name, "", err)
	}
}

func (h *Netlink) CreateVethPair(name string, mac net.HardwareAddr, peer string, peerMAC net.HardwareAddr) error {
	if err := iface.NewVeth(name, mac, peer, peerMAC).Create(); err != nil {
		return NewError(OpCreateVeth, "", name, err)
	}

	h.log.WithFields(logrus.Fields{"link": name, "peer": peer}).Debug("veth pair created")
	return nil
}

func (h *Netlink) MoveEndpoint(name, namespace string) error {
	l, err := iface.GetLink(name)
	if err != nil {
		return NewError(OpMoveEndpoint, namespace, name, err)
	}

	target, err := netns.GetFromName(namespace)
	if err != nil {
		return NewError(OpMoveEndpoint, namespace, name, fmt.Errorf("could not open namespace, error: %w", err))
	}
	defer target.Close()

	if err := l.SetNs(target); err != nil {
		return NewError(OpMoveEndpoint, namespace, name, err)
	}

	return nil
}

func (h *Netlink) DeleteLink(name string) error {
	l, err := iface.GetLink(name)
	if err != nil {
		if iface.IsNotFound(err) {
			return nil
		}
		return NewError(OpDeleteLink, "", name, err)
	}

	if err := l.Delete(); err != nil && !IsNotExist(err) {
		return NewError(OpDeleteLink, "", name, err)
	}

	return nil
}

func (h *Netlink) AssignAddress(namespace, name string, addr *net.IPNet) error {
	err := h.within(namespace, func() error {
		l, err := iface.GetLink(name)
		if err != nil {
			return err
		}
		return l.AddAddr(addr)
	})
	return NewError(OpAssignAddress, namespace, name, err)
}

func (h *Netlink) SetMTU(namespace, name string, mtu int) error {
	err := h.within(namespace, func() error {
		l, err := iface.GetLink(name)
		if err != nil {
			return err
		}
		return l.SetMTU(mtu)
	})
	return NewError(OpSetMTU, namespace, name, err)
}

func (h *Netlink) SetLinkUp(namespace, name string) error {
	err := h.within(namespace, func() error {
		l, err := iface.GetLink(name)
		if err != nil {
			return err
		}
		return l.SetUp()
	})
	return NewError(OpSetLinkUp, namespace, name, err)
}

func (h *Netlink) AddDefaultRoute(namespace, name string, via net.IP) error {
	err := h.within(namespace, func() error {
		l, err := iface.GetLink(name)
		if err != nil {
			return err
		}
		return l.AddDefaultRoute(via)
	})
	return NewError(OpAddDefaultRoute, namespace, name, err)
}

func (h *Netlink) Inspect(namespace string) (*NamespaceState, error) {
	state := &NamespaceState{Name: namespace}
	err := h.within(namespace, func() error {
		links, err := iface.ListLinks()
		if err != nil {
			return err
		}
		for _, l := range links {
			addrs, err := l.ListAddr()
			if err != nil {
				return fmt.Errorf("could not list addresses of %s, error: %w", l.Attrs().Name, err)
			}
			ls := LinkState{
				Name: l.Attrs().Name,
				MAC:  l.Attrs().HardwareAddr.String(),
				MTU:  l.Attrs().MTU,
				Up:   l.IsUp(),
			}
			for _, a := range addrs {
				ls.Addrs = append(ls.Addrs, a.IPNet.String())
			}
			state.Links = append(state.Links, ls)
		}

		gw, err := iface.DefaultGateway()
		if err != nil {
			return err
		}
		if gw != nil {
			state.Gateway = gw.String()
		}
		return nil
	})
	if err != nil {
		return nil, NewError(OpInspect, namespace, "", err)
	}

	sortLinks(state.Links)
	return state, nil
}

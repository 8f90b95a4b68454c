package iface

import (
	"errors"
	"fmt"
	"net"

	"github.com/containernetworking/plugins/pkg/ip"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

type Link struct {
	netlink.Link
}

// GetLink by name, in the namespace of the calling thread
func GetLink(name string) (*Link, error) {
	if name == "" {
		return nil, fmt.Errorf("link name could not be empty string")
	}

	l, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("could not lookup link, error: %w, link: %s", err, name)
	}

	return &Link{Link: l}, nil
}

// ListLinks of the namespace of the calling thread
func ListLinks() ([]*Link, error) {
	links, err := netlink.LinkList()
	if err = dumpErr(err); err != nil {
		return nil, fmt.Errorf("could not list links, error: %w", err)
	}

	list := make([]*Link, 0, len(links))
	for _, l := range links {
		list = append(list, &Link{Link: l})
	}
	return list, nil
}

// dumpErr drops netlink.ErrDumpInterrupted. The kernel raises it when the
// table changed during the dump; the results returned with it are still
// usable for a read-only listing.
func dumpErr(err error) error {
	if errors.Is(err, netlink.ErrDumpInterrupted) {
		return nil
	}
	return err
}

// IsNotFound reports whether err is a failed link lookup
func IsNotFound(err error) bool {
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf)
}

// AddAddr adds an address, keeping the kernel error so a conflict stays
// recognizable.
// Equivalent to: `ip addr add ADDR dev DEV`
func (l *Link) AddAddr(addr *net.IPNet) error {
	if err := netlink.AddrAdd(l.Link, &netlink.Addr{IPNet: addr}); err != nil {
		return fmt.Errorf("could not add address, error: %w, link: %s, addr: %s", err, l.Attrs().Name, addr)
	}

	return nil
}

func (l *Link) ListAddr() ([]netlink.Addr, error) {
	addrs, err := netlink.AddrList(l.Link, netlink.FAMILY_ALL)
	if err = dumpErr(err); err != nil {
		return nil, fmt.Errorf("could not list addresses, error: %w, link: %s", err, l.Attrs().Name)
	}
	return addrs, nil
}

// Equivalent to: `ip link set dev DEV mtu MTU`
func (l *Link) SetMTU(mtu int) error {
	if l.Attrs().MTU == mtu {
		return nil
	}

	if err := netlink.LinkSetMTU(l.Link, mtu); err != nil {
		return fmt.Errorf("set mtu failed, error: %w, link: %s, mtu: %d", err, l.Attrs().Name, mtu)
	}

	return nil
}

// Equivalent to: `ip link set dev DEV up`
func (l *Link) SetUp() error {
	if err := netlink.LinkSetUp(l.Link); err != nil {
		return fmt.Errorf("set link up failed, error: %w, link: %s", err, l.Attrs().Name)
	}

	return nil
}

func (l *Link) IsUp() bool {
	return l.Attrs().Flags&net.FlagUp != 0
}

// SetNs moves the link into the namespace behind ns.
// Equivalent to: `ip link set dev DEV netns NS`
func (l *Link) SetNs(ns netns.NsHandle) error {
	if err := netlink.LinkSetNsFd(l.Link, int(ns)); err != nil {
		return fmt.Errorf("move link failed, error: %w, link: %s", err, l.Attrs().Name)
	}

	return nil
}

// AddDefaultRoute through gw over this link
// Equivalent to: `ip route add default via GW dev DEV`
func (l *Link) AddDefaultRoute(gw net.IP) error {
	if err := ip.AddDefaultRoute(gw, l.Link); err != nil {
		return fmt.Errorf("could not add default route, error: %w, link: %s, via: %s", err, l.Attrs().Name, gw)
	}

	return nil
}

func (l *Link) Delete() error {
	if err := netlink.LinkDel(l.Link); err != nil {
		return fmt.Errorf("could not delete link %s, error: %w", l.Attrs().Name, err)
	}

	return nil
}

// DefaultGateway returns the gateway of the IPv4 default route of the
// namespace of the calling thread, nil when there is none.
func DefaultGateway() (net.IP, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err = dumpErr(err); err != nil {
		return nil, fmt.Errorf("could not list routes, error: %w", err)
	}
	for _, route := range routes {
		if route.Gw == nil {
			continue
		}
		if route.Dst == nil {
			return route.Gw, nil
		}
		if ones, _ := route.Dst.Mask.Size(); ones == 0 {
			return route.Gw, nil
		}
	}
	return nil, nil
}

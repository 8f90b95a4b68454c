package iface

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

type Veth struct {
	*netlink.Veth
}

func NewVeth(name string, mac net.HardwareAddr, peer string, peerMAC net.HardwareAddr) *Veth {
	return &Veth{
		Veth: &netlink.Veth{
			LinkAttrs: netlink.LinkAttrs{
				Name:         name,
				HardwareAddr: mac,
			},
			PeerName:         peer,
			PeerHardwareAddr: peerMAC,
		},
	}
}

// Create both ends at once, in the namespace of the calling thread. A link
// that already exists is never reused, EEXIST is returned as is.
// Equivalent to: `ip link add NAME address MAC type veth peer name PEER address PEERMAC`
func (v *Veth) Create() error {
	if err := netlink.LinkAdd(v.Veth); err != nil {
		return fmt.Errorf("add veth failed, error: %w, iface: %s, peer: %s", err, v.Name, v.PeerName)
	}

	return nil
}

package network

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/rancher/pocketscion-netns/pkg/topology"
)

// configure addresses and activates the interfaces of a namespace, then
// installs its default route. Routes go in last, after every address.
func (n *Network) configure(ns topology.Namespace) error {
	if ns.Loopback {
		if err := n.SetLinkUp(ns.Name, topology.Loopback); err != nil {
			return err
		}
	}

	for _, ep := range n.topo.Endpoints(ns.Name) {
		if err := n.configureEndpoint(ep); err != nil {
			return err
		}
	}

	if ns.Gateway == "" {
		return nil
	}
	dev, err := n.topo.GatewayDevice(ns)
	if err != nil {
		return err
	}
	return n.AddDefaultRoute(ns.Name, dev, net.ParseIP(ns.Gateway))
}

func (n *Network) configureEndpoint(ep topology.Endpoint) error {
	addr, err := ep.IPNet()
	if err != nil {
		return err
	}
	if err := n.AssignAddress(ep.Namespace, ep.Name, addr); err != nil {
		return err
	}
	if ep.MTU > 0 {
		if err := n.SetMTU(ep.Namespace, ep.Name, ep.MTU); err != nil {
			return err
		}
	}
	return n.SetLinkUp(ep.Namespace, ep.Name)
}

// AssignAddress adds addr to an interface. Conflicts are left to the kernel
// to detect.
func (n *Network) AssignAddress(namespace, name string, addr *net.IPNet) error {
	if err := n.host.AssignAddress(namespace, name, addr); err != nil {
		return err
	}

	n.linkLog(namespace, name).WithField("addr", addr.String()).Debug("assigned address")
	return nil
}

func (n *Network) SetMTU(namespace, name string, mtu int) error {
	if err := n.host.SetMTU(namespace, name, mtu); err != nil {
		return err
	}

	n.linkLog(namespace, name).WithField("mtu", mtu).Debug("set mtu")
	return nil
}

func (n *Network) SetLinkUp(namespace, name string) error {
	if err := n.host.SetLinkUp(namespace, name); err != nil {
		return err
	}

	n.linkLog(namespace, name).Debug("set link up")
	return nil
}

// AddDefaultRoute routes everything off-link through via, out of the
// interface name.
func (n *Network) AddDefaultRoute(namespace, name string, via net.IP) error {
	if err := n.host.AddDefaultRoute(namespace, name, via); err != nil {
		return err
	}

	n.linkLog(namespace, name).WithField("via", via.String()).Debug("added default route")
	return nil
}

func (n *Network) linkLog(namespace, name string) *logrus.Entry {
	return n.log.WithFields(logrus.Fields{"namespace": namespace, "link": name})
}

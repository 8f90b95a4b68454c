package network

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rancher/pocketscion-netns/pkg/topology"
)

// CreateVethPair creates both endpoints of l in the root namespace.
func (n *Network) CreateVethPair(l topology.Link) error {
	macA, err := l.A.HardwareAddr()
	if err != nil {
		return err
	}
	macB, err := l.B.HardwareAddr()
	if err != nil {
		return err
	}

	if err := n.host.CreateVethPair(l.A.Name, macA, l.B.Name, macB); err != nil {
		return err
	}

	n.log.WithFields(logrus.Fields{
		"link": fmt.Sprintf("%s<->%s", l.A.Name, l.B.Name),
	}).Debug("created veth pair")
	return nil
}

// MoveEndpoint moves a root namespace interface into namespace.
func (n *Network) MoveEndpoint(name, namespace string) error {
	if err := n.host.MoveEndpoint(name, namespace); err != nil {
		return err
	}

	n.log.WithFields(logrus.Fields{"link": name, "namespace": namespace}).Debug("moved endpoint")
	return nil
}

// Package network provisions a topology of namespaces and veth links on a
// host and tears it down again. Provisioning is all or nothing: a failing
// step unwinds everything the same invocation created.
package network

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rancher/pocketscion-netns/pkg/host"
	"github.com/rancher/pocketscion-netns/pkg/topology"
)

type Network struct {
	host host.Host
	topo *topology.Topology
	log  *logrus.Entry
}

func New(h host.Host, topo *topology.Topology, log *logrus.Entry) *Network {
	return &Network{host: h, topo: topo, log: log}
}

func (n *Network) Topology() *topology.Topology {
	return n.topo
}

// Up provisions the topology: namespaces first, then the veth links, then
// addresses, MTUs, link state and default routes. Every step waits for the
// previous one. On failure all acquired resources are released in reverse
// order and the failing step's error is returned.
func (n *Network) Up() (err error) {
	rb := newRollback(n.log)
	defer func() {
		if err != nil {
			rb.Unwind(err)
		}
	}()

	for _, ns := range n.topo.Namespaces {
		if err = n.CreateNamespace(ns.Name); err != nil {
			return err
		}
		name := ns.Name
		rb.Push(fmt.Sprintf("delete namespace %s", name), func() error {
			return n.host.DeleteNamespace(name)
		})
	}

	// L2: both ends of each pair exist before either moves
	for _, l := range n.topo.Links {
		if err = n.CreateVethPair(l); err != nil {
			return err
		}
		for _, ep := range []topology.Endpoint{l.A, l.B} {
			name := ep.Name
			rb.Push(fmt.Sprintf("delete root link %s", name), func() error {
				return n.host.DeleteLink(name)
			})
		}
		if err = n.MoveEndpoint(l.A.Name, l.A.Namespace); err != nil {
			return err
		}
		if err = n.MoveEndpoint(l.B.Name, l.B.Namespace); err != nil {
			return err
		}
	}

	// L3
	for _, ns := range n.topo.Namespaces {
		if err = n.configure(ns); err != nil {
			return err
		}
	}

	rb.Commit()
	n.log.WithField("namespaces", n.topo.NamespaceNames()).Info("topology provisioned")
	return nil
}

// Down deletes every namespace of the topology, and with them every link
// inside. It never fails: absent namespaces are skipped and other failures
// are only logged.
func (n *Network) Down() {
	for _, name := range n.topo.NamespaceNames() {
		n.DeleteNamespace(name)
	}
	n.log.WithField("namespaces", n.topo.NamespaceNames()).Info("topology torn down")
}

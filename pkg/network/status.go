package network

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/rancher/pocketscion-netns/pkg/host"
	"github.com/rancher/pocketscion-netns/pkg/topology"
)

// NamespaceStatus is the observed state of one namespace of the topology.
// State is nil when the namespace does not exist.
type NamespaceStatus struct {
	Name  string
	State *host.NamespaceState
}

// Status inspects the namespaces of the topology. It only reads host state,
// so the namespaces are inspected concurrently.
func (n *Network) Status() ([]NamespaceStatus, error) {
	status := make([]NamespaceStatus, len(n.topo.Namespaces))
	var g errgroup.Group
	for i, ns := range n.topo.Namespaces {
		i, name := i, ns.Name
		g.Go(func() error {
			status[i].Name = name
			exists, err := n.host.NamespaceExists(name)
			if err != nil || !exists {
				return err
			}
			state, err := n.host.Inspect(name)
			if err != nil {
				return err
			}
			status[i].State = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return status, nil
}

// Verify checks observed status against the topology: every namespace
// present holding exactly its interfaces (plus lo), each up with its
// address and MTU, loopback up where asked for and the default route in
// place. All mismatches are reported together.
func (n *Network) Verify(status []NamespaceStatus) error {
	byName := make(map[string]*host.NamespaceState, len(status))
	for _, s := range status {
		byName[s.Name] = s.State
	}

	var errs []error
	for _, ns := range n.topo.Namespaces {
		state := byName[ns.Name]
		if state == nil {
			errs = append(errs, fmt.Errorf("namespace %s does not exist", ns.Name))
			continue
		}
		errs = append(errs, n.verifyNamespace(ns, state)...)
	}
	return utilerrors.NewAggregate(errs)
}

func (n *Network) verifyNamespace(ns topology.Namespace, state *host.NamespaceState) []error {
	var errs []error

	want := sets.New[string](topology.Loopback)
	for _, ep := range n.topo.Endpoints(ns.Name) {
		want.Insert(ep.Name)
	}
	have := sets.New[string]()
	for _, l := range state.Links {
		have.Insert(l.Name)
	}
	for _, name := range sets.List(want.Difference(have)) {
		errs = append(errs, fmt.Errorf("namespace %s: interface %s is missing", ns.Name, name))
	}
	for _, name := range sets.List(have.Difference(want)) {
		errs = append(errs, fmt.Errorf("namespace %s: unexpected interface %s", ns.Name, name))
	}

	for _, ep := range n.topo.Endpoints(ns.Name) {
		l, ok := state.Link(ep.Name)
		if !ok {
			continue
		}
		if !l.Up {
			errs = append(errs, fmt.Errorf("namespace %s: interface %s is down", ns.Name, ep.Name))
		}
		if !l.HasAddr(ep.Address) {
			errs = append(errs, fmt.Errorf("namespace %s: interface %s does not hold %s", ns.Name, ep.Name, ep.Address))
		}
		if ep.MTU > 0 && l.MTU != ep.MTU {
			errs = append(errs, fmt.Errorf("namespace %s: interface %s has mtu %d, want %d", ns.Name, ep.Name, l.MTU, ep.MTU))
		}
	}

	if ns.Loopback {
		if lo, ok := state.Link(topology.Loopback); ok && !lo.Up {
			errs = append(errs, fmt.Errorf("namespace %s: loopback is down", ns.Name))
		}
	}

	if ns.Gateway != "" && state.Gateway != ns.Gateway {
		errs = append(errs, fmt.Errorf("namespace %s: default route via %q, want %s", ns.Name, state.Gateway, ns.Gateway))
	}

	return errs
}

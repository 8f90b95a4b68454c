package network

import (
	"github.com/rbmk-project/common/errclass"
	"github.com/sirupsen/logrus"
)

// CreateNamespace creates a namespace. An existing namespace is an error,
// provisioning assumes a clean slate.
func (n *Network) CreateNamespace(name string) error {
	if err := n.host.CreateNamespace(name); err != nil {
		return err
	}

	n.log.WithField("namespace", name).Debug("created namespace")
	return nil
}

// DeleteNamespace deletes a namespace if it exists. Failures are logged and
// swallowed, deletion only happens on teardown paths.
func (n *Network) DeleteNamespace(name string) {
	log := n.log.WithField("namespace", name)
	if err := n.host.DeleteNamespace(name); err != nil {
		log.WithFields(logrus.Fields{
			"error":    err,
			"errClass": errclass.New(err),
		}).Warn("could not delete namespace")
		return
	}

	log.Debug("deleted namespace")
}

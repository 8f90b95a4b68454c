package network

import (
	"github.com/rbmk-project/common/errclass"
	"github.com/sirupsen/logrus"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// State of a provisioning run.
type State int

const (
	// Provisioning is the state while steps are being applied.
	Provisioning State = iota
	// Cleaning is entered on the first failure and never left.
	Cleaning
	// Committed means every step succeeded and nothing will be undone.
	Committed
)

func (s State) String() string {
	switch s {
	case Cleaning:
		return "cleaning"
	case Committed:
		return "committed"
	default:
		return "provisioning"
	}
}

type teardown struct {
	desc string
	fn   func() error
}

// rollback is a stack of teardown actions, one per acquired resource.
type rollback struct {
	actions []teardown
	state   State
	log     *logrus.Entry
}

func newRollback(log *logrus.Entry) *rollback {
	return &rollback{log: log}
}

// Push registers the teardown of a resource that has just been acquired.
func (r *rollback) Push(desc string, fn func() error) {
	r.actions = append(r.actions, teardown{desc: desc, fn: fn})
}

// Commit drops the registered teardowns.
func (r *rollback) Commit() {
	r.actions = nil
	r.state = Committed
}

func (r *rollback) State() State {
	return r.state
}

// Unwind runs the teardowns in reverse order of acquisition. A failing
// teardown does not stop the others and its error is never returned: cause
// is the error that gets reported.
func (r *rollback) Unwind(cause error) {
	if r.state != Provisioning {
		return
	}
	r.state = Cleaning
	r.log.WithFields(logrus.Fields{
		"error":    cause,
		"errClass": errclass.New(cause),
	}).Warn("provisioning failed, rolling back")

	var errs []error
	for i := len(r.actions) - 1; i >= 0; i-- {
		a := r.actions[i]
		if err := a.fn(); err != nil {
			r.log.WithFields(logrus.Fields{
				"error":    err,
				"errClass": errclass.New(err),
			}).Warnf("rollback: could not %s", a.desc)
			errs = append(errs, err)
			continue
		}
		r.log.Debugf("rollback: %s", a.desc)
	}
	r.actions = nil

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		r.log.Debugf("rollback finished with %d error(s): %v", len(agg.Errors()), agg)
	}
}

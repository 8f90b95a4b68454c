package host

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
	utilexec "k8s.io/utils/exec"
)

// Operations issued against the host, used to classify failures and to
// locate the provisioning step that failed.
const (
	OpCreateNamespace = "create namespace"
	OpDeleteNamespace = "delete namespace"
	OpLookupNamespace = "lookup namespace"
	OpCreateVeth      = "create veth pair"
	OpMoveEndpoint    = "move endpoint"
	OpDeleteLink      = "delete link"
	OpAssignAddress   = "assign address"
	OpSetMTU          = "set mtu"
	OpSetLinkUp       = "set link up"
	OpAddDefaultRoute = "add default route"
	OpInspect         = "inspect namespace"
)

// Kind classifies a failed host operation.
type Kind int

const (
	// CommandFailure is any other failed privileged operation.
	CommandFailure Kind = iota
	// PrivilegeError means the operation could not be invoked at all.
	PrivilegeError
	// NamespaceExistsError means a namespace of that name already exists.
	NamespaceExistsError
	// InterfaceCreationError means a veth pair could not be created or an
	// endpoint could not be moved.
	InterfaceCreationError
	// AddressConflictError means the kernel rejected an address as already
	// in use.
	AddressConflictError
)

func (k Kind) String() string {
	switch k {
	case PrivilegeError:
		return "PrivilegeError"
	case NamespaceExistsError:
		return "NamespaceExistsError"
	case InterfaceCreationError:
		return "InterfaceCreationError"
	case AddressConflictError:
		return "AddressConflictError"
	default:
		return "CommandFailure"
	}
}

var (
	ErrPrivilege         = errors.New("privileged operation could not be invoked")
	ErrNamespaceExists   = errors.New("namespace already exists")
	ErrInterfaceCreation = errors.New("interface creation failed")
	ErrAddressConflict   = errors.New("address already in use")
	ErrCommandFailure    = errors.New("privileged operation failed")
)

var sentinels = map[Kind]error{
	CommandFailure:         ErrCommandFailure,
	PrivilegeError:         ErrPrivilege,
	NamespaceExistsError:   ErrNamespaceExists,
	InterfaceCreationError: ErrInterfaceCreation,
	AddressConflictError:   ErrAddressConflict,
}

// Error is a failed host operation.
type Error struct {
	Kind      Kind
	Op        string
	Namespace string
	Link      string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Link != "" {
		fmt.Fprintf(&b, ", link: %s", e.Link)
	}
	if e.Namespace != "" {
		fmt.Fprintf(&b, ", namespace: %s", e.Namespace)
	}
	fmt.Fprintf(&b, ", error: %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the error kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NewError wraps err as a failure of op and classifies it. A nil err yields
// nil.
func NewError(op, namespace, link string, err error) error {
	if err == nil {
		return nil
	}
	var herr *Error
	if errors.As(err, &herr) {
		return err
	}
	return &Error{
		Kind:      classify(op, err),
		Op:        op,
		Namespace: namespace,
		Link:      link,
		Err:       err,
	}
}

func classify(op string, err error) Kind {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) || errors.Is(err, utilexec.ErrExecutableNotFound) {
		return PrivilegeError
	}

	switch op {
	case OpCreateNamespace:
		if errors.Is(err, unix.EEXIST) {
			return NamespaceExistsError
		}
	case OpCreateVeth, OpMoveEndpoint:
		return InterfaceCreationError
	case OpAssignAddress:
		if errors.Is(err, unix.EEXIST) || errors.Is(err, unix.EADDRINUSE) {
			return AddressConflictError
		}
	}

	return CommandFailure
}

// KindOf returns the kind of a host error, CommandFailure for anything else.
func KindOf(err error) Kind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return CommandFailure
}

// IsNotExist reports whether err says that a namespace or a link is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV)
}

package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	utilexec "k8s.io/utils/exec"
)

// IPRoute2 drives the host through the `ip` command.
type IPRoute2 struct {
	exec utilexec.Interface
	path string
	log  *logrus.Entry
}

func NewIPRoute2(exec utilexec.Interface, log *logrus.Entry) *IPRoute2 {
	return &IPRoute2{
		exec: exec,
		path: "ip",
		log:  log.WithField("backend", "iproute2"),
	}
}

// CommandError is a failed `ip` invocation. The kernel error printed by ip,
// when recognized, is exposed as an errno.
type CommandError struct {
	Args   []string
	Output string
	Errno  unix.Errno
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", shellquote.Join(e.Args...), msg)
}

func (e *CommandError) Unwrap() []error {
	if e.Errno != 0 {
		return []error{e.Errno, e.Err}
	}
	return []error{e.Err}
}

// messages printed by ip for the errnos that matter to classification
var errnoMessages = []struct {
	text  string
	errno unix.Errno
}{
	{"File exists", unix.EEXIST},
	{"Operation not permitted", unix.EPERM},
	{"Permission denied", unix.EACCES},
	{"Address already in use", unix.EADDRINUSE},
	{"Cannot find device", unix.ENODEV},
	{"No such device", unix.ENODEV},
	{"No such file or directory", unix.ENOENT},
	{"Network is unreachable", unix.ENETUNREACH},
}

func errnoFromOutput(out string) unix.Errno {
	for _, m := range errnoMessages {
		if strings.Contains(out, m.text) {
			return m.errno
		}
	}
	return 0
}

func (h *IPRoute2) run(args ...string) ([]byte, error) {
	argv := append([]string{h.path}, args...)
	h.log.Debugf("running %s", shellquote.Join(argv...))

	out, err := h.exec.Command(h.path, args...).CombinedOutput()
	if err != nil {
		return out, &CommandError{
			Args:   argv,
			Output: string(out),
			Errno:  errnoFromOutput(string(out)),
			Err:    err,
		}
	}
	return out, nil
}

func (h *IPRoute2) CreateNamespace(name string) error {
	_, err := h.run("netns", "add", name)
	return NewError(OpCreateNamespace, name, "", err)
}

func (h *IPRoute2) DeleteNamespace(name string) error {
	_, err := h.run("netns", "delete", name)
	if err != nil && IsNotExist(err) {
		return nil
	}
	return NewError(OpDeleteNamespace, name, "", err)
}

func (h *IPRoute2) NamespaceExists(name string) (bool, error) {
	out, err := h.run("netns", "list")
	if err != nil {
		return false, NewError(OpLookupNamespace, name, "", err)
	}
	// each line is "NAME" or "NAME (id: N)"
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}
	return false, nil
}

func (h *IPRoute2) CreateVethPair(name string, mac net.HardwareAddr, peer string, peerMAC net.HardwareAddr) error {
	_, err := h.run("link", "add", name, "address", mac.String(),
		"type", "veth", "peer", "name", peer, "address", peerMAC.String())
	return NewError(OpCreateVeth, "", name, err)
}

func (h *IPRoute2) MoveEndpoint(name, namespace string) error {
	_, err := h.run("link", "set", "dev", name, "netns", namespace)
	return NewError(OpMoveEndpoint, namespace, name, err)
}

func (h *IPRoute2) DeleteLink(name string) error {
	_, err := h.run("link", "delete", "dev", name)
	if err != nil && IsNotExist(err) {
		return nil
	}
	return NewError(OpDeleteLink, "", name, err)
}

func (h *IPRoute2) AssignAddress(namespace, name string, addr *net.IPNet) error {
	_, err := h.run("-n", namespace, "addr", "add", addr.String(), "dev", name)
	return NewError(OpAssignAddress, namespace, name, err)
}

func (h *IPRoute2) SetMTU(namespace, name string, mtu int) error {
	_, err := h.run("-n", namespace, "link", "set", "dev", name, "mtu", strconv.Itoa(mtu))
	return NewError(OpSetMTU, namespace, name, err)
}

func (h *IPRoute2) SetLinkUp(namespace, name string) error {
	_, err := h.run("-n", namespace, "link", "set", "dev", name, "up")
	return NewError(OpSetLinkUp, namespace, name, err)
}

func (h *IPRoute2) AddDefaultRoute(namespace, name string, via net.IP) error {
	_, err := h.run("-n", namespace, "route", "add", "default", "via", via.String(), "dev", name)
	return NewError(OpAddDefaultRoute, namespace, name, err)
}

// ipAddr is an entry of `ip -j addr show`.
type ipAddr struct {
	IfName   string   `json:"ifname"`
	Flags    []string `json:"flags"`
	MTU      int      `json:"mtu"`
	Address  string   `json:"address"`
	AddrInfo []struct {
		Local     string `json:"local"`
		PrefixLen int    `json:"prefixlen"`
	} `json:"addr_info"`
}

// ipRoute is an entry of `ip -j route show`.
type ipRoute struct {
	Dst     string `json:"dst"`
	Gateway string `json:"gateway"`
	Dev     string `json:"dev"`
}

func (h *IPRoute2) Inspect(namespace string) (*NamespaceState, error) {
	out, err := h.run("-j", "-n", namespace, "addr", "show")
	if err != nil {
		return nil, NewError(OpInspect, namespace, "", err)
	}
	var addrs []ipAddr
	if err := decodeJSON(out, &addrs); err != nil {
		return nil, NewError(OpInspect, namespace, "", fmt.Errorf("decode addresses failed, error: %w", err))
	}

	state := &NamespaceState{Name: namespace}
	for _, a := range addrs {
		ls := LinkState{Name: a.IfName, MAC: a.Address, MTU: a.MTU}
		for _, f := range a.Flags {
			if f == "UP" {
				ls.Up = true
			}
		}
		for _, info := range a.AddrInfo {
			ls.Addrs = append(ls.Addrs, fmt.Sprintf("%s/%d", info.Local, info.PrefixLen))
		}
		state.Links = append(state.Links, ls)
	}

	out, err = h.run("-j", "-n", namespace, "-4", "route", "show", "default")
	if err != nil {
		return nil, NewError(OpInspect, namespace, "", err)
	}
	var routes []ipRoute
	if err := decodeJSON(out, &routes); err != nil {
		return nil, NewError(OpInspect, namespace, "", fmt.Errorf("decode routes failed, error: %w", err))
	}
	for _, r := range routes {
		if r.Dst == "default" && r.Gateway != "" {
			state.Gateway = r.Gateway
			break
		}
	}

	sortLinks(state.Links)
	return state, nil
}

// decodeJSON tolerates the empty output older ip versions print for an empty
// list.
func decodeJSON(out []byte, v interface{}) error {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil
	}
	return json.Unmarshal(out, v)
}

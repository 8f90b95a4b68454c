package config

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	utilexec "k8s.io/utils/exec"

	"github.com/rancher/pocketscion-netns/pkg/host"
	"github.com/rancher/pocketscion-netns/pkg/network"
	"github.com/rancher/pocketscion-netns/pkg/topology"
)

const (
	BackendNetlink  = "netlink"
	BackendIPRoute2 = "iproute2"
)

// Options are the command line settings.
type Options struct {
	TopologyFile string
	Backend      string
	LogLevel     string
	LogOutput    io.Writer
}

// Management holds what every command works with.
type Management struct {
	Topology *topology.Topology
	Host     host.Host
	Log      *logrus.Entry
}

// Network returns the provisioner of the topology on the host.
func (m *Management) Network() *network.Network {
	return network.New(m.Host, m.Topology, m.Log)
}

func SetupManagement(opts *Options) (*Management, error) {
	log, err := newLogger(opts)
	if err != nil {
		return nil, err
	}

	topo := topology.Default()
	if opts.TopologyFile != "" {
		if topo, err = topology.Load(opts.TopologyFile); err != nil {
			return nil, err
		}
		log.WithField("file", opts.TopologyFile).Debug("loaded topology")
	}

	h, err := newHost(opts.Backend, log)
	if err != nil {
		return nil, err
	}

	return &Management{
		Topology: topo,
		Host:     h,
		Log:      log,
	}, nil
}

func newLogger(opts *Options) (*logrus.Entry, error) {
	logger := logrus.New()
	if opts.LogOutput != nil {
		logger.SetOutput(opts.LogOutput)
	}
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	level := opts.LogLevel
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q, error: %w", level, err)
	}
	logger.SetLevel(lvl)

	return logrus.NewEntry(logger), nil
}

func newHost(backend string, log *logrus.Entry) (host.Host, error) {
	switch backend {
	case "", BackendNetlink:
		return host.NewNetlink(log), nil
	case BackendIPRoute2:
		return host.NewIPRoute2(utilexec.New(), log), nil
	default:
		return nil, fmt.Errorf("unknown backend %q, want %s or %s", backend, BackendNetlink, BackendIPRoute2)
	}
}

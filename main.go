package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/rancher/pocketscion-netns/pkg/config"
	"github.com/rancher/pocketscion-netns/pkg/host"
	"github.com/rancher/pocketscion-netns/pkg/network"
)

const (
	appName = "pocketscion-netns"
	usage   = "usage: " + appName + " [--topology FILE] [--backend netlink|iproute2] [--log-level LEVEL] up|down|status"
)

var setupManagement = config.SetupManagement

// usageError is a command line that names no valid command. Nothing
// privileged has run when it is returned.
type usageError struct {
	msg string
}

func (e usageError) Error() string {
	return e.msg
}

func usageErrorf(format string, args ...interface{}) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).Run(args)
	if err == nil {
		return 0
	}

	var uerr usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(stderr, "%s: %s\n", appName, uerr.msg)
		fmt.Fprintln(stderr, usage)
		return 1
	}

	var herr *host.Error
	if errors.As(err, &herr) {
		fmt.Fprintf(stderr, "%s: %s (%s)\n", appName, err, herr.Kind)
		return 1
	}
	fmt.Fprintf(stderr, "%s: %s\n", appName, err)
	return 1
}

func newApp(stdout, stderr io.Writer) *cli.App {
	opts := &config.Options{LogOutput: stderr}

	app := cli.NewApp()
	app.Name = appName
	app.Usage = "provision the client / server / simulator network namespaces"
	app.UsageText = strings.TrimPrefix(usage, "usage: ")
	app.HideHelp = true
	app.HideVersion = true
	app.Writer = stderr
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "topology",
			EnvVar:      "NETNS_TOPOLOGY",
			Usage:       "topology file, YAML or JSON; the built-in 3-node topology when empty",
			Destination: &opts.TopologyFile,
		},
		cli.StringFlag{
			Name:        "backend",
			EnvVar:      "NETNS_BACKEND",
			Value:       config.BackendNetlink,
			Usage:       "how to reach the kernel: netlink or iproute2",
			Destination: &opts.Backend,
		},
		cli.StringFlag{
			Name:        "log-level",
			EnvVar:      "NETNS_LOG_LEVEL",
			Value:       "info",
			Usage:       "trace, debug, info, warn or error",
			Destination: &opts.LogLevel,
		},
	}
	app.OnUsageError = func(c *cli.Context, err error, isSubcommand bool) error {
		return usageErrorf("%v", err)
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return usageErrorf("exactly one argument required (up or down)")
		}
		return usageErrorf("unknown command %q", c.Args().First())
	}
	app.Commands = []cli.Command{
		{
			Name:   "up",
			Usage:  "create the namespaces and links, rolling back on any failure",
			Action: command(opts, up),
		},
		{
			Name:   "down",
			Usage:  "delete the namespaces; host failures never fail it, invalid settings still exit 1",
			Action: command(opts, down),
		},
		{
			Name:  "status",
			Usage: "show the namespaces and check them against the topology",
			Action: command(opts, func(n *network.Network) error {
				return status(n, stdout)
			}),
		},
	}
	for i := range app.Commands {
		app.Commands[i].OnUsageError = app.OnUsageError
	}

	return app
}

// command adapts a network operation to a cli action taking no arguments.
func command(opts *config.Options, fn func(*network.Network) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if c.NArg() != 0 {
			return usageErrorf("%s takes no arguments, got %q", c.Command.Name, c.Args())
		}
		m, err := setupManagement(opts)
		if err != nil {
			return err
		}
		return fn(m.Network())
	}
}

func up(n *network.Network) error {
	if err := n.Up(); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	return nil
}

func down(n *network.Network) error {
	n.Down()
	return nil
}

func status(n *network.Network, out io.Writer) error {
	st, err := n.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tINTERFACE\tSTATE\tMTU\tADDRESSES\tGATEWAY")
	for _, s := range st {
		if s.State == nil {
			fmt.Fprintf(w, "%s\t-\tabsent\t-\t-\t-\n", s.Name)
			continue
		}
		gw := s.State.Gateway
		if gw == "" {
			gw = "-"
		}
		for _, l := range s.State.Links {
			state := "down"
			if l.Up {
				state = "up"
			}
			addrs := strings.Join(l.Addrs, ",")
			if addrs == "" {
				addrs = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Name, l.Name, state, l.MTU, addrs, gw)
		}
	}
	w.Flush()

	return n.Verify(st)
}

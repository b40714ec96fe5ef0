// Package remote runs ssh, rsync and scp against VM guests.
//
// Guests are throwaway machines whose host keys change on every clone, so
// host key checking is disabled and nothing is written to known_hosts.
package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jbweber/vmw/internal/command"
	"github.com/jbweber/vmw/internal/config"
)

// DefaultConnectTimeout is passed to ssh as ConnectTimeout.
const DefaultConnectTimeout = 10 * time.Second

// baseOptions are always passed to ssh and scp.
var baseOptions = []string{
	"StrictHostKeyChecking=no",
	"UserKnownHostsFile=/dev/null",
	"LogLevel=error",
}

// Target is a user on a guest address.
type Target struct {
	User string
	Host string
}

// String returns user@host for ssh.
func (t Target) String() string {
	return t.User + "@" + t.Host
}

// Path returns the remote host:path argument for rsync and scp. IPv6 hosts are
// bracketed.
func (t Target) Path(path string) string {
	host := t.Host
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return t.User + "@" + host + ":" + path
}

// Options configures ssh.
type Options struct {
	Port           int
	Identity       string
	Extra          []string
	ConnectTimeout time.Duration

	// Transfer selects the tool used by Push and Pull.
	Transfer string
}

// Client runs remote commands through a command.Runner.
type Client struct {
	runner command.Runner
	opts   Options
}

// New creates a Client.
func New(runner command.Runner, opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Transfer == "" {
		opts.Transfer = config.TransferRsync
	}
	return &Client{runner: runner, opts: opts}
}

// optionArgs returns the -o arguments shared by ssh and scp.
func (c *Client) optionArgs() []string {
	opts := append([]string{}, baseOptions...)
	opts = append(opts, "ConnectTimeout="+strconv.Itoa(int(c.opts.ConnectTimeout.Seconds())))
	opts = append(opts, c.opts.Extra...)

	args := make([]string, 0, 2*len(opts))
	for _, o := range opts {
		args = append(args, "-o", o)
	}
	return args
}

// SSHArgs returns the ssh arguments preceding the destination.
func (c *Client) SSHArgs() []string {
	args := c.optionArgs()
	args = append(args, "-p", strconv.Itoa(c.opts.Port))
	if c.opts.Identity != "" {
		args = append(args, "-i", c.opts.Identity)
	}
	return args
}

// Shell opens an ssh session to t, running command when given. The
// caller's terminal is attached; a non-zero ssh exit is returned as a
// *command.ExitError.
func (c *Client) Shell(ctx context.Context, t Target, remoteCommand []string) error {
	args := c.SSHArgs()
	if len(remoteCommand) == 0 {
		args = append(args, "-t")
	}
	args = append(args, t.String())
	args = append(args, remoteCommand...)

	return c.runner.Interactive(ctx, command.Cmd{Name: "ssh", Args: args})
}

// installKeysScript appends each key read from stdin to authorized_keys
// unless an identical line is already present.
const installKeysScript = `umask 077 && mkdir -p ~/.ssh && touch ~/.ssh/authorized_keys && ` +
	`while IFS= read -r key; do ` +
	`[ -n "$key" ] || continue; ` +
	`grep -qxF "$key" ~/.ssh/authorized_keys || printf '%s\n' "$key" >> ~/.ssh/authorized_keys; ` +
	`done`

// InstallKeys appends the missing keys to the user's authorized_keys on t
// through a single ssh invocation.
func (c *Client) InstallKeys(ctx context.Context, t Target, keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("no public keys to install")
	}

	args := c.SSHArgs()
	args = append(args, t.String(), installKeysScript)

	stdin := strings.Join(keys, "\n") + "\n"
	log.Infof("Installing %d key(s) for %s...", len(keys), t)
	if _, err := c.runner.Output(ctx, command.Cmd{Name: "ssh", Args: args, Stdin: strings.NewReader(stdin)}); err != nil {
		return fmt.Errorf("failed to install keys on %s: %w", t.Host, err)
	}
	return nil
}

// Push copies local srcs to dest on t.
func (c *Client) Push(ctx context.Context, t Target, srcs []string, dest string) error {
	if len(srcs) == 0 {
		return fmt.Errorf("no source paths given")
	}
	return c.transfer(ctx, srcs, t.Path(dest))
}

// Pull copies srcs on t to the local dest.
func (c *Client) Pull(ctx context.Context, t Target, srcs []string, dest string) error {
	if len(srcs) == 0 {
		return fmt.Errorf("no source paths given")
	}
	remote := make([]string, len(srcs))
	for i, s := range srcs {
		remote[i] = t.Path(s)
	}
	return c.transfer(ctx, remote, dest)
}

func (c *Client) transfer(ctx context.Context, srcs []string, dest string) error {
	var cmd command.Cmd
	switch c.opts.Transfer {
	case config.TransferRsync:
		ssh := []string{"ssh"}
		for _, a := range c.SSHArgs() {
			ssh = append(ssh, rsyncQuote(a))
		}
		args := []string{"-a", "-e", strings.Join(ssh, " ")}
		args = append(args, srcs...)
		args = append(args, dest)
		cmd = command.Cmd{Name: "rsync", Args: args}
	case config.TransferSCP:
		args := []string{"-r"}
		args = append(args, c.optionArgs()...)
		args = append(args, "-P", strconv.Itoa(c.opts.Port))
		if c.opts.Identity != "" {
			args = append(args, "-i", c.opts.Identity)
		}
		args = append(args, srcs...)
		args = append(args, dest)
		cmd = command.Cmd{Name: "scp", Args: args}
	default:
		return fmt.Errorf("unknown transfer tool %q", c.opts.Transfer)
	}

	return c.runner.Interactive(ctx, cmd)
}

// rsyncQuote quotes one word of the command rsync runs for -e. rsync splits
// that command on whitespace and honors single and double quotes.
func rsyncQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\") {
		return s
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

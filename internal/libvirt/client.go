package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	log "github.com/sirupsen/logrus"
)

// DefaultSocket is the libvirtd socket for qemu:///system.
const DefaultSocket = "/var/run/libvirt/libvirt-sock"

// Client wraps a go-libvirt connection to a local libvirt daemon.
type Client struct {
	libvirt *libvirt.Libvirt
	socket  string
	uri     libvirt.ConnectURI
}

// Connect opens uri on the libvirt daemon listening on socketPath. It
// returns a Client that must be closed via Close() when done.
//
// The socket and the URI must agree: the per-user session daemon refuses
// qemu:///system. If socketPath is empty, DefaultSocket is used; if uri is
// empty, qemu:///system. If timeout is zero, defaults to 5 seconds.
func Connect(socketPath, uri string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)
	return connect(dialer, socketPath, libvirt.ConnectURI(uri))
}

func connect(dialer socket.Dialer, socketPath string, uri libvirt.ConnectURI) (*Client, error) {
	if uri == "" {
		uri = libvirt.QEMUSystem
	}

	l := libvirt.NewWithDialer(dialer)
	if err := l.ConnectToURI(uri); err != nil {
		return nil, fmt.Errorf("failed to open %s at %s: %w", uri, socketPath, err)
	}

	log.Debugf("connected to %s at %s", uri, socketPath)
	return &Client{libvirt: l, socket: socketPath, uri: uri}, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
func ConnectWithContext(ctx context.Context, socketPath, uri string, timeout time.Duration) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connection cancelled: %w", err)
	}

	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, uri, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close a connection that completes after the caller gave up.
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	log.Debugf("disconnected from libvirt at %s", c.socket)
	return nil
}

// Libvirt returns the underlying go-libvirt client. It satisfies the
// consumer-side interfaces declared by internal/vm, internal/metadata and
// internal/disk.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Socket returns the socket path the client is connected to.
func (c *Client) Socket() string {
	return c.socket
}

// URI returns the connection URI opened on the socket.
func (c *Client) URI() string {
	return string(c.uri)
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

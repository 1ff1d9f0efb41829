package ssh

import (
	"context"
	"io"

	"github.com/eniac111/oct/internal/types"
	"golang.org/x/crypto/ssh"
)

// Conn is an open connection to a control host with the operations a remote
// playbook run needs.
type Conn struct {
	client *ssh.Client
}

// Dial connects to host.
func Dial(ctx context.Context, host types.Host) (*Conn, error) {
	client, err := Connect(ctx, host)
	if err != nil {
		return nil, err
	}
	return &Conn{client: client}, nil
}

// MkdirTemp creates a fresh scratch directory on the host.
func (c *Conn) MkdirTemp(prefix string) (string, error) { return MkdirTemp(c.client, prefix) }

// RemoveAll deletes a directory tree on the host.
func (c *Conn) RemoveAll(dir string) error { return RemoveAll(c.client, dir) }

// UploadFile copies a local file to the host.
func (c *Conn) UploadFile(localPath, remotePath string) error {
	return UploadFile(c.client, localPath, remotePath)
}

// UploadDir copies a local directory tree to the host.
func (c *Conn) UploadDir(localDir, remoteDir string) error {
	return UploadDir(c.client, localDir, remoteDir)
}

// Stream runs cmd on the host, copying its output as it arrives.
func (c *Conn) Stream(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	return StreamCommand(ctx, c.client, cmd, stdout, stderr)
}

// Close closes the connection.
func (c *Conn) Close() error { return c.client.Close() }

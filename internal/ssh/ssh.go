package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/eniac111/oct/internal/output"
	"github.com/eniac111/oct/internal/types"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// authMethods collects password, key file, default key and agent auth for host.
func authMethods(host types.Host) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if host.Password != "" {
		methods = append(methods, ssh.Password(host.Password))
	}

	if host.KeyPath != "" {
		key, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if usr, err := user.Current(); err == nil {
		defaultKeyPath := filepath.Join(usr.HomeDir, ".ssh", "id_rsa")
		if key, err := os.ReadFile(defaultKeyPath); err == nil {
			if signer, err := ssh.ParsePrivateKey(key); err == nil {
				methods = append(methods, ssh.PublicKeys(signer))
				output.Logger.Debug("Using default SSH key", "path", defaultKeyPath)
			} else {
				output.Logger.Debug("Failed to parse default SSH key", "path", defaultKeyPath, "error", err)
			}
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			output.Logger.Debug("Using SSH agent")
		} else {
			output.Logger.Debug("Failed to connect to SSH agent", "error", err)
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available for %s", host.Name)
	}
	return methods, nil
}

// Connect opens an SSH connection to the control host.
func Connect(ctx context.Context, host types.Host) (*ssh.Client, error) {
	methods, err := authMethods(host)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // DO NOT USE IN PRODUCTION
	}

	addr := host.Address()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	output.Logger.Debug("Connected to control host", "addr", addr, "user", host.User)
	return ssh.NewClient(c, chans, reqs), nil
}

// MkdirTemp creates a fresh directory under /tmp on the remote host.
func MkdirTemp(sshClient *ssh.Client, prefix string) (string, error) {
	out, _, status, err := RunCommand(context.Background(), sshClient, "mktemp -d /tmp/"+prefix+"XXXXXXXX")
	if err != nil {
		return "", err
	}
	if status != 0 {
		return "", fmt.Errorf("mktemp exited with status %d", status)
	}
	dir := strings.TrimSpace(out)
	if dir == "" {
		return "", errors.New("mktemp returned no directory")
	}
	return dir, nil
}

// RemoveAll deletes a remote directory tree.
func RemoveAll(sshClient *ssh.Client, dir string) error {
	_, stderr, status, err := RunCommand(context.Background(), sshClient, "rm -rf "+Quote(dir))
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("rm -rf %s: %s", dir, stderr)
	}
	return nil
}

// UploadFile uses SFTP to copy a local file to a remote path.
func UploadFile(sshClient *ssh.Client, localPath, remotePath string) error {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	return copyFile(sftpClient, localPath, remotePath)
}

// UploadDir copies the local directory tree rooted at localDir to remoteDir.
func UploadDir(sshClient *ssh.Client, localDir, remoteDir string) error {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		target := path.Join(remoteDir, filepath.ToSlash(rel))
		switch {
		case d.IsDir():
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return sftpClient.MkdirAll(target)
		case d.Type().IsRegular():
			return copyFile(sftpClient, p, target)
		default:
			// only regular files and directories are copied
			return nil
		}
	})
}

func copyFile(sftpClient *sftp.Client, localPath, remotePath string) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}
	dstFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	info, err := srcFile.Stat()
	if err != nil {
		return err
	}
	// dynamic inventories must stay executable
	return dstFile.Chmod(info.Mode().Perm())
}

// RunCommand executes cmd on the remote host and returns its output and exit
// status. err is only set when the command could not be run to completion;
// a non-zero exit is reported through status. The session is closed when ctx
// is cancelled.
func RunCommand(ctx context.Context, sshClient *ssh.Client, cmd string) (stdout, stderr string, status int, err error) {
	return run(ctx, sshClient, cmd, nil, nil)
}

// StreamCommand is RunCommand with output copied to the given writers as it
// arrives instead of being buffered.
func StreamCommand(ctx context.Context, sshClient *ssh.Client, cmd string, stdout, stderr io.Writer) (int, error) {
	_, _, status, err := run(ctx, sshClient, cmd, stdout, stderr)
	return status, err
}

func run(ctx context.Context, sshClient *ssh.Client, cmd string, outW, errW io.Writer) (string, string, int, error) {
	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", -1, err
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	if outW == nil {
		outW = &outBuf
	}
	if errW == nil {
		errW = &errBuf
	}
	session.Stdout = outW
	session.Stderr = errW

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGTERM)
			session.Close()
		case <-done:
		}
	}()

	status, err := sessionStatus(ctx, session.Run(cmd))
	return outBuf.String(), errBuf.String(), status, err
}

// sessionStatus turns the result of session.Run into an exit status. A
// command that finished before ctx was cancelled keeps its own outcome.
func sessionStatus(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

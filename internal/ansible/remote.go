package ansible

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/eniac111/oct/internal/fsutil"
	"github.com/eniac111/oct/internal/output"
	"github.com/eniac111/oct/internal/ssh"
	"github.com/eniac111/oct/internal/types"
)

// RemoteRunner runs ansible-playbook on a control host over SSH. The playbook
// directory, the inventory (when it is a local file) and the extra vars are
// copied into a scratch directory on the host for the duration of the run.
// Paths in the environment, such as the log directory, are paths on the
// control host.
type RemoteRunner struct {
	Host types.Host

	dial func(ctx context.Context, host types.Host) (controlHost, error)
}

// controlHost is what a remote run needs from a connection.
type controlHost interface {
	MkdirTemp(prefix string) (string, error)
	RemoveAll(dir string) error
	UploadFile(localPath, remotePath string) error
	UploadDir(localDir, remoteDir string) error
	Stream(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error)
	Close() error
}

var _ controlHost = (*ssh.Conn)(nil)

func dialSSH(ctx context.Context, host types.Host) (controlHost, error) {
	conn, err := ssh.Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type upload struct {
	local  string
	remote string
	dir    bool
}

// Run implements Runner.
func (r RemoteRunner) Run(ctx context.Context, inv Invocation) (int, error) {
	if len(inv.Args) == 0 {
		return -1, fmt.Errorf("empty command line")
	}

	dial := r.dial
	if dial == nil {
		dial = dialSSH
	}
	client, err := dial(ctx, r.Host)
	if err != nil {
		return -1, err
	}
	defer client.Close()

	work, err := client.MkdirTemp("oct-")
	if err != nil {
		return -1, fmt.Errorf("failed to create work directory on %s: %w", r.Host.Name, err)
	}
	defer func() {
		if err := client.RemoveAll(work); err != nil {
			output.Logger.Warn("Failed to clean up remote work directory", "host", r.Host.Name, "dir", work, "error", err)
		}
	}()

	args, uploads := planRemote(inv, work)
	for _, u := range uploads {
		output.Logger.Debug("Uploading", "host", r.Host.Name, "local", u.local, "remote", u.remote)
		if u.dir {
			err = client.UploadDir(u.local, u.remote)
		} else {
			err = client.UploadFile(u.local, u.remote)
		}
		if err != nil {
			return -1, fmt.Errorf("failed to upload %s to %s: %w", u.local, r.Host.Name, err)
		}
	}

	line := ssh.CommandLine(remotePlaybookDir(work, inv), inv.Env, args)
	output.Logger.Debug("Running on control host", "host", r.Host.Name, "command", line)
	return client.Stream(ctx, line, inv.stdout(), inv.stderr())
}

func remotePlaybookDir(work string, inv Invocation) string {
	if inv.Dir == "" {
		return work
	}
	return path.Join(work, "playbook")
}

// planRemote decides what to copy to the control host and rewrites the
// command line to point at the copies. Files that do not exist locally, such
// as an inventory already present on the host, are left alone.
func planRemote(inv Invocation, work string) ([]string, []upload) {
	var uploads []upload
	remoteDir := remotePlaybookDir(work, inv)
	if inv.Dir != "" {
		uploads = append(uploads, upload{local: inv.Dir, remote: remoteDir, dir: true})
	}

	files := make(map[string]string)
	for i, f := range inv.Files {
		if _, seen := files[f]; seen || !fsutil.Exists(f) {
			continue
		}
		remote := path.Join(work, "files", fmt.Sprintf("%d-%s", i, filepath.Base(f)))
		files[f] = remote
		uploads = append(uploads, upload{local: f, remote: remote})
	}

	args := make([]string, len(inv.Args))
	args[0] = inv.Args[0]
	for i, a := range inv.Args[1:] {
		args[i+1] = rewriteArg(a, files, inv.Dir, remoteDir)
	}
	return args, uploads
}

func rewriteArg(arg string, files map[string]string, localDir, remoteDir string) string {
	prefix, p := "", arg
	if strings.HasPrefix(arg, "@") {
		prefix, p = "@", arg[1:]
	}
	if remote, ok := files[p]; ok {
		return prefix + remote
	}
	if localDir != "" && filepath.IsAbs(p) {
		rel, err := filepath.Rel(localDir, p)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return prefix + path.Join(remoteDir, filepath.ToSlash(rel))
		}
	}
	return arg
}

package types

import (
	"net"
	"strconv"
	"time"
)

// Host describes the control host ansible-playbook runs on when it is not
// the local machine.
type Host struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"` // Optional SSH key path
}

// Address returns host:port, defaulting to port 22.
func (h Host) Address() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(h.Name, strconv.Itoa(port))
}

// ExtraVars are the extra variables handed to a playbook run.
type ExtraVars map[string]any

// RunResult is what a single playbook run reports.
type RunResult struct {
	Playbook  string        `json:"playbook"`
	Sha256    string        `json:"sha256,omitempty"`
	Inventory string        `json:"inventory"`
	DryRun    bool          `json:"dry_run"`
	Code      int           `json:"code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

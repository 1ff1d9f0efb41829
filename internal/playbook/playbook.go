package playbook

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Playbook is the list of plays in a playbook file. Only the fields oct
// reports on are decoded; the engine reads the file itself.
type Playbook struct {
	Path  string
	Plays []Play
}

// Play is one entry of a playbook.
type Play struct {
	Name  string      `yaml:"name"`
	Hosts interface{} `yaml:"hosts"`
	Tasks []yaml.Node `yaml:"tasks"`
	Roles []yaml.Node `yaml:"roles"`

	// ImportPlaybook is set from whichever import spelling the entry uses.
	ImportPlaybook string `yaml:"import_playbook"`
	BuiltinImport  string `yaml:"ansible.builtin.import_playbook"`
	LegacyImport   string `yaml:"ansible.legacy.import_playbook"`
	Include        string `yaml:"include"`
}

func (p *Play) normalize() {
	for _, v := range []string{p.BuiltinImport, p.LegacyImport, p.Include} {
		if p.ImportPlaybook == "" && v != "" {
			p.ImportPlaybook = v
		}
	}
}

// ErrEmptyPlaybook is returned for files with no plays.
var ErrEmptyPlaybook = errors.New("playbook has no plays")

// Load reads and checks the structure of the playbook at path.
func Load(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyPlaybook)
	}
	doc := root.Content[0]
	if doc.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("playbook %s must be a list of plays", path)
	}

	pb := &Playbook{Path: path}
	if err := doc.Decode(&pb.Plays); err != nil {
		return nil, fmt.Errorf("failed to decode plays in %s: %w", path, err)
	}
	if len(pb.Plays) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyPlaybook)
	}
	// Play contents are the engine's to validate.
	for i := range pb.Plays {
		pb.Plays[i].normalize()
	}
	return pb, nil
}

// HostPattern renders the hosts field the way it appears on the command line.
func (p Play) HostPattern() string {
	switch h := p.Hosts.(type) {
	case nil:
		return ""
	case string:
		return h
	case []interface{}:
		s := ""
		for i, v := range h {
			if i > 0 {
				s += ":"
			}
			s += fmt.Sprint(v)
		}
		return s
	default:
		return fmt.Sprint(h)
	}
}

// Label is the play name, or a description of what the play points at.
func (p Play) Label() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.ImportPlaybook != "":
		return "import " + p.ImportPlaybook
	default:
		return "hosts " + p.HostPattern()
	}
}

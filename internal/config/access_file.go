package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
)

// AccessFile is the YAML file listing roles and authorized link issuers,
// both in declaration order.
type AccessFile struct {
	Roles          []RoleConfig               `yaml:"roles"`
	AuthorizedKeys []capability.AuthorizedKey `yaml:"authorized_keys"`
}

type RoleConfig struct {
	ID          string `yaml:"role_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Days        Days   `yaml:"days_of_week"`
	TimeRange   string `yaml:"time_range"`
}

// Days accepts either the scalar "anytime" or a list of weekday names.
type Days []string

func (d *Days) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*d = Days{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	default:
		return fmt.Errorf("line %d: days_of_week must be \"anytime\" or a list", n.Line)
	}
}

// LoadAccessFile reads path. A missing file yields an empty AccessFile.
func LoadAccessFile(path string) (AccessFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return AccessFile{}, nil
	}
	if err != nil {
		return AccessFile{}, fmt.Errorf("read access file: %w", err)
	}
	return ParseAccessFile(data)
}

func ParseAccessFile(data []byte) (AccessFile, error) {
	var af AccessFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return AccessFile{}, fmt.Errorf("parse access file: %w", err)
	}
	return af, nil
}

// AccessRoles decodes every role's schedule once.
func (a AccessFile) AccessRoles() ([]access.Role, error) {
	roles := make([]access.Role, 0, len(a.Roles))
	seen := make(map[string]struct{}, len(a.Roles))
	var errs []error
	for i, rc := range a.Roles {
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("roles[%d]: role_id is required", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("roles[%d]: duplicate role_id %s", i, id))
			continue
		}
		seen[id] = struct{}{}

		sched, err := access.ParseSchedule(rc.Days, rc.TimeRange)
		if err != nil {
			errs = append(errs, fmt.Errorf("roles[%d] %s: %w", i, rc.Name, err))
			continue
		}
		name := rc.Name
		if name == "" {
			name = id
		}
		roles = append(roles, access.Role{ID: id, Name: name, Description: rc.Description, Schedule: sched})
	}
	return roles, errors.Join(errs...)
}

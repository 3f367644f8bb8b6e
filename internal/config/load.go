package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	identityRequired = []string{
		"auth_protocol", "auth_host", "auth_port",
		"admin_user", "admin_password", "admin_tenant_id",
	}
	mirrorsRequired = []string{
		"region", "cloud_name", "content_id_template",
		"use_swift", "name_prefix", "mirror_list",
	}
	entryRequired = []string{"url", "path", "max"}
)

// NotReadyError reports a configuration document that is absent, malformed
// or incomplete. Callers treat all three the same way: nothing to do until
// the writer of the document has run again.
type NotReadyError struct {
	Path     string
	Problems []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("configuration not ready: %s:\n  - %s", e.Path, strings.Join(e.Problems, "\n  - "))
}

// IsNotReady reports whether err is, or wraps, a NotReadyError.
func IsNotReady(err error) bool {
	var nr *NotReadyError
	return errors.As(err, &nr)
}

// LoadAll reads both documents. The identity document is checked first, and
// neither is returned unless both are ready.
func LoadAll(p Paths) (*Loaded, error) {
	id, err := LoadIdentity(p.Identity)
	if err != nil {
		return nil, err
	}
	m, err := LoadMirrors(p.Mirrors)
	if err != nil {
		return nil, err
	}
	return &Loaded{Identity: *id, Mirrors: *m}, nil
}

// LoadIdentity reads and validates identity.yaml.
func LoadIdentity(path string) (*Identity, error) {
	root, err := readDocument(path, identityRequired)
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := root.Decode(&id); err != nil {
		return nil, &NotReadyError{Path: path, Problems: []string{"malformed: " + err.Error()}}
	}

	if errs := ValidateIdentity(&id); len(errs) > 0 {
		return nil, &NotReadyError{Path: path, Problems: errs}
	}
	return &id, nil
}

// LoadMirrors reads and validates mirrors.yaml.
func LoadMirrors(path string) (*Mirrors, error) {
	root, err := readDocument(path, mirrorsRequired)
	if err != nil {
		return nil, err
	}

	// Entries carry their own required keys.
	var problems []string
	if list := mappingValue(root, "mirror_list"); list != nil && list.Kind == yaml.SequenceNode {
		for i, entry := range list.Content {
			prefix := fmt.Sprintf("mirror_list[%d]", i)
			if entry.Kind != yaml.MappingNode {
				problems = append(problems, fmt.Sprintf("%s: expected a mapping", prefix))
				continue
			}
			for _, key := range missingKeys(entry, entryRequired) {
				problems = append(problems, fmt.Sprintf("%s: '%s' is required", prefix, key))
			}
		}
	}
	if len(problems) > 0 {
		return nil, &NotReadyError{Path: path, Problems: problems}
	}

	var m Mirrors
	if err := root.Decode(&m); err != nil {
		return nil, &NotReadyError{Path: path, Problems: []string{"malformed: " + err.Error()}}
	}

	if errs := ValidateMirrors(&m); len(errs) > 0 {
		return nil, &NotReadyError{Path: path, Problems: errs}
	}
	return &m, nil
}

// ValidateIdentity checks an Identity for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func ValidateIdentity(id *Identity) []string {
	var errs []string

	switch id.AuthProtocol {
	case "http", "https":
	default:
		errs = append(errs, fmt.Sprintf("invalid auth_protocol '%s' — must be one of: http, https", id.AuthProtocol))
	}
	if id.AuthHost == "" {
		errs = append(errs, "'auth_host' must not be empty")
	}
	if id.AuthPort == "" {
		errs = append(errs, "'auth_port' must not be empty")
	}
	if id.AdminUser == "" {
		errs = append(errs, "'admin_user' must not be empty")
	}
	if id.AdminTenantID == "" {
		errs = append(errs, "'admin_tenant_id' must not be empty")
	}
	if id.RabbitHost != "" && id.RabbitUserID == "" {
		errs = append(errs, "'rabbit_userid' is required when 'rabbit_host' is set")
	}

	return errs
}

// ValidateMirrors checks a Mirrors document for semantic correctness.
func ValidateMirrors(m *Mirrors) []string {
	var errs []string

	if m.Region == "" {
		errs = append(errs, "'region' must not be empty")
	}
	if m.ContentIDTemplate == "" {
		errs = append(errs, "'content_id_template' must not be empty")
	}

	for i, e := range m.MirrorList {
		prefix := fmt.Sprintf("mirror_list[%d]", i)
		if e.URL == "" {
			errs = append(errs, fmt.Sprintf("%s: 'url' must not be empty", prefix))
		}
		if e.Max < 0 {
			errs = append(errs, fmt.Sprintf("%s: 'max' must not be negative, got %d", prefix, e.Max))
		}
	}

	return errs
}

// readDocument parses path into a YAML node and rejects documents with null
// values or missing top-level keys.
func readDocument(path string, required []string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotReadyError{Path: path, Problems: []string{"file does not exist"}}
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &NotReadyError{Path: path, Problems: []string{"malformed: " + err.Error()}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &NotReadyError{Path: path, Problems: []string{"document is empty"}}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &NotReadyError{Path: path, Problems: []string{"document is not a mapping"}}
	}

	var problems []string
	for _, key := range nullFields(root, "") {
		problems = append(problems, fmt.Sprintf("'%s' is null", key))
	}
	for _, key := range missingKeys(root, required) {
		problems = append(problems, fmt.Sprintf("'%s' is required", key))
	}
	if len(problems) > 0 {
		return nil, &NotReadyError{Path: path, Problems: problems}
	}

	return root, nil
}

// nullFields returns the dotted paths of every null value below n.
func nullFields(n *yaml.Node, prefix string) []string {
	var out []string

	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			val := n.Content[i+1]
			if isNull(val) {
				out = append(out, key)
				continue
			}
			out = append(out, nullFields(val, key)...)
		}
	case yaml.SequenceNode:
		for i, item := range n.Content {
			key := fmt.Sprintf("%s[%d]", prefix, i)
			if isNull(item) {
				out = append(out, key)
				continue
			}
			out = append(out, nullFields(item, key)...)
		}
	case yaml.AliasNode:
		if n.Alias != nil {
			out = append(out, nullFields(n.Alias, prefix)...)
		}
	}

	return out
}

func isNull(n *yaml.Node) bool {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return isNull(n.Alias)
	}
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func missingKeys(mapping *yaml.Node, required []string) []string {
	present := make(map[string]bool, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		present[mapping.Content[i].Value] = true
	}

	var missing []string
	for _, key := range required {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	return missing
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

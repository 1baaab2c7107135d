package sbe

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// TemplateDescriptor is the registry's entry for one (schema_id, version,
// template_id) triple: just enough for the core to validate compatibility
// and dispatch. Only these keys are read from each entry via gjson; any
// other fields in the collaborator-supplied description (such as field
// offsets) are ignored, since the registry file's shape is out of this
// core's scope (spec.md §6).
type TemplateDescriptor struct {
	SchemaID    uint16
	Version     uint16
	TemplateID  uint16
	Name        string
	BlockLength uint16
}

type registryKey struct {
	schemaID, version, templateID uint16
}

// Registry resolves (schema_id, version, template_id) triples loaded from
// an external JSON description at startup (spec.md §6). It is read-only
// after LoadRegistry returns.
type Registry struct {
	entries map[registryKey]TemplateDescriptor
}

// LoadRegistry parses a JSON schema registry file of the shape:
//
//	{"templates": [{"schema_id":1,"version":0,"template_id":2,"name":"MDIncrementalRefreshBook","block_length":8}, ...]}
//
// gjson is used instead of full unmarshal because collaborator-owned
// registry files may carry additional fields this core does not need to
// materialize into Go structs.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sbe: read schema registry %s: %w", path, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("sbe: schema registry %s is not valid JSON", path)
	}

	r := &Registry{entries: make(map[registryKey]TemplateDescriptor)}
	var parseErr error
	gjson.GetBytes(raw, "templates").ForEach(func(_, entry gjson.Result) bool {
		d := TemplateDescriptor{
			SchemaID:    uint16(entry.Get("schema_id").Uint()),
			Version:     uint16(entry.Get("version").Uint()),
			TemplateID:  uint16(entry.Get("template_id").Uint()),
			Name:        entry.Get("name").String(),
			BlockLength: uint16(entry.Get("block_length").Uint()),
		}
		if d.Name == "" {
			parseErr = fmt.Errorf("sbe: schema registry entry missing name: %s", entry.Raw)
			return false
		}
		key := registryKey{d.SchemaID, d.Version, d.TemplateID}
		r.entries[key] = d
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return r, nil
}

// Lookup resolves a template descriptor, returning ErrUnknownTemplate if no
// entry is registered for templateID at all, or ErrSchemaMismatch if the
// template is known under a different schema/version than requested.
func (r *Registry) Lookup(schemaID, version, templateID uint16) (TemplateDescriptor, error) {
	key := registryKey{schemaID, version, templateID}
	if d, ok := r.entries[key]; ok {
		return d, nil
	}
	for k, d := range r.entries {
		if k.templateID == templateID {
			return TemplateDescriptor{}, fmt.Errorf("%w: template %d registered for schema %d/v%d, got schema %d/v%d",
				ErrSchemaMismatch, templateID, k.schemaID, k.version, schemaID, version)
		}
		_ = d
	}
	return TemplateDescriptor{}, fmt.Errorf("%w: template id %d", ErrUnknownTemplate, templateID)
}

// Len reports the number of registered template descriptors.
func (r *Registry) Len() int { return len(r.entries) }

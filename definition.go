package settings

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/goliatone/go-settings/layering"
)

// SettingDefinition describes a single setting: its key, its place in the
// definition tree and the resolved values of its supported properties. A
// definition is immutable once deserialized; mutable state for a setting
// belongs in an instance container pointing at the definition.
type SettingDefinition struct {
	key       string
	container *DefinitionContainer
	parent    *SettingDefinition

	children  []*SettingDefinition
	relations []*Relation
	values    map[string]any

	properties *PropertyRegistry
	types      *TypeRegistry
	compiler   Compiler
	catalog    Catalog
	logger     *slog.Logger
}

// NewSettingDefinition constructs an unbuilt definition. Collaborators are
// usually inherited from the owning container; nil falls back to the
// defaults.
func NewSettingDefinition(key string, container *DefinitionContainer, parent *SettingDefinition) *SettingDefinition {
	d := &SettingDefinition{
		key:       key,
		container: container,
		parent:    parent,
		values:    map[string]any{},
	}
	if container != nil {
		d.properties = container.properties
		d.types = container.types
		d.compiler = container.compiler
		d.catalog = container.catalog
		d.logger = container.logger
	}
	if d.properties == nil {
		d.properties = DefaultPropertyRegistry()
	}
	if d.types == nil {
		d.types = DefaultTypeRegistry()
	}
	if d.compiler == nil {
		d.compiler = NewExprCompiler()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Key returns the unique (within its container) key of the setting.
func (d *SettingDefinition) Key() string {
	return d.key
}

// Container returns the owning definition container.
func (d *SettingDefinition) Container() *DefinitionContainer {
	return d.container
}

// Parent returns the parent definition, nil for root definitions.
func (d *SettingDefinition) Parent() *SettingDefinition {
	return d.parent
}

// Children returns the direct child definitions in document order.
func (d *SettingDefinition) Children() []*SettingDefinition {
	return d.children
}

// Relations returns the relation edges recorded on this definition.
func (d *SettingDefinition) Relations() []*Relation {
	return d.relations
}

// Property returns the resolved value of a supported property. Absence is
// distinct from a property present with a nil value.
func (d *SettingDefinition) Property(name string) (any, bool) {
	value, ok := d.values[name]
	return value, ok
}

// Deserialize parses serialized as a JSON setting document.
func (d *SettingDefinition) Deserialize(serialized string) error {
	doc, err := layering.ParseJSON(serialized)
	if err != nil {
		return err
	}
	return d.DeserializeDocument(doc)
}

// DeserializeDocument populates the definition from an already parsed
// document. Unsupported properties are skipped with a warning; a missing
// required property or an unknown setting type fails the whole setting.
func (d *SettingDefinition) DeserializeDocument(doc *layering.Document) error {
	d.children = nil
	d.relations = nil
	d.values = map[string]any{}

	for _, name := range doc.Keys() {
		raw, _ := doc.Get(name)

		if name == "children" {
			childDocs, ok := raw.(*layering.Document)
			if !ok {
				return fmt.Errorf("%w: children of setting %q must be an object", ErrInvalidDefinition, d.key)
			}
			for _, childKey := range childDocs.Keys() {
				childDoc, ok := childDocs.Document(childKey)
				if !ok {
					return fmt.Errorf("%w: child %q of setting %q must be an object", ErrInvalidDefinition, childKey, d.key)
				}
				child := NewSettingDefinition(childKey, d.container, d)
				if err := child.DeserializeDocument(childDoc); err != nil {
					return err
				}
				d.children = append(d.children, child)
			}
			continue
		}

		def, ok := d.properties.Definition(name)
		if !ok {
			d.logger.Warn("unrecognised property in setting", "property", name, "setting", d.key)
			continue
		}

		if name == "type" {
			typeName := fmt.Sprint(raw)
			if !d.types.Has(typeName) {
				return &UnknownTypeError{Type: typeName}
			}
		}

		switch def.Kind {
		case PropertyKindAny:
			d.values[name] = raw
		case PropertyKindString:
			d.values[name] = stringifyProperty(raw)
		case PropertyKindTranslatedString:
			s := stringifyProperty(raw)
			if d.catalog != nil {
				s = d.catalog(s)
			}
			d.values[name] = s
		case PropertyKindFunction:
			expression, err := d.compiler.Compile(stringifyProperty(raw))
			if err != nil {
				return err
			}
			d.values[name] = expression
		}
	}

	for _, name := range d.properties.Names(0) {
		if d.properties.IsRequired(name) {
			if _, ok := d.values[name]; !ok {
				return &MissingRequiredPropertyError{Key: d.key, Property: name}
			}
		}
	}

	return nil
}

// Child returns the direct child with the given key, nil when absent.
func (d *SettingDefinition) Child(key string) *SettingDefinition {
	for _, child := range d.children {
		if child.key == key {
			return child
		}
	}
	return nil
}

// FindDefinitions searches this definition and all descendants depth-first
// for definitions whose properties match every criteria pair exactly. The
// pseudo-property "key" matches the setting key. A node missing a criterion
// is disqualified, not an error.
func (d *SettingDefinition) FindDefinitions(criteria map[string]any) []*SettingDefinition {
	var found []*SettingDefinition
	if d.matches(criteria) {
		found = append(found, d)
	}
	for _, child := range d.children {
		found = append(found, child.FindDefinitions(criteria)...)
	}
	return found
}

func (d *SettingDefinition) matches(criteria map[string]any) bool {
	for name, want := range criteria {
		if name == "key" {
			if d.key != want {
				return false
			}
			continue
		}
		got, ok := d.values[name]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func (d *SettingDefinition) String() string {
	return fmt.Sprintf("<SettingDefinition key=%s>", d.key)
}

func stringifyProperty(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

package settings

import (
	"fmt"
	"log/slog"

	"github.com/goliatone/go-settings/layering"
)

// DefinitionContainerOption configures a definition container.
type DefinitionContainerOption func(*DefinitionContainer)

// WithPropertyRegistry sets the supported-property table used when
// deserializing settings.
func WithPropertyRegistry(registry *PropertyRegistry) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		if registry != nil {
			c.properties = registry
		}
	}
}

// WithTypeRegistry sets the setting type registry.
func WithTypeRegistry(registry *TypeRegistry) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		if registry != nil {
			c.types = registry
		}
	}
}

// WithCompiler sets the expression compiler used for function properties.
func WithCompiler(compiler Compiler) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		if compiler != nil {
			c.compiler = compiler
		}
	}
}

// WithCatalog attaches a translation catalog for translated-string
// properties.
func WithCatalog(catalog Catalog) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		c.catalog = catalog
	}
}

// WithResourceLoader sets the loader used to resolve inherited base
// documents.
func WithResourceLoader(loader ResourceLoader) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		c.loader = loader
	}
}

// WithDefinitionLogger sets the logger used for load warnings.
func WithDefinitionLogger(logger *slog.Logger) DefinitionContainerOption {
	return func(c *DefinitionContainer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefinitionContainer owns a forest of setting definition trees built from a
// serialized schema document. The container is read-only schema: it is
// populated exactly once through Deserialize and acts as the lowest,
// most-fallback layer of a stack by answering default values.
type DefinitionContainer struct {
	id          string
	name        string
	metadata    map[string]string
	definitions []*SettingDefinition

	properties   *PropertyRegistry
	types        *TypeRegistry
	compiler     Compiler
	catalog      Catalog
	loader       ResourceLoader
	logger       *slog.Logger
	deserialized bool
}

// NewDefinitionContainer constructs an empty definition container.
func NewDefinitionContainer(id string, opts ...DefinitionContainerOption) *DefinitionContainer {
	c := &DefinitionContainer{
		id:       id,
		name:     id,
		metadata: map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.properties == nil {
		c.properties = DefaultPropertyRegistry()
	}
	if c.types == nil {
		c.types = DefaultTypeRegistry()
	}
	if c.compiler == nil {
		c.compiler = NewExprCompiler()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ID implements Container.
func (c *DefinitionContainer) ID() string {
	return c.id
}

// Name implements Container.
func (c *DefinitionContainer) Name() string {
	return c.name
}

// Metadata implements Container.
func (c *DefinitionContainer) Metadata() map[string]string {
	return c.metadata
}

// MetadataEntry implements Container.
func (c *DefinitionContainer) MetadataEntry(key string) (string, bool) {
	value, ok := c.metadata[key]
	return value, ok
}

// Definitions returns the root definitions in document order.
func (c *DefinitionContainer) Definitions() []*SettingDefinition {
	return c.definitions
}

// Value implements Container. It answers the default_value property of the
// first definition matching key, letting the container serve as the final
// fallback layer of a stack.
func (c *DefinitionContainer) Value(key string) (any, bool) {
	definitions := c.FindDefinitions(map[string]any{"key": key})
	if len(definitions) == 0 {
		return nil, false
	}
	return definitions[0].Property("default_value")
}

// Property implements Container.
func (c *DefinitionContainer) Property(key, name string) (any, bool) {
	definitions := c.FindDefinitions(map[string]any{"key": key})
	if len(definitions) == 0 {
		return nil, false
	}
	return definitions[0].Property(name)
}

// Serialize implements Container. Definitions are distributed as documents
// and never re-emitted, so the serialized form is empty.
func (c *DefinitionContainer) Serialize() (string, error) {
	return "", nil
}

// FindDefinitions searches the whole forest depth-first for definitions
// matching every criteria pair.
func (c *DefinitionContainer) FindDefinitions(criteria map[string]any) []*SettingDefinition {
	var found []*SettingDefinition
	for _, definition := range c.definitions {
		found = append(found, definition.FindDefinitions(criteria)...)
	}
	return found
}

// Deserialize implements Container. It parses serialized as a definition
// document, resolves the inheritance chain base-most first, applies
// overrides, builds the definition forest and finally records the relation
// edges between expression properties and the settings they reference.
// A container can only be deserialized once.
func (c *DefinitionContainer) Deserialize(serialized string) error {
	if c.deserialized {
		return fmt.Errorf("%w: %s", ErrAlreadyDeserialized, c.id)
	}

	doc, err := layering.ParseJSON(serialized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := c.verifyDocument(doc); err != nil {
		return err
	}

	if base, ok := doc.String("inherits"); ok {
		inherited, err := c.resolveInheritance(base)
		if err != nil {
			return err
		}
		doc = layering.Merge(inherited, doc)
	}

	if overrides, ok := doc.Document("overrides"); ok {
		settingsDoc, ok := doc.Document("settings")
		if !ok {
			return fmt.Errorf("%w: missing required settings section", ErrInvalidDefinition)
		}
		for _, key := range overrides.Keys() {
			overlay, ok := overrides.Document(key)
			if !ok {
				continue
			}
			target := findSettingDocument(settingsDoc, key)
			if target == nil {
				c.logger.Warn("override references unknown setting", "setting", key)
				continue
			}
			layering.Update(target, overlay)
		}
	}

	metadata, ok := doc.Document("metadata")
	if !ok {
		return fmt.Errorf("%w: missing required metadata section", ErrInvalidDefinition)
	}
	settingsDoc, ok := doc.Document("settings")
	if !ok {
		return fmt.Errorf("%w: missing required settings section", ErrInvalidDefinition)
	}

	name, _ := doc.String("name")
	c.name = name
	c.metadata = map[string]string{}
	for _, key := range metadata.Keys() {
		value, _ := metadata.String(key)
		c.metadata[key] = value
	}

	for _, key := range settingsDoc.Keys() {
		settingDoc, ok := settingsDoc.Document(key)
		if !ok {
			return fmt.Errorf("%w: setting %q must be an object", ErrInvalidDefinition, key)
		}
		definition := NewSettingDefinition(key, c, nil)
		if err := definition.DeserializeDocument(settingDoc); err != nil {
			return err
		}
		c.definitions = append(c.definitions, definition)
	}

	for _, definition := range c.definitions {
		c.updateRelations(definition)
	}

	c.deserialized = true
	return nil
}

func (c *DefinitionContainer) verifyDocument(doc *layering.Document) error {
	version, ok := doc.Int("version")
	if !ok {
		return fmt.Errorf("%w: missing required property 'version'", ErrInvalidDefinition)
	}
	if !doc.Has("name") {
		return fmt.Errorf("%w: missing required property 'name'", ErrInvalidDefinition)
	}
	if version != DefinitionVersion {
		return fmt.Errorf("%w: definition uses version %d but expected %d", ErrIncorrectVersion, version, DefinitionVersion)
	}
	return nil
}

// resolveInheritance loads the named base document, recursively resolving its
// own inheritance first so the base-most document forms the merge root.
func (c *DefinitionContainer) resolveInheritance(name string) (*layering.Document, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("%w: document inherits %q but no resource loader is configured", ErrInvalidDefinition, name)
	}
	raw, err := c.loader(name)
	if err != nil {
		return nil, fmt.Errorf("%w: load inherited document %q: %v", ErrInvalidDefinition, name, err)
	}
	doc, err := layering.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: inherited document %q: %v", ErrInvalidDefinition, name, err)
	}
	if err := c.verifyDocument(doc); err != nil {
		return nil, err
	}
	if base, ok := doc.String("inherits"); ok {
		inherited, err := c.resolveInheritance(base)
		if err != nil {
			return nil, err
		}
		doc = layering.Merge(inherited, doc)
	}
	return doc, nil
}

// findSettingDocument locates the sub-document for an override key. Only the
// top nesting level reached during the initial descent is searched; deeper
// matches are not threaded back. This mirrors the historical override
// behavior and is pinned by tests until the contract is widened.
func findSettingDocument(doc *layering.Document, key string) *layering.Document {
	if target, ok := doc.Document(key); ok {
		return target
	}
	for _, docKey := range doc.Keys() {
		if nested, ok := doc.Document(docKey); ok {
			findSettingDocument(nested, key)
		}
	}
	return nil
}

// updateRelations records paired relation edges for every expression-valued
// property of definition and its descendants.
func (c *DefinitionContainer) updateRelations(definition *SettingDefinition) {
	for _, property := range c.properties.Names(PropertyKindFunction) {
		value, ok := definition.Property(property)
		if !ok {
			continue
		}
		expression, ok := value.(Expression)
		if !ok {
			continue
		}
		for _, key := range expression.UsedKeys() {
			targets := c.FindDefinitions(map[string]any{"key": key})
			if len(targets) == 0 {
				c.logger.Warn("expression references unknown setting",
					"setting", definition.Key(), "property", property, "reference", key)
				continue
			}
			target := targets[0]
			definition.relations = append(definition.relations,
				NewRelation(definition, target, RelationRequiresTarget, property))
			target.relations = append(target.relations,
				NewRelation(target, definition, RelationRequiredByTarget, property))
		}
	}

	for _, child := range definition.Children() {
		c.updateRelations(child)
	}
}

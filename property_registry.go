package settings

// PropertyKind describes how the raw value of a definition property is
// interpreted during deserialization.
type PropertyKind int

const (
	// PropertyKindAny stores the raw value unchanged.
	PropertyKindAny PropertyKind = iota + 1
	// PropertyKindString stores the value converted to a string.
	PropertyKindString
	// PropertyKindTranslatedString stores the value converted to a string
	// and passed through the attached translation catalog, when present.
	PropertyKindTranslatedString
	// PropertyKindFunction compiles the value as a setting expression.
	PropertyKindFunction
)

// PropertyDefinition describes a single supported definition property.
type PropertyDefinition struct {
	Kind     PropertyKind
	Required bool
	ReadOnly bool
}

// PropertyOption configures a property registration.
type PropertyOption func(*PropertyDefinition)

// PropertyRequired marks the property as mandatory during deserialization.
func PropertyRequired() PropertyOption {
	return func(def *PropertyDefinition) {
		def.Required = true
	}
}

// PropertyReadOnly marks the property as not settable on instance containers.
func PropertyReadOnly() PropertyOption {
	return func(def *PropertyDefinition) {
		def.ReadOnly = true
	}
}

// PropertyRegistry is the table of supported definition properties. It must
// be fully populated before any definition using its entries is deserialized;
// registries are read-only from that point on. There is no entry removal.
type PropertyRegistry struct {
	order   []string
	entries map[string]PropertyDefinition
}

// NewPropertyRegistry constructs an empty property registry.
func NewPropertyRegistry() *PropertyRegistry {
	return &PropertyRegistry{entries: map[string]PropertyDefinition{}}
}

// Add registers name with the given kind. Re-registration overwrites the
// existing entry and keeps the original position.
func (r *PropertyRegistry) Add(name string, kind PropertyKind, opts ...PropertyOption) {
	def := PropertyDefinition{Kind: kind}
	for _, opt := range opts {
		if opt != nil {
			opt(&def)
		}
	}
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = def
}

// Has reports whether name is a supported property.
func (r *PropertyRegistry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Definition returns the registered entry for name.
func (r *PropertyRegistry) Definition(name string) (PropertyDefinition, bool) {
	def, ok := r.entries[name]
	return def, ok
}

// IsRequired reports whether name is registered and flagged required.
func (r *PropertyRegistry) IsRequired(name string) bool {
	return r.entries[name].Required
}

// IsReadOnly reports whether name is registered and flagged read-only.
func (r *PropertyRegistry) IsReadOnly(name string) bool {
	return r.entries[name].ReadOnly
}

// Names returns the names of properties of the given kind in registration
// order. Kind zero selects all properties.
func (r *PropertyRegistry) Names(kind PropertyKind) []string {
	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if kind == 0 || r.entries[name].Kind == kind {
			names = append(names, name)
		}
	}
	return names
}

// DefaultPropertyRegistry returns a registry pre-populated with the standard
// setting properties.
func DefaultPropertyRegistry() *PropertyRegistry {
	r := NewPropertyRegistry()
	// Display name of the setting.
	r.Add("label", PropertyKindTranslatedString, PropertyRequired(), PropertyReadOnly())
	// The value type; must name a registered setting type.
	r.Add("type", PropertyKindString, PropertyRequired(), PropertyReadOnly())
	r.Add("icon", PropertyKindString, PropertyReadOnly())
	// Display unit, not used for computation.
	r.Add("unit", PropertyKindString, PropertyReadOnly())
	r.Add("description", PropertyKindTranslatedString, PropertyRequired(), PropertyReadOnly())
	r.Add("warning_description", PropertyKindTranslatedString, PropertyReadOnly())
	r.Add("error_description", PropertyKindTranslatedString, PropertyReadOnly())
	// Fallback value when no value expression is defined.
	r.Add("default_value", PropertyKindAny, PropertyReadOnly())
	// Expression computing the effective value.
	r.Add("value", PropertyKindFunction)
	// Expression deciding whether the setting is enabled.
	r.Add("enabled", PropertyKindFunction)
	r.Add("minimum_value", PropertyKindFunction)
	r.Add("maximum_value", PropertyKindFunction)
	r.Add("minimum_value_warning", PropertyKindFunction)
	r.Add("maximum_value_warning", PropertyKindFunction)
	// Option mapping for enum settings: value -> display string.
	r.Add("options", PropertyKindAny, PropertyReadOnly())
	r.Add("comments", PropertyKindString, PropertyReadOnly())
	return r
}

package settings

// Version numbers for the serialized formats. A document or stack whose
// version differs from these fails deserialization with ErrIncorrectVersion.
const (
	// DefinitionVersion is the expected version of definition documents.
	DefinitionVersion = 2
	// StackVersion is the expected version of serialized container stacks.
	StackVersion = 2
)

// Container is the shared capability interface between setting container
// types: definition containers, instance containers and container stacks.
type Container interface {
	// ID returns the unique, machine readable identifier of the container.
	ID() string
	// Name returns the human-readable name of the container.
	Name() string
	// Metadata returns all metadata of the container.
	Metadata() map[string]string
	// MetadataEntry returns the value of a single metadata entry.
	MetadataEntry(key string) (string, bool)
	// Value resolves the effective value for a setting key. The boolean
	// reports whether the container defines a value for the key at all.
	Value(key string) (any, bool)
	// Property returns the value of a single property of a setting.
	Property(key, name string) (any, bool)
	// Serialize renders the container to its string representation.
	Serialize() (string, error)
	// Deserialize replaces the contents of the container with the
	// serialized representation.
	Deserialize(serialized string) error
}

// ContainerSource looks containers up by criteria. Criteria entries match the
// container id ("id"), name ("name") or a metadata entry; a container missing
// a criterion key is disqualified.
type ContainerSource interface {
	FindDefinitionContainers(criteria map[string]string) []*DefinitionContainer
	FindInstanceContainers(criteria map[string]string) []*InstanceContainer
	FindContainerStacks(criteria map[string]string) []*ContainerStack
}

// Catalog translates a source string into its localized form. A nil Catalog
// leaves translated-string properties untouched.
type Catalog func(source string) string

// ResourceLoader resolves the name referenced by a definition document's
// "inherits" key to the raw text of the base document.
type ResourceLoader func(name string) (string, error)

// Resolver resolves a setting key to its current effective value. It is the
// evaluation context handed to compiled expressions; a container stack is the
// usual implementation.
type Resolver interface {
	Resolve(key string) (value any, ok bool)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(key string) (any, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(key string) (any, bool) {
	if f == nil {
		return nil, false
	}
	return f(key)
}

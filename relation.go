package settings

// RelationKind describes the direction of a relation edge between two
// setting definitions.
type RelationKind int

const (
	// RelationRequiresTarget marks the owner as depending on the target:
	// one of the owner's expressions references the target's key.
	RelationRequiresTarget RelationKind = iota + 1
	// RelationRequiredByTarget is the mirrored edge on the referenced
	// definition.
	RelationRequiredByTarget
)

func (k RelationKind) String() string {
	switch k {
	case RelationRequiresTarget:
		return "requires"
	case RelationRequiredByTarget:
		return "required-by"
	default:
		return "unknown"
	}
}

// Relation is a directed edge recording that one setting's expression-valued
// property references another setting. Relations are created in matched pairs
// during definition container loading and never mutated afterwards; both
// endpoints hold the edge in their relation lists for the container lifetime.
type Relation struct {
	owner    *SettingDefinition
	target   *SettingDefinition
	kind     RelationKind
	property string
}

// NewRelation constructs a relation edge.
func NewRelation(owner, target *SettingDefinition, kind RelationKind, property string) *Relation {
	return &Relation{owner: owner, target: target, kind: kind, property: property}
}

// Owner returns the definition the edge is recorded on.
func (r *Relation) Owner() *SettingDefinition {
	return r.owner
}

// Target returns the definition at the far end of the edge.
func (r *Relation) Target() *SettingDefinition {
	return r.target
}

// Kind returns the edge direction.
func (r *Relation) Kind() RelationKind {
	return r.kind
}

// Property returns the property name whose expression created the edge.
func (r *Relation) Property() string {
	return r.property
}

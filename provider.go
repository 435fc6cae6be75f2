package settings

import (
	"fmt"
	"log/slog"
	"slices"
)

// ProviderOption configures a SettingPropertyProvider.
type ProviderOption func(*SettingPropertyProvider)

// ProviderWithLogger sets the logger used for provider warnings.
func ProviderWithLogger(logger *slog.Logger) ProviderOption {
	return func(p *SettingPropertyProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// ProviderWithTypeRegistry sets the type registry used to stringify values.
func ProviderWithTypeRegistry(registry *TypeRegistry) ProviderOption {
	return func(p *SettingPropertyProvider) {
		if registry != nil {
			p.types = registry
		}
	}
}

// SettingPropertyProvider is a reactive cache over one (stack, key) pair: it
// tracks a configurable set of watched properties, exposes their current
// values as strings and recomputes them when the stack reports a relevant
// change. Runtime anomalies (unwatched writes, out-of-range levels) are
// logged and swallowed so the view stays live under transient inconsistency.
type SettingPropertyProvider struct {
	registry ContainerSource
	logger   *slog.Logger
	types    *TypeRegistry

	stackID    string
	stack      *ContainerStack
	key        string
	watched    []string
	storeIndex int

	values      map[string]string
	stackLevels []int
	relations   map[string]struct{}
	valueUsed   *bool

	propertyToken   Subscription
	containersToken Subscription

	propertiesChanged  signal[struct{}]
	stackLevelsChanged signal[struct{}]
	valueUsedChanged   signal[struct{}]
}

// NewSettingPropertyProvider constructs a provider resolving stack ids
// through registry.
func NewSettingPropertyProvider(registry ContainerSource, opts ...ProviderOption) *SettingPropertyProvider {
	p := &SettingPropertyProvider{
		registry:  registry,
		values:    map[string]string{},
		relations: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.types == nil {
		p.types = DefaultTypeRegistry()
	}
	return p
}

// StackID returns the id of the stack the provider is bound to.
func (p *SettingPropertyProvider) StackID() string {
	return p.stackID
}

// Stack returns the resolved stack, nil when unbound.
func (p *SettingPropertyProvider) Stack() *ContainerStack {
	return p.stack
}

// SetStackID rebinds the provider to another stack. The old stack's
// subscriptions are released before the new ones are taken.
func (p *SettingPropertyProvider) SetStackID(stackID string) {
	if stackID == p.stackID {
		return
	}
	p.stackID = stackID

	if p.stack != nil {
		p.stack.UnsubscribePropertyChanged(p.propertyToken)
		p.stack.UnsubscribeContainersChanged(p.containersToken)
		p.stack = nil
	}

	if stackID != "" && p.registry != nil {
		if stacks := p.registry.FindContainerStacks(map[string]string{"id": stackID}); len(stacks) > 0 {
			p.stack = stacks[0]
		}
	}
	if p.stack != nil {
		p.propertyToken = p.stack.SubscribePropertyChanged(p.onPropertyChanged)
		p.containersToken = p.stack.SubscribeContainersChanged(p.update)
	}

	p.update()
}

// Key returns the setting key the provider watches.
func (p *SettingPropertyProvider) Key() string {
	return p.key
}

// SetKey changes the watched setting key.
func (p *SettingPropertyProvider) SetKey(key string) {
	if key == p.key {
		return
	}
	p.key = key
	p.update()
}

// WatchedProperties returns the property names currently watched.
func (p *SettingPropertyProvider) WatchedProperties() []string {
	return slices.Clone(p.watched)
}

// SetWatchedProperties changes the set of watched property names.
func (p *SettingPropertyProvider) SetWatchedProperties(properties []string) {
	if slices.Equal(properties, p.watched) {
		return
	}
	p.watched = slices.Clone(properties)
	p.update()
}

// StoreIndex returns the stack level writes target.
func (p *SettingPropertyProvider) StoreIndex() int {
	return p.storeIndex
}

// SetStoreIndex changes the stack level writes target.
func (p *SettingPropertyProvider) SetStoreIndex(index int) {
	p.storeIndex = index
}

// Properties returns the cached values of all watched properties. Every
// value is the canonical string form; absent properties map to "".
func (p *SettingPropertyProvider) Properties() map[string]string {
	out := make(map[string]string, len(p.values))
	for name, value := range p.values {
		out[name] = value
	}
	return out
}

// StackLevels returns the container indices at which the setting's "value"
// property currently resolves, in ascending priority order.
func (p *SettingPropertyProvider) StackLevels() []int {
	return slices.Clone(p.stackLevels)
}

// SetPropertyValue writes a property into the container at the store index.
// The write is rejected with a warning when the property is not watched,
// the value is unchanged, or the targeted layer is read-only.
func (p *SettingPropertyProvider) SetPropertyValue(name string, value any) {
	if p.stack == nil || p.key == "" {
		return
	}
	if !slices.Contains(p.watched, name) {
		p.logger.Warn("tried to set a property that is not being watched", "property", name, "setting", p.key)
		return
	}
	if p.values[name] == fmt.Sprint(value) {
		return
	}
	container, err := p.stack.GetContainer(p.storeIndex)
	if err != nil {
		p.logger.Warn("store index does not address a container", "index", p.storeIndex, "setting", p.key)
		return
	}
	if _, ok := container.(*DefinitionContainer); ok {
		p.logger.Warn("store index addresses a read-only definition layer", "index", p.storeIndex, "setting", p.key)
		return
	}
	instance, ok := container.(*InstanceContainer)
	if !ok {
		p.logger.Warn("store index does not address a writable container", "index", p.storeIndex, "setting", p.key)
		return
	}
	instance.SetProperty(p.key, name, value)
}

// PropertyValue reads one property at one specific stack level, bypassing
// the layered lookup. An out-of-range level logs a warning and reports
// absent.
func (p *SettingPropertyProvider) PropertyValue(name string, level int) (any, bool) {
	if p.stack == nil {
		return nil, false
	}
	container, err := p.stack.GetContainer(level)
	if err != nil {
		p.logger.Warn("requested stack level does not exist", "property", name, "setting", p.key, "level", level)
		return nil, false
	}
	return container.Property(p.key, name)
}

// RemoveFromContainer drops the setting's stored values from the instance
// container at index, reverting the setting at that layer.
func (p *SettingPropertyProvider) RemoveFromContainer(index int) {
	if p.stack == nil {
		return
	}
	container, err := p.stack.GetContainer(index)
	if err != nil {
		p.logger.Warn("no container to remove the instance from", "index", index, "setting", p.key)
		return
	}
	instance, ok := container.(*InstanceContainer)
	if !ok {
		p.logger.Warn("container is not an instance container", "index", index, "setting", p.key)
		return
	}
	instance.RemoveInstance(p.key)
}

// IsValueUsed reports whether anything still depends on this setting: true
// when no other setting references it, or when at least one dependent is not
// user-overridden. The result is cached until a relevant change arrives.
func (p *SettingPropertyProvider) IsValueUsed() bool {
	if p.valueUsed != nil {
		return *p.valueUsed
	}
	if p.stack == nil {
		return false
	}

	used := true
	if len(p.relations) > 0 {
		activeCount := 0
		for key := range p.relations {
			state, ok := p.stack.Property(key, "state")
			if !ok || state != InstanceStateUser {
				activeCount++
			}
		}
		used = activeCount != 0
	}
	p.valueUsed = &used
	return used
}

// SubscribePropertiesChanged registers a listener invoked after any watched
// property value changes.
func (p *SettingPropertyProvider) SubscribePropertiesChanged(fn func()) Subscription {
	return p.propertiesChanged.subscribe(func(struct{}) { fn() })
}

// SubscribeStackLevelsChanged registers a listener for stack level changes.
func (p *SettingPropertyProvider) SubscribeStackLevelsChanged(fn func()) Subscription {
	return p.stackLevelsChanged.subscribe(func(struct{}) { fn() })
}

// SubscribeIsValueUsedChanged registers a listener invoked when the cached
// IsValueUsed flag is invalidated.
func (p *SettingPropertyProvider) SubscribeIsValueUsedChanged(fn func()) Subscription {
	return p.valueUsedChanged.subscribe(func(struct{}) { fn() })
}

// onPropertyChanged handles an upstream change report. Changes to other keys
// only matter when the key is in the relation set, where they invalidate the
// cached IsValueUsed flag; changes to this key re-derive the one property
// and the stack levels.
func (p *SettingPropertyProvider) onPropertyChanged(event PropertyEvent) {
	if event.Key != p.key {
		if _, ok := p.relations[event.Key]; ok {
			p.valueUsed = nil
			p.valueUsedChanged.emit(struct{}{})
		}
		return
	}

	if !slices.Contains(p.watched, event.Property) {
		return
	}

	value := p.resolveProperty(event.Property)
	if p.values[event.Property] != value {
		p.values[event.Property] = value
		p.propertiesChanged.emit(struct{}{})
	}
	p.updateStackLevels()
}

// update recomputes everything derived: stack levels, the relation set and
// all watched property values.
func (p *SettingPropertyProvider) update() {
	if p.stack == nil || len(p.watched) == 0 || p.key == "" {
		return
	}

	p.updateStackLevels()

	p.relations = map[string]struct{}{}
	if definition := p.stack.SettingDefinition(p.key); definition != nil {
		for _, relation := range definition.Relations() {
			if relation.Kind() == RelationRequiredByTarget && relation.Property() == "value" {
				p.relations[relation.Target().Key()] = struct{}{}
			}
		}
	}

	values := make(map[string]string, len(p.watched))
	for _, name := range p.watched {
		values[name] = p.resolveProperty(name)
	}
	if !mapsEqual(values, p.values) {
		p.values = values
		p.propertiesChanged.emit(struct{}{})
	}
}

func (p *SettingPropertyProvider) updateStackLevels() {
	var levels []int
	for index, container := range p.stack.Containers() {
		if _, ok := container.Property(p.key, "value"); ok {
			levels = append(levels, index)
		}
	}
	if !slices.Equal(levels, p.stackLevels) {
		p.stackLevels = levels
		p.stackLevelsChanged.emit(struct{}{})
	}
}

// resolveProperty computes the current string form of one property: layered
// lookup, expression evaluation against the stack, and for "value" the
// conversion through the setting's declared type.
func (p *SettingPropertyProvider) resolveProperty(name string) string {
	value, ok := p.stack.Property(p.key, name)
	if !ok && name == "value" {
		// Settings without a value expression resolve through the layered
		// value lookup, ending at the definition's default.
		value, ok = p.stack.Value(p.key)
	}
	if !ok {
		return ""
	}

	if expression, isExpr := value.(Expression); isExpr {
		evaluated, err := expression.Evaluate(p.stack)
		if err != nil {
			p.logger.Warn("expression evaluation failed", "setting", p.key, "property", name, "error", err)
			return ""
		}
		value = evaluated
	}

	if name == "value" {
		typeName, ok := p.stack.Property(p.key, "type")
		if ok {
			converted, err := p.types.ValueToString(fmt.Sprint(typeName), value)
			if err == nil {
				return converted
			}
			p.logger.Warn("value conversion failed", "setting", p.key, "type", typeName, "error", err)
		}
	}

	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		if other, ok := b[key]; !ok || other != value {
			return false
		}
	}
	return true
}

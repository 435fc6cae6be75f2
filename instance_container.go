package settings

import (
	"fmt"
	"log/slog"
	"strconv"

	"gopkg.in/ini.v1"
)

// InstanceState is the value of the "state" property an instance container
// records for a setting once a user-supplied value lands on it.
const InstanceStateUser = "user"

// InstanceContainerOption configures an instance container.
type InstanceContainerOption func(*InstanceContainer)

// WithInstanceLogger sets the logger used for warnings.
func WithInstanceLogger(logger *slog.Logger) InstanceContainerOption {
	return func(c *InstanceContainer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// InstanceContainer holds user-supplied overriding property values for
// settings. It is the writable layer of a stack: providers write into it and
// it reports every change to its subscribers.
type InstanceContainer struct {
	id       string
	name     string
	metadata map[string]string
	// values maps setting key -> property name -> value.
	values map[string]map[string]any
	order  []string

	propertyChanged signal[PropertyEvent]
	logger          *slog.Logger
}

// NewInstanceContainer constructs an empty instance container.
func NewInstanceContainer(id string, opts ...InstanceContainerOption) *InstanceContainer {
	c := &InstanceContainer{
		id:       id,
		name:     id,
		metadata: map[string]string{},
		values:   map[string]map[string]any{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ID implements Container.
func (c *InstanceContainer) ID() string {
	return c.id
}

// Name implements Container.
func (c *InstanceContainer) Name() string {
	return c.name
}

// SetName renames the container.
func (c *InstanceContainer) SetName(name string) {
	c.name = name
}

// Metadata implements Container.
func (c *InstanceContainer) Metadata() map[string]string {
	return c.metadata
}

// MetadataEntry implements Container.
func (c *InstanceContainer) MetadataEntry(key string) (string, bool) {
	value, ok := c.metadata[key]
	return value, ok
}

// SetMetadataEntry stores a metadata entry.
func (c *InstanceContainer) SetMetadataEntry(key, value string) {
	c.metadata[key] = value
}

// Value implements Container.
func (c *InstanceContainer) Value(key string) (any, bool) {
	return c.Property(key, "value")
}

// Property implements Container.
func (c *InstanceContainer) Property(key, name string) (any, bool) {
	properties, ok := c.values[key]
	if !ok {
		return nil, false
	}
	value, ok := properties[name]
	return value, ok
}

// SetProperty stores a property value for a setting and notifies
// subscribers. Storing a value marks the setting as user-overridden via its
// "state" property.
func (c *InstanceContainer) SetProperty(key, name string, value any) {
	properties, ok := c.values[key]
	if !ok {
		properties = map[string]any{}
		c.values[key] = properties
		c.order = append(c.order, key)
	}
	properties[name] = value
	if name == "value" {
		properties["state"] = InstanceStateUser
	}
	c.propertyChanged.emit(PropertyEvent{Key: key, Property: name})
}

// RemoveInstance drops every stored property for a setting key, reverting the
// setting to whatever the lower layers resolve.
func (c *InstanceContainer) RemoveInstance(key string) {
	if _, ok := c.values[key]; !ok {
		c.logger.Warn("no instance to remove for setting", "setting", key, "container", c.id)
		return
	}
	delete(c.values, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.propertyChanged.emit(PropertyEvent{Key: key, Property: "value"})
}

// Keys returns the setting keys with stored values, in insertion order.
func (c *InstanceContainer) Keys() []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// SubscribePropertyChanged implements PropertyNotifier.
func (c *InstanceContainer) SubscribePropertyChanged(fn func(PropertyEvent)) Subscription {
	return c.propertyChanged.subscribe(fn)
}

// UnsubscribePropertyChanged implements PropertyNotifier.
func (c *InstanceContainer) UnsubscribePropertyChanged(token Subscription) {
	c.propertyChanged.unsubscribe(token)
}

// Serialize implements Container. Only the "value" property of each setting
// is persisted; computed state is rebuilt on load.
func (c *InstanceContainer) Serialize() (string, error) {
	file := ini.Empty()

	general, err := file.NewSection("general")
	if err != nil {
		return "", err
	}
	general.Key("version").SetValue(strconv.Itoa(StackVersion))
	general.Key("name").SetValue(c.name)
	general.Key("id").SetValue(c.id)

	if len(c.metadata) > 0 {
		section, err := file.NewSection("metadata")
		if err != nil {
			return "", err
		}
		for key, value := range c.metadata {
			section.Key(key).SetValue(value)
		}
	}

	section, err := file.NewSection("values")
	if err != nil {
		return "", err
	}
	for _, key := range c.order {
		if value, ok := c.values[key]["value"]; ok {
			section.Key(key).SetValue(fmt.Sprint(value))
		}
	}

	return writeINI(file)
}

// Deserialize implements Container. Values load as strings; conversion to
// typed values happens when a provider resolves them against the setting's
// declared type.
func (c *InstanceContainer) Deserialize(serialized string) error {
	file, err := ini.Load([]byte(serialized))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContainerStack, err)
	}

	general, err := file.GetSection("general")
	if err != nil || !general.HasKey("version") || !general.HasKey("name") || !general.HasKey("id") {
		return fmt.Errorf("%w: missing required section 'general' or one of its keys", ErrInvalidContainerStack)
	}
	version, err := general.Key("version").Int()
	if err != nil || version != StackVersion {
		return ErrIncorrectVersion
	}

	c.name = general.Key("name").String()
	c.id = general.Key("id").String()

	if section, err := file.GetSection("metadata"); err == nil {
		c.metadata = section.KeysHash()
	}

	c.values = map[string]map[string]any{}
	c.order = nil
	if section, err := file.GetSection("values"); err == nil {
		for _, key := range section.Keys() {
			c.values[key.Name()] = map[string]any{
				"value": key.String(),
				"state": InstanceStateUser,
			}
			c.order = append(c.order, key.Name())
		}
	}

	return nil
}

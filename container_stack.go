package settings

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// ContainerStackOption configures a container stack.
type ContainerStackOption func(*ContainerStack)

// WithStackRegistry sets the registry used to resolve container ids during
// deserialization.
func WithStackRegistry(registry ContainerSource) ContainerStackOption {
	return func(s *ContainerStack) {
		s.registry = registry
	}
}

// WithStackLogger sets the logger used for warnings.
func WithStackLogger(logger *slog.Logger) ContainerStackOption {
	return func(s *ContainerStack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ContainerStack is an ordered list of containers implementing layered value
// lookup: index 0 is the topmost, highest-priority layer. When no container
// in the stack answers, lookup defers to the optional next stack.
//
// The container list is exclusively owned by the stack, but the container
// objects themselves are shared by reference; one container may legitimately
// sit in several stacks at once. Callers must not mutate a shared container
// concurrently with iteration. All operations are synchronous and
// single-threaded.
type ContainerStack struct {
	id       string
	name     string
	metadata map[string]string

	containers []Container
	// forwards holds the property-change forwarding token per container
	// slot, empty for containers that do not notify.
	forwards []Subscription
	next     *ContainerStack

	nameChanged       signal[string]
	containersChanged signal[struct{}]
	propertyChanged   signal[PropertyEvent]

	registry ContainerSource
	logger   *slog.Logger
}

// NewContainerStack constructs an empty stack.
func NewContainerStack(id string, opts ...ContainerStackOption) *ContainerStack {
	s := &ContainerStack{
		id:       id,
		name:     id,
		metadata: map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ID implements Container.
func (s *ContainerStack) ID() string {
	return s.id
}

// Name implements Container.
func (s *ContainerStack) Name() string {
	return s.name
}

// SetName renames the stack, notifying subscribers only when the name
// actually changes.
func (s *ContainerStack) SetName(name string) {
	if name == s.name {
		return
	}
	s.name = name
	s.nameChanged.emit(name)
}

// Metadata implements Container.
func (s *ContainerStack) Metadata() map[string]string {
	return s.metadata
}

// MetadataEntry implements Container.
func (s *ContainerStack) MetadataEntry(key string) (string, bool) {
	value, ok := s.metadata[key]
	return value, ok
}

// SetMetadataEntry stores a metadata entry.
func (s *ContainerStack) SetMetadataEntry(key, value string) {
	s.metadata[key] = value
}

// Value implements Container. Lookup starts at the top of the stack and
// returns the first value found; when no container answers and a next stack
// is linked, the lookup continues there.
func (s *ContainerStack) Value(key string) (any, bool) {
	for _, container := range s.containers {
		if value, ok := container.Value(key); ok {
			return value, true
		}
	}
	if s.next != nil {
		return s.next.Value(key)
	}
	return nil, false
}

// Resolve implements Resolver, so a stack can serve directly as an
// expression evaluation context.
func (s *ContainerStack) Resolve(key string) (any, bool) {
	return s.Value(key)
}

// Property implements Container, with the same layering as Value.
func (s *ContainerStack) Property(key, name string) (any, bool) {
	for _, container := range s.containers {
		if value, ok := container.Property(key, name); ok {
			return value, true
		}
	}
	if s.next != nil {
		return s.next.Property(key, name)
	}
	return nil, false
}

// SettingDefinition returns the definition for key from the first definition
// container that knows it, searching nested stacks and the next stack.
func (s *ContainerStack) SettingDefinition(key string) *SettingDefinition {
	for _, container := range s.containers {
		switch c := container.(type) {
		case *DefinitionContainer:
			if definitions := c.FindDefinitions(map[string]any{"key": key}); len(definitions) > 0 {
				return definitions[0]
			}
		case *ContainerStack:
			if definition := c.SettingDefinition(key); definition != nil {
				return definition
			}
		}
	}
	if s.next != nil {
		return s.next.SettingDefinition(key)
	}
	return nil
}

// Containers returns the container list, topmost first.
func (s *ContainerStack) Containers() []Container {
	return s.containers
}

// GetContainer returns the container at index. The sentinel index -1 and any
// out-of-range index fail with ErrInvalidIndex.
func (s *ContainerStack) GetContainer(index int) (Container, error) {
	if index < 0 || index >= len(s.containers) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return s.containers[index], nil
}

// ContainerIndex returns the index of container in the stack, -1 when
// absent.
func (s *ContainerStack) ContainerIndex(container Container) int {
	for i, c := range s.containers {
		if c == container {
			return i
		}
	}
	return -1
}

// FindContainer returns the first container whose metadata matches every
// criteria pair exactly. A container missing a criterion key is
// disqualified.
func (s *ContainerStack) FindContainer(criteria map[string]string) Container {
	for _, container := range s.containers {
		metadata := container.Metadata()
		match := true
		for key, want := range criteria {
			got, ok := metadata[key]
			if !ok || got != want {
				match = false
				break
			}
		}
		if match {
			return container
		}
	}
	return nil
}

// AddContainer prepends container, making it the first layer consulted.
// Adding the stack to itself fails with ErrSelfReference.
func (s *ContainerStack) AddContainer(container Container) error {
	if container == Container(s) {
		return ErrSelfReference
	}
	s.containers = append([]Container{container}, s.containers...)
	s.forwards = append([]Subscription{s.attach(container)}, s.forwards...)
	s.containersChanged.emit(struct{}{})
	return nil
}

// ReplaceContainer swaps the container at index. Invalid indices fail with
// ErrInvalidIndex, replacing with the stack itself with ErrSelfReference; no
// mutation happens on failure.
func (s *ContainerStack) ReplaceContainer(index int, container Container) error {
	if index < 0 || index >= len(s.containers) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if container == Container(s) {
		return ErrSelfReference
	}
	s.detach(index)
	s.containers[index] = container
	s.forwards[index] = s.attach(container)
	s.containersChanged.emit(struct{}{})
	return nil
}

// RemoveContainer removes the container at index, failing with
// ErrInvalidIndex when the index is out of range.
func (s *ContainerStack) RemoveContainer(index int) error {
	if index < 0 || index >= len(s.containers) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	s.detach(index)
	s.containers = append(s.containers[:index], s.containers[index+1:]...)
	s.forwards = append(s.forwards[:index], s.forwards[index+1:]...)
	s.containersChanged.emit(struct{}{})
	return nil
}

// NextStack returns the fallback stack, nil when unset.
func (s *ContainerStack) NextStack() *ContainerStack {
	return s.next
}

// SetNextStack links the fallback stack consulted when this stack has no
// value. The chain is not checked for cycles; linking stacks into a loop
// makes lookups recurse forever.
func (s *ContainerStack) SetNextStack(next *ContainerStack) {
	s.next = next
}

// SubscribeNameChanged registers a listener for name changes.
func (s *ContainerStack) SubscribeNameChanged(fn func(string)) Subscription {
	return s.nameChanged.subscribe(fn)
}

// UnsubscribeNameChanged removes a name listener.
func (s *ContainerStack) UnsubscribeNameChanged(token Subscription) {
	s.nameChanged.unsubscribe(token)
}

// SubscribeContainersChanged registers a listener invoked after every
// mutation of the container list.
func (s *ContainerStack) SubscribeContainersChanged(fn func()) Subscription {
	return s.containersChanged.subscribe(func(struct{}) { fn() })
}

// UnsubscribeContainersChanged removes a containers listener.
func (s *ContainerStack) UnsubscribeContainersChanged(token Subscription) {
	s.containersChanged.unsubscribe(token)
}

// SubscribePropertyChanged implements PropertyNotifier. The stack re-emits
// property changes of every notifying container it holds.
func (s *ContainerStack) SubscribePropertyChanged(fn func(PropertyEvent)) Subscription {
	return s.propertyChanged.subscribe(fn)
}

// UnsubscribePropertyChanged implements PropertyNotifier.
func (s *ContainerStack) UnsubscribePropertyChanged(token Subscription) {
	s.propertyChanged.unsubscribe(token)
}

func (s *ContainerStack) attach(container Container) Subscription {
	notifier, ok := container.(PropertyNotifier)
	if !ok {
		return ""
	}
	return notifier.SubscribePropertyChanged(func(event PropertyEvent) {
		s.propertyChanged.emit(event)
	})
}

func (s *ContainerStack) detach(index int) {
	token := s.forwards[index]
	if token == "" {
		return
	}
	if notifier, ok := s.containers[index].(PropertyNotifier); ok {
		notifier.UnsubscribePropertyChanged(token)
	}
}

// Serialize implements Container. Contained containers are referenced by id
// only; their own contents serialize separately.
func (s *ContainerStack) Serialize() (string, error) {
	file := ini.Empty()

	general, err := file.NewSection("general")
	if err != nil {
		return "", err
	}
	general.Key("version").SetValue(strconv.Itoa(StackVersion))
	general.Key("name").SetValue(s.name)
	general.Key("id").SetValue(s.id)

	var ids strings.Builder
	for _, container := range s.containers {
		ids.WriteString(container.ID())
		ids.WriteString(",")
	}
	general.Key("containers").SetValue(ids.String())

	if len(s.metadata) > 0 {
		section, err := file.NewSection("metadata")
		if err != nil {
			return "", err
		}
		for key, value := range s.metadata {
			section.Key(key).SetValue(value)
		}
	}

	return writeINI(file)
}

// Deserialize implements Container. Container ids resolve through the
// registry, probing definition containers first, then instance containers,
// then stacks; an id matching none fails the whole deserialize.
func (s *ContainerStack) Deserialize(serialized string) error {
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

	name := general.Key("name").String()
	id := general.Key("id").String()

	metadata := map[string]string{}
	if section, err := file.GetSection("metadata"); err == nil {
		metadata = section.KeysHash()
	}

	var containers []Container
	for _, containerID := range strings.Split(general.Key("containers").String(), ",") {
		if containerID == "" {
			continue
		}
		container, err := s.resolveContainer(containerID)
		if err != nil {
			return err
		}
		containers = append(containers, container)
	}

	for index := range s.containers {
		s.detach(index)
	}
	s.name = name
	s.id = id
	s.metadata = metadata
	s.containers = nil
	s.forwards = nil
	for _, container := range containers {
		s.containers = append(s.containers, container)
		s.forwards = append(s.forwards, s.attach(container))
	}
	return nil
}

func (s *ContainerStack) resolveContainer(id string) (Container, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: %q (no registry configured)", ErrUnknownContainer, id)
	}
	criteria := map[string]string{"id": id}
	if found := s.registry.FindDefinitionContainers(criteria); len(found) > 0 {
		return found[0], nil
	}
	if found := s.registry.FindInstanceContainers(criteria); len(found) > 0 {
		return found[0], nil
	}
	if found := s.registry.FindContainerStacks(criteria); len(found) > 0 {
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, id)
}

func writeINI(file *ini.File) (string, error) {
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

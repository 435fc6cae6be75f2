package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMachineStack(t *testing.T) (*ContainerStack, *InstanceContainer, *DefinitionContainer) {
	t.Helper()
	definition := newMachineDefinition(t, "test_printer")
	user := NewInstanceContainer("user_settings")
	stack := NewContainerStack("machine_stack")
	require.NoError(t, stack.AddContainer(definition))
	require.NoError(t, stack.AddContainer(user))
	return stack, user, definition
}

func TestContainerStackLayeredLookup(t *testing.T) {
	stack, user, _ := newMachineStack(t)

	// No override yet: the definition's default answers.
	value, ok := stack.Value("layer_height")
	require.True(t, ok)
	require.Equal(t, 0.1, value)

	user.SetProperty("layer_height", "value", 0.25)
	value, ok = stack.Value("layer_height")
	require.True(t, ok)
	require.Equal(t, 0.25, value)

	_, ok = stack.Value("retraction_speed")
	require.False(t, ok)

	unit, ok := stack.Property("layer_height", "unit")
	require.True(t, ok)
	require.Equal(t, "mm", unit)
}

func TestContainerStackAddContainerPrepends(t *testing.T) {
	stack, user, definition := newMachineStack(t)

	first, err := stack.GetContainer(0)
	require.NoError(t, err)
	require.Same(t, Container(user), first)
	require.Equal(t, 0, stack.ContainerIndex(user))
	require.Equal(t, 1, stack.ContainerIndex(definition))
	require.Equal(t, -1, stack.ContainerIndex(NewInstanceContainer("stranger")))
}

func TestContainerStackRejectsSelfReference(t *testing.T) {
	stack := NewContainerStack("loop")
	require.ErrorIs(t, stack.AddContainer(stack), ErrSelfReference)
	require.Empty(t, stack.Containers())

	require.NoError(t, stack.AddContainer(NewInstanceContainer("inner")))
	require.ErrorIs(t, stack.ReplaceContainer(0, stack), ErrSelfReference)
	require.Equal(t, "inner", stack.Containers()[0].ID())
}

func TestContainerStackIndexValidation(t *testing.T) {
	stack, _, _ := newMachineStack(t)

	_, err := stack.GetContainer(-1)
	require.ErrorIs(t, err, ErrInvalidIndex)
	_, err = stack.GetContainer(2)
	require.ErrorIs(t, err, ErrInvalidIndex)

	require.ErrorIs(t, stack.ReplaceContainer(5, NewInstanceContainer("x")), ErrInvalidIndex)
	require.ErrorIs(t, stack.RemoveContainer(-1), ErrInvalidIndex)
}

func TestContainerStackReplaceAndRemove(t *testing.T) {
	stack, _, definition := newMachineStack(t)

	var changes int
	stack.SubscribeContainersChanged(func() { changes++ })

	replacement := NewInstanceContainer("other_user")
	replacement.SetProperty("layer_height", "value", 0.3)
	require.NoError(t, stack.ReplaceContainer(0, replacement))
	require.Equal(t, 1, changes)

	value, _ := stack.Value("layer_height")
	require.Equal(t, 0.3, value)

	require.NoError(t, stack.RemoveContainer(0))
	require.Equal(t, 2, changes)
	require.Equal(t, []Container{definition}, stack.Containers())

	value, _ = stack.Value("layer_height")
	require.Equal(t, 0.1, value)
}

func TestContainerStackSetNameNotifiesOnChangeOnly(t *testing.T) {
	stack := NewContainerStack("machine_stack")

	var names []string
	token := stack.SubscribeNameChanged(func(name string) { names = append(names, name) })

	stack.SetName("machine_stack")
	require.Empty(t, names)

	stack.SetName("Left Extruder")
	require.Equal(t, []string{"Left Extruder"}, names)

	stack.UnsubscribeNameChanged(token)
	stack.SetName("Right Extruder")
	require.Len(t, names, 1)
}

func TestContainerStackForwardsPropertyChanges(t *testing.T) {
	stack, user, _ := newMachineStack(t)

	var events []PropertyEvent
	stack.SubscribePropertyChanged(func(event PropertyEvent) { events = append(events, event) })

	user.SetProperty("layer_height", "value", 0.25)
	require.Equal(t, []PropertyEvent{{Key: "layer_height", Property: "value"}}, events)

	// Removing the container detaches the forwarding.
	require.NoError(t, stack.RemoveContainer(0))
	user.SetProperty("layer_height", "value", 0.3)
	require.Len(t, events, 1)
}

func TestContainerStackFindContainer(t *testing.T) {
	stack := NewContainerStack("machine_stack")
	user := NewInstanceContainer("user_settings")
	user.SetMetadataEntry("type", "user")
	variant := NewInstanceContainer("variant_aa04")
	variant.SetMetadataEntry("type", "variant")
	require.NoError(t, stack.AddContainer(variant))
	require.NoError(t, stack.AddContainer(user))

	found := stack.FindContainer(map[string]string{"type": "variant"})
	require.NotNil(t, found)
	require.Equal(t, "variant_aa04", found.ID())

	require.Nil(t, stack.FindContainer(map[string]string{"type": "quality"}))
}

func TestContainerStackNextStackDelegation(t *testing.T) {
	machine, _, definition := newMachineStack(t)

	extruder := NewContainerStack("extruder_stack")
	extruderUser := NewInstanceContainer("extruder_user")
	require.NoError(t, extruder.AddContainer(extruderUser))
	extruder.SetNextStack(machine)
	require.Same(t, machine, extruder.NextStack())

	// Unanswered lookups fall through to the machine stack.
	value, ok := extruder.Value("layer_height")
	require.True(t, ok)
	require.Equal(t, 0.1, value)

	extruderUser.SetProperty("layer_height", "value", 0.06)
	value, _ = extruder.Value("layer_height")
	require.Equal(t, 0.06, value)

	found := extruder.SettingDefinition("wall_thickness")
	require.NotNil(t, found)
	require.Same(t, definition, found.Container())
	require.Nil(t, extruder.SettingDefinition("retraction_speed"))
}

func TestContainerStackResolvesExpressions(t *testing.T) {
	stack, user, _ := newMachineStack(t)
	user.SetProperty("layer_height", "value", 0.2)

	definition := stack.SettingDefinition("wall_thickness")
	require.NotNil(t, definition)
	raw, ok := definition.Property("value")
	require.True(t, ok)
	expression := raw.(Expression)

	value, err := expression.Evaluate(stack)
	require.NoError(t, err)
	require.Equal(t, 1.6, value)
}

func TestContainerStackSerializeRoundTrip(t *testing.T) {
	registry := NewRegistry()
	definition := newMachineDefinition(t, "test_printer")
	user := NewInstanceContainer("user_settings")
	require.NoError(t, registry.AddContainer(definition))
	require.NoError(t, registry.AddContainer(user))

	stack := NewContainerStack("machine_stack")
	stack.SetName("My Printer")
	stack.SetMetadataEntry("type", "machine")
	require.NoError(t, stack.AddContainer(definition))
	require.NoError(t, stack.AddContainer(user))

	serialized, err := stack.Serialize()
	require.NoError(t, err)

	loaded := NewContainerStack("placeholder", WithStackRegistry(registry))
	require.NoError(t, loaded.Deserialize(serialized))

	require.Equal(t, "machine_stack", loaded.ID())
	require.Equal(t, "My Printer", loaded.Name())
	require.Equal(t, map[string]string{"type": "machine"}, loaded.Metadata())
	require.Len(t, loaded.Containers(), 2)
	require.Same(t, Container(user), loaded.Containers()[0])
	require.Same(t, Container(definition), loaded.Containers()[1])
}

func TestContainerStackDeserializeUnknownContainer(t *testing.T) {
	stack := NewContainerStack("machine_stack", WithStackRegistry(NewRegistry()))
	err := stack.Deserialize("[general]\nversion = 2\nname = X\nid = x\ncontainers = ghost,\n")
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestContainerStackDeserializeVersionMismatchLeavesStackUnmodified(t *testing.T) {
	stack, user, _ := newMachineStack(t)
	stack.SetName("My Printer")

	err := stack.Deserialize("[general]\nversion = 1\nname = Old\nid = old\ncontainers =\n")
	require.ErrorIs(t, err, ErrIncorrectVersion)

	require.Equal(t, "machine_stack", stack.ID())
	require.Equal(t, "My Printer", stack.Name())
	require.Len(t, stack.Containers(), 2)
	require.Equal(t, 0, stack.ContainerIndex(user))
}

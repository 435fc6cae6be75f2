// Package settings implements a layered configuration engine: immutable
// setting definitions loaded from schema documents, ordered container stacks
// that resolve the effective value of a setting by consulting each layer in
// turn, and expression-valued properties that reference other settings and are
// re-evaluated on demand against the stack.
//
// Definitions are read-only after deserialization. Mutable state lives in
// instance containers, which a stack layers on top of one or more definition
// containers. A SettingPropertyProvider offers a reactive, cached view over a
// single (stack, key) pair for UI-style consumers.
package settings

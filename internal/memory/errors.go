package memory

import "errors"

// Sentinel error kinds from spec §7. The hooks return errors to the caller;
// engine.go's recoverHook only turns a panic into an error and logs it. No
// code in this module checks these sentinels with errors.Is.
var (
	// ErrConfigMissing: no embedding key at startup. Nothing in this module
	// returns it; the engine has no dormant mode and its hooks run without
	// an embedding key.
	ErrConfigMissing = errors.New("memory: config missing (embedding key not set)")

	// ErrTransientIO: embedding/summariser/web timeout or 5xx. Nothing in
	// this module returns it; such failures come back from the hooks as the
	// underlying wrapped error and are not swallowed.
	ErrTransientIO = errors.New("memory: transient I/O error")

	// ErrHostCallbackMissing: an optional host callback (llm, memoryRecall,
	// memoryStore, memoryForget) was not supplied.
	ErrHostCallbackMissing = errors.New("memory: host callback not configured")

	// ErrFatalInit: Engine.Init wraps it when the workspace backend cannot be
	// built. Init returns the error; nothing retries initialisation later.
	ErrFatalInit = errors.New("memory: fatal initialization error")

	// ErrNotFound mirrors databases.ErrNotFound for callers that only import
	// this package.
	ErrNotFound = errors.New("memory: not found")
)

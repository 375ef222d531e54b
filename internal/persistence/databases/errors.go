package databases

import "errors"

// ErrNotFound is returned by MemoryStore.BlankRawMessages when the episode
// id does not exist. Other row lookups and mutations do not return it, and
// no caller in this module checks for it.
var ErrNotFound = errors.New("databases: not found")

// Package registry provides a generic thread-safe map for values indexed by key.
//
// Besides plain Register/Get, the registry offers single-step claim
// operations used by the correlation layer:
//
//	slots := registry.New[string, *Slot]()
//	if !slots.Add(txID, slot) {
//	    // another caller already owns txID
//	}
//
//	// exactly one of several concurrent callers gets the slot
//	if s, ok := slots.Take(txID); ok {
//	    s.complete(result)
//	}
//
// Add, Take, TakeIf, and Drain each run under the write lock, so a key is
// claimed by at most one caller.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package registry

// Package bindrt is the runtime contract generated bindings are written against.
//
// Generated wrappers hold each native handle in a Handle. Disposing a handle is idempotent,
// and every later use of it fails with ErrDisposed. Owned children attach to their owner
// with Adopt and are disposed before the owner's own destroy call, in reverse order of
// adoption. Callback adapters live in an AdapterRegistry. A registry tied to a handle is
// closed no later than that handle's destroy call, so native code can never call into a
// released adapter.
//
// Native return codes are classified with Check, which applies the error rule of the
// binding and returns a *NativeError on failure, or with Tag for functions whose policy
// returns a tagged result instead of an error.
//
//	idx := bindrt.NewHandle("Index", native, freeIndex)
//	unit := bindrt.NewHandle("Unit", u, freeUnit)
//	if err := idx.Adopt(unit); err != nil {
//		return err
//	}
//	defer idx.Dispose() // frees unit, then idx
package bindrt

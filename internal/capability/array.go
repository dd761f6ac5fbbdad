package capability

import (
	"context"

	"arrayd/internal/frame"
	"arrayd/internal/session"
	"arrayd/internal/store"
)

// StoreArray decodes array frames and stores them by name.  A frame
// that fails to decode leaves the store untouched.
type StoreArray struct {
	Store *store.Store
}

// Handle decodes msg and stores the result.
func (a *StoreArray) Handle(_ context.Context, sess *session.Session, msg []byte) error {
	arr, name, err := frame.Decode(msg)
	if err != nil {
		return err
	}
	a.Store.Set(name, arr)
	if sess != nil {
		sess.Logger.Verbose("stored %q (%dx%d %s)", name, arr.Rows, arr.Cols, arr.DType)
	}
	return nil
}

package sync

import "errors"

// ErrNotConnected is returned when a sync is requested for a user with no
// stored wearable credential. Callers should prompt a reconnect, not retry.
var ErrNotConnected = errors.New("wearable account not connected")

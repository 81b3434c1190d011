// Package identity tracks which display name belongs to which device, and
// which connection currently carries that identity.
package identity

import "errors"

var (
	ErrMalformedCredentials = errors.New("nickname and device id are required")
	ErrNameInUse            = errors.New("nickname is already in use")
)

// Identity is the public identity bound to one live connection.
type Identity struct {
	Nickname string
	DeviceID string
}

// Registry enforces process-wide nickname uniqueness. It is not safe for
// concurrent use on its own: every call must happen inside the gateway's
// mutation lock, together with any room-state change it accompanies.
type Registry struct {
	nameOwner  map[string]string   // nickname -> device id
	deviceName map[string]string   // device id -> nickname
	connIdent  map[string]Identity // connection id -> identity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nameOwner:  make(map[string]string),
		deviceName: make(map[string]string),
		connIdent:  make(map[string]Identity),
	}
}

// Admit binds a nickname to a device and associates both with the
// connection. A device re-claiming a different nickname than before simply
// moves its binding, so reconnect-with-rename works without a release first.
func (r *Registry) Admit(connID, nickname, deviceID string) error {
	if connID == "" || nickname == "" || deviceID == "" {
		return ErrMalformedCredentials
	}
	if owner, taken := r.nameOwner[nickname]; taken && owner != deviceID {
		return ErrNameInUse
	}

	if previous, ok := r.deviceName[deviceID]; ok && previous != nickname {
		delete(r.nameOwner, previous)
	}
	r.nameOwner[nickname] = deviceID
	r.deviceName[deviceID] = nickname
	r.connIdent[connID] = Identity{Nickname: nickname, DeviceID: deviceID}
	return nil
}

// Release drops the binding owned by the connection. Releasing an unknown
// connection is a no-op.
func (r *Registry) Release(connID string) {
	ident, ok := r.connIdent[connID]
	if !ok {
		return
	}
	delete(r.connIdent, connID)
	if r.nameOwner[ident.Nickname] != ident.DeviceID {
		return
	}
	// A same-device reconnect leaves the old connection entry behind until
	// its disconnect is processed. The name stays bound while any live
	// connection still carries it.
	for _, other := range r.connIdent {
		if other == ident {
			return
		}
	}
	delete(r.nameOwner, ident.Nickname)
	delete(r.deviceName, ident.DeviceID)
}

// Get returns the identity bound to a connection.
func (r *Registry) Get(connID string) (Identity, bool) {
	ident, ok := r.connIdent[connID]
	return ident, ok
}

// Count returns the number of admitted connections.
func (r *Registry) Count() int {
	return len(r.connIdent)
}

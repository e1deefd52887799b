package mnet

// Host identifies a participating node by a short opaque string, e.g. one
// derived from a machine address or a configured name.
type Host string

// Broadcast is the reserved wildcard destination meaning "every peer in
// range", valid only for unreliable sends.
const Broadcast Host = "*"

// Local are the spellings that short-circuit a send into the local
// delivery path instead of touching any device.
func (h Host) isLocal(self Host) bool {
	return h == self || h == "localhost"
}

// Address is an application-level (host, port) pair.
type Address struct {
	Host Host
	Port uint16
}

package mnet

// splitPayload divides payload into chunks no larger than mtu bytes each,
// per §4.2: K = ceil(len/mtu) fragments when payload exceeds mtu; a single
// chunk (no fragmentation) when it fits.
func splitPayload(payload []byte, mtu int) [][]byte {
	if len(payload) <= mtu {
		return [][]byte{payload}
	}
	var chunks [][]byte
	for off := 0; off < len(payload); off += mtu {
		end := off + mtu
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}


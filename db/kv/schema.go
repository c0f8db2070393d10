package kv

import "encoding/binary"

// Bucket layout.
//
//	messagesBucket:     be64(nonce) -> json(Message)
//	messageStateIndex:  state || 0x00 || be64(nonce) -> nil
//	eventsBucket:       be64(nonce) || be64(seq) -> json(Event)
//
// The state index replaces the relational index on messages.state; cursor
// prefix scans over it return nonces in ascending order. Event keys embed
// the bucket sequence so prefix scans return insertion order per nonce.
var (
	messagesBucket    = []byte("messages")
	messageStateIndex = []byte("message-state-index")
	eventsBucket      = []byte("events")
)

func encodeNonce(nonce uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, nonce)
	return b
}

func stateIndexKey(state string, nonce uint64) []byte {
	key := make([]byte, 0, len(state)+9)
	key = append(key, state...)
	key = append(key, 0x00)
	key = append(key, encodeNonce(nonce)...)
	return key
}

func stateIndexPrefix(state string) []byte {
	prefix := make([]byte, 0, len(state)+1)
	prefix = append(prefix, state...)
	prefix = append(prefix, 0x00)
	return prefix
}

func eventKey(nonce, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], nonce)
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

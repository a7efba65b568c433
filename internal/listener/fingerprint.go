// Package listener implements the master-side shared-listener registry:
// one kernel listening socket per distinct listen-argument fingerprint,
// duplicated out to every worker that asks for it (spec.md §3, §4.4).
package listener

import (
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/vmihailenco/msgpack/v5"
)

// fingerprintKey is a fixed key so that fingerprints are stable across
// restarts of the same supervisor binary but not predictable from the
// outside; siphash only needs to resist hash-flooding here, not keep a
// secret, so a compiled-in key is fine.
var fingerprintKey = [16]byte{
	0x77, 0x63, 0x6c, 0x75, 0x73, 0x74, 0x65, 0x72,
	0x66, 0x69, 0x6e, 0x67, 0x65, 0x72, 0x70, 0x31,
}

// Args is a worker's listen-argument list, canonicalized for hashing.
// Fields mirror what a TCP listen call takes; Extra carries anything
// beyond host/port/backlog a caller wants folded into the fingerprint
// (e.g. a protocol tag) so two otherwise-identical listens can be kept
// distinct on purpose.
type Args struct {
	Network string `msgpack:"network"`
	Address string `msgpack:"address"`
	Backlog int     `msgpack:"backlog,omitempty"`
	Extra   string  `msgpack:"extra,omitempty"`
}

// Fingerprint computes the deterministic registry key for args: args is
// first serialized with msgpack (fixing field order and types), then
// hashed with siphash-2-4 under a fixed key. Two Args values compare
// equal as fingerprints iff they are equal as values, matching spec.md
// §4.4's requirement of "a deterministic fingerprint of args".
func Fingerprint(args Args) (string, error) {
	canonical, err := msgpack.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("listener: failed to canonicalize args: %w", err)
	}

	h0, h1 := siphash.Hash128(
		binary.LittleEndian.Uint64(fingerprintKey[0:8]),
		binary.LittleEndian.Uint64(fingerprintKey[8:16]),
		canonical,
	)
	return fmt.Sprintf("%016x%016x", h0, h1), nil
}

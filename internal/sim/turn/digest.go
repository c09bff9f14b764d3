package turn

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"

	"empires.ai/internal/sim/model"
)

// Canonical encodes r without wall-clock timing. Two runs with the same
// snapshot and seed produce identical bytes.
func Canonical(r *model.TurnResult) ([]byte, error) {
	c := r.Canonical()
	return json.Marshal(&c)
}

// Digest is the blake3 hex digest of the canonical encoding.
func Digest(r *model.TurnResult) (string, error) {
	b, err := Canonical(r)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// StateDigest hashes a snapshot's JSON form; replay compares it across runs.
func StateDigest(s *model.GameState) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

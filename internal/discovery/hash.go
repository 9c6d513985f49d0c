package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

type runningHash struct{ h hash.Hash }

func sha256New() runningHash { return runningHash{h: sha256.New()} }

func (r runningHash) Write(p []byte) { r.h.Write(p) }

func (r runningHash) sum() string { return hex.EncodeToString(r.h.Sum(nil)) }

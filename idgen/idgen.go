// CLAUDE:SUMMARY Identifier generators: prefixed UUIDv7 job ids, short event ids, content-derived project ids.
// Package idgen generates the identifiers used across the service.
//
// Job ids are "job_" + UUIDv7 so they sort by submission time. Project ids
// are derived from the PDF bytes so resubmitting the same drawing yields the
// same id.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Prefixes used by this module.
const (
	JobPrefix     = "job_"
	EventPrefix   = "evt_"
	ProjectPrefix = "prj_"
)

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator of random base-36 ids of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every id from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator: prefix followed by 1, 2, 3...
// Tests use it to get stable ids.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

// Job generates job ids.
var Job Generator = Prefixed(JobPrefix, UUIDv7())

// Event generates job event ids.
var Event Generator = Prefixed(EventPrefix, NanoID(16))

// ProjectID derives a stable project id from document content.
func ProjectID(content []byte) string {
	sum := sha256.Sum256(content)
	return ProjectPrefix + hex.EncodeToString(sum[:8])
}

// ParseJobID validates a job id from an untrusted source and returns it in
// canonical form.
func ParseJobID(s string) (string, error) {
	rest, ok := strings.CutPrefix(s, JobPrefix)
	if !ok {
		return "", fmt.Errorf("idgen: job id %q lacks %q prefix", s, JobPrefix)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("idgen: job id %q: %w", s, err)
	}
	return JobPrefix + u.String(), nil
}

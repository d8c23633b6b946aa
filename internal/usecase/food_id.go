package usecase

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ContributedIDPrefix starts every user-contributed food id
const ContributedIDPrefix = "USER_"

// IDGenerator builds contributed food ids of the form
// USER_<owner>_<unix millis>_<ulid entropy>. The monotonic entropy keeps ids
// distinct even when one owner creates several records in the same millisecond.
type IDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewIDGenerator creates a generator seeded from crypto/rand
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh id for owner created at t
func (g *IDGenerator) New(ownerUserID int64, t time.Time) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	g.mu.Unlock()

	// the first 10 characters encode the timestamp already present in the id
	return fmt.Sprintf("%s%d_%d_%s", ContributedIDPrefix, ownerUserID, t.UnixMilli(), id.String()[10:])
}

package audit_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/audit"
	"github.com/spounge-ai/auditvault/internal/domain"
)

func TestComputeDeterministic(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	prev := []byte{0x01, 0x02}

	a := audit.Compute(prev, createdAt, "user.login", "alice", "corr-1", `{"ok":true}`)
	b := audit.Compute(prev, createdAt, "user.login", "alice", "corr-1", `{"ok":true}`)

	require.Len(t, a, 32)
	assert.Equal(t, a, b)
}

func TestComputeSensitiveToEveryField(t *testing.T) {
	createdAt := time.Now().UTC()
	base := audit.Compute(nil, createdAt, "et", "actor", "corr", "payload")

	assert.NotEqual(t, base, audit.Compute([]byte{0x01}, createdAt, "et", "actor", "corr", "payload"))
	assert.NotEqual(t, base, audit.Compute(nil, createdAt.Add(time.Microsecond), "et", "actor", "corr", "payload"))
	assert.NotEqual(t, base, audit.Compute(nil, createdAt, "et2", "actor", "corr", "payload"))
	assert.NotEqual(t, base, audit.Compute(nil, createdAt, "et", "actor2", "corr", "payload"))
	assert.NotEqual(t, base, audit.Compute(nil, createdAt, "et", "actor", "corr2", "payload"))
	assert.NotEqual(t, base, audit.Compute(nil, createdAt, "et", "actor", "corr", "payload2"))
}

func TestComputeEmptyFieldsEqualOmitted(t *testing.T) {
	createdAt := time.Now().UTC()

	// Absent optional fields hash as empty strings, so nil and "" agree.
	a := audit.Compute(nil, createdAt, "et", "", "", "p")
	b := audit.Compute(nil, createdAt, "et", "", "", "p")
	assert.Equal(t, a, b)
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0a0b", audit.Hex([]byte{0x0a, 0x0b}))
	assert.Equal(t, "", audit.Hex(nil))
}

func TestCanonicalTimeIsUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 1, 2, 13, 0, 0, 123456000, loc)
	assert.Equal(t, "2026-01-02T12:00:00.123456Z", audit.CanonicalTime(ts))
}

func chainOf(t *testing.T, n int) []*domain.AuditRecord {
	t.Helper()

	records := make([]*domain.AuditRecord, 0, n)
	var prev []byte
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < n; i++ {
		createdAt := base.Add(time.Duration(i) * time.Millisecond)
		payload := `{"n":` + string(rune('0'+i)) + `}`
		rec := &domain.AuditRecord{
			ID:        uuid.New(),
			CreatedAt: createdAt,
			EventType: "test.event",
			Actor:     "tester",
			Payload:   []byte(payload),
			PrevHash:  prev,
			Hash:      audit.Compute(prev, createdAt, "test.event", "tester", "", payload),
		}
		records = append(records, rec)
		prev = rec.Hash
	}
	return records
}

func plaintextOf(rec *domain.AuditRecord) (string, error) {
	return string(rec.Payload), nil
}

func TestVerifyChainValid(t *testing.T) {
	records := chainOf(t, 5)
	assert.NoError(t, audit.VerifyChain(records, plaintextOf))
}

func TestVerifyChainEmpty(t *testing.T) {
	assert.NoError(t, audit.VerifyChain(nil, plaintextOf))
}

func TestVerifyChainDetectsPayloadTamper(t *testing.T) {
	records := chainOf(t, 5)
	records[2].Payload = []byte(`{"tampered":true}`)
	assert.Error(t, audit.VerifyChain(records, plaintextOf))
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	records := chainOf(t, 5)
	records[3].PrevHash = records[1].Hash
	assert.Error(t, audit.VerifyChain(records, plaintextOf))
}

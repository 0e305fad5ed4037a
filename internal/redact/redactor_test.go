package redact_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/redact"
)

func TestRedactsEmail(t *testing.T) {
	out := redact.Redact("email=john.doe+test@example.com")
	assert.NotContains(t, out, "john.doe+test@example.com")
	assert.Contains(t, out, "@example.com")
	assert.Equal(t, "email=j***t@example.com", out)
}

func TestRedactsShortLocalPart(t *testing.T) {
	out := redact.Redact("jd@example.com")
	assert.Equal(t, "***@example.com", out)
}

func TestRedactLowercasesDomain(t *testing.T) {
	out := redact.Redact("Alice.Smith@EXAMPLE.COM")
	assert.Equal(t, "A***h@example.com", out)
}

func TestRedactsPhone(t *testing.T) {
	out := redact.Redact("phone=+48 500 600 700")
	assert.NotContains(t, out, "+48 500 600 700")
	assert.Contains(t, out, "***PHONE***")
	assert.Contains(t, out, "0700")
}

func TestShortDigitRunsUntouched(t *testing.T) {
	assert.Equal(t, "pin 123456", redact.Redact("pin 123456"))
}

func TestRedactsCardWithLuhn(t *testing.T) {
	out := redact.Redact("card=4111 1111 1111 1111")
	assert.NotContains(t, out, "4111 1111 1111 1111")
	assert.Contains(t, out, "**** **** **** 1111")
}

func TestLuhnInvalidCardUntouched(t *testing.T) {
	out := redact.Redact("id=1234 5678 9012 3456")
	assert.Contains(t, out, "1234 5678 9012 3456")
}

func TestCardCandidateNotMaskedAsPhone(t *testing.T) {
	// The phone shape matches separator-bounded fragments of a card number;
	// those fragments belong to the card stage.
	out := redact.Redact("card=4111 1111 1111 1111")
	assert.NotContains(t, out, "***PHONE***")
	assert.Equal(t, "card=**** **** **** 1111", out)

	// Luhn-invalid candidates come through whole, not phone-masked in parts.
	out = redact.Redact("id=1234 5678 9012 3456")
	assert.NotContains(t, out, "***PHONE***")
	assert.Equal(t, "id=1234 5678 9012 3456", out)
}

func TestPhoneAndCardInSameInput(t *testing.T) {
	out := redact.Redact("call +48 500 600 700 re card 4111 1111 1111 1111")
	assert.Contains(t, out, "***PHONE***0700")
	assert.Contains(t, out, "**** **** **** 1111")
	assert.NotContains(t, out, "500 600 700")
	assert.NotContains(t, out, "4111")
}

func TestLongDigitRunUntouched(t *testing.T) {
	// 20 digits exceed the card candidate range and stay intact.
	in := "trace=41111111111111111111"
	assert.Equal(t, in, redact.Redact(in))
}

func TestRedactIdempotent(t *testing.T) {
	inputs := []string{
		"email=john.doe+test@example.com",
		"phone=+48 500 600 700",
		"card=4111 1111 1111 1111",
		"mixed: jane@foo.org called from +1 212 555 0173",
	}
	for _, in := range inputs {
		once := redact.Redact(in)
		assert.Equal(t, once, redact.Redact(once), "input %q", in)
	}
}

func TestRedactEmpty(t *testing.T) {
	assert.Equal(t, "", redact.Redact(""))
	assert.Equal(t, "", redact.Redact("   "))
}

func TestCountersMonotonic(t *testing.T) {
	e0, p0, c0 := redact.EmailRedactions(), redact.PhoneRedactions(), redact.CardRedactions()

	redact.Redact("a@example.com b@example.com")
	redact.Redact("+48 500 600 700")
	redact.Redact("4111 1111 1111 1111")

	assert.Equal(t, e0+2, redact.EmailRedactions())
	assert.Equal(t, p0+1, redact.PhoneRedactions())
	assert.Equal(t, c0+1, redact.CardRedactions())
}

func TestLogHandlerRedactsMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(redact.NewLogHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("user john.doe@example.com logged in",
		"contact", "+48 500 600 700",
		"attempt", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	msg := entry["msg"].(string)
	assert.NotContains(t, msg, "john.doe@example.com")
	assert.Contains(t, msg, "@example.com")

	contact := entry["contact"].(string)
	assert.Contains(t, contact, "***PHONE***")
	assert.Equal(t, float64(3), entry["attempt"])
}

func TestLogHandlerRedactsGroups(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	handler := redact.NewLogHandler(base)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.Group("user", slog.String("email", "jane@foo.org")))
	require.NoError(t, handler.Handle(context.Background(), rec))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	email := entry["user"].(map[string]any)["email"].(string)
	assert.NotContains(t, email, "jane@foo.org")
	assert.Contains(t, email, "@foo.org")
}

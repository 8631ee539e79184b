package encoder

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echocog/cogrun/internal/model"
)

var sigPattern = regexp.MustCompile(`^[a-z_]+:.+$`)

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := New(nil, 1000)
	require.NoError(t, err)
	return enc
}

func TestEncodeErrorEvent(t *testing.T) {
	enc := newTestEncoder(t)
	event := model.RawEvent{Fields: map[string]interface{}{
		"error":      true,
		"error_type": "validation_error",
		"message":    "x",
	}}

	got := enc.Encode(event)

	assert.Equal(t, "error:validation_error", got.Pattern.Signature)
	assert.Regexp(t, sigPattern, got.Pattern.Signature)
	assert.Equal(t, model.EventError, got.Pattern.Type)
	assert.Equal(t, model.StateError, got.Context.State)
	assert.Equal(t, model.IntensityHigh, got.Context.Intensity)
	assert.GreaterOrEqual(t, got.Pattern.Confidence, 0.0)
	assert.LessOrEqual(t, got.Pattern.Confidence, 1.0)
}

func TestEncodeTwiceRegistersPattern(t *testing.T) {
	enc := newTestEncoder(t)
	event := model.RawEvent{Fields: map[string]interface{}{
		"error":      true,
		"error_type": "validation_error",
	}}

	enc.Encode(event)
	enc.Encode(event)

	stat, ok := enc.PatternStats("error:validation_error")
	require.True(t, ok)
	assert.Equal(t, int64(2), stat.Count)
}

func TestEncodeRequestEvent(t *testing.T) {
	enc := newTestEncoder(t)
	event := model.RawEvent{Fields: map[string]interface{}{
		"request": true,
		"method":  "POST",
		"path":    "/x",
	}}

	got := enc.Encode(event)

	assert.Equal(t, "request:POST:/x", got.Pattern.Signature)
	assert.Contains(t, got.Pattern.Features, "method_POST")
}

func TestEncodeUnrecognizedKeysUseHashSignature(t *testing.T) {
	enc := newTestEncoder(t)
	// A nil Fields map is a legal zero value, not a panic trigger; this
	// test instead exercises the generic fallback discriminator path by
	// supplying an event with no recognized keys.
	event := model.RawEvent{Fields: map[string]interface{}{"mystery": 1}}

	got := enc.Encode(event)

	assert.Equal(t, model.EventDataInput, got.Pattern.Type)
	assert.Regexp(t, sigPattern, got.Pattern.Signature)
}

func TestConfidenceClampedToUnitRange(t *testing.T) {
	enc := newTestEncoder(t)
	big := make(map[string]interface{}, 200)
	for i := 0; i < 200; i++ {
		big[fmtKey(i)] = "0123456789012345678901234567890123456789"
	}
	event := model.RawEvent{Fields: big}

	got := enc.Encode(event)

	assert.GreaterOrEqual(t, got.Pattern.Confidence, 0.0)
	assert.LessOrEqual(t, got.Pattern.Confidence, 1.0)
}

func fmtKey(i int) string {
	return "k" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}

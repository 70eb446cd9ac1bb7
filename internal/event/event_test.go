package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/alertbell/internal/event"
)

func TestParse(t *testing.T) {
	ev, err := event.Parse([]byte(`{"type":"결제완료","message":"상품 A 결제","orderId":17}`))
	require.NoError(t, err)
	assert.Equal(t, "결제완료", ev.Type)
	assert.Equal(t, "상품 A 결제", ev.Message)
	assert.Equal(t, float64(17), ev.Extra["orderId"])
	assert.False(t, ev.ReceivedAt.IsZero())
}

func TestParseMissingType(t *testing.T) {
	ev, err := event.Parse([]byte(`{"message":"hello"}`))
	require.NoError(t, err)
	assert.Empty(t, ev.Type)
	assert.Nil(t, ev.Extra)
}

func TestParseNonStringType(t *testing.T) {
	for _, payload := range []string{
		`{"type":42,"message":"상품 A 결제"}`,
		`{"type":{"code":"PAY"},"message":"상품 A 결제"}`,
		`{"type":null,"message":"상품 A 결제"}`,
	} {
		ev, err := event.Parse([]byte(payload))
		require.NoError(t, err, payload)
		assert.Empty(t, ev.Type, payload)
		assert.Equal(t, "상품 A 결제", ev.Message)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `connected`, event.ErrMalformed},
		{"array", `[1,2]`, event.ErrMalformed},
		{"null", `null`, event.ErrMalformed},
		{"numeric message", `{"type":"재고","message":5}`, event.ErrMalformed},
		{"numeric type without message", `{"type":1}`, event.ErrEmptyMessage},
		{"missing message", `{"type":"재고"}`, event.ErrEmptyMessage},
		{"blank message", `{"type":"재고","message":"  "}`, event.ErrEmptyMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := event.Parse([]byte(tc.payload))
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

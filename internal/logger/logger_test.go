package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()

	configure(l, &buf, "debug", true)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("reservation_id", 7).Info("reservation created")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "reservation created", line["msg"])
	assert.EqualValues(t, 7, line["reservation_id"])

	configure(l, &buf, "nonsense", false)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(ctx))

	entry := logrus.WithField("request_id", "abc")
	ctx = ToContext(ContextWithCorrelationID(ctx, "abc"), entry)
	assert.Same(t, entry, FromContext(ctx))
	assert.Equal(t, "abc", CorrelationIDFromContext(ctx))
}

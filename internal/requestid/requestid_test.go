package requestid

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestEnsure(t *testing.T) {
	ctx := WithRequestID(context.Background(), "keep-me")
	got, id := Ensure(ctx)
	assert.Equal(t, "keep-me", id)
	assert.Equal(t, ctx, got)

	_, fresh := Ensure(context.Background())
	assert.NotEmpty(t, fresh)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	withID := Logger(WithRequestID(context.Background(), "abc"), base)
	withID.Info().Msg("hi")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)

	buf.Reset()
	plain := Logger(context.Background(), base)
	plain.Info().Msg("hi")
	assert.NotContains(t, buf.String(), "request_id")
}

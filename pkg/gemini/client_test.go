package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sells-group/mdm-cli/internal/resilience"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}

func TestClassifyErr_RateLimited(t *testing.T) {
	t.Parallel()

	got := classifyErr(genai.APIError{Code: 429, Message: "quota exceeded"})
	assert.True(t, resilience.IsTransient(got))
}

func TestClassifyErr_ServerError(t *testing.T) {
	t.Parallel()

	got := classifyErr(fmt.Errorf("call failed: %w", genai.APIError{Code: 503, Status: "UNAVAILABLE"}))
	assert.True(t, resilience.IsTransient(got))
}

func TestClassifyErr_BadRequestIsPermanent(t *testing.T) {
	t.Parallel()

	got := classifyErr(genai.APIError{Code: 400, Message: "invalid argument"})
	assert.False(t, resilience.IsTransient(got))
}

func TestClassifyErr_NetworkTimeout(t *testing.T) {
	t.Parallel()

	got := classifyErr(errors.New("read tcp: i/o timeout"))
	assert.True(t, resilience.IsTransient(got))
}

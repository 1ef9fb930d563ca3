package llm

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/apolo-agent/backend/internal/metrics"
)

func TestRecordUsageFeedsTokenCounters(t *testing.T) {
	promptBefore := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("gpt-4", "prompt"))
	completionBefore := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("gpt-4", "completion"))

	recordUsage("gpt-4", openai.Usage{PromptTokens: 120, CompletionTokens: 45})

	assert.Equal(t, promptBefore+120,
		testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("gpt-4", "prompt")))
	assert.Equal(t, completionBefore+45,
		testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("gpt-4", "completion")))
}

func TestRecordUsageSkipsZeroCounts(t *testing.T) {
	// Embedding responses report prompt tokens only.
	before := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("text-embedding-ada-002", "completion"))

	recordUsage("text-embedding-ada-002", openai.Usage{PromptTokens: 8})

	assert.Equal(t, before,
		testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("text-embedding-ada-002", "completion")))
	assert.Positive(t,
		testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("text-embedding-ada-002", "prompt")))
}

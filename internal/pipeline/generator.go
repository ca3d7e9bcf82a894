package pipeline

import (
	"context"
	"time"

	"sme-plug-go/pkg/llm"
	"sme-plug-go/pkg/log"
)

// generateWithRetry 调用模型，失败或超时后用较短的超时重试一次。
// 返回值 attempts 为实际调用次数。
func generateWithRetry(ctx context.Context, client llm.Client, messages []llm.Message, gen *llm.GenerationParams, timeout, retryTimeout time.Duration) (text string, attempts int, err error) {
	for _, t := range []time.Duration{timeout, retryTimeout} {
		attempts++
		gctx, cancel := context.WithTimeout(ctx, t)
		text, err = client.ChatMessages(gctx, messages, gen)
		cancel()
		if err == nil {
			return text, attempts, nil
		}
		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}
		log.Warnf("[Orchestrator] generation attempt %d failed: %v", attempts, err)
	}
	return "", attempts, err
}

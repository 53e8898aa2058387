package anthropic

import (
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/mpdagents/mpdchat/internal/provider"
)

// convertRequest builds Messages API parameters. System messages are hoisted
// into the System field wherever they appear, since the API has no inline
// system role.
func (a *Anthropic) convertRequest(req provider.CompletionRequest) sdkanthropic.MessageNewParams {
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(a.model),
		MaxTokens: int64(a.config.MaxTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleSystem:
			params.System = append(params.System, sdkanthropic.TextBlockParam{Text: m.Content})
		case provider.MessageRoleAssistant:
			params.Messages = append(params.Messages, sdkanthropic.NewAssistantMessage(sdkanthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

// convertResponse joins the text blocks of msg.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}

	return provider.CompletionResponse{
		Content:      strings.Join(parts, "\n"),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}

package ai

import (
	"context"
	"encoding/base64"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// messageCreator is the part of the SDK's message service we call.
type messageCreator interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Provider on the official anthropic-sdk-go.
type Anthropic struct {
	messages messageCreator
	model    string
}

func NewAnthropic(apiKey, model string) *Anthropic {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return newAnthropicWith(&client.Messages, model)
}

func newAnthropicWith(m messageCreator, model string) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{messages: m, model: model}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	blocks := make([]sdk.ContentBlockParamUnion, 0, 2)
	if len(req.Document) > 0 {
		// Claude принимает документы только как PDF
		if req.DocumentMIME != "" && req.DocumentMIME != "application/pdf" {
			return "", eris.Errorf("anthropic: unsupported document type %q", req.DocumentMIME)
		}
		blocks = append(blocks, sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(req.Document),
		}))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.Errorf("anthropic: empty response (stop reason %q)", msg.StopReason)
	}
	return sb.String(), nil
}

package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeProvider struct {
	answer string
	err    error
	calls  []Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.answer, f.err
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want LongDescription
	}{
		{"plain", `{"vinedo":"a","cata":"b","maridaje":"c"}`, LongDescription{"a", "b", "c"}},
		{"fenced", "```json\n{\"vinedo\":\"a\",\"cata\":\"b\",\"maridaje\":\"c\"}\n```", LongDescription{"a", "b", "c"}},
		{"prose around", `Aquí tienes: {"vinedo":"a","cata":"b","maridaje":"c"} ¡Salud!`, LongDescription{"a", "b", "c"}},
		{"trailing comma", `{"vinedo":"a","cata":"b","maridaje":"c",}`, LongDescription{"a", "b", "c"}},
		{"unclosed", `{"vinedo":"a","cata":"b","maridaje":"c"`, LongDescription{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got LongDescription
			require.NoError(t, DecodeJSON(tt.in, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_NoObject(t *testing.T) {
	var v map[string]any
	assert.Error(t, DecodeJSON("lo siento, no puedo", &v))
}

func TestLooseNumbers(t *testing.T) {
	var got struct {
		A looseInt   `json:"a"`
		B looseInt   `json:"b"`
		C looseInt   `json:"c"`
		D looseInt   `json:"d"`
		P looseFloat `json:"p"`
		Q looseFloat `json:"q"`
		R looseFloat `json:"r"`
		S looseFloat `json:"s"`
	}
	in := `{"a":2021,"b":"2019","c":null,"d":"s.a.","p":12.5,"q":"14,90 €","r":null,"s":"consultar"}`
	require.NoError(t, DecodeJSON(in, &got))

	require.NotNil(t, got.A.v)
	assert.Equal(t, 2021, *got.A.v)
	require.NotNil(t, got.B.v)
	assert.Equal(t, 2019, *got.B.v)
	assert.Nil(t, got.C.v)
	assert.Nil(t, got.D.v)

	require.NotNil(t, got.P.v)
	assert.InDelta(t, 12.5, *got.P.v, 1e-9)
	require.NotNil(t, got.Q.v)
	assert.InDelta(t, 14.9, *got.Q.v, 1e-9)
	assert.Nil(t, got.R.v)
	assert.Nil(t, got.S.v)
}

func TestDescribe_Short(t *testing.T) {
	p := &fakeProvider{answer: `  "Un blanco volcánico con alma atlántica."  `}
	grapes := "Listán Blanco"
	year := 2022

	d, err := Describe(context.Background(), p, WineInfo{
		Name: "Tajinaste", Type: "blanco", Island: "Tenerife", Grapes: &grapes, Vintage: &year,
	}, FieldShort)
	require.NoError(t, err)
	assert.Equal(t, "Un blanco volcánico con alma atlántica.", d.Text)
	assert.Nil(t, d.Long)

	require.Len(t, p.calls, 1)
	assert.False(t, p.calls[0].JSON)
	assert.Contains(t, p.calls[0].Prompt, "Vino: Tajinaste")
	assert.Contains(t, p.calls[0].Prompt, "Uvas: Listán Blanco")
	assert.Contains(t, p.calls[0].Prompt, "Añada: 2022")
	assert.NotContains(t, p.calls[0].Prompt, "Bodega:")
}

func TestDescribe_ShortTruncated(t *testing.T) {
	p := &fakeProvider{answer: strings.Repeat("á", 300)}
	d, err := Describe(context.Background(), p, WineInfo{Name: "X"}, FieldShort)
	require.NoError(t, err)
	assert.Equal(t, ShortMaxRunes, utf8.RuneCountInString(d.Text))
	assert.True(t, strings.HasSuffix(d.Text, "…"))
}

func TestDescribe_Long(t *testing.T) {
	p := &fakeProvider{answer: "```json\n{\"vinedo\":\"Viñas en ladera\",\"cata\":\"Fresco\",\"maridaje\":\"Cherne\"}\n```"}
	d, err := Describe(context.Background(), p, WineInfo{Name: "X"}, FieldLong)
	require.NoError(t, err)
	require.NotNil(t, d.Long)
	assert.Equal(t, "Viñas en ladera", d.Long.Vineyard)
	assert.Equal(t, "Cherne", d.Long.Pairing)
	assert.True(t, p.calls[0].JSON)
}

func TestDescribe_Errors(t *testing.T) {
	_, err := Describe(context.Background(), &fakeProvider{}, WineInfo{}, "otro")
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = Describe(context.Background(), &fakeProvider{err: boom}, WineInfo{}, FieldPairing)
	assert.ErrorIs(t, err, boom)
}

func TestExtract(t *testing.T) {
	p := &fakeProvider{answer: `{"vinos":[
		{"nombre":" Viña Norte ","bodega":"Bodegas Insulares","do":"D.O. Tacoronte-Acentejo","uvas":"Listán Negro","anada":"2021","precio":"9,80"},
		{"nombre":"","bodega":"X"},
		{"nombre":"Tajinaste","bodega":" ","do":null,"uvas":null,"anada":null,"precio":14.5},
	]}`}

	ex, raw, err := Extract(context.Background(), p, []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, ex.Wines, 2)

	first := ex.Wines[0]
	assert.Equal(t, "Viña Norte", *first.Name)
	assert.Equal(t, "Bodegas Insulares", *first.Winery)
	require.NotNil(t, first.Vintage)
	assert.Equal(t, 2021, *first.Vintage)
	require.NotNil(t, first.Price)
	assert.InDelta(t, 9.8, *first.Price, 1e-9)

	second := ex.Wines[1]
	assert.Nil(t, second.Winery)
	assert.Nil(t, second.Vintage)
	assert.InDelta(t, 14.5, *second.Price, 1e-9)

	assert.Contains(t, raw, `"nombre":"Viña Norte"`)
	require.Len(t, p.calls, 1)
	assert.Equal(t, "application/pdf", p.calls[0].DocumentMIME)
	assert.True(t, p.calls[0].JSON)
}

func TestExtract_EmptyDocument(t *testing.T) {
	p := &fakeProvider{}
	_, _, err := Extract(context.Background(), p, nil, "application/pdf")
	assert.Error(t, err)
	assert.Empty(t, p.calls)
}

func TestLimited(t *testing.T) {
	p := &fakeProvider{answer: "ok"}
	l := NewLimited(p, 1)
	assert.Equal(t, "fake", l.Name())

	out, err := l.Generate(context.Background(), Request{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// второй запрос ждёт минуту, отменённый контекст обрывает ожидание
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Generate(ctx, Request{Prompt: "b"})
	assert.Error(t, err)
	assert.Len(t, p.calls, 1)
}

func TestLimited_Unlimited(t *testing.T) {
	p := &fakeProvider{answer: "ok"}
	l := NewLimited(p, 0)
	for range 5 {
		_, err := l.Generate(context.Background(), Request{})
		require.NoError(t, err)
	}
	assert.Len(t, p.calls, 5)
}

func TestNew_NotConfigured(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), Config{Provider: "gemini"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), Config{Provider: "openai", AnthropicAPIKey: "k"})
	assert.Error(t, err)
}

func TestNew_PicksAnthropic(t *testing.T) {
	p, err := New(context.Background(), Config{AnthropicAPIKey: "k", GeminiAPIKey: "g"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

type fakeMessages struct {
	got  sdk.MessageNewParams
	resp *sdk.Message
	err  error
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	return f.resp, f.err
}

func TestAnthropic_Generate(t *testing.T) {
	m := &fakeMessages{resp: &sdk.Message{
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hola "},
			{Type: "text", Text: "mundo"},
		},
	}}
	a := newAnthropicWith(m, "")

	out, err := a.Generate(context.Background(), Request{
		System: "sys", Prompt: "p", Document: []byte("%PDF"), DocumentMIME: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", out)

	assert.Equal(t, sdk.Model(defaultAnthropicModel), m.got.Model)
	assert.Equal(t, int64(1024), m.got.MaxTokens)
	require.Len(t, m.got.System, 1)
	assert.Equal(t, "sys", m.got.System[0].Text)
	require.Len(t, m.got.Messages, 1)
	assert.Len(t, m.got.Messages[0].Content, 2)
}

func TestAnthropic_Errors(t *testing.T) {
	a := newAnthropicWith(&fakeMessages{resp: &sdk.Message{StopReason: "max_tokens"}}, "m")
	_, err := a.Generate(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)

	_, err = a.Generate(context.Background(), Request{Prompt: "p", Document: []byte("x"), DocumentMIME: "image/png"})
	assert.Error(t, err)

	boom := errors.New("boom")
	a = newAnthropicWith(&fakeMessages{err: boom}, "m")
	_, err = a.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, boom)
}

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	text     string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGemini_Generate(t *testing.T) {
	m := &fakeModels{text: ` {"ok":true} `}
	g := newGeminiWith(m, "")

	out, err := g.Generate(context.Background(), Request{
		System: "sys", Prompt: "p", JSON: true, Document: []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, defaultGeminiModel, m.model)
	assert.Equal(t, "application/json", m.config.ResponseMIMEType)
	require.NotNil(t, m.config.SystemInstruction)
	assert.Equal(t, "sys", m.config.SystemInstruction.Parts[0].Text)
	require.Len(t, m.contents, 1)
	require.Len(t, m.contents[0].Parts, 2)
	require.NotNil(t, m.contents[0].Parts[0].InlineData)
	assert.Equal(t, "application/pdf", m.contents[0].Parts[0].InlineData.MIMEType)
	assert.Equal(t, "p", m.contents[0].Parts[1].Text)
}

func TestGemini_Empty(t *testing.T) {
	g := newGeminiWith(&fakeModels{text: "  "}, "m")
	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)
}

package providers

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const (
	OpenAIDefaultSpeechModel = string(openai.SpeechModelTTS1HD)
	OpenAIDefaultVoice       = "onyx"
)

// Synthesize converts narration text to audio using the OpenAI speech API.
func (o *OpenAIBackend) Synthesize(ctx context.Context, model string, key types.ProviderKey, req *SpeechRequest) (*SpeechResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if model == "" {
		model = OpenAIDefaultSpeechModel
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = OpenAIDefaultVoice
	}

	format := normalizeOpenAIFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
	}
	if instructions := strings.TrimSpace(req.Instructions); instructions != "" && supportsInstructions(model) {
		params.Instructions = openai.String(instructions)
	}

	client := o.client(key)
	resp, err := client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, o.mapError(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading openai audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyPayload
	}
	return &SpeechResult{Audio: audio, Format: openAIResultFormat(format)}, nil
}

func supportsInstructions(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-4o-mini-tts")
}

func normalizeOpenAIFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

func openAIResultFormat(format openai.AudioSpeechNewParamsResponseFormat) string {
	switch format {
	case openai.AudioSpeechNewParamsResponseFormatOpus:
		return "opus"
	case openai.AudioSpeechNewParamsResponseFormatAAC:
		return "aac"
	case openai.AudioSpeechNewParamsResponseFormatFLAC:
		return "flac"
	case openai.AudioSpeechNewParamsResponseFormatWAV:
		return "wav"
	default:
		return "mp3"
	}
}

// Package gemini implements integration with Google's Gemini AI API.
// It provides conversational replies, image and document analysis,
// translation and speech recognition for the bot.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/result"
)

// Client defines the language-model operations used throughout the
// application. Every method reports Success, Empty (the model answered with
// nothing usable) or Failed (the call did not complete).
type Client interface {
	GenerateReply(ctx context.Context, history []database.Turn, mood, prompt string) result.Result[string]

	AnalyzeImage(ctx context.Context, mimeType string, data []byte) result.Result[string]

	AnalyzeDocument(ctx context.Context, filename, content string, truncated bool) result.Result[string]

	Translate(ctx context.Context, text, targetLang string) result.Result[string]

	Transcribe(ctx context.Context, mimeType string, audio []byte) result.Result[string]
}

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type sdkClient struct {
	generate          generateFunc
	log               *slog.Logger
	contentConfig     *genai.GenerateContentConfig
	modelName         string
	visionModelName   string
	systemInstruction string
	maxRetries        int
	retryDelay        time.Duration
	timeout           time.Duration
	now               func() time.Time
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return newSDKClient(gi.Models.GenerateContent, cfg, logger), nil
}

func newSDKClient(generate generateFunc, cfg config.GeminiConfig, log *slog.Logger) *sdkClient {
	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}

	vision := cfg.VisionModelName
	if vision == "" {
		vision = cfg.ModelName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &sdkClient{
		generate:          generate,
		log:               log,
		contentConfig:     baseCfg,
		modelName:         cfg.ModelName,
		visionModelName:   vision,
		systemInstruction: cfg.SystemInstruction,
		maxRetries:        cfg.MaxRetries,
		retryDelay:        time.Duration(cfg.RetryDelaySeconds) * time.Second,
		timeout:           timeout,
		now:               time.Now,
	}
}

// instruction builds the system instruction for a conversational reply.
func (c *sdkClient) instruction(mood string) string {
	base := c.systemInstruction
	if base == "" {
		base = fmt.Sprintf(DefaultSystemInstruction, c.now().Format("02.01.2006 15:04"))
	}
	if d := MoodDirective(mood); d != "" {
		base += "\n" + d
	}
	return base
}

func (c *sdkClient) withInstruction(text string) *genai.GenerateContentConfig {
	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = genai.NewContentFromText(text, genai.RoleUser)
	return &copyCfg
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	for i := 0; i <= c.maxRetries; i++ {
		var resp *genai.GenerateContentResponse
		resp, err = c.generate(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
				if werr := wait(ctx, c.retryDelay); werr != nil {
					return nil, fmt.Errorf("gemini API call interrupted: %w", werr)
				}
				continue
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// GenerateReply answers prompt in the context of history with the user's mood.
func (c *sdkClient) GenerateReply(ctx context.Context, history []database.Turn, mood, prompt string) result.Result[string] {
	c.log.DebugContext(ctx, "Generating reply", "history_length", len(history), "mood", mood)

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if t.Role == database.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, c.withInstruction(c.instruction(mood)))
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return result.Failed[string](err)
	}
	return c.extractTextFromResponse(ctx, "reply", resp)
}

// AnalyzeImage describes an image.
func (c *sdkClient) AnalyzeImage(ctx context.Context, mimeType string, data []byte) result.Result[string] {
	c.log.DebugContext(ctx, "Generating image analysis", "image_size", len(data), "mime_type", mimeType)
	if len(data) == 0 || mimeType == "" {
		return result.Failed[string](errors.New("image data and MIME type are required for analysis"))
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(ImagePrompt),
		genai.NewPartFromBytes(data, mimeType),
	}, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.visionModelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini image analysis failed", "error", err)
		return result.Failed[string](err)
	}
	return c.extractTextFromResponse(ctx, "image_analysis", resp)
}

// AnalyzeDocument summarizes extracted file content.
func (c *sdkClient) AnalyzeDocument(ctx context.Context, filename, content string, truncated bool) result.Result[string] {
	note := ""
	if truncated {
		note = DocumentTruncatedNote
	}
	prompt := fmt.Sprintf(DocumentPromptFmt, filename, content, note)
	c.log.DebugContext(ctx, "Generating document analysis", "filename", filename, "prompt_length", len(prompt))

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini document analysis failed", "filename", filename, "error", err)
		return result.Failed[string](err)
	}
	return c.extractTextFromResponse(ctx, "document_analysis", resp)
}

// Translate translates text into targetLang.
func (c *sdkClient) Translate(ctx context.Context, text, targetLang string) result.Result[string] {
	c.log.InfoContext(ctx, "Requesting translation via Gemini", "target", targetLang, "text_length", len(text))

	prompt := fmt.Sprintf(TranslatePromptFmt, targetLang, text)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini translation failed", "error", err)
		return result.Failed[string](err)
	}
	return c.extractTextFromResponse(ctx, "translation", resp)
}

// Transcribe converts a voice recording into text.
func (c *sdkClient) Transcribe(ctx context.Context, mimeType string, audio []byte) result.Result[string] {
	c.log.DebugContext(ctx, "Transcribing audio", "audio_size", len(audio), "mime_type", mimeType)
	if len(audio) == 0 {
		return result.Failed[string](errors.New("audio data is required for transcription"))
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(TranscribePrompt),
		genai.NewPartFromBytes(audio, mimeType),
	}, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini transcription failed", "error", err)
		return result.Failed[string](err)
	}
	return c.extractTextFromResponse(ctx, "transcription", resp)
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, op string, resp *genai.GenerateContentResponse) result.Result[string] {
	if resp == nil {
		return result.Failed[string](fmt.Errorf("%s returned no response", op))
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return result.Failed[string](fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonStop {
			return result.Failed[string](fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason))
		}
		return result.Empty[string]()
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return result.Empty[string]()
	}
	return result.Success(text)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
)

// Config selects the chat-completion endpoint and models.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	InsightsModel string
	Timeout       time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Coach turns call transcripts into agent feedback through an
// OpenAI-compatible chat-completion API.
type Coach struct {
	Client        *openai.Client
	Model         string
	InsightsModel string
	timeout       time.Duration
	logger        *zap.Logger
}

func NewCoach(cfg Config, l *zap.Logger) *Coach {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	insights := cfg.InsightsModel
	if insights == "" {
		insights = cfg.Model
	}
	return &Coach{
		Client:        openai.NewClientWithConfig(oc),
		Model:         cfg.Model,
		InsightsModel: insights,
		timeout:       cfg.Timeout,
		logger:        logger.Or(l).Named("llm"),
	}
}

const feedbackPrompt = `You are an expert contact center coach. Analyze this customer service call transcript and provide detailed coaching feedback.

Transcript: "%s"

You must respond with ONLY valid JSON in this exact format - no additional text, explanations, or formatting:

{
  "overallReview": "A short overall review of the agent's performance",
  "strengths": ["3-4 specific things the agent did well with examples"],
  "improvements": ["3-4 areas for improvement with specific examples"],
  "suggestions": ["4-5 actionable suggestions for future calls"],
  "overallScore": 85,
  "keyTakeaways": ["2-3 most important learning points"],
  "avatarScript": "A warm, encouraging 3-4 sentence script for the coaching avatar to deliver this feedback"
}

Focus on: Communication style, customer empathy, problem-solving approach, call resolution, and professional behavior. Be constructive and specific with examples from the transcript.

Respond with ONLY the JSON object - no other text.`

const insightsPrompt = `You are an AI assistant helping a contact center agent during a live call.
Analyze the current conversation and provide brief, actionable insights.

Current conversation transcript: "%s"
%s
Provide insights in this JSON format:
{
  "suggestions": ["2-3 brief suggestions for the agent"],
  "nextSteps": ["1-2 recommended next steps"],
  "customerSentiment": "positive|neutral|negative",
  "urgency": "low|medium|high"
}

Keep suggestions brief and actionable for real-time use.`

// GenerateFeedback asks the coaching model to review a finished call.
func (c *Coach) GenerateFeedback(ctx context.Context, transcript string) (model.CoachingFeedback, error) {
	if strings.TrimSpace(transcript) == "" {
		return model.CoachingFeedback{}, errors.New("empty transcript")
	}
	content, err := c.complete(ctx, c.Model, fmt.Sprintf(feedbackPrompt, transcript))
	if err != nil {
		return model.CoachingFeedback{}, err
	}

	var feedback model.CoachingFeedback
	if err := json.Unmarshal([]byte(CleanResponse(content)), &feedback); err != nil {
		c.logger.Warn("unparseable coaching response", zap.Int("length", len(content)), zap.Error(err))
		return model.CoachingFeedback{}, errors.Wrap(err, "decode coaching feedback")
	}
	return feedback, nil
}

// GenerateInsights returns live suggestions for an ongoing call. Any failure
// yields model.FallbackInsights.
func (c *Coach) GenerateInsights(ctx context.Context, transcript, extra string) model.Insights {
	var contextLine string
	if extra != "" {
		contextLine = "Additional context: " + extra + "\n"
	}
	content, err := c.complete(ctx, c.InsightsModel, fmt.Sprintf(insightsPrompt, transcript, contextLine))
	if err != nil {
		c.logger.Warn("insights unavailable, using fallback", zap.Error(err))
		return model.FallbackInsights()
	}

	var insights model.Insights
	if err := json.Unmarshal([]byte(CleanResponse(content)), &insights); err != nil {
		c.logger.Warn("unparseable insights, using fallback", zap.Error(err))
		return model.FallbackInsights()
	}
	return insights
}

func (c *Coach) complete(ctx context.Context, modelName, prompt string) (_ string, err error) {
	ctx, span := trace.StartSpan(ctx, "llm.chat_completion", trace.WithAttr(trace.AttrLLMModel, modelName))
	defer func() { trace.End(span, err) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "chat completion with %s", modelName)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Errorf("chat completion with %s returned no choices", modelName)
	}
	c.logger.Debug("chat completion done", zap.String("model", modelName), zap.Duration("took", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// CleanResponse strips reasoning blocks and keeps the outermost JSON object.
// Text without an object is returned trimmed.
func CleanResponse(content string) string {
	cleaned := thinkBlock.ReplaceAllString(content, "")
	if m := jsonObject.FindString(cleaned); m != "" {
		return m
	}
	return strings.TrimSpace(cleaned)
}

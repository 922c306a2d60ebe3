// Package vlm provides a client for interacting with vision language models.
package vlm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/log"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for a VLM client.
type Client interface {
	// GenerateCaption 对一件商品的合成图并行执行深度描述、颜色识别与文字提取三条链路。
	GenerateCaption(ctx context.Context, bundle *model.LLMInputBundle, category model.GarmentCategory, schema model.SizeSchema) (*model.CaptionResult, error)
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, writer MessageWriter) error
	// StreamChat 为单轮提问的便捷包装。
	StreamChat(ctx context.Context, prompt string, writer MessageWriter) error
}

type openAICompatibleClient struct {
	cfg    config.VLMConfig
	client *http.Client
}

// NewClient creates a new VLM client based on the provider in the config.
func NewClient(cfg config.VLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const deepCaptionPrompt = `You are a fashion product analyst. The image contains three tiles side by side:
a front shot, a back shot and a model shot of one %s garment. A fully black tile means that shot is missing.
Return a JSON object with exactly two keys:
"structured_attributes": an object describing silhouette, fit, neckline, sleeve, length, material look, pattern, detail elements;
"image_captions": an object with the string keys "clip_text_front", "design_details_description",
"style_vibe_description", "tpo_context_description" and "comprehensive_description".
"comprehensive_description" must merge every visual observation into one dense paragraph.`

const colorPrompt = `The image contains %d garment color variants tiled horizontally, in order from left to right.
For each tile return its dominant garment color. Return a JSON object:
{"color_info": [{"name": "<color name>", "hex": "<#RRGGBB>"}]} with exactly %d entries, left to right.`

const textPromptFull = `The image stacks product description pages vertically. Extract the text faithfully.
Return a JSON object with the keys "material", "size_detail", "care" and "description".
"size_detail" must be an object mapping size labels to their measurements.`

const textPromptNoSize = `The image stacks product description pages vertically. Extract the text faithfully.
Return a JSON object with the keys "material", "care" and "description". Do not invent size information.`

// GenerateCaption 并行执行三条识别链路，任一链路失败则整体失败。
func (c *openAICompatibleClient) GenerateCaption(ctx context.Context, bundle *model.LLMInputBundle, category model.GarmentCategory, schema model.SizeSchema) (*model.CaptionResult, error) {
	log.Infof("[VLMClient] 开始并行执行识别链路, category: %s, size_schema: %s", category, schema)

	result := &model.CaptionResult{}
	g, gctx := errgroup.WithContext(ctx)

	// 链路1: 深度描述
	g.Go(func() error {
		prompt := fmt.Sprintf(deepCaptionPrompt, category)
		raw, err := c.invokeJSON(gctx, prompt, bundle.DeepCaptionBlob)
		if err != nil {
			return fmt.Errorf("深度描述链路失败: %w", err)
		}
		var dc model.DeepCaption
		if err := json.Unmarshal(raw, &dc); err != nil {
			return fmt.Errorf("解析深度描述结果失败: %w", err)
		}
		if dc.ImageCaptions.ComprehensiveDescription == "" {
			return fmt.Errorf("深度描述结果缺少 comprehensive_description")
		}
		result.DeepCaption = &dc
		return nil
	})

	// 链路2: 颜色识别
	g.Go(func() error {
		prompt := fmt.Sprintf(colorPrompt, bundle.ColorVariantCount, bundle.ColorVariantCount)
		raw, err := c.invokeJSON(gctx, prompt, bundle.ColorImagesBlob)
		if err != nil {
			return fmt.Errorf("颜色识别链路失败: %w", err)
		}
		var ci model.ColorImages
		if err := json.Unmarshal(raw, &ci); err != nil {
			return fmt.Errorf("解析颜色识别结果失败: %w", err)
		}
		result.ColorImages = &ci
		return nil
	})

	// 链路3: 文字提取，没有文字图时跳过
	if bundle.TextImagesBlob != "" {
		g.Go(func() error {
			prompt := textPromptFull
			if schema == model.SizeSchemaNoSize {
				prompt = textPromptNoSize
			}
			raw, err := c.invokeJSON(gctx, prompt, bundle.TextImagesBlob)
			if err != nil {
				return fmt.Errorf("文字提取链路失败: %w", err)
			}
			var ti model.TextImages
			if err := json.Unmarshal(raw, &ti); err != nil {
				return fmt.Errorf("解析文字提取结果失败: %w", err)
			}
			result.TextImages = &ti
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorf("[VLMClient] 识别链路执行失败: %v", err)
		return nil, err
	}

	log.Info("[VLMClient] 全部识别链路执行成功")
	return result, nil
}

// invokeJSON 发送一次带图片的 JSON 模式对话请求，返回模型输出的原始 JSON。
func (c *openAICompatibleClient) invokeJSON(ctx context.Context, prompt, imageBase64 string) (json.RawMessage, error) {
	content := []contentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + imageBase64}},
	}

	reqBody := chatRequest{
		Model:          c.cfg.Model,
		Messages:       []Message{{Role: "user", Content: content}},
		Stream:         false,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if c.cfg.Temperature != 0 {
		t := c.cfg.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.MaxTokens != 0 {
		m := c.cfg.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("chat api returned no choices")
	}

	raw := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	// 部分模型会包一层 markdown 代码块
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return json.RawMessage(strings.TrimSpace(raw)), nil
}

// StreamChat calls the chat completions API and streams the response.
func (c *openAICompatibleClient) StreamChat(ctx context.Context, prompt string, writer MessageWriter) error {
	return c.StreamChatMessages(ctx, []Message{{Role: "user", Content: prompt}}, writer)
}

func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, writer MessageWriter) error {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	if c.cfg.Temperature != 0 {
		t := c.cfg.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.MaxTokens != 0 {
		m := c.cfg.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					return fmt.Errorf("failed to write message to websocket: %w", err)
				}
			}
		}
	}
	return nil
}

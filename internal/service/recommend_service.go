package service

import (
	"context"
	"encoding/json"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/repository"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/vlm"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// recommendTopK 是每轮推荐检索的候选商品数量。
const recommendTopK = 10

// RecommendService 定义了推荐对话操作的接口。
type RecommendService interface {
	StreamRecommendation(ctx context.Context, query, sessionID string, ws *websocket.Conn, shouldStop func() bool) error
}

type recommendService struct {
	searchService    SearchService
	vlmClient        vlm.Client
	conversationRepo repository.ConversationRepository
}

// NewRecommendService 创建一个新的 RecommendService 实例。
func NewRecommendService(searchService SearchService, vlmClient vlm.Client, conversationRepo repository.ConversationRepository) RecommendService {
	return &recommendService{
		searchService:    searchService,
		vlmClient:        vlmClient,
		conversationRepo: conversationRepo,
	}
}

// StreamRecommendation 协调一轮推荐对话：结合历史反馈改写查询、
// 向量检索候选商品、流式生成推荐语，并把本轮问答写入会话历史。
func (s *recommendService) StreamRecommendation(ctx context.Context, query, sessionID string, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 加载会话历史
	history, err := s.conversationRepo.GetConversationHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("[RecommendService] 加载会话历史失败: %v", err)
		history = []model.ChatMessage{}
	}

	// 2. 有历史反馈时先改写检索查询，把用户的偏好调整吸收进来
	searchQuery := query
	if len(history) > 0 {
		rewritten, err := s.rewriteQuery(ctx, history, query)
		if err != nil {
			log.Warnf("[RecommendService] 查询改写失败, 使用原始查询: %v", err)
		} else if rewritten != "" {
			log.Infof("[RecommendService] 查询改写: '%s' -> '%s'", query, rewritten)
			searchQuery = rewritten
		}
	}

	// 3. 检索候选商品
	searchResult, err := s.searchService.SearchByQuery(ctx, searchQuery, recommendTopK)
	if err != nil {
		return fmt.Errorf("failed to retrieve candidates: %w", err)
	}

	// 4. 组装消息并流式生成推荐语
	systemMsg := s.buildSystemMessage(searchResult.Data)
	messages := s.composeMessages(systemMsg, history, query)

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}
	if err := s.vlmClient.StreamChatMessages(ctx, messages, interceptor); err != nil {
		return err
	}

	// 5. 发送完成通知，并把本轮问答保存到会话历史
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，即使原始请求被取消也要保存成功生成的答案
		if err := s.conversationRepo.AppendConversation(context.Background(), sessionID, query, fullAnswer); err != nil {
			// 只记录错误，不返回给客户端，流式响应已经成功
			log.Errorf("[RecommendService] 保存会话历史失败: %v", err)
		}
	}

	return nil
}

// rewriteQuery 用历史对话改写本轮检索查询，使连续反馈（例如"颜色再深一点"）
// 能落到检索条件上。
func (s *recommendService) rewriteQuery(ctx context.Context, history []model.ChatMessage, query string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("You rewrite a fashion search query. Given the conversation so far and the user's new message, ")
	prompt.WriteString("produce one standalone search query that reflects all accumulated preferences. ")
	prompt.WriteString("Answer with the query text only.\n\nConversation:\n")
	for _, m := range history {
		prompt.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}
	prompt.WriteString("New message: " + query)

	capture := &builderWriter{}
	if err := s.vlmClient.StreamChat(ctx, prompt.String(), capture); err != nil {
		return "", err
	}
	return strings.TrimSpace(capture.sb.String()), nil
}

// buildSystemMessage 把候选商品压成 system 消息中的上下文。
func (s *recommendService) buildSystemMessage(hits []model.SearchHit) string {
	var sys strings.Builder
	sys.WriteString("You are a fashion shopping assistant. Recommend garments from the candidate list below, ")
	sys.WriteString("referring to them by product id. If no candidate fits, say so honestly.\n\nCandidates:\n")
	if len(hits) == 0 {
		sys.WriteString("(no results this round)\n")
		return sys.String()
	}
	for i, hit := range hits {
		sys.WriteString(fmt.Sprintf("[%d] product_id=%s, category=%s/%d, score=%.4f\n",
			i+1, hit.ProductID, hit.MainCategory, hit.SubCategory, hit.Score))
	}
	return sys.String()
}

func (s *recommendService) composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []vlm.Message {
	msgs := make([]vlm.Message, 0, len(history)+2)
	msgs = append(msgs, vlm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, vlm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, vlm.Message{Role: "user", Content: userInput})
	return msgs
}

// builderWriter 把流式分块收集到内存，用于非下发场景（查询改写）。
type builderWriter struct {
	sb strings.Builder
}

// WriteMessage 满足 vlm.MessageWriter 接口。
func (w *builderWriter) WriteMessage(_ int, data []byte) error {
	w.sb.Write(data)
	return nil
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 vlm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

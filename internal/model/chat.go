package model

import "time"

// ChatMessage 是推荐对话中的一条角色消息。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

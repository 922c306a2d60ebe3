package handler

import (
	"fashion-curation-go/pkg/kafka"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/tasks"
	"fashion-curation-go/pkg/token"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHandler 提供管理员触发加工管道的接口。
// 触发只是向消息队列投递一个任务，实际执行由消费者完成。
type AdminHandler struct{}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// triggerRequest 是管道触发请求体。sub_category 为 0 时使用配置默认值。
type triggerRequest struct {
	SubCategory int `json:"sub_category"`
}

// TriggerCaptionPass 投递一个描述生成任务。
func (h *AdminHandler) TriggerCaptionPass(c *gin.Context) {
	h.trigger(c, tasks.TaskTypeCaption)
}

// TriggerEmbeddingPass 投递一个向量化任务。
func (h *AdminHandler) TriggerEmbeddingPass(c *gin.Context) {
	h.trigger(c, tasks.TaskTypeEmbedding)
}

func (h *AdminHandler) trigger(c *gin.Context, taskType string) {
	var req triggerRequest
	// 请求体可以为空，绑定失败按零值处理
	_ = c.ShouldBindJSON(&req)

	triggeredBy := ""
	if value, exists := c.Get("claims"); exists {
		if claims, ok := value.(*token.CustomClaims); ok {
			triggeredBy = claims.Subject
		}
	}

	task := tasks.PipelineTask{
		TaskID:      token.GenerateRandomString(16),
		TaskType:    taskType,
		SubCategory: req.SubCategory,
		TriggeredBy: triggeredBy,
	}
	if err := kafka.ProducePipelineTask(task); err != nil {
		log.Errorf("[AdminHandler] 投递管道任务失败, type: %s, error: %v", taskType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务投递失败"})
		return
	}

	log.Infof("[AdminHandler] 管道任务已投递, task_id: %s, type: %s, sub_category: %d, by: %s",
		task.TaskID, taskType, req.SubCategory, triggeredBy)
	c.JSON(http.StatusAccepted, gin.H{"code": 202, "data": gin.H{"task_id": task.TaskID}, "message": "任务已投递"})
}

// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 任务类型，决定消费者触发哪一条加工流程。
const (
	TaskTypeCaption   = "caption"
	TaskTypeEmbedding = "embedding"
)

// PipelineTask represents the data structure for a pipeline run job.
// TaskID 用于失败重试计数，SubCategory 为 0 时使用配置中的默认分类。
type PipelineTask struct {
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	SubCategory int    `json:"sub_category"`
	TriggeredBy string `json:"triggered_by"`
}

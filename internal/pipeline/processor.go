package pipeline

import (
	"context"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/tasks"
	"fmt"
)

// Process 实现 kafka.TaskProcessor 接口，把消息队列任务分发到对应的批次。
func (o *Orchestrator) Process(ctx context.Context, task tasks.PipelineTask) error {
	switch task.TaskType {
	case tasks.TaskTypeCaption:
		_, err := o.RunCaptionPass(ctx, task.SubCategory)
		return err
	case tasks.TaskTypeEmbedding:
		_, err := o.RunEmbeddingPass(ctx)
		return err
	default:
		return fmt.Errorf("%w: 未知的任务类型 %q", model.ErrValidation, task.TaskType)
	}
}

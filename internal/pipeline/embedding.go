package pipeline

import (
	"context"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/log"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RunEmbeddingPass 把所有处于 CA_COMP 阶段的文档向量化并推进到 EB_COMP。
// 采用生产者/消费者结构：生产者按页拉取游标填充有界队列，固定数量的
// 消费者从队列取文档调用嵌入服务。队列深度对生产者形成天然背压，
// 游标速度与嵌入吞吐互不影响。
func (o *Orchestrator) RunEmbeddingPass(ctx context.Context) (*RunSummary, error) {
	log.Info("[Orchestrator] 开始向量化批次")

	queueSize := o.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	numConsumers := o.cfg.NumConsumers
	if numConsumers <= 0 {
		numConsumers = 10
	}

	queue := make(chan *model.ProductDocument, queueSize)
	var total, success, fail int64
	var producerErr error

	// 生产者：按 keyset 游标分页拉取 CA_COMP 文档
	go func() {
		defer close(queue)
		cursor := ""
		for {
			docs, err := o.docRepo.FindPageByDataStatus(ctx, model.StatusCaptionCompleted, cursor, o.cfg.PageSize)
			if err != nil {
				producerErr = fmt.Errorf("拉取待向量化文档失败: %w", err)
				return
			}
			if len(docs) == 0 {
				return
			}
			for _, doc := range docs {
				select {
				case queue <- doc:
				case <-ctx.Done():
					producerErr = ctx.Err()
					return
				}
			}
			cursor = docs[len(docs)-1].ProductID
		}
	}()

	// 消费者池
	var wg sync.WaitGroup
	for i := 0; i < numConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range queue {
				atomic.AddInt64(&total, 1)
				if err := o.embedDocument(ctx, doc); err != nil {
					atomic.AddInt64(&fail, 1)
					log.Errorf("[Orchestrator] 文档向量化失败, product_id: %s, error: %v", doc.ProductID, err)
					continue
				}
				atomic.AddInt64(&success, 1)
			}
		}()
	}
	wg.Wait()

	if producerErr != nil {
		return nil, producerErr
	}

	summary := &RunSummary{Total: int(total), Success: int(success), Fail: int(fail)}
	log.Infof("[Orchestrator] 向量化批次结束, total: %d, success: %d, fail: %d",
		summary.Total, summary.Success, summary.Fail)
	return summary, nil
}

// embedDocument 对单个文档的综合描述做向量化，并通过一次部分更新
// 写入嵌入条目与 EB_COMP 阶段。
func (o *Orchestrator) embedDocument(ctx context.Context, doc *model.ProductDocument) error {
	if doc.CaptionInfo == nil || doc.CaptionInfo.DeepCaption == nil {
		return fmt.Errorf("%w: 文档缺少描述结果", model.ErrDataIntegrity)
	}
	text := doc.CaptionInfo.DeepCaption.ImageCaptions.ComprehensiveDescription
	if text == "" {
		return fmt.Errorf("%w: 综合描述为空", model.ErrDataIntegrity)
	}

	// 调用嵌入服务，受全局出站信号量约束
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("获取出站信号量失败: %w", err)
	}
	result, err := o.embedder.CreateEmbedding(ctx, []string{text})
	o.sem.Release(1)
	if err != nil {
		return fmt.Errorf("嵌入调用失败: %w", err)
	}

	entry := model.EmbeddingEntry{
		ModelName:   result.ModelName,
		Dimensions:  result.Dimensions,
		Vector:      result.Embeddings[0],
		Status:      model.CaptionStatusCompleted,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	update := &model.DocumentUpdate{
		Embedding:  map[string]model.EmbeddingEntry{model.EmbeddingFieldComprehensive: entry},
		DataStatus: model.StatusEmbeddingCompleted,
	}
	if err := o.docRepo.UpdateByID(ctx, doc.ProductID, update); err != nil {
		return fmt.Errorf("持久化嵌入结果失败: %w", err)
	}
	if err := o.sourceRepo.UpdateDataStatus(ctx, doc.ProductID, model.StatusEmbeddingCompleted); err != nil {
		return fmt.Errorf("推进源表阶段失败: %w", err)
	}
	return nil
}

package pipeline

import (
	"context"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/repository"
	"fashion-curation-go/pkg/embedding"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/vlm"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// RunSummary 是一次管道运行的汇总结果。
type RunSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// Orchestrator 驱动产品记录沿阶段状态机前进。
// 描述生成批次按页扫描源表，页内记录全部并发处理，
// 一页完全结束后才拉取下一页；对外部模型的并发请求数由信号量统一封顶。
type Orchestrator struct {
	sourceRepo repository.SourceRepository
	docRepo    repository.DocumentRepository
	resolver   *AssetResolver
	downloader *Downloader
	assembler  *Assembler
	captioner  vlm.Client
	embedder   embedding.Client
	sem        *semaphore.Weighted
	cfg        config.PipelineConfig
}

// NewOrchestrator 创建一个新的 Orchestrator 实例，所有依赖由构造注入。
func NewOrchestrator(
	sourceRepo repository.SourceRepository,
	docRepo repository.DocumentRepository,
	downloader *Downloader,
	captioner vlm.Client,
	embedder embedding.Client,
	cfg config.PipelineConfig,
) *Orchestrator {
	maxOutbound := cfg.MaxOutboundRequests
	if maxOutbound <= 0 {
		maxOutbound = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Orchestrator{
		sourceRepo: sourceRepo,
		docRepo:    docRepo,
		resolver:   NewAssetResolver(),
		downloader: downloader,
		assembler:  NewAssembler(cfg.TargetImageSize),
		captioner:  captioner,
		embedder:   embedder,
		sem:        semaphore.NewWeighted(int64(maxOutbound)),
		cfg:        cfg,
	}
}

// RunCaptionPass 对指定子分类下所有处于 RE_COMP 阶段的记录生成描述。
// 单条记录的失败只计数，不影响同页的其他记录；失败记录停留在原阶段，
// 下一次运行会重新选中它。
func (o *Orchestrator) RunCaptionPass(ctx context.Context, subCategory int) (*RunSummary, error) {
	if subCategory == 0 {
		subCategory = o.cfg.SubCategory
	}
	log.Infof("[Orchestrator] 开始描述生成批次, sub_category: %d", subCategory)

	var total, success, fail int64
	cursor := ""
	for {
		page, err := o.sourceRepo.ScanPage(ctx, subCategory, model.StatusRepresentative, cursor, o.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("扫描源表失败: %w", err)
		}
		if page.Count == 0 {
			break
		}
		log.Infof("[Orchestrator] 拉取到一页记录, 数量: %d", page.Count)

		// 页内全部并发，页间严格串行
		var wg sync.WaitGroup
		for _, item := range page.Items {
			item := item
			wg.Add(1)
			go func() {
				defer wg.Done()
				atomic.AddInt64(&total, 1)
				if err := o.processRecord(ctx, item); err != nil {
					atomic.AddInt64(&fail, 1)
					log.Errorf("[Orchestrator] 记录处理失败, product_id: %s, error: %v", item.ProductID, err)
					return
				}
				atomic.AddInt64(&success, 1)
			}()
		}
		wg.Wait()

		cursor = page.Items[page.Count-1].ProductID
	}

	summary := &RunSummary{Total: int(total), Success: int(success), Fail: int(fail)}
	log.Infof("[Orchestrator] 描述生成批次结束, total: %d, success: %d, fail: %d",
		summary.Total, summary.Success, summary.Fail)
	return summary, nil
}

// processRecord 驱动一条记录走完描述生成链路。
// 描述结果与阶段推进在文档库中由同一次部分更新落地，要么都发生要么都不发生。
func (o *Orchestrator) processRecord(ctx context.Context, src *model.ProductSource) error {
	// 1. 归一化
	rec, err := src.Normalize()
	if err != nil {
		return err
	}

	// 2. 分类标签
	category := model.GarmentCategoryOf(rec.MainCategory)

	// 3. 解析图片描述符
	resolved := o.resolver.Resolve(rec)
	if !resolved.Success {
		return fmt.Errorf("%w: 图片解析失败", model.ErrValidation)
	}

	// 4. 并发下载解码
	decodeFailures := o.downloader.Fetch(ctx, resolved.Images)

	// 5. 合成载荷
	bundle, err := o.assembler.Assemble(resolved.Images, decodeFailures)
	if err != nil {
		return err
	}

	// 6. has_size 预检：查询失败时保守取 false，使用不含尺寸的 OCR 模式
	hasSize := o.lookupHasSize(ctx, rec.ProductID)

	// 7. 调用描述引擎，受全局出站信号量约束
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("获取出站信号量失败: %w", err)
	}
	result, err := o.captioner.GenerateCaption(ctx, bundle, category, model.SizeSchemaOf(hasSize))
	o.sem.Release(1)
	if err != nil {
		return fmt.Errorf("描述生成失败: %w", err)
	}

	// 8. 颜色变体数量校验：第 N 个颜色条目必须对应第 N 张变体图
	if result.ColorImages == nil || len(result.ColorImages.ColorInfo) != bundle.ColorVariantCount {
		got := 0
		if result.ColorImages != nil {
			got = len(result.ColorImages.ColorInfo)
		}
		return fmt.Errorf("%w: 颜色条目数 %d 与变体图数 %d 不一致", model.ErrDataIntegrity, got, bundle.ColorVariantCount)
	}
	variantPaths := sortedColorVariantPaths(rec)
	for i := range result.ColorImages.ColorInfo {
		result.ColorImages.ColorInfo[i].ImagePath = variantPaths[i]
	}

	// 9. 一次部分更新持久化描述并推进阶段
	captionInfo := &model.CaptionInfo{
		CaptionStatus: model.CaptionStatusCompleted,
		DeepCaption:   result.DeepCaption,
		ColorImages:   result.ColorImages,
		TextImages:    result.TextImages,
	}
	update := &model.DocumentUpdate{
		CaptionInfo: captionInfo,
		DataStatus:  model.StatusCaptionCompleted,
	}
	if err := o.docRepo.UpdateByID(ctx, rec.ProductID, update); err != nil {
		return fmt.Errorf("持久化描述结果失败: %w", err)
	}
	if err := o.sourceRepo.UpdateDataStatus(ctx, rec.ProductID, model.StatusCaptionCompleted); err != nil {
		return fmt.Errorf("推进源表阶段失败: %w", err)
	}

	log.Infof("[Orchestrator] 记录描述生成完成, product_id: %s, color_variants: %d",
		rec.ProductID, bundle.ColorVariantCount)
	return nil
}

// lookupHasSize 从文档库读取该产品是否已有详细尺寸信息。
func (o *Orchestrator) lookupHasSize(ctx context.Context, productID string) bool {
	doc, err := o.docRepo.FindByID(ctx, productID)
	if err != nil {
		log.Warnf("[Orchestrator] has_size 预检查询失败, product_id: %s, 默认为 false: %v", productID, err)
		return false
	}
	return doc.HasSize()
}

// sortedColorVariantPaths 返回按相对路径排序的颜色变体路径，
// 与合成图中的瓦片顺序一致。
func sortedColorVariantPaths(rec *model.Record) []string {
	paths, _ := asStringList(rec.RepresentativeAssets[string(model.RoleColorVariant)])
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	return sorted
}

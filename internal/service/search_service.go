// Package service 提供了检索与推荐相关的业务逻辑。
package service

import (
	"context"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/repository"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/pkg/embedding"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/storage"
	"fmt"
	"time"
)

// 预签名链接的有效期与缓存时长，缓存必须早于链接本身过期。
const (
	presignExpiry   = time.Hour
	presignCacheTTL = 45 * time.Minute
)

// SearchService 接口定义了向量检索操作。
type SearchService interface {
	SearchByQuery(ctx context.Context, query string, limit int) (*model.SearchResult, error)
}

type searchService struct {
	embeddingClient embedding.Client
	docRepo         repository.DocumentRepository
	queryBuilder    *search.VectorQueryBuilder
	blobStore       storage.BlobStore
	presignCache    repository.PresignCache
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(
	embeddingClient embedding.Client,
	docRepo repository.DocumentRepository,
	queryBuilder *search.VectorQueryBuilder,
	blobStore storage.BlobStore,
	presignCache repository.PresignCache,
) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		docRepo:         docRepo,
		queryBuilder:    queryBuilder,
		blobStore:       blobStore,
		presignCache:    presignCache,
	}
}

// SearchByQuery 执行文本到商品的向量检索。
// 嵌入或存储失败作为整体失败返回；单个命中的图片链接生成失败
// 只把该命中的 image_url 置为 null，不影响整个检索。
func (s *searchService) SearchByQuery(ctx context.Context, query string, limit int) (*model.SearchResult, error) {
	log.Infof("[SearchService] 开始执行向量检索, query: '%s', limit: %d", query, limit)

	// 1. 向量化查询文本
	log.Info("[SearchService] 步骤1: 开始向量化查询")
	embedResult, err := s.embeddingClient.CreateEmbedding(ctx, []string{query})
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	queryVector := embedResult.Embeddings[0]
	log.Infof("[SearchService] 步骤1: 向量化查询成功, 向量维度: %d", len(queryVector))

	// 2. 构建检索描述
	log.Info("[SearchService] 步骤2: 构建向量检索描述")
	spec, err := s.queryBuilder.Build(queryVector, limit, nil)
	if err != nil {
		return nil, err
	}

	// 3. 执行检索
	log.Info("[SearchService] 步骤3: 执行向量检索")
	hits, err := s.docRepo.VectorSearch(ctx, spec)
	if err != nil {
		log.Errorf("[SearchService] 向量检索执行失败: %v", err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	log.Infof("[SearchService] 步骤3: 检索到 %d 条命中", len(hits))

	// 4. 为每条命中生成代表图的预签名链接
	log.Info("[SearchService] 步骤4: 为命中生成预签名图片链接")
	for i := range hits {
		hits[i].ImageURL = s.resolveImageURL(ctx, &hits[i])
	}

	result := &model.SearchResult{
		Query:      query,
		Data:       hits,
		TotalCount: len(hits),
		Message:    "success",
	}
	log.Infof("[SearchService] 向量检索执行完毕, query: '%s', 返回 %d 条", query, result.TotalCount)
	return result, nil
}

// resolveImageURL 用命中的第一张颜色变体图生成预签名链接。
// 缺少拼接对象键所需字段时返回 nil，由调用方呈现为 null。
// 预签名结果在 Redis 中短期缓存，避免热门商品重复签名。
func (s *searchService) resolveImageURL(ctx context.Context, hit *model.SearchHit) *string {
	if hit.ProductID == "" || hit.MainCategory == "" ||
		hit.RepresentativeAssets == nil || len(hit.RepresentativeAssets.ColorVariant) == 0 {
		log.Warnf("[SearchService] 命中缺少拼接对象键所需字段, product_id: %s", hit.ProductID)
		return nil
	}

	objectKey := model.BuildObjectKey(hit.MainCategory, hit.SubCategory, hit.ProductID, hit.RepresentativeAssets.ColorVariant[0])

	if cached, ok := s.presignCache.GetURL(ctx, objectKey); ok {
		return &cached
	}

	url, err := s.blobStore.PresignedURL(objectKey, presignExpiry)
	if err != nil {
		log.Warnf("[SearchService] 生成预签名链接失败, object_key: %s, error: %v", objectKey, err)
		return nil
	}
	if err := s.presignCache.SetURL(ctx, objectKey, url, presignCacheTTL); err != nil {
		log.Warnf("[SearchService] 缓存预签名链接失败, object_key: %s, error: %v", objectKey, err)
	}
	return &url
}

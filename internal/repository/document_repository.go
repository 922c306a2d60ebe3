package repository

import (
	"context"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/pkg/log"

	"gorm.io/gorm"
)

// 文档库后端类型。
const (
	BackendLocal = "local"
	BackendCloud = "cloud"
)

// DocumentRepository 接口定义了产品文档库的读写与向量检索操作。
// local 后端使用 MySQL JSON 列（开发环境），cloud 后端使用 Elasticsearch，
// 两者对上层暴露完全一致的语义。
type DocumentRepository interface {
	FindByID(ctx context.Context, productID string) (*model.ProductDocument, error)
	// UpdateByID 对一个文档做部分更新，update 中的全部字段在同一次
	// 存储请求内生效，不存在中间可见状态。
	UpdateByID(ctx context.Context, productID string, update *model.DocumentUpdate) error
	// FindPageByDataStatus 按阶段分页拉取文档，afterProductID 为 keyset 游标。
	FindPageByDataStatus(ctx context.Context, status model.DataStatus, afterProductID string, pageSize int) ([]*model.ProductDocument, error)
	VectorSearch(ctx context.Context, spec *search.VectorSearchSpec) ([]model.SearchHit, error)
}

// NewDocumentRepository 根据配置选择文档库后端。
func NewDocumentRepository(cfg config.StoreConfig, db *gorm.DB, esCfg config.ElasticsearchConfig) DocumentRepository {
	if cfg.Backend == BackendCloud {
		log.Infof("[DocumentRepository] 使用 cloud 后端 (Elasticsearch), index: %s", esCfg.IndexName)
		return newESDocumentRepository(esCfg)
	}
	log.Info("[DocumentRepository] 使用 local 后端 (MySQL)")
	return newLocalDocumentRepository(db)
}

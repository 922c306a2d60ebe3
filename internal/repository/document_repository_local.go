package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/search"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"
)

// localDocumentRepository 是 DocumentRepository 接口的 MySQL 实现，
// 面向开发环境：文档存为 JSON 列，向量检索为内存中的暴力余弦扫描。
type localDocumentRepository struct {
	db *gorm.DB
}

func newLocalDocumentRepository(db *gorm.DB) DocumentRepository {
	return &localDocumentRepository{db: db}
}

// FindByID 根据产品 ID 检索一个文档。
func (r *localDocumentRepository) FindByID(ctx context.Context, productID string) (*model.ProductDocument, error) {
	var row model.ProductDocumentRow
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 文档 %s 不存在", model.ErrValidation, productID)
		}
		return nil, err
	}
	return row.ToDocument()
}

// UpdateByID 把 update 中的字段编码为 JSON 列，在一条 UPDATE 语句内写入。
func (r *localDocumentRepository) UpdateByID(ctx context.Context, productID string, update *model.DocumentUpdate) error {
	columns := map[string]interface{}{}
	if update.CaptionInfo != nil {
		captionBytes, err := json.Marshal(update.CaptionInfo)
		if err != nil {
			return fmt.Errorf("编码 caption_info 失败: %w", err)
		}
		columns["caption_info"] = string(captionBytes)
	}
	if update.Embedding != nil {
		embeddingBytes, err := json.Marshal(update.Embedding)
		if err != nil {
			return fmt.Errorf("编码 embedding 失败: %w", err)
		}
		columns["embedding"] = string(embeddingBytes)
	}
	if update.DataStatus != "" {
		if err := model.ValidateStatus(update.DataStatus); err != nil {
			return err
		}
		columns["data_status"] = update.DataStatus
	}
	if len(columns) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&model.ProductDocumentRow{}).
		Where("product_id = ?", productID).
		Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	// Updates 对零行匹配不报错，必须显式检查，否则调用方会把
	// 未落地的写入当作成功继续推进阶段
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: 文档 %s 不存在", model.ErrValidation, productID)
	}
	return nil
}

// FindPageByDataStatus 按阶段分页拉取文档，以 product_id 升序做 keyset 游标。
func (r *localDocumentRepository) FindPageByDataStatus(ctx context.Context, status model.DataStatus, afterProductID string, pageSize int) ([]*model.ProductDocument, error) {
	if err := model.ValidateStatus(status); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Where("data_status = ?", status)
	if afterProductID != "" {
		query = query.Where("product_id > ?", afterProductID)
	}

	var rows []model.ProductDocumentRow
	if err := query.Order("product_id asc").Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("分页查询文档表失败: %w", err)
	}

	docs := make([]*model.ProductDocument, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].ToDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// VectorSearch 扫描已向量化的全部文档做余弦相似度排序。
// 数据量受开发环境约束，全量扫描可接受。
func (r *localDocumentRepository) VectorSearch(ctx context.Context, spec *search.VectorSearchSpec) ([]model.SearchHit, error) {
	var rows []model.ProductDocumentRow
	err := r.db.WithContext(ctx).
		Where("data_status IN ?", []model.DataStatus{model.StatusEmbeddingCompleted, model.StatusCloudMigrated}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("加载候选文档失败: %w", err)
	}

	type scored struct {
		doc   *model.ProductDocument
		score float64
	}
	candidates := make([]scored, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].ToDocument()
		if err != nil {
			return nil, err
		}
		if !matchFilter(doc, spec.Filter) {
			continue
		}
		entry, ok := doc.Embedding[model.EmbeddingFieldComprehensive]
		if !ok || len(entry.Vector) != len(spec.QueryVector) {
			continue
		}
		score, ok := cosineSimilarity(spec.QueryVector, entry.Vector)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > spec.TopK {
		candidates = candidates[:spec.TopK]
	}

	hits := make([]model.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, model.SearchHit{
			ProductID:            c.doc.ProductID,
			MainCategory:         c.doc.MainCategory,
			SubCategory:          c.doc.SubCategory,
			RepresentativeAssets: c.doc.RepresentativeAssets,
			Score:                c.score,
		})
	}
	return hits, nil
}

// matchFilter 对文档应用前置过滤条件，未知字段视为不匹配。
func matchFilter(doc *model.ProductDocument, filter map[string]interface{}) bool {
	for field, value := range filter {
		switch field {
		case "main_category":
			if fmt.Sprintf("%v", value) != doc.MainCategory {
				return false
			}
		case "sub_category":
			if fmt.Sprintf("%v", value) != fmt.Sprintf("%v", doc.SubCategory) {
				return false
			}
		case "data_status":
			if fmt.Sprintf("%v", value) != string(doc.DataStatus) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// cosineSimilarity 计算两个向量的余弦相似度，零向量返回 false。
func cosineSimilarity(a, b []float32) (float64, bool) {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// Package search 提供向量检索查询的构建逻辑。
// 此包只负责构建，不执行任何网络或存储操作。
package search

import (
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fmt"
)

// projectionFields 是检索结果的字段白名单。嵌入向量与完整描述内容
// 体积很大且对调用方无用，永远不随命中返回。
var projectionFields = []string{
	"product_id",
	"main_category",
	"sub_category",
	"representative_assets",
}

// VectorSearchSpec 是一次向量检索的完整描述，由执行方翻译为具体后端的查询。
type VectorSearchSpec struct {
	QueryVector   []float32
	TopK          int
	NumCandidates int
	IndexName     string
	FieldPath     string
	// Filter 是可选的前置过滤条件，字段名到精确值的映射。
	Filter map[string]interface{}
}

// VectorQueryBuilder 根据配置默认值构建向量检索查询。
type VectorQueryBuilder struct {
	cfg  config.VectorSearchConfig
	dims int
}

// NewVectorQueryBuilder 创建一个查询构建器。
// dims 是嵌入模型的向量维度，作为查询向量的校验基准。
func NewVectorQueryBuilder(cfg config.VectorSearchConfig, dims int) *VectorQueryBuilder {
	return &VectorQueryBuilder{cfg: cfg, dims: dims}
}

// Build 校验参数并产出检索描述。维度不匹配的查询向量在此被拒绝，
// 避免把必然失败的请求发往存储后端。
func (b *VectorQueryBuilder) Build(queryVector []float32, topK int, filter map[string]interface{}) (*VectorSearchSpec, error) {
	if len(queryVector) != b.dims {
		return nil, fmt.Errorf("%w: 查询向量维度 %d 与索引维度 %d 不一致", model.ErrValidation, len(queryVector), b.dims)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK 必须为正数, 实际为 %d", model.ErrValidation, topK)
	}

	numCandidates := b.cfg.NumCandidates
	if numCandidates < topK {
		numCandidates = topK * 15
	}

	return &VectorSearchSpec{
		QueryVector:   queryVector,
		TopK:          topK,
		NumCandidates: numCandidates,
		IndexName:     b.cfg.IndexName,
		FieldPath:     b.cfg.FieldPath,
		Filter:        filter,
	}, nil
}

// BuildRequestBody 把检索描述翻译为 Elasticsearch 的 knn 查询体。
func BuildRequestBody(spec *VectorSearchSpec) map[string]interface{} {
	knn := map[string]interface{}{
		"field":          spec.FieldPath,
		"query_vector":   spec.QueryVector,
		"k":              spec.TopK,
		"num_candidates": spec.NumCandidates,
	}
	if len(spec.Filter) > 0 {
		terms := make([]map[string]interface{}, 0, len(spec.Filter))
		for field, value := range spec.Filter {
			terms = append(terms, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": terms},
		}
	}

	return map[string]interface{}{
		"knn":     knn,
		"_source": projectionFields,
		"size":    spec.TopK,
	}
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/pkg/es"
	"fashion-curation-go/pkg/log"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esDocumentRepository 是 DocumentRepository 接口的 Elasticsearch 实现。
// product_id 同时作为文档 _id，knn 检索直接由 ES 执行。
type esDocumentRepository struct {
	indexName string
}

func newESDocumentRepository(esCfg config.ElasticsearchConfig) DocumentRepository {
	return &esDocumentRepository{indexName: esCfg.IndexName}
}

// FindByID 根据产品 ID 检索一个文档。
func (r *esDocumentRepository) FindByID(ctx context.Context, productID string) (*model.ProductDocument, error) {
	req := esapi.GetRequest{
		Index:      r.indexName,
		DocumentID: productID,
	}
	res, err := req.Do(ctx, es.ESClient)
	if err != nil {
		return nil, fmt.Errorf("查询文档失败 (product_id=%s): %w", productID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: 文档 %s 不存在", model.ErrValidation, productID)
	}
	if res.IsError() {
		return nil, fmt.Errorf("查询文档时 Elasticsearch 返回错误: %s", res.String())
	}

	var envelope struct {
		Source model.ProductDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("解析文档响应失败 (product_id=%s): %w", productID, err)
	}
	return &envelope.Source, nil
}

// UpdateByID 把 update 中的字段合并为一个 partial doc，单次请求写入。
func (r *esDocumentRepository) UpdateByID(ctx context.Context, productID string, update *model.DocumentUpdate) error {
	partial := map[string]interface{}{}
	if update.CaptionInfo != nil {
		partial["caption_info"] = update.CaptionInfo
	}
	if update.Embedding != nil {
		partial["embedding"] = update.Embedding
	}
	if update.DataStatus != "" {
		if err := model.ValidateStatus(update.DataStatus); err != nil {
			return err
		}
		partial["data_status"] = update.DataStatus
	}
	if len(partial) == 0 {
		return nil
	}
	return es.UpdateDocument(ctx, r.indexName, productID, partial)
}

// FindPageByDataStatus 按阶段分页拉取文档，以 product_id 升序做 keyset 游标。
func (r *esDocumentRepository) FindPageByDataStatus(ctx context.Context, status model.DataStatus, afterProductID string, pageSize int) ([]*model.ProductDocument, error) {
	if err := model.ValidateStatus(status); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"data_status": string(status)},
		},
		"sort": []map[string]interface{}{
			{"product_id": map[string]interface{}{"order": "asc"}},
		},
		"size": pageSize,
	}
	if afterProductID != "" {
		body["search_after"] = []interface{}{afterProductID}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("序列化分页查询失败: %w", err)
	}

	res, err := es.ESClient.Search(
		es.ESClient.Search.WithContext(ctx),
		es.ESClient.Search.WithIndex(r.indexName),
		es.ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("分页查询 Elasticsearch 失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("分页查询时 Elasticsearch 返回错误: %s", string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ProductDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析分页查询响应失败: %w", err)
	}

	docs := make([]*model.ProductDocument, 0, len(esResponse.Hits.Hits))
	for i := range esResponse.Hits.Hits {
		docs = append(docs, &esResponse.Hits.Hits[i].Source)
	}
	return docs, nil
}

// VectorSearch 把检索描述翻译为 knn 查询并执行。
func (r *esDocumentRepository) VectorSearch(ctx context.Context, spec *search.VectorSearchSpec) ([]model.SearchHit, error) {
	body := search.BuildRequestBody(spec)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("序列化 knn 查询失败: %w", err)
	}

	indexName := spec.IndexName
	if indexName == "" {
		indexName = r.indexName
	}

	res, err := es.ESClient.Search(
		es.ESClient.Search.WithContext(ctx),
		es.ESClient.Search.WithIndex(indexName),
		es.ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[DocumentRepository] 向 Elasticsearch 发送 knn 查询失败: %v", err)
		return nil, fmt.Errorf("elasticsearch knn search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[DocumentRepository] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ProductDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析 knn 查询响应失败: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{
			ProductID:            hit.Source.ProductID,
			MainCategory:         hit.Source.MainCategory,
			SubCategory:          hit.Source.SubCategory,
			RepresentativeAssets: hit.Source.RepresentativeAssets,
			Score:                hit.Score,
		})
	}
	return hits, nil
}

// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/pkg/log"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 商品文档索引：嵌入向量固定存放在 embedding.comprehensive_description.vector，
	// 维度由嵌入模型配置决定，使用 cosine 相似度
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"product_id": { "type": "keyword" },
				"main_category": { "type": "keyword" },
				"sub_category": { "type": "keyword" },
				"data_status": { "type": "keyword" },
				"text": { "type": "keyword" },
				"representative_assets": { "type": "object", "dynamic": true },
				"size_detail_info": { "type": "object", "enabled": false },
				"caption_info": { "type": "object", "dynamic": true },
				"embedding": {
					"properties": {
						"comprehensive_description": {
							"properties": {
								"model_name": { "type": "keyword" },
								"dimensions": { "type": "integer" },
								"status": { "type": "keyword" },
								"generated_at": { "type": "keyword" },
								"vector": {
									"type": "dense_vector",
									"dims": %d,
									"index": true,
									"similarity": "cosine"
								}
							}
						}
					}
				}
			}
		}
	}`, dims)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// UpdateDocument 对单个文档做部分字段更新，多个字段在同一次请求内生效。
// 文档的新建由上游迁移器负责，这里只做部分更新。
func UpdateDocument(ctx context.Context, indexName, docID string, partial interface{}) error {
	body := map[string]interface{}{"doc": partial}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req := esapi.UpdateRequest{
		Index:      indexName,
		DocumentID: docID,
		Body:       bytes.NewReader(bodyBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("更新文档 '%s' 出错: %s", docID, res.String())
		return errors.New("failed to update document")
	}

	return nil
}

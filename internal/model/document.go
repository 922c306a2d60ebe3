package model

import (
	"encoding/json"
	"fmt"
)

// ProductDocument 是文档库中的一条产品文档，同时作为 Elasticsearch 的
// _source 结构与本地后端的解码结果。product_id 同时作为文档 _id。
type ProductDocument struct {
	ProductID            string                    `json:"product_id"`
	MainCategory         string                    `json:"main_category"`
	SubCategory          int                       `json:"sub_category"`
	RepresentativeAssets *RepresentativeAssets     `json:"representative_assets,omitempty"`
	TextImagePaths       []string                  `json:"text,omitempty"`
	SizeDetailInfo       json.RawMessage           `json:"size_detail_info,omitempty"`
	CaptionInfo          *CaptionInfo              `json:"caption_info,omitempty"`
	Embedding            map[string]EmbeddingEntry `json:"embedding,omitempty"`
	DataStatus           DataStatus                `json:"data_status"`
}

// HasSize 判断该产品是否已有详细尺寸信息，作为 OCR 模式选择的预检依据。
func (d *ProductDocument) HasSize() bool {
	return d != nil && len(d.SizeDetailInfo) > 0 && string(d.SizeDetailInfo) != "null"
}

// DocumentUpdate 是一次对文档的原子部分更新：只更新非 nil 的字段，
// 并且与 data_status 的推进在同一条更新语句中完成。
type DocumentUpdate struct {
	CaptionInfo *CaptionInfo
	Embedding   map[string]EmbeddingEntry
	DataStatus  DataStatus
}

// ProductDocumentRow 对应于数据库中的 product_documents 表（local 后端）。
// 结构化子文档以 JSON 列存储，部分更新时只触碰对应列。
type ProductDocumentRow struct {
	ProductID            string     `gorm:"primaryKey;type:varchar(64);column:product_id"`
	MainCategory         string     `gorm:"type:varchar(16);not null;column:main_category"`
	SubCategory          int        `gorm:"not null;column:sub_category"`
	RepresentativeAssets string     `gorm:"type:json;column:representative_assets"`
	TextImagePaths       string     `gorm:"type:json;column:text_image_paths"`
	SizeDetailInfo       string     `gorm:"type:json;column:size_detail_info"`
	CaptionInfo          string     `gorm:"type:json;column:caption_info"`
	Embedding            string     `gorm:"type:json;column:embedding"`
	DataStatus           DataStatus `gorm:"type:varchar(16);not null;index;column:data_status"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProductDocumentRow) TableName() string {
	return "product_documents"
}

// ToDocument 将一行 JSON 列解码为 ProductDocument。
func (r *ProductDocumentRow) ToDocument() (*ProductDocument, error) {
	doc := &ProductDocument{
		ProductID:    r.ProductID,
		MainCategory: r.MainCategory,
		SubCategory:  r.SubCategory,
		DataStatus:   r.DataStatus,
	}
	if r.RepresentativeAssets != "" {
		if err := json.Unmarshal([]byte(r.RepresentativeAssets), &doc.RepresentativeAssets); err != nil {
			return nil, fmt.Errorf("解码 representative_assets 失败 (product_id=%s): %w", r.ProductID, err)
		}
	}
	if r.TextImagePaths != "" {
		if err := json.Unmarshal([]byte(r.TextImagePaths), &doc.TextImagePaths); err != nil {
			return nil, fmt.Errorf("解码 text_image_paths 失败 (product_id=%s): %w", r.ProductID, err)
		}
	}
	if r.SizeDetailInfo != "" {
		doc.SizeDetailInfo = json.RawMessage(r.SizeDetailInfo)
	}
	if r.CaptionInfo != "" {
		if err := json.Unmarshal([]byte(r.CaptionInfo), &doc.CaptionInfo); err != nil {
			return nil, fmt.Errorf("解码 caption_info 失败 (product_id=%s): %w", r.ProductID, err)
		}
	}
	if r.Embedding != "" {
		if err := json.Unmarshal([]byte(r.Embedding), &doc.Embedding); err != nil {
			return nil, fmt.Errorf("解码 embedding 失败 (product_id=%s): %w", r.ProductID, err)
		}
	}
	return doc, nil
}

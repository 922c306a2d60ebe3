package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProductSource 对应于数据库中的 product_source 表。
// 它是爬虫写入的产品源记录（source of truth），加工管道按
// (sub_category, data_status) 分页扫描该表。
type ProductSource struct {
	ProductID            string     `gorm:"primaryKey;type:varchar(64);column:product_id"`
	MainCategory         string     `gorm:"type:varchar(16);not null;column:main_category"`
	SubCategory          int        `gorm:"not null;index:idx_sub_status;column:sub_category"`
	DataStatus           DataStatus `gorm:"type:varchar(16);not null;index:idx_sub_status;column:data_status"`
	RepresentativeAssets string     `gorm:"type:json;column:representative_assets"`
	TextImages           string     `gorm:"type:json;column:text_images"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProductSource) TableName() string {
	return "product_source"
}

// RepresentativeAssets 是产品的语义角色到对象存储相对路径的映射。
// front/back/model 为单张图片，color_variant 为每个 SKU 颜色一张、有序。
type RepresentativeAssets struct {
	Front        string   `json:"front"`
	Back         string   `json:"back"`
	Model        string   `json:"model"`
	ColorVariant []string `json:"color_variant"`
}

// Record 是归一化之后的产品记录：存储特定的类型包装被剥离，
// JSON 列被解析为普通属性，供纯组件使用。
type Record struct {
	ProductID            string
	MainCategory         string
	SubCategory          int
	DataStatus           DataStatus
	RepresentativeAssets map[string]interface{}
	TextImages           []string
}

// Normalize 将一条源记录转换为归一化的 Record。
// representative_assets 保持为弱类型 map，形状校验由图片解析器负责。
func (p *ProductSource) Normalize() (*Record, error) {
	rec := &Record{
		ProductID:    p.ProductID,
		MainCategory: p.MainCategory,
		SubCategory:  p.SubCategory,
		DataStatus:   p.DataStatus,
	}

	if p.RepresentativeAssets != "" {
		if err := json.Unmarshal([]byte(p.RepresentativeAssets), &rec.RepresentativeAssets); err != nil {
			return nil, fmt.Errorf("%w: representative_assets 不是合法的 JSON: %v", ErrValidation, err)
		}
	}
	if p.TextImages != "" {
		if err := json.Unmarshal([]byte(p.TextImages), &rec.TextImages); err != nil {
			return nil, fmt.Errorf("%w: text_images 不是合法的 JSON: %v", ErrValidation, err)
		}
	}
	return rec, nil
}

// GarmentCategory 是用于选择结构化属性模式的封闭分类。
type GarmentCategory string

const (
	// CategoryTop 上装。main_category 为 TOP 时选用上装属性模式。
	CategoryTop GarmentCategory = "상의"
	// CategoryBottom 下装。
	CategoryBottom GarmentCategory = "하의"
)

// GarmentCategoryOf 根据 main_category 做二分类：top 归为上装，其余归为下装。
func GarmentCategoryOf(mainCategory string) GarmentCategory {
	if strings.ToLower(mainCategory) == "top" {
		return CategoryTop
	}
	return CategoryBottom
}

// SizeSchema 决定 OCR 分支使用的输出模式：已有尺寸信息时使用完整模式，
// 否则使用不含尺寸的保守模式。
type SizeSchema string

const (
	SizeSchemaFull   SizeSchema = "FULL"
	SizeSchemaNoSize SizeSchema = "NO_SIZE"
)

// SizeSchemaOf 由 has_size 预检结果选择 OCR 模式。
func SizeSchemaOf(hasSize bool) SizeSchema {
	if hasSize {
		return SizeSchemaFull
	}
	return SizeSchemaNoSize
}

// Page 是一次分页扫描返回的一页记录。
type Page struct {
	Items []*ProductSource
	Count int
}

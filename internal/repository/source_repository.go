// Package repository 定义了与数据存储进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fashion-curation-go/internal/model"
	"fmt"

	"gorm.io/gorm"
)

// SourceRepository 接口定义了产品源表的分页扫描与状态推进操作。
type SourceRepository interface {
	// ScanPage 按 (sub_category, data_status) 扫描一页记录。
	// afterProductID 为上一页最后一条记录的主键，空串表示从头开始。
	ScanPage(ctx context.Context, subCategory int, status model.DataStatus, afterProductID string, pageSize int) (*model.Page, error)
	FindByID(ctx context.Context, productID string) (*model.ProductSource, error)
	UpdateDataStatus(ctx context.Context, productID string, status model.DataStatus) error
}

// sourceRepository 是 SourceRepository 接口的 GORM 实现。
type sourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository 创建一个新的 SourceRepository 实例。
func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &sourceRepository{db: db}
}

// ScanPage 按主键做 keyset 分页，页内顺序与页间顺序都由 product_id 保证。
// 状态值在触达数据库之前校验，非法值直接拒绝。
func (r *sourceRepository) ScanPage(ctx context.Context, subCategory int, status model.DataStatus, afterProductID string, pageSize int) (*model.Page, error) {
	if err := model.ValidateStatus(status); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: 非法的分页大小 %d", model.ErrValidation, pageSize)
	}

	query := r.db.WithContext(ctx).
		Where("sub_category = ? AND data_status = ?", subCategory, status)
	if afterProductID != "" {
		query = query.Where("product_id > ?", afterProductID)
	}

	var items []*model.ProductSource
	if err := query.Order("product_id asc").Limit(pageSize).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("扫描产品源表失败: %w", err)
	}
	return &model.Page{Items: items, Count: len(items)}, nil
}

// FindByID 根据产品 ID 检索一条源记录。
func (r *sourceRepository) FindByID(ctx context.Context, productID string) (*model.ProductSource, error) {
	var record model.ProductSource
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 产品 %s 不存在", model.ErrValidation, productID)
		}
		return nil, err
	}
	return &record, nil
}

// UpdateDataStatus 推进一条源记录的加工阶段。
func (r *sourceRepository) UpdateDataStatus(ctx context.Context, productID string, status model.DataStatus) error {
	if err := model.ValidateStatus(status); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.ProductSource{}).
		Where("product_id = ?", productID).
		Update("data_status", status).Error
}

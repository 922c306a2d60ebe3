// Package model 定义了产品数据、加工阶段与文档结构。
package model

import "fmt"

// DataStatus 表示一条产品记录在数据加工生命周期中的阶段。
// 阶段集合是封闭的、严格有序的，只能由编排器在持久化检查点之后向前推进。
type DataStatus string

const (
	// StatusCrawlDetail 详情页爬取完成，等待图片下载。
	StatusCrawlDetail DataStatus = "CR_DET"
	// StatusImageDownloaded 图片已下载到本地。
	StatusImageDownloaded DataStatus = "IMG_DOWN"
	// StatusUploaded 图片已上传到对象存储。
	StatusUploaded DataStatus = "AWS_UPL"
	// StatusRepresentative 代表图已整理完成，等待生成描述。
	StatusRepresentative DataStatus = "RE_COMP"
	// StatusCaptionCompleted 描述生成完成，等待向量化。
	StatusCaptionCompleted DataStatus = "CA_COMP"
	// StatusEmbeddingCompleted 向量化完成，可进入检索链路。
	StatusEmbeddingCompleted DataStatus = "EB_COMP"
	// StatusCloudMigrated 已迁移到云端库。该阶段由外部迁移器写入，本系统只读。
	StatusCloudMigrated DataStatus = "CL_COMP"
)

// stageOrder 定义阶段的先后顺序，用于校验与推进。
var stageOrder = []DataStatus{
	StatusCrawlDetail,
	StatusImageDownloaded,
	StatusUploaded,
	StatusRepresentative,
	StatusCaptionCompleted,
	StatusEmbeddingCompleted,
	StatusCloudMigrated,
}

// Valid 判断给定值是否属于封闭的阶段集合。
func (s DataStatus) Valid() bool {
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Next 返回当前阶段的下一个阶段；终态或非法值返回错误。
func (s DataStatus) Next() (DataStatus, error) {
	for i, st := range stageOrder {
		if st == s {
			if i == len(stageOrder)-1 {
				return "", fmt.Errorf("%w: 阶段 %s 已是终态", ErrValidation, s)
			}
			return stageOrder[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: 非法的阶段值 %q", ErrValidation, string(s))
}

// ValidateStatus 在发起任何存储查询之前校验状态过滤值。
func ValidateStatus(s DataStatus) error {
	if !s.Valid() {
		return fmt.Errorf("%w: 非法的阶段值 %q", ErrValidation, string(s))
	}
	return nil
}

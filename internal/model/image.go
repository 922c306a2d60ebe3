package model

import (
	"fmt"
	"image"
)

// ImageRole 标识一张图片在产品中的语义角色。
type ImageRole string

const (
	RoleFront        ImageRole = "front"
	RoleBack         ImageRole = "back"
	RoleModel        ImageRole = "model"
	RoleColorVariant ImageRole = "color_variant"
	RoleText         ImageRole = "text"
)

// ImageDescriptor 描述一张待下载的物理图片。
// DownloadURL 由对象存储生成预签名链接后填充；Decoded 在下载解码成功后填充，
// 下载阶段结束后仍为 nil 表示该图片获取失败（计数但不致命）。
type ImageDescriptor struct {
	RelativePath string
	Role         ImageRole
	ObjectKey    string
	DownloadURL  string
	Decoded      image.Image
}

// BuildObjectKey 生成对象存储的键：{main_category}/{sub_category}/{product_id}/{relative_path}。
func BuildObjectKey(mainCategory string, subCategory int, productID, relativePath string) string {
	return fmt.Sprintf("%s/%d/%s/%s", mainCategory, subCategory, productID, relativePath)
}

// LLMInputBundle 是交给描述引擎的单条记录载荷。
// 三个 blob 均为 base64 编码的 JPEG 合成图；TextImagesBlob 为空表示没有文字图片。
type LLMInputBundle struct {
	DeepCaptionBlob    string
	ColorImagesBlob    string
	TextImagesBlob     string
	DecodeFailureCount int
	ColorVariantCount  int
	Success            bool
}

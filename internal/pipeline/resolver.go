// Package pipeline 实现了产品数据加工管道：从源表分页扫描记录，
// 经图片下载、合成、描述生成到向量化，按阶段推进每条记录。
package pipeline

import (
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/log"
	"strings"
)

// representativeRoles 是 representative_assets 中必须齐备的四个语义角色。
var representativeRoles = []model.ImageRole{
	model.RoleModel,
	model.RoleFront,
	model.RoleBack,
	model.RoleColorVariant,
}

// ResolveResult 是一次图片解析的结果。Success 为 false 时 Images 为空。
type ResolveResult struct {
	Success bool
	Images  []*model.ImageDescriptor
}

// AssetResolver 把一条归一化记录解析为待下载的图片描述符列表。
type AssetResolver struct{}

// NewAssetResolver 创建一个新的 AssetResolver 实例。
func NewAssetResolver() *AssetResolver {
	return &AssetResolver{}
}

// Resolve 解析 representative_assets 与 text 两个子结构。
// 代表图解析失败则整体失败；文字图片是可选的，缺失不影响整体结果。
func (r *AssetResolver) Resolve(rec *model.Record) *ResolveResult {
	repImages, repOK := r.parseRepresentative(rec)
	textImages := r.parseTextImages(rec)

	if !repOK {
		log.Warnf("[AssetResolver] 代表图解析失败, product_id: %s", rec.ProductID)
		return &ResolveResult{Success: false, Images: nil}
	}

	images := make([]*model.ImageDescriptor, 0, len(repImages)+len(textImages))
	images = append(images, repImages...)
	images = append(images, textImages...)
	return &ResolveResult{Success: true, Images: images}
}

// parseRepresentative 要求四个角色键齐备且形状正确：
// front/back/model 为字符串，color_variant 为非空字符串列表。
// 逐角色累计失败，任一角色失败则该子解析整体失败。
func (r *AssetResolver) parseRepresentative(rec *model.Record) ([]*model.ImageDescriptor, bool) {
	if rec.RepresentativeAssets == nil {
		return nil, false
	}

	var images []*model.ImageDescriptor
	ok := true
	for _, role := range representativeRoles {
		raw, exists := rec.RepresentativeAssets[string(role)]
		if !exists {
			log.Warnf("[AssetResolver] 缺少角色键 '%s', product_id: %s", role, rec.ProductID)
			ok = false
			continue
		}

		if role == model.RoleColorVariant {
			paths, shapeOK := asStringList(raw)
			if !shapeOK || len(paths) == 0 {
				log.Warnf("[AssetResolver] color_variant 形状非法或为空, product_id: %s", rec.ProductID)
				ok = false
				continue
			}
			for _, p := range paths {
				images = append(images, r.descriptor(rec, p, role))
			}
			continue
		}

		path, isString := raw.(string)
		if !isString || path == "" {
			log.Warnf("[AssetResolver] 角色 '%s' 期望字符串路径, product_id: %s", role, rec.ProductID)
			ok = false
			continue
		}
		images = append(images, r.descriptor(rec, path, role))
	}

	if !ok {
		return nil, false
	}
	return images, true
}

// parseTextImages 把 text 列表中的每个条目解析为一个 text 角色描述符。
// 空列表合法，产生零个描述符。文字图片在对象存储中位于 text/ 前缀之下。
func (r *AssetResolver) parseTextImages(rec *model.Record) []*model.ImageDescriptor {
	images := make([]*model.ImageDescriptor, 0, len(rec.TextImages))
	for _, p := range rec.TextImages {
		if p == "" {
			continue
		}
		rel := p
		if !strings.HasPrefix(rel, "text/") {
			rel = "text/" + rel
		}
		images = append(images, r.descriptor(rec, rel, model.RoleText))
	}
	return images
}

func (r *AssetResolver) descriptor(rec *model.Record, relativePath string, role model.ImageRole) *model.ImageDescriptor {
	return &model.ImageDescriptor{
		RelativePath: relativePath,
		Role:         role,
		ObjectKey:    model.BuildObjectKey(rec.MainCategory, rec.SubCategory, rec.ProductID, relativePath),
	}
}

// asStringList 兼容 JSON 解码产生的 []interface{} 与直接构造的 []string。
func asStringList(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

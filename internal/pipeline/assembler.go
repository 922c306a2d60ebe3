package pipeline

import (
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/imaging"
	"fmt"
	"image"
	"sort"
)

// deepCaptionRoles 是深度描述合成图的固定槽位顺序。
var deepCaptionRoles = []model.ImageRole{
	model.RoleFront,
	model.RoleBack,
	model.RoleModel,
}

// Assembler 把解码后的图片按语义角色分组并合成为三个可传输的载荷。
type Assembler struct {
	targetSize int
}

// NewAssembler 创建一个新的 Assembler 实例。
// targetSize 是补边后单张图片的边长。
func NewAssembler(targetSize int) *Assembler {
	return &Assembler{targetSize: targetSize}
}

// Assemble 生成描述引擎需要的三个合成图载荷。
// 深度描述组固定三个槽位，缺失的槽位用占位图填充；
// 颜色变体组按相对路径排序，保证第 N 张图对应变体列表的第 N 项；
// 文字组按出现顺序堆叠。深度描述组或颜色组完全为空是硬失败。
func (a *Assembler) Assemble(images []*model.ImageDescriptor, decodeFailures int) (*model.LLMInputBundle, error) {
	bundle := &model.LLMInputBundle{DecodeFailureCount: decodeFailures}

	// 1. 深度描述组：front/back/model 固定三槽
	byRole := make(map[model.ImageRole]*model.ImageDescriptor)
	var colorImages []*model.ImageDescriptor
	var textImages []*model.ImageDescriptor
	for _, img := range images {
		switch img.Role {
		case model.RoleColorVariant:
			colorImages = append(colorImages, img)
		case model.RoleText:
			textImages = append(textImages, img)
		default:
			byRole[img.Role] = img
		}
	}

	deepSlots := make([]image.Image, 0, len(deepCaptionRoles))
	deepDecoded := 0
	for _, role := range deepCaptionRoles {
		if img, ok := byRole[role]; ok && img.Decoded != nil {
			deepSlots = append(deepSlots, img.Decoded)
			deepDecoded++
			continue
		}
		deepSlots = append(deepSlots, imaging.Placeholder(a.targetSize))
	}
	if deepDecoded == 0 {
		return nil, fmt.Errorf("%w: 深度描述组没有任何可用图片", model.ErrDataIntegrity)
	}

	// 2. 颜色变体组：按相对路径排序，保持与变体列表的位次对应
	sort.Slice(colorImages, func(i, j int) bool {
		return colorImages[i].RelativePath < colorImages[j].RelativePath
	})
	colorSlots := make([]image.Image, 0, len(colorImages))
	colorDecoded := 0
	for _, img := range colorImages {
		if img.Decoded != nil {
			colorSlots = append(colorSlots, img.Decoded)
			colorDecoded++
			continue
		}
		colorSlots = append(colorSlots, imaging.Placeholder(a.targetSize))
	}
	if colorDecoded == 0 {
		return nil, fmt.Errorf("%w: 颜色变体组没有任何可用图片", model.ErrDataIntegrity)
	}
	bundle.ColorVariantCount = len(colorImages)

	// 3. 编码合成图
	deepBlob, err := imaging.EncodeBase64JPEG(imaging.TileHorizontal(deepSlots, a.targetSize))
	if err != nil {
		return nil, fmt.Errorf("编码深度描述合成图失败: %w", err)
	}
	bundle.DeepCaptionBlob = deepBlob

	colorBlob, err := imaging.EncodeBase64JPEG(imaging.TileHorizontal(colorSlots, a.targetSize))
	if err != nil {
		return nil, fmt.Errorf("编码颜色变体合成图失败: %w", err)
	}
	bundle.ColorImagesBlob = colorBlob

	// 4. 文字组：保持出现顺序，只纳入解码成功的图片，为空时跳过
	var textSlots []image.Image
	for _, img := range textImages {
		if img.Decoded != nil {
			textSlots = append(textSlots, img.Decoded)
		}
	}
	if len(textSlots) > 0 {
		textBlob, err := imaging.EncodeBase64JPEG(imaging.StackVertical(textSlots, a.targetSize))
		if err != nil {
			return nil, fmt.Errorf("编码文字合成图失败: %w", err)
		}
		bundle.TextImagesBlob = textBlob
	}

	bundle.Success = true
	return bundle, nil
}

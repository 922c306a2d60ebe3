package pipeline

import (
	"errors"
	"fashion-curation-go/internal/model"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageSize = 64

func decodedImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func descriptor(path string, role model.ImageRole, decoded bool) *model.ImageDescriptor {
	d := &model.ImageDescriptor{RelativePath: path, Role: role, ObjectKey: "TOP/1005/P1/" + path}
	if decoded {
		d.Decoded = decodedImage()
	}
	return d
}

func TestAssembleHappyPath(t *testing.T) {
	a := NewAssembler(testImageSize)
	images := []*model.ImageDescriptor{
		descriptor("a.jpg", model.RoleFront, true),
		descriptor("b.jpg", model.RoleBack, true),
		descriptor("c.jpg", model.RoleModel, true),
		descriptor("v2.jpg", model.RoleColorVariant, true),
		descriptor("v1.jpg", model.RoleColorVariant, true),
		descriptor("text/t1.jpg", model.RoleText, true),
	}

	bundle, err := a.Assemble(images, 0)
	require.NoError(t, err)
	assert.True(t, bundle.Success)
	assert.NotEmpty(t, bundle.DeepCaptionBlob)
	assert.NotEmpty(t, bundle.ColorImagesBlob)
	assert.NotEmpty(t, bundle.TextImagesBlob)
	assert.Equal(t, 2, bundle.ColorVariantCount)
	assert.Equal(t, 0, bundle.DecodeFailureCount)
}

func TestAssembleMissingSlotUsesPlaceholder(t *testing.T) {
	a := NewAssembler(testImageSize)
	// 没有 model 商拍图的商品：槽位用占位图填充而不是报错
	images := []*model.ImageDescriptor{
		descriptor("a.jpg", model.RoleFront, true),
		descriptor("b.jpg", model.RoleBack, true),
		descriptor("v1.jpg", model.RoleColorVariant, true),
	}

	bundle, err := a.Assemble(images, 1)
	require.NoError(t, err)
	assert.True(t, bundle.Success)
	assert.NotEmpty(t, bundle.DeepCaptionBlob)
	assert.Equal(t, 1, bundle.DecodeFailureCount)
}

func TestAssembleEmptyColorGroupIsHardFailure(t *testing.T) {
	a := NewAssembler(testImageSize)

	t.Run("没有颜色变体描述符", func(t *testing.T) {
		images := []*model.ImageDescriptor{
			descriptor("a.jpg", model.RoleFront, true),
		}
		_, err := a.Assemble(images, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrDataIntegrity))
	})

	t.Run("颜色变体全部解码失败", func(t *testing.T) {
		images := []*model.ImageDescriptor{
			descriptor("a.jpg", model.RoleFront, true),
			descriptor("v1.jpg", model.RoleColorVariant, false),
			descriptor("v2.jpg", model.RoleColorVariant, false),
		}
		_, err := a.Assemble(images, 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrDataIntegrity))
	})
}

func TestAssembleDeepGroupAllFailedIsHardFailure(t *testing.T) {
	a := NewAssembler(testImageSize)
	images := []*model.ImageDescriptor{
		descriptor("a.jpg", model.RoleFront, false),
		descriptor("b.jpg", model.RoleBack, false),
		descriptor("c.jpg", model.RoleModel, false),
		descriptor("v1.jpg", model.RoleColorVariant, true),
	}
	_, err := a.Assemble(images, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataIntegrity))
}

func TestAssembleColorVariantCountIncludesUndecoded(t *testing.T) {
	a := NewAssembler(testImageSize)
	// 一张变体图解码失败：用占位图保住位次，数量仍等于变体列表长度
	images := []*model.ImageDescriptor{
		descriptor("a.jpg", model.RoleFront, true),
		descriptor("v1.jpg", model.RoleColorVariant, true),
		descriptor("v2.jpg", model.RoleColorVariant, false),
	}
	bundle, err := a.Assemble(images, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.ColorVariantCount)
}

func TestAssembleNoTextImages(t *testing.T) {
	a := NewAssembler(testImageSize)
	images := []*model.ImageDescriptor{
		descriptor("a.jpg", model.RoleFront, true),
		descriptor("v1.jpg", model.RoleColorVariant, true),
	}
	bundle, err := a.Assemble(images, 0)
	require.NoError(t, err)
	assert.Empty(t, bundle.TextImagesBlob)
}

package pipeline

import (
	"fashion-curation-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(assets map[string]interface{}, textImages []string) *model.Record {
	return &model.Record{
		ProductID:            "P1",
		MainCategory:         "TOP",
		SubCategory:          1005,
		DataStatus:           model.StatusRepresentative,
		RepresentativeAssets: assets,
		TextImages:           textImages,
	}
}

func fullAssets() map[string]interface{} {
	return map[string]interface{}{
		"front":         "a.jpg",
		"back":          "b.jpg",
		"model":         "c.jpg",
		"color_variant": []interface{}{"v1.jpg", "v2.jpg"},
	}
}

func TestResolveHappyPath(t *testing.T) {
	r := NewAssetResolver()
	result := r.Resolve(testRecord(fullAssets(), []string{"t1.jpg"}))

	require.True(t, result.Success)
	// 3 张代表图 + 2 张颜色变体 + 1 张文字图
	require.Len(t, result.Images, 6)

	roles := map[model.ImageRole]int{}
	for _, img := range result.Images {
		roles[img.Role]++
		assert.NotEmpty(t, img.ObjectKey)
	}
	assert.Equal(t, 1, roles[model.RoleFront])
	assert.Equal(t, 1, roles[model.RoleBack])
	assert.Equal(t, 1, roles[model.RoleModel])
	assert.Equal(t, 2, roles[model.RoleColorVariant])
	assert.Equal(t, 1, roles[model.RoleText])
}

func TestResolveObjectKeyLayout(t *testing.T) {
	r := NewAssetResolver()
	result := r.Resolve(testRecord(fullAssets(), []string{"t1.jpg"}))
	require.True(t, result.Success)

	for _, img := range result.Images {
		switch img.Role {
		case model.RoleFront:
			assert.Equal(t, "TOP/1005/P1/a.jpg", img.ObjectKey)
		case model.RoleText:
			// 文字图片位于 text/ 前缀之下
			assert.Equal(t, "TOP/1005/P1/text/t1.jpg", img.ObjectKey)
		}
	}
}

func TestResolveShapeRejection(t *testing.T) {
	r := NewAssetResolver()

	t.Run("缺少角色键", func(t *testing.T) {
		assets := fullAssets()
		delete(assets, "model")
		result := r.Resolve(testRecord(assets, nil))
		assert.False(t, result.Success)
		assert.Empty(t, result.Images)
	})

	t.Run("color_variant 为空列表", func(t *testing.T) {
		assets := fullAssets()
		assets["color_variant"] = []interface{}{}
		result := r.Resolve(testRecord(assets, nil))
		assert.False(t, result.Success)
	})

	t.Run("标量角色给了列表", func(t *testing.T) {
		assets := fullAssets()
		assets["front"] = []interface{}{"a.jpg"}
		result := r.Resolve(testRecord(assets, nil))
		assert.False(t, result.Success)
	})

	t.Run("列表角色给了标量", func(t *testing.T) {
		assets := fullAssets()
		assets["color_variant"] = "v1.jpg"
		result := r.Resolve(testRecord(assets, nil))
		assert.False(t, result.Success)
	})

	t.Run("representative_assets 缺失", func(t *testing.T) {
		result := r.Resolve(testRecord(nil, []string{"t1.jpg"}))
		assert.False(t, result.Success)
		assert.Empty(t, result.Images)
	})
}

func TestResolveTextImagesOptional(t *testing.T) {
	r := NewAssetResolver()

	// 空的文字图片列表不影响整体成功
	result := r.Resolve(testRecord(fullAssets(), nil))
	require.True(t, result.Success)
	assert.Len(t, result.Images, 5)
}

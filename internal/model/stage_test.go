package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataStatusValid(t *testing.T) {
	for _, s := range []DataStatus{
		StatusCrawlDetail, StatusImageDownloaded, StatusUploaded,
		StatusRepresentative, StatusCaptionCompleted, StatusEmbeddingCompleted,
		StatusCloudMigrated,
	} {
		assert.True(t, s.Valid(), "阶段 %s 应当合法", s)
	}

	assert.False(t, DataStatus("").Valid())
	assert.False(t, DataStatus("DONE").Valid())
	assert.False(t, DataStatus("re_comp").Valid())
}

func TestDataStatusNext(t *testing.T) {
	t.Run("正常推进", func(t *testing.T) {
		next, err := StatusRepresentative.Next()
		require.NoError(t, err)
		assert.Equal(t, StatusCaptionCompleted, next)

		next, err = StatusCaptionCompleted.Next()
		require.NoError(t, err)
		assert.Equal(t, StatusEmbeddingCompleted, next)
	})

	t.Run("终态不可推进", func(t *testing.T) {
		_, err := StatusCloudMigrated.Next()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("非法值被拒绝", func(t *testing.T) {
		_, err := DataStatus("WHATEVER").Next()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestValidateStatus(t *testing.T) {
	assert.NoError(t, ValidateStatus(StatusEmbeddingCompleted))

	err := ValidateStatus(DataStatus("EB"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestGarmentCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryTop, GarmentCategoryOf("TOP"))
	assert.Equal(t, CategoryTop, GarmentCategoryOf("top"))
	assert.Equal(t, CategoryBottom, GarmentCategoryOf("BOTTOM"))
	assert.Equal(t, CategoryBottom, GarmentCategoryOf("skirt"))
}

func TestSizeSchemaOf(t *testing.T) {
	assert.Equal(t, SizeSchemaFull, SizeSchemaOf(true))
	assert.Equal(t, SizeSchemaNoSize, SizeSchemaOf(false))
}

func TestProductSourceNormalize(t *testing.T) {
	t.Run("JSON 列解析", func(t *testing.T) {
		src := &ProductSource{
			ProductID:            "P1",
			MainCategory:         "TOP",
			SubCategory:          1005,
			DataStatus:           StatusRepresentative,
			RepresentativeAssets: `{"front":"a.jpg","back":"b.jpg","model":"c.jpg","color_variant":["v1.jpg","v2.jpg"]}`,
			TextImages:           `["t1.jpg"]`,
		}
		rec, err := src.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "P1", rec.ProductID)
		assert.Equal(t, "a.jpg", rec.RepresentativeAssets["front"])
		assert.Len(t, rec.TextImages, 1)
	})

	t.Run("非法 JSON 返回校验错误", func(t *testing.T) {
		src := &ProductSource{ProductID: "P2", RepresentativeAssets: "{broken"}
		_, err := src.Normalize()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestProductDocumentHasSize(t *testing.T) {
	assert.False(t, (&ProductDocument{}).HasSize())
	assert.False(t, (&ProductDocument{SizeDetailInfo: []byte("null")}).HasSize())
	assert.True(t, (&ProductDocument{SizeDetailInfo: []byte(`{"S":{"chest":48}}`)}).HasSize())
}

func TestBuildObjectKey(t *testing.T) {
	key := BuildObjectKey("TOP", 1005, "P1", "front/a.jpg")
	assert.Equal(t, "TOP/1005/P1/front/a.jpg", key)
}

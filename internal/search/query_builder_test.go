package search

import (
	"errors"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 8

func testBuilder() *VectorQueryBuilder {
	return NewVectorQueryBuilder(config.VectorSearchConfig{
		IndexName:     "fashion_products",
		FieldPath:     "embedding.comprehensive_description.vector",
		NumCandidates: 150,
	}, testDims)
}

func vectorOfLen(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) * 0.1
	}
	return v
}

func TestBuildDimensionValidation(t *testing.T) {
	b := testBuilder()

	for _, n := range []int{0, 1, testDims - 1, testDims + 1, testDims * 2} {
		_, err := b.Build(vectorOfLen(n), 10, nil)
		require.Error(t, err, "维度 %d 应当被拒绝", n)
		assert.True(t, errors.Is(err, model.ErrValidation))
	}

	spec, err := b.Build(vectorOfLen(testDims), 10, nil)
	require.NoError(t, err)
	assert.Len(t, spec.QueryVector, testDims)
}

func TestBuildRejectsNonPositiveTopK(t *testing.T) {
	b := testBuilder()
	for _, k := range []int{0, -1} {
		_, err := b.Build(vectorOfLen(testDims), k, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrValidation))
	}
}

func TestBuildAppliesConfigDefaults(t *testing.T) {
	b := testBuilder()
	spec, err := b.Build(vectorOfLen(testDims), 10, nil)
	require.NoError(t, err)

	assert.Equal(t, "fashion_products", spec.IndexName)
	assert.Equal(t, "embedding.comprehensive_description.vector", spec.FieldPath)
	assert.Equal(t, 150, spec.NumCandidates)
}

func TestBuildCandidateFallback(t *testing.T) {
	// 配置的候选数小于 topK 时按 topK 放大
	b := NewVectorQueryBuilder(config.VectorSearchConfig{NumCandidates: 5}, testDims)
	spec, err := b.Build(vectorOfLen(testDims), 20, nil)
	require.NoError(t, err)
	assert.Equal(t, 300, spec.NumCandidates)
}

func TestBuildRequestBodyProjection(t *testing.T) {
	b := testBuilder()
	spec, err := b.Build(vectorOfLen(testDims), 5, nil)
	require.NoError(t, err)

	body := BuildRequestBody(spec)
	assert.Equal(t, 5, body["size"])

	// 投影白名单固定：永远不包含向量与描述全文
	source, ok := body["_source"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"product_id", "main_category", "sub_category", "representative_assets"}, source)

	knn, ok := body["knn"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, spec.FieldPath, knn["field"])
	assert.Equal(t, 5, knn["k"])
	assert.Equal(t, 150, knn["num_candidates"])
	_, hasFilter := knn["filter"]
	assert.False(t, hasFilter)
}

func TestBuildRequestBodyWithPreFilter(t *testing.T) {
	b := testBuilder()
	spec, err := b.Build(vectorOfLen(testDims), 5, map[string]interface{}{"main_category": "TOP"})
	require.NoError(t, err)

	body := BuildRequestBody(spec)
	knn := body["knn"].(map[string]interface{})
	filter, ok := knn["filter"].(map[string]interface{})
	require.True(t, ok)

	boolClause := filter["bool"].(map[string]interface{})
	terms := boolClause["must"].([]map[string]interface{})
	require.Len(t, terms, 1)
	assert.Equal(t, "TOP", terms[0]["term"].(map[string]interface{})["main_category"])
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

// --- 测试替身 ---

// stubEmbedder 返回固定维度的向量，或配置的错误。
type stubEmbedder struct {
	dims int
	err  error
}

func (s *stubEmbedder) CreateEmbedding(_ context.Context, texts []string) (*embedding.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, s.dims)
	}
	return &embedding.Result{ModelName: "test-embed", Dimensions: s.dims, Embeddings: vectors}, nil
}

// stubDocRepo 只实现检索路径，其余操作不会被调用。
type stubDocRepo struct {
	hits []model.SearchHit
	err  error
}

func (s *stubDocRepo) FindByID(_ context.Context, _ string) (*model.ProductDocument, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDocRepo) UpdateByID(_ context.Context, _ string, _ *model.DocumentUpdate) error {
	return errors.New("not implemented")
}

func (s *stubDocRepo) FindPageByDataStatus(_ context.Context, _ model.DataStatus, _ string, _ int) ([]*model.ProductDocument, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDocRepo) VectorSearch(_ context.Context, _ *search.VectorSearchSpec) ([]model.SearchHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

// stubBlobStore 统计签名次数，可配置签名失败。
type stubBlobStore struct {
	mu       sync.Mutex
	signErr  error
	signCnt  int
	lastKeys []string
}

func (s *stubBlobStore) PresignedURL(objectKey string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signCnt++
	s.lastKeys = append(s.lastKeys, objectKey)
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://blob.test/" + objectKey + "?sig=x", nil
}

func (s *stubBlobStore) FetchMany(_ context.Context, urls []string) [][]byte {
	return make([][]byte, len(urls))
}

// memPresignCache 是内存实现的预签名缓存。
type memPresignCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemPresignCache() *memPresignCache {
	return &memPresignCache{items: make(map[string]string)}
}

func (c *memPresignCache) GetURL(_ context.Context, objectKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.items[objectKey]
	return url, ok
}

func (c *memPresignCache) SetURL(_ context.Context, objectKey, url string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[objectKey] = url
	return nil
}

// --- 测试工具 ---

func testQueryBuilder() *search.VectorQueryBuilder {
	return search.NewVectorQueryBuilder(config.VectorSearchConfig{
		IndexName:     "fashion_products",
		FieldPath:     "embedding.comprehensive_description.vector",
		NumCandidates: 150,
	}, testDims)
}

func fullHit(productID string) model.SearchHit {
	return model.SearchHit{
		ProductID:    productID,
		MainCategory: "TOP",
		SubCategory:  1005,
		RepresentativeAssets: &model.RepresentativeAssets{
			Front:        "front/a.jpg",
			Back:         "back/a.jpg",
			Model:        "model/a.jpg",
			ColorVariant: []string{"color/blue.jpg", "color/red.jpg"},
		},
		Score: 0.9,
	}
}

// --- 检索读路径 ---

func TestSearchByQueryImageURLDegradation(t *testing.T) {
	// 可解析的命中带预签名链接，缺字段的命中 image_url 为 null，检索整体成功
	noAssets := model.SearchHit{ProductID: "P2", MainCategory: "TOP", SubCategory: 1005, Score: 0.8}
	noVariants := fullHit("P3")
	noVariants.RepresentativeAssets.ColorVariant = nil

	docRepo := &stubDocRepo{hits: []model.SearchHit{fullHit("P1"), noAssets, noVariants}}
	blobs := &stubBlobStore{}
	svc := NewSearchService(&stubEmbedder{dims: testDims}, docRepo, testQueryBuilder(), blobs, newMemPresignCache())

	result, err := svc.SearchByQuery(context.Background(), "린넨 셔츠", 10)
	require.NoError(t, err)

	assert.Equal(t, "린넨 셔츠", result.Query)
	assert.Equal(t, 3, result.TotalCount)
	require.Len(t, result.Data, 3)

	require.NotNil(t, result.Data[0].ImageURL)
	assert.Contains(t, *result.Data[0].ImageURL, "TOP/1005/P1/color/blue.jpg")
	assert.Nil(t, result.Data[1].ImageURL)
	assert.Nil(t, result.Data[2].ImageURL)
}

func TestSearchByQueryPresignFailureKeepsHit(t *testing.T) {
	docRepo := &stubDocRepo{hits: []model.SearchHit{fullHit("P1")}}
	blobs := &stubBlobStore{signErr: errors.New("minio unavailable")}
	svc := NewSearchService(&stubEmbedder{dims: testDims}, docRepo, testQueryBuilder(), blobs, newMemPresignCache())

	result, err := svc.SearchByQuery(context.Background(), "shirt", 10)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Nil(t, result.Data[0].ImageURL)
}

func TestSearchByQueryCacheHitSkipsSigning(t *testing.T) {
	docRepo := &stubDocRepo{hits: []model.SearchHit{fullHit("P1")}}
	blobs := &stubBlobStore{}
	cache := newMemPresignCache()
	objectKey := model.BuildObjectKey("TOP", 1005, "P1", "color/blue.jpg")
	require.NoError(t, cache.SetURL(context.Background(), objectKey, "https://blob.test/cached", 0))

	svc := NewSearchService(&stubEmbedder{dims: testDims}, docRepo, testQueryBuilder(), blobs, cache)
	result, err := svc.SearchByQuery(context.Background(), "shirt", 10)
	require.NoError(t, err)

	require.NotNil(t, result.Data[0].ImageURL)
	assert.Equal(t, "https://blob.test/cached", *result.Data[0].ImageURL)
	assert.Equal(t, 0, blobs.signCnt)
}

func TestSearchByQueryEmbeddingFailureIsAggregate(t *testing.T) {
	docRepo := &stubDocRepo{hits: []model.SearchHit{fullHit("P1")}}
	svc := NewSearchService(&stubEmbedder{err: fmt.Errorf("embedding provider down")}, docRepo, testQueryBuilder(), &stubBlobStore{}, newMemPresignCache())

	result, err := svc.SearchByQuery(context.Background(), "shirt", 10)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestSearchByQueryStoreFailureIsAggregate(t *testing.T) {
	docRepo := &stubDocRepo{err: errors.New("store unreachable")}
	svc := NewSearchService(&stubEmbedder{dims: testDims}, docRepo, testQueryBuilder(), &stubBlobStore{}, newMemPresignCache())

	result, err := svc.SearchByQuery(context.Background(), "shirt", 10)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestSearchByQueryDimensionMismatchRejected(t *testing.T) {
	// 嵌入服务返回了与索引不一致的维度：在发往存储后端之前被拦截
	docRepo := &stubDocRepo{hits: []model.SearchHit{fullHit("P1")}}
	svc := NewSearchService(&stubEmbedder{dims: testDims + 1}, docRepo, testQueryBuilder(), &stubBlobStore{}, newMemPresignCache())

	_, err := svc.SearchByQuery(context.Background(), "shirt", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

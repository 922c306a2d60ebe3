package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"sync"
	"testing"
	"time"

	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/pkg/embedding"
	"fashion-curation-go/pkg/vlm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 测试替身 ---

// fakeSourceRepo 用内存切片模拟 product_source 表的 keyset 分页。
type fakeSourceRepo struct {
	mu      sync.Mutex
	records []*model.ProductSource
}

func (f *fakeSourceRepo) ScanPage(_ context.Context, subCategory int, status model.DataStatus, afterProductID string, pageSize int) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]*model.ProductSource, 0)
	for _, r := range f.records {
		if r.SubCategory != subCategory || r.DataStatus != status {
			continue
		}
		if r.ProductID <= afterProductID {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ProductID < matched[j].ProductID })
	if len(matched) > pageSize {
		matched = matched[:pageSize]
	}
	return &model.Page{Items: matched, Count: len(matched)}, nil
}

func (f *fakeSourceRepo) FindByID(_ context.Context, productID string) (*model.ProductSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProductID == productID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: 记录不存在", model.ErrValidation)
}

func (f *fakeSourceRepo) UpdateDataStatus(_ context.Context, productID string, status model.DataStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProductID == productID {
			r.DataStatus = status
			return nil
		}
	}
	return fmt.Errorf("%w: 记录不存在", model.ErrValidation)
}

func (f *fakeSourceRepo) statusOf(productID string) model.DataStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProductID == productID {
			return r.DataStatus
		}
	}
	return ""
}

// fakeDocRepo 用内存 map 模拟文档库，记录每次部分更新。
type fakeDocRepo struct {
	mu      sync.Mutex
	docs    map[string]*model.ProductDocument
	updates map[string][]*model.DocumentUpdate
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:    make(map[string]*model.ProductDocument),
		updates: make(map[string][]*model.DocumentUpdate),
	}
}

func (f *fakeDocRepo) FindByID(_ context.Context, productID string) (*model.ProductDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[productID]
	if !ok {
		return nil, fmt.Errorf("%w: 文档不存在", model.ErrValidation)
	}
	return doc, nil
}

func (f *fakeDocRepo) UpdateByID(_ context.Context, productID string, update *model.DocumentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[productID]
	if !ok {
		// 与真实后端一致：对不存在的文档做部分更新是错误
		return fmt.Errorf("%w: 文档 %s 不存在", model.ErrValidation, productID)
	}
	if update.CaptionInfo != nil {
		doc.CaptionInfo = update.CaptionInfo
	}
	if update.Embedding != nil {
		doc.Embedding = update.Embedding
	}
	if update.DataStatus != "" {
		doc.DataStatus = update.DataStatus
	}
	f.updates[productID] = append(f.updates[productID], update)
	return nil
}

func (f *fakeDocRepo) FindPageByDataStatus(_ context.Context, status model.DataStatus, afterProductID string, pageSize int) ([]*model.ProductDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*model.ProductDocument, 0)
	for _, doc := range f.docs {
		if doc.DataStatus != status || doc.ProductID <= afterProductID {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ProductID < matched[j].ProductID })
	if len(matched) > pageSize {
		matched = matched[:pageSize]
	}
	return matched, nil
}

func (f *fakeDocRepo) VectorSearch(_ context.Context, _ *search.VectorSearchSpec) ([]model.SearchHit, error) {
	return nil, nil
}

func (f *fakeDocRepo) updateCount(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates[productID])
}

// fakeBlobStore 为每个对象键返回同一张可解码的 JPEG。
type fakeBlobStore struct {
	payload []byte
}

func (f *fakeBlobStore) PresignedURL(objectKey string, _ time.Duration) (string, error) {
	return "https://blob.test/" + objectKey, nil
}

func (f *fakeBlobStore) FetchMany(_ context.Context, urls []string) [][]byte {
	out := make([][]byte, len(urls))
	for i := range urls {
		out[i] = f.payload
	}
	return out
}

// fakeCaptioner 按配置的颜色条目数返回固定描述结果，并记录最近一次调用的模式。
type fakeCaptioner struct {
	mu         sync.Mutex
	colorCount int
	lastSchema model.SizeSchema
}

func (f *fakeCaptioner) GenerateCaption(_ context.Context, bundle *model.LLMInputBundle, _ model.GarmentCategory, schema model.SizeSchema) (*model.CaptionResult, error) {
	f.mu.Lock()
	f.lastSchema = schema
	count := f.colorCount
	f.mu.Unlock()

	if count < 0 {
		count = bundle.ColorVariantCount
	}
	colors := make([]model.ColorInfo, count)
	for i := range colors {
		colors[i] = model.ColorInfo{Name: fmt.Sprintf("color-%d", i), Hex: "#000000"}
	}
	return &model.CaptionResult{
		DeepCaption: &model.DeepCaption{
			StructuredAttributes: json.RawMessage(`{"fit":"regular"}`),
			ImageCaptions:        model.ImageCaptions{ComprehensiveDescription: "기본 핏의 캐주얼 상의"},
		},
		ColorImages: &model.ColorImages{ColorInfo: colors},
	}, nil
}

func (f *fakeCaptioner) StreamChatMessages(_ context.Context, _ []vlm.Message, _ vlm.MessageWriter) error {
	return nil
}

func (f *fakeCaptioner) StreamChat(_ context.Context, _ string, _ vlm.MessageWriter) error {
	return nil
}

// fakeEmbedder 返回固定维度的向量。
type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) (*embedding.Result, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return &embedding.Result{ModelName: "test-embed", Dimensions: 4, Embeddings: vectors}, nil
}

// --- 测试工具 ---

func jpegPayload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func sourceRecord(productID string) *model.ProductSource {
	return &model.ProductSource{
		ProductID:    productID,
		MainCategory: "TOP",
		SubCategory:  1005,
		DataStatus:   model.StatusRepresentative,
		RepresentativeAssets: `{
			"front": "front/a.jpg",
			"back": "back/a.jpg",
			"model": "model/a.jpg",
			"color_variant": ["color/blue.jpg", "color/red.jpg"]
		}`,
	}
}

func seedDocument(productID string) *model.ProductDocument {
	return &model.ProductDocument{
		ProductID:    productID,
		MainCategory: "TOP",
		SubCategory:  1005,
		DataStatus:   model.StatusRepresentative,
	}
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		SubCategory:         1005,
		PageSize:            2,
		TargetImageSize:     64,
		QueueSize:           4,
		NumConsumers:        2,
		MaxOutboundRequests: 2,
	}
}

func newTestOrchestrator(t *testing.T, src *fakeSourceRepo, docs *fakeDocRepo, captioner *fakeCaptioner) *Orchestrator {
	t.Helper()
	downloader := NewDownloader(&fakeBlobStore{payload: jpegPayload(t)})
	return NewOrchestrator(src, docs, downloader, captioner, fakeEmbedder{}, testPipelineConfig())
}

// --- 描述生成批次 ---

func TestRunCaptionPassHappyPath(t *testing.T) {
	src := &fakeSourceRepo{records: []*model.ProductSource{
		sourceRecord("P1"), sourceRecord("P2"), sourceRecord("P3"),
	}}
	docs := newFakeDocRepo()
	for _, id := range []string{"P1", "P2", "P3"} {
		docs.docs[id] = seedDocument(id)
	}
	orch := newTestOrchestrator(t, src, docs, &fakeCaptioner{colorCount: -1})

	summary, err := orch.RunCaptionPass(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 0, summary.Fail)

	for _, id := range []string{"P1", "P2", "P3"} {
		assert.Equal(t, model.StatusCaptionCompleted, src.statusOf(id), id)

		doc, err := docs.FindByID(context.Background(), id)
		require.NoError(t, err, id)
		assert.Equal(t, model.StatusCaptionCompleted, doc.DataStatus)
		require.NotNil(t, doc.CaptionInfo)
		assert.Equal(t, model.CaptionStatusCompleted, doc.CaptionInfo.CaptionStatus)
		require.NotNil(t, doc.CaptionInfo.ColorImages)

		// 颜色条目与变体路径按排序后位置一一对应
		info := doc.CaptionInfo.ColorImages.ColorInfo
		require.Len(t, info, 2)
		assert.Equal(t, "color/blue.jpg", info[0].ImagePath)
		assert.Equal(t, "color/red.jpg", info[1].ImagePath)

		// 描述与阶段推进必须在同一次更新中落地
		assert.Equal(t, 1, docs.updateCount(id))
	}
}

func TestRunCaptionPassColorCountMismatch(t *testing.T) {
	src := &fakeSourceRepo{records: []*model.ProductSource{sourceRecord("P1")}}
	docs := newFakeDocRepo()
	docs.docs["P1"] = seedDocument("P1")
	// 两个变体图只返回一个颜色条目
	orch := newTestOrchestrator(t, src, docs, &fakeCaptioner{colorCount: 1})

	summary, err := orch.RunCaptionPass(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 1, summary.Fail)

	// 不一致的结果不落地，记录停留在原阶段等待下次运行
	assert.Equal(t, model.StatusRepresentative, src.statusOf("P1"))
	assert.Equal(t, 0, docs.updateCount("P1"))
}

func TestRunCaptionPassPartialFailureIsolation(t *testing.T) {
	broken := sourceRecord("P2")
	broken.RepresentativeAssets = `{"front": "front/a.jpg", "back": "back/a.jpg", "color_variant": ["color/blue.jpg"]}`

	src := &fakeSourceRepo{records: []*model.ProductSource{
		sourceRecord("P1"), broken, sourceRecord("P3"),
	}}
	docs := newFakeDocRepo()
	for _, id := range []string{"P1", "P2", "P3"} {
		docs.docs[id] = seedDocument(id)
	}
	orch := newTestOrchestrator(t, src, docs, &fakeCaptioner{colorCount: -1})

	summary, err := orch.RunCaptionPass(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Fail)

	assert.Equal(t, model.StatusCaptionCompleted, src.statusOf("P1"))
	assert.Equal(t, model.StatusRepresentative, src.statusOf("P2"))
	assert.Equal(t, model.StatusCaptionCompleted, src.statusOf("P3"))
}

func TestRunCaptionPassSizeSchemaPreCheck(t *testing.T) {
	t.Run("无尺寸信息时选用 NO_SIZE", func(t *testing.T) {
		src := &fakeSourceRepo{records: []*model.ProductSource{sourceRecord("P1")}}
		docs := newFakeDocRepo()
		docs.docs["P1"] = seedDocument("P1")
		captioner := &fakeCaptioner{colorCount: -1}
		orch := newTestOrchestrator(t, src, docs, captioner)

		_, err := orch.RunCaptionPass(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, model.SizeSchemaNoSize, captioner.lastSchema)
	})

	t.Run("已有尺寸信息时选用 FULL", func(t *testing.T) {
		src := &fakeSourceRepo{records: []*model.ProductSource{sourceRecord("P1")}}
		docs := newFakeDocRepo()
		docs.docs["P1"] = &model.ProductDocument{
			ProductID:      "P1",
			SizeDetailInfo: json.RawMessage(`{"total_length": "68cm"}`),
			DataStatus:     model.StatusRepresentative,
		}
		captioner := &fakeCaptioner{colorCount: -1}
		orch := newTestOrchestrator(t, src, docs, captioner)

		_, err := orch.RunCaptionPass(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, model.SizeSchemaFull, captioner.lastSchema)
	})
}

func TestRunCaptionPassZeroPageSizeUsesDefault(t *testing.T) {
	src := &fakeSourceRepo{records: []*model.ProductSource{sourceRecord("P1")}}
	docs := newFakeDocRepo()
	docs.docs["P1"] = seedDocument("P1")
	downloader := NewDownloader(&fakeBlobStore{payload: jpegPayload(t)})
	cfg := testPipelineConfig()
	cfg.PageSize = 0
	orch := NewOrchestrator(src, docs, downloader, &fakeCaptioner{colorCount: -1}, fakeEmbedder{}, cfg)

	summary, err := orch.RunCaptionPass(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
}

func TestRunCaptionPassMissingDocumentNotAdvanced(t *testing.T) {
	// 文档库中没有对应文档：has_size 预检保守取 false，
	// 但描述无处落地，记录必须计为失败且源表阶段不得推进
	src := &fakeSourceRepo{records: []*model.ProductSource{sourceRecord("P1")}}
	docs := newFakeDocRepo()
	captioner := &fakeCaptioner{colorCount: -1}
	orch := newTestOrchestrator(t, src, docs, captioner)

	summary, err := orch.RunCaptionPass(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 1, summary.Fail)
	assert.Equal(t, model.SizeSchemaNoSize, captioner.lastSchema)
	assert.Equal(t, model.StatusRepresentative, src.statusOf("P1"))
}

// --- 向量化批次 ---

func captionedDocument(productID string) *model.ProductDocument {
	return &model.ProductDocument{
		ProductID:    productID,
		MainCategory: "TOP",
		SubCategory:  1005,
		DataStatus:   model.StatusCaptionCompleted,
		CaptionInfo: &model.CaptionInfo{
			CaptionStatus: model.CaptionStatusCompleted,
			DeepCaption: &model.DeepCaption{
				ImageCaptions: model.ImageCaptions{ComprehensiveDescription: "부드러운 코튼 소재의 베이직 티셔츠"},
			},
		},
	}
}

func TestRunEmbeddingPass(t *testing.T) {
	src := &fakeSourceRepo{records: []*model.ProductSource{
		{ProductID: "P1", SubCategory: 1005, DataStatus: model.StatusCaptionCompleted},
		{ProductID: "P2", SubCategory: 1005, DataStatus: model.StatusCaptionCompleted},
		{ProductID: "P3", SubCategory: 1005, DataStatus: model.StatusCaptionCompleted},
	}}
	docs := newFakeDocRepo()
	docs.docs["P1"] = captionedDocument("P1")
	docs.docs["P2"] = captionedDocument("P2")
	docs.docs["P3"] = captionedDocument("P3")
	orch := newTestOrchestrator(t, src, docs, &fakeCaptioner{colorCount: -1})

	summary, err := orch.RunEmbeddingPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 0, summary.Fail)

	for _, id := range []string{"P1", "P2", "P3"} {
		doc, err := docs.FindByID(context.Background(), id)
		require.NoError(t, err, id)
		assert.Equal(t, model.StatusEmbeddingCompleted, doc.DataStatus)
		assert.Equal(t, model.StatusEmbeddingCompleted, src.statusOf(id))

		entry, ok := doc.Embedding[model.EmbeddingFieldComprehensive]
		require.True(t, ok)
		assert.Equal(t, "test-embed", entry.ModelName)
		assert.Equal(t, 4, entry.Dimensions)
		assert.Len(t, entry.Vector, 4)
		assert.Equal(t, model.CaptionStatusCompleted, entry.Status)
		assert.NotEmpty(t, entry.GeneratedAt)
	}
}

func TestRunEmbeddingPassSkipsDocumentWithoutCaption(t *testing.T) {
	src := &fakeSourceRepo{records: []*model.ProductSource{
		{ProductID: "P1", SubCategory: 1005, DataStatus: model.StatusCaptionCompleted},
		{ProductID: "P2", SubCategory: 1005, DataStatus: model.StatusCaptionCompleted},
	}}
	docs := newFakeDocRepo()
	docs.docs["P1"] = captionedDocument("P1")
	// P2 处于 CA_COMP 却没有描述结果，属于数据完整性问题
	docs.docs["P2"] = &model.ProductDocument{ProductID: "P2", DataStatus: model.StatusCaptionCompleted}
	orch := newTestOrchestrator(t, src, docs, &fakeCaptioner{colorCount: -1})

	summary, err := orch.RunEmbeddingPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Fail)

	p2, err := docs.FindByID(context.Background(), "P2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCaptionCompleted, p2.DataStatus)
	assert.Equal(t, model.StatusCaptionCompleted, src.statusOf("P2"))
}

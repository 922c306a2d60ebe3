package model

import "encoding/json"

// 描述生成的状态值，写入 caption_info.caption_status。
const (
	CaptionStatusCompleted = "COMPLETED"
)

// ImageCaptions 是面向不同嵌入用途的自然语言描述集合。
// comprehensive_description 是向量化阶段使用的综合描述。
type ImageCaptions struct {
	ClipTextFront            string `json:"clip_text_front"`
	DesignDetailsDescription string `json:"design_details_description"`
	StyleVibeDescription     string `json:"style_vibe_description"`
	TPOContextDescription    string `json:"tpo_context_description"`
	ComprehensiveDescription string `json:"comprehensive_description"`
}

// DeepCaption 是深度描述分支的结构化输出。
// structured_attributes 的内部结构随上装/下装模式不同，这里保持原样存储。
type DeepCaption struct {
	StructuredAttributes json.RawMessage `json:"structured_attributes"`
	ImageCaptions        ImageCaptions   `json:"image_captions"`
}

// ColorInfo 是单个颜色变体的识别结果，image_path 与
// representative_assets.color_variant 的第 N 个路径一一对应。
type ColorInfo struct {
	ImagePath string `json:"image_path"`
	Name      string `json:"name"`
	Hex       string `json:"hex"`
}

// ColorImages 是颜色分析分支的输出。
type ColorImages struct {
	ColorInfo []ColorInfo `json:"color_info"`
}

// TextImages 是 OCR 分支的输出：从尺码表、材质标签等文字图片中提取的信息。
// size_detail 仅在 FULL 模式下产生。
type TextImages struct {
	Material    string          `json:"material"`
	SizeDetail  json.RawMessage `json:"size_detail,omitempty"`
	Care        string          `json:"care"`
	Description string          `json:"description"`
}

// CaptionInfo 是一条产品记录的完整描述结果，三个分支齐备后一次性持久化。
// text_images 在产品没有文字图片时为空。
type CaptionInfo struct {
	CaptionStatus string       `json:"caption_status"`
	DeepCaption   *DeepCaption `json:"deep_caption"`
	ColorImages   *ColorImages `json:"color_images"`
	TextImages    *TextImages  `json:"text_images,omitempty"`
}

// CaptionResult 是描述引擎一次调用返回的三个分支结果。
// TextImages 为 nil 表示该产品没有文字图片可分析。
type CaptionResult struct {
	DeepCaption *DeepCaption
	ColorImages *ColorImages
	TextImages  *TextImages
}

// EmbeddingEntry 是一个命名嵌入条目。
type EmbeddingEntry struct {
	ModelName   string    `json:"model_name"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector"`
	Status      string    `json:"status"`
	GeneratedAt string    `json:"generated_at"`
}

// EmbeddingFieldComprehensive 是当前唯一的命名嵌入字段。
const EmbeddingFieldComprehensive = "comprehensive_description"

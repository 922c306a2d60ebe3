package model

// SearchHit 是一条向量检索命中，附带按需生成的预签名图片链接。
// ImageURL 为 nil 表示该命中缺少拼接对象键所需的字段，搜索整体不因此失败。
type SearchHit struct {
	ProductID            string                `json:"product_id"`
	MainCategory         string                `json:"main_category"`
	SubCategory          int                   `json:"sub_category"`
	RepresentativeAssets *RepresentativeAssets `json:"representative_assets,omitempty"`
	Score                float64               `json:"score"`
	ImageURL             *string               `json:"image_url"`
}

// SearchResult 是检索服务返回给 API 层的结构。
type SearchResult struct {
	Query      string      `json:"query"`
	Data       []SearchHit `json:"data"`
	TotalCount int         `json:"total_count"`
	Message    string      `json:"message"`
}

package model

import "errors"

// 错误分类：预期内的失败使用哨兵错误包装，调用方通过 errors.Is 判断类别。
// 单条记录的任何错误都只影响该记录，不会中断同批次的其他记录。
var (
	// ErrValidation 表示纯组件收到了格式错误的输入（向量维度不符、非法阶段值、
	// representative_assets 形状不对等），在任何网络调用之前同步触发。
	ErrValidation = errors.New("validation error")

	// ErrDataIntegrity 表示数据一致性被破坏（颜色数量与变体图片数量不一致、
	// 图片组全部为空等），对该记录是硬失败，不允许持久化部分结果。
	ErrDataIntegrity = errors.New("data integrity error")
)

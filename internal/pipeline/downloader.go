package pipeline

import (
	"context"
	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/imaging"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/storage"
	"time"
)

// presignExpiry 是下载用预签名链接的有效期。
const presignExpiry = time.Hour

// Downloader 并发拉取并解码一批图片。
// 单张图片的失败只计数不致命，由调用方根据失败数判断是否继续。
type Downloader struct {
	blobs storage.BlobStore
}

// NewDownloader 创建一个新的 Downloader 实例。
func NewDownloader(blobs storage.BlobStore) *Downloader {
	return &Downloader{blobs: blobs}
}

// Fetch 为每个描述符生成预签名链接，并发下载后就地解码。
// 返回解码失败（含签名失败、下载失败）的图片数量。
func (d *Downloader) Fetch(ctx context.Context, images []*model.ImageDescriptor) int {
	failures := 0

	// 1. 生成预签名链接，失败的描述符直接计为失败
	pending := make([]*model.ImageDescriptor, 0, len(images))
	urls := make([]string, 0, len(images))
	for _, img := range images {
		url, err := d.blobs.PresignedURL(img.ObjectKey, presignExpiry)
		if err != nil {
			log.Warnf("[Downloader] 生成预签名链接失败, object_key: %s, error: %v", img.ObjectKey, err)
			failures++
			continue
		}
		img.DownloadURL = url
		pending = append(pending, img)
		urls = append(urls, url)
	}

	// 2. 并发下载，位置对齐，nil 表示该张失败
	payloads := d.blobs.FetchMany(ctx, urls)

	// 3. 解码成功的填充 Decoded，其余保持为 nil
	for i, img := range pending {
		if payloads[i] == nil {
			failures++
			continue
		}
		decoded, err := imaging.Decode(payloads[i])
		if err != nil {
			log.Warnf("[Downloader] 解码图片失败, object_key: %s, error: %v", img.ObjectKey, err)
			failures++
			continue
		}
		img.Decoded = decoded
	}

	if failures > 0 {
		log.Warnf("[Downloader] 本批下载完成, 总数: %d, 失败: %d", len(images), failures)
	}
	return failures
}

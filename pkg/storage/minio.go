// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"fashion-curation-go/internal/config"
	"fashion-curation-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore 抽象了对象存储：生成预签名下载链接，以及并发抓取二进制内容。
type BlobStore interface {
	// PresignedURL 为指定对象键生成限时下载链接。
	PresignedURL(objectKey string, expiry time.Duration) (string, error)
	// FetchMany 并发抓取一组 URL，返回与输入位置对齐的字节切片；
	// 某个位置为 nil 表示该次抓取失败（超时、网络错误等），不影响其他位置。
	FetchMany(ctx context.Context, urls []string) [][]byte
}

type minioStore struct {
	client     *minio.Client
	bucketName string
	httpClient *http.Client
}

// NewBlobStore 初始化 MinIO 客户端并确保指定的存储桶存在。
// 初始化失败属于致命配置错误，直接终止进程。
func NewBlobStore(cfg config.MinIOConfig, downloadTimeout time.Duration) BlobStore {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	// 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}

	log.Info("MinIO 客户端初始化成功")
	return &minioStore{
		client:     client,
		bucketName: cfg.BucketName,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
}

// PresignedURL 生成预签名 GET 链接。
func (s *minioStore) PresignedURL(objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(context.Background(), s.bucketName, objectKey, expiry, nil)
	if err != nil {
		log.Errorf("[BlobStore] 生成预签名 URL 失败, key: %s, error: %v", objectKey, err)
		return "", err
	}
	return presignedURL.String(), nil
}

// FetchMany 并发抓取所有 URL。单个抓取失败只记日志并置 nil，不取消其他抓取。
func (s *minioStore) FetchMany(ctx context.Context, urls []string) [][]byte {
	results := make([][]byte, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		if u == "" {
			continue
		}
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			results[idx] = s.fetchOne(ctx, url)
		}(i, u)
	}
	wg.Wait()
	return results
}

// fetchOne 抓取单个 URL，任何失败都返回 nil。
func (s *minioStore) fetchOne(ctx context.Context, url string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warnf("[BlobStore] 构造下载请求失败, url: %s, error: %v", url, err)
		return nil
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warnf("[BlobStore] 下载失败, url: %s, error: %v", url, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[BlobStore] 下载返回非 200 状态码: %s, url: %s", resp.Status, url)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("[BlobStore] 读取下载内容失败, url: %s, error: %v", url, err)
		return nil
	}
	return data
}

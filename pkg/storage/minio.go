// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sme-plug-go/internal/config"
	"sme-plug-go/pkg/log"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。Endpoint 为空时跳过。
func InitMinIO(cfg config.MinIOConfig) {
	if cfg.Endpoint == "" {
		log.Warnf("MinIO endpoint 未配置，跳过语料清单同步")
		return
	}
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// CorpusLister 列出某个人设在对象存储中的语料文件名。
type CorpusLister interface {
	ListCorpusFiles(ctx context.Context, personaID string) ([]string, error)
}

type minioCorpusLister struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewCorpusLister 创建基于 MinIO 的语料清单读取器，client 为 nil 时返回 nil。
func NewCorpusLister(client *minio.Client, cfg config.MinIOConfig) CorpusLister {
	if client == nil {
		return nil
	}
	return &minioCorpusLister{client: client, bucket: cfg.BucketName, prefix: cfg.CorpusPrefix}
}

// ListCorpusFiles 列出 <prefix>/<personaID>/ 下的对象，返回去掉目录的文件名并排序。
func (l *minioCorpusLister) ListCorpusFiles(ctx context.Context, personaID string) ([]string, error) {
	prefix := CorpusPrefix(l.prefix, personaID)
	files := make([]string, 0)
	for obj := range l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出语料对象失败: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		files = append(files, path.Base(obj.Key))
	}
	sort.Strings(files)
	return files, nil
}

// CorpusPrefix 返回人设语料在存储桶中的前缀。
func CorpusPrefix(root, personaID string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return personaID + "/"
	}
	return root + "/" + personaID + "/"
}

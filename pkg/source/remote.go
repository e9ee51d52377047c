package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
)

// defaultS3Region は AWS 設定にリージョンが無い場合に使います。
const defaultS3Region = "ap-northeast-1"

// NewObjectReader は stores (gcs / s3) のクライアントを初期化し、
// gs:// と s3:// を読める remoteio.InputReader を返します。
// stores が空の場合は nil を返し、オブジェクトストレージ参照は無効のままです。
// 戻り値の close は GCS クライアントを解放します。
func NewObjectReader(ctx context.Context, stores []string) (remoteio.InputReader, func() error, error) {
	noop := func() error { return nil }
	if len(stores) == 0 {
		return nil, noop, nil
	}

	var (
		gcsClient *storage.Client
		s3Client  *s3.Client
	)
	closeGCS := func() error {
		if gcsClient == nil {
			return nil
		}
		return gcsClient.Close()
	}

	for _, store := range stores {
		switch store {
		case config.ObjectStoreGCS:
			if gcsClient != nil {
				continue
			}
			c, err := storage.NewClient(ctx)
			if err != nil {
				return nil, noop, fmt.Errorf("GCSクライアントの初期化に失敗しました: %w", err)
			}
			gcsClient = c
		case config.ObjectStoreS3:
			if s3Client != nil {
				continue
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				_ = closeGCS()
				return nil, noop, fmt.Errorf("AWS設定のロードに失敗しました: %w", err)
			}
			if awsCfg.Region == "" {
				awsCfg.Region = defaultS3Region
			}
			s3Client = s3.NewFromConfig(awsCfg)
		default:
			_ = closeGCS()
			return nil, noop, fmt.Errorf("unknown object store %q", store)
		}
	}

	return remoteio.NewUniversalInputReader(gcsClient, s3Client), closeGCS, nil
}

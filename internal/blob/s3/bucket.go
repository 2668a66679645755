package s3blob

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

const (
	// partSize is the multipart chunk size. The upload manager sends bodies
	// smaller than one part as a single PutObject.
	partSize = 8 << 20

	// maxDeleteBatch is the DeleteObjects per-request key limit.
	maxDeleteBatch = 1000
)

// Bucket is the S3-backed domain.ArchiveStore.
type Bucket struct {
	api      *s3.Client
	uploader *manager.Uploader
	name     string
}

var _ domain.ArchiveStore = (*Bucket)(nil)

func newBucket(api *s3.Client, name string) *Bucket {
	return &Bucket{
		api:  api,
		name: name,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Health checks that the bucket exists and is reachable with the configured
// credentials.
func (b *Bucket) Health(ctx context.Context) error {
	if _, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", b.name, err)
	}
	return nil
}

// Upload stores one archive.
func (b *Bucket) Upload(ctx context.Context, u domain.ArchiveUpload) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(u.Key),
		Body:        u.Body,
		ContentType: aws.String(u.ContentType),
		Metadata:    u.Metadata,
	}
	if u.Encoding != "" {
		in.ContentEncoding = aws.String(u.Encoding)
	}
	if _, err := b.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", u.Key, err)
	}
	return nil
}

// Objects lists every archive under prefix.
func (b *Bucket) Objects(ctx context.Context, prefix string) ([]domain.ArchiveObject, error) {
	var out []domain.ArchiveObject
	pages := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, domain.ArchiveObject{
				Key:      aws.ToString(obj.Key),
				Size:     aws.ToInt64(obj.Size),
				StoredAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Remove deletes keys in batches. Keys that no longer exist are ignored by
// S3; any per-key failure is reported.
func (b *Bucket) Remove(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		batch := keys[start:min(start+maxDeleteBatch, len(keys))]
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		res, err := b.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.name),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3blob: delete objects: %w", err)
		}
		if len(res.Errors) > 0 {
			e := res.Errors[0]
			return fmt.Errorf("s3blob: delete %s: %s: %s (%d failed)",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(res.Errors))
		}
	}
	return nil
}

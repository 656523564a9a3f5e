package file_store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/it35lab/campusfeed/backend"
	"github.com/pkg/errors"
)

type S3ObjectStore struct {
	uploader s3manageriface.UploaderAPI
	svc      s3iface.S3API
	// Public URLs are "<prefix><bucket>/<path>" when set, the S3 virtual
	// host URL otherwise. Usually a CloudFront distribution.
	publicUrlPrefix string
}

func NewS3ObjectStore(region string, publicUrlPrefix string) (*S3ObjectStore, error) {
	// AWS client session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	return &S3ObjectStore{
		uploader:        s3manager.NewUploader(sess),
		svc:             s3.New(sess),
		publicUrlPrefix: publicUrlPrefix,
	}, nil
}

func (s *S3ObjectStore) Upload(ctx context.Context, bucket string, path string, body io.Reader, opts UploadOptions) error {
	if !opts.Upsert {
		existed, err := s.isKeyExisted(ctx, bucket, path)
		if err != nil {
			return translateS3Error(err, "head object "+path)
		}
		if existed {
			return backend.NewError(backend.CodeUniqueViolation, "object already exists: "+path, nil)
		}
	}

	input := &s3manager.UploadInput{
		ACL:    aws.String("public-read"),
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
		Body:   body,
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String("max-age=" + opts.CacheControl)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	_, err := s.uploader.UploadWithContext(ctx, input)
	return translateS3Error(err, "upload "+path)
}

func (s *S3ObjectStore) isKeyExisted(ctx context.Context, bucket string, key string) (bool, error) {
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
		return false, nil
	}
	return false, err
}

func (s *S3ObjectStore) PublicURL(bucket string, path string) string {
	if s.publicUrlPrefix == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, path)
	}
	return strings.TrimSuffix(s.publicUrlPrefix, "/") + "/" + bucket + "/" + path
}

func translateS3Error(err error, message string) error {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == request.CanceledErrorCode {
		return backend.NewError(backend.CodeTimeout, message, err)
	}
	return backend.NewError(backend.CodeUnknown, message, err)
}

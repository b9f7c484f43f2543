package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	verdant_errors "verdant-sync/pkg/errors"
)

type Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	MaxBytes   int64
}

// Uploader pushes message attachments to the media bucket and returns the
// public URL that goes into the send command. An attachment either
// uploads or the send fails loudly; it is never quietly dropped.
type Uploader struct {
	cfg Config
	s3  *s3.Client
}

func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("media: region and bucket are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Uploader{cfg: cfg, s3: client}, nil
}

// Upload stores one attachment and returns its public URL. Oversized or
// empty files are a validation error; transport failures are network
// errors, so the caller's retry affordance works the same as for sends.
func (u *Uploader) Upload(ctx context.Context, fileName, contentType string, size int64, body io.Reader) (string, error) {
	if size <= 0 {
		return "", verdant_errors.Validation("media.upload", errors.New("empty file"))
	}
	if u.cfg.MaxBytes > 0 && size > u.cfg.MaxBytes {
		return "", verdant_errors.Validation("media.upload", verdant_errors.ErrTooLarge)
	}

	key := objectKey(fileName)
	_, err := u.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", verdant_errors.Network("media.upload", err)
	}
	return u.publicURL(key), nil
}

func objectKey(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return "attachments/" + uuid.New().String() + ext
}

func (u *Uploader) publicURL(key string) string {
	if u.cfg.PublicBase != "" {
		return strings.TrimRight(u.cfg.PublicBase, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

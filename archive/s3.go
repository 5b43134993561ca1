// Package archive stores generated forecast reports in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"orderdesk/models"
)

// Archiver persists a copy of a report. Reports are derived data, so a
// failed archive never fails the request that produced the report.
type Archiver interface {
	Archive(ctx context.Context, report *models.ForecastReport) error
}

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// NewS3Client loads the default AWS credential chain for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Key returns the object key for report, grouped by generation day.
func (a *S3Archiver) Key(report *models.ForecastReport) string {
	now := a.now().UTC()
	in := report.InputSummary
	return fmt.Sprintf("%sforecasts/%s/%s_%s_h%d_%d.json",
		a.prefix, now.Format("2006-01-02"), in.StartDate, in.EndDate, in.HorizonDays, now.UnixNano())
}

func (a *S3Archiver) Archive(ctx context.Context, report *models.ForecastReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(report)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unable to upload report to S3: %w", err)
	}
	return nil
}

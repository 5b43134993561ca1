package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/models"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverUploadsReport(t *testing.T) {
	client := &fakeS3{}
	a := NewS3Archiver(client, "reports-bucket", "orderdesk")
	a.now = func() time.Time { return time.Date(2026, 4, 30, 8, 0, 0, 5, time.UTC) }

	report := &models.ForecastReport{
		InputSummary: models.InputSummary{StartDate: "2026-02-01", EndDate: "2026-04-30", HorizonDays: 7},
		Forecast:     []models.ForecastPoint{{Date: "2026-05-01", PredictedRevenue: 42}},
	}
	require.NoError(t, a.Archive(context.Background(), report))

	assert.Equal(t, "reports-bucket", aws.ToString(client.input.Bucket))
	assert.Equal(t, "orderdesk/forecasts/2026-04-30/2026-02-01_2026-04-30_h7_1777536000000000005.json", aws.ToString(client.input.Key))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))

	var stored models.ForecastReport
	require.NoError(t, json.Unmarshal(client.body, &stored))
	assert.Equal(t, 42.0, stored.Forecast[0].PredictedRevenue)
}

func TestS3ArchiverError(t *testing.T) {
	a := NewS3Archiver(&fakeS3{err: errors.New("AccessDenied")}, "b", "")
	err := a.Archive(context.Background(), &models.ForecastReport{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

package resources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/driverutils"
	"cfnresources/s3utils/s3test"
	"cfnresources/timestreamutils"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callbackRecorder plays the CloudFormation response endpoint.
type callbackRecorder struct {
	mu        sync.Mutex
	responses []cfn.Response
	server    *httptest.Server
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	recorder := &callbackRecorder{}
	recorder.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var response cfn.Response
		assert.NoError(t, json.Unmarshal(raw, &response))
		recorder.mu.Lock()
		recorder.responses = append(recorder.responses, response)
		recorder.mu.Unlock()
	}))
	t.Cleanup(recorder.server.Close)
	return recorder
}

func (c *callbackRecorder) event(requestType cfn.RequestType) cfn.Event {
	return cfn.Event{
		RequestType:       requestType,
		RequestID:         "req-" + string(requestType),
		ResponseURL:       c.server.URL,
		StackID:           "arn:aws:cloudformation:us-east-1:123456789012:stack/demo/1",
		LogicalResourceID: "CustomResource",
	}
}

func (c *callbackRecorder) only(t *testing.T) cfn.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.responses, 1)
	return c.responses[0]
}

func (c *callbackRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

func handle(t *testing.T, resource customresource.Resource, event cfn.Event) {
	handler := customresource.NewHandler(resource, customresource.NewResponseSender(nil))
	require.NoError(t, handler.Handle(context.Background(), event))
}

func message(response cfn.Response) interface{} {
	return response.Data["message"]
}

func TestBucketEmptierCreateIsNoOp(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	client := s3test.NewFakeClient("data-bucket")
	client.Put("a", []byte("1"))

	handle(t, NewBucketEmptier(&config.Config{Bucket: "data-bucket"}, client, nil), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "Nothing to do on create", message(response))
	assert.Equal(t, 1, client.Len())
}

func TestBucketEmptierDeleteEmptiesBucket(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	client := s3test.NewFakeClient("data-bucket")
	for _, key := range []string{"a", "b/c", "d/e/f"} {
		client.Put(key, []byte(key))
	}

	handle(t, NewBucketEmptier(&config.Config{Bucket: "data-bucket"}, client, nil), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "Emptying the S3 Bucket: data-bucket", message(response))
	assert.Equal(t, 0, client.Len())
}

func TestBucketEmptierDeleteMissingBucketFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	client := s3test.NewFakeClient("other-bucket")

	handle(t, NewBucketEmptier(&config.Config{Bucket: "data-bucket"}, client, nil), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "storage error during empty bucket")
	assert.Contains(t, message(response), "NoSuchBucket")
}

func TestBucketEmptierMissingConfigFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)

	handle(t, NewBucketEmptier(&config.Config{}, s3test.NewFakeClient(""), nil), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "config error")
	assert.Contains(t, message(response), config.TargetBucketEnv)
}

func TestEveryResourceAnswersUpdate(t *testing.T) {
	cfg := &config.Config{Bucket: "b"}
	resources := []customresource.Resource{
		NewBucketEmptier(cfg, s3test.NewFakeClient("b"), nil),
		NewTablePopulator(cfg, nil, nil),
		NewDriverUploader(cfg, driverutils.NewDownloader(nil), s3test.NewFakeClient("b"), nil),
	}
	for _, resource := range resources {
		callbacks := newCallbackRecorder(t)

		handle(t, resource, callbacks.event(cfn.RequestUpdate))

		response := callbacks.only(t)
		assert.Equal(t, cfn.StatusSuccess, response.Status)
		assert.Equal(t, "Nothing to do on update", message(response))
	}
}

func TestLegacyUpdateSendsNoCallback(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	resource := NewBucketEmptier(&config.Config{Bucket: "b"}, s3test.NewFakeClient("b"), nil)
	handler := customresource.NewHandler(resource, customresource.NewResponseSender(nil), customresource.WithLegacyUpdate(true))

	require.NoError(t, handler.Handle(context.Background(), callbacks.event(cfn.RequestUpdate)))

	assert.Zero(t, callbacks.count())
}

type countingWriteAPI struct {
	inputs []*timestreamwrite.WriteRecordsInput
	errs   []error
}

func (c *countingWriteAPI) WriteRecords(_ context.Context, params *timestreamwrite.WriteRecordsInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error) {
	c.inputs = append(c.inputs, params)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &timestreamwrite.WriteRecordsOutput{RecordsIngested: &types.RecordsIngested{Total: 2}}, nil
}

func newTablePopulator(cfg *config.Config, api *countingWriteAPI) *TablePopulator {
	writer := timestreamutils.NewWriter(api, cfg.Timestream.DatabaseName, cfg.Timestream.TableName, nil).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	populator := timestreamutils.NewPopulator(writer, timestreamutils.NewSampleGenerator("us-east-1", 7), nil)
	return NewTablePopulator(cfg, populator, nil)
}

func tableConfig(count string) *config.Config {
	return &config.Config{Timestream: config.TimestreamConfig{
		DatabaseName: "sampleDB",
		TableName:    "sampleTable",
		RecordCount:  count,
		SampleRegion: "us-east-1",
	}}
}

func TestTablePopulatorCreateWritesRecords(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	api := &countingWriteAPI{}

	handle(t, newTablePopulator(tableConfig("5"), api), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "About to populate the Timestream DB", message(response))
	assert.Len(t, api.inputs, 5)
	for _, input := range api.inputs {
		assert.Len(t, input.Records, 2)
	}
}

func TestTablePopulatorRejectedRecordsStillSucceed(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	rejected := &types.RejectedRecordsException{RejectedRecords: []types.RejectedRecord{{RecordIndex: 1, Reason: aws.String("duplicate")}}}
	api := &countingWriteAPI{errs: []error{nil, rejected}}

	handle(t, newTablePopulator(tableConfig("3"), api), callbacks.event(cfn.RequestCreate))

	assert.Equal(t, cfn.StatusSuccess, callbacks.only(t).Status)
	assert.Len(t, api.inputs, 3)
}

func TestTablePopulatorMissingTableFailsAfterOneRetry(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	notFound := &types.ResourceNotFoundException{Message: aws.String("The table sampleTable does not exist.")}
	api := &countingWriteAPI{errs: []error{notFound, notFound}}

	handle(t, newTablePopulator(tableConfig("5"), api), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "timeseries error during populate table")
	assert.Contains(t, message(response), "does not exist")
	assert.Len(t, api.inputs, 2)
}

func TestTablePopulatorInvalidCountFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	api := &countingWriteAPI{}

	handle(t, newTablePopulator(tableConfig("lots"), api), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "config error")
	assert.Empty(t, api.inputs)
}

func TestTablePopulatorDeleteDoesNothing(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	api := &countingWriteAPI{}

	handle(t, newTablePopulator(tableConfig("5"), api), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "Deleting the custom resource - nothing to do", message(response))
	assert.Empty(t, api.inputs)
}

func driverConfig(t *testing.T, basePath string) *config.Config {
	return &config.Config{
		Bucket: "driver-bucket",
		Driver: config.DriverConfig{
			BasePath:   basePath,
			FileName:   "amazon-timestream-jdbc.jar",
			ScratchDir: t.TempDir(),
		},
	}
}

func TestDriverUploaderCreateStagesArtifact(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	artifact := []byte("PK\x03\x04 driver bytes")
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases/amazon-timestream-jdbc.jar", r.URL.Path)
		_, _ = w.Write(artifact)
	}))
	defer source.Close()
	cfg := driverConfig(t, source.URL+"/releases/")
	client := s3test.NewFakeClient("driver-bucket")

	handle(t, NewDriverUploader(cfg, driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "About to get the Timestream JDBC Driver", message(response))

	scratch, err := os.ReadFile(filepath.Join(cfg.Driver.ScratchDir, cfg.Driver.FileName))
	require.NoError(t, err)
	assert.Equal(t, artifact, scratch)
	uploaded, ok := client.Get(cfg.Driver.FileName)
	require.True(t, ok)
	assert.Equal(t, scratch, uploaded)
}

func TestDriverUploaderHTTPErrorFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	source := httptest.NewServer(http.NotFoundHandler())
	defer source.Close()
	client := s3test.NewFakeClient("driver-bucket")

	handle(t, NewDriverUploader(driverConfig(t, source.URL+"/"), driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "download error during download driver")
	assert.Contains(t, message(response), "404 Not Found")
	assert.Zero(t, client.PutObjectCalls)
}

func TestDriverUploaderUploadErrorFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jar"))
	}))
	defer source.Close()
	client := s3test.NewFakeClient("some-other-bucket")

	handle(t, NewDriverUploader(driverConfig(t, source.URL+"/"), driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestCreate))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "storage error during upload driver")
}

func TestDriverUploaderDeleteRemovesArtifact(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	cfg := driverConfig(t, "https://example.com/")
	client := s3test.NewFakeClient("driver-bucket")
	client.Put(cfg.Driver.FileName, []byte("jar"))
	client.Put("keep.txt", []byte("other"))

	handle(t, NewDriverUploader(cfg, driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusSuccess, response.Status)
	assert.Equal(t, "Deleting the custom resource", message(response))
	_, present := client.Get(cfg.Driver.FileName)
	assert.False(t, present)
	assert.Equal(t, 1, client.Len())
}

func TestDriverUploaderDeleteAbsentArtifactFollowsS3(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	client := s3test.NewFakeClient("driver-bucket")

	handle(t, NewDriverUploader(driverConfig(t, "https://example.com/"), driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestDelete))

	assert.Equal(t, cfn.StatusSuccess, callbacks.only(t).Status)
}

func TestDriverUploaderDeleteErrorFails(t *testing.T) {
	callbacks := newCallbackRecorder(t)
	client := s3test.NewFakeClient("some-other-bucket")

	handle(t, NewDriverUploader(driverConfig(t, "https://example.com/"), driverutils.NewDownloader(nil), client, nil), callbacks.event(cfn.RequestDelete))

	response := callbacks.only(t)
	assert.Equal(t, cfn.StatusFailed, response.Status)
	assert.Contains(t, message(response), "storage error during delete driver")
}

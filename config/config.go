// Package config reads the handler configuration from the Lambda environment.
// A Config is built once per process and handed to the resources; nothing
// here is re-read or mutated during an invocation.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
)

// Environment variable names, as set by the stack templates.
const (
	TargetBucketEnv       = "TargetBucket"
	DbNameEnv             = "DbName"
	TableNameEnv          = "TableName"
	RecordCountEnv        = "RecordCount"
	SampleRegionEnv       = "SampleRegion"
	DriverPathEnv         = "TimestreamJDBCDriverPath"
	DriverFileNameEnv     = "TimestreamJDBCDriverFileName"
	ScratchDirEnv         = "ScratchDir"
	AwsRegionEnv          = "AWS_REGION"
	AwsEndpointEnv        = "AwsEndpointUrl"
	SkipUpdateCallbackEnv = "LegacySkipUpdateCallback"
	LogLevelEnv           = "LogLevel"
)

const (
	DefaultScratchDir   = "/tmp"
	DefaultSampleRegion = "us-east-1"
	DefaultLogLevel     = "info"
)

var bindings = map[string]string{
	"bucket":               TargetBucketEnv,
	"db_name":              DbNameEnv,
	"table_name":           TableNameEnv,
	"record_count":         RecordCountEnv,
	"sample_region":        SampleRegionEnv,
	"driver_path":          DriverPathEnv,
	"driver_file_name":     DriverFileNameEnv,
	"scratch_dir":          ScratchDirEnv,
	"aws_region":           AwsRegionEnv,
	"aws_endpoint":         AwsEndpointEnv,
	"skip_update_callback": SkipUpdateCallbackEnv,
	"log_level":            LogLevelEnv,
}

type Config struct {
	Aws        AwsConfig
	Bucket     string
	Timestream TimestreamConfig
	Driver     DriverConfig

	// SkipUpdateCallback keeps the legacy behaviour of answering nothing to
	// Update and unknown request types.
	SkipUpdateCallback bool
	LogLevel           string
}

type AwsConfig struct {
	Region   string
	Endpoint string
}

type TimestreamConfig struct {
	DatabaseName string
	TableName    string
	// RecordCount is kept as text; see Count.
	RecordCount  string
	SampleRegion string
}

// Count parses the text-encoded record count.
func (t TimestreamConfig) Count() (int, error) {
	count, err := cast.ToIntE(strings.TrimSpace(t.RecordCount))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", RecordCountEnv, t.RecordCount)
	}
	if count < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", RecordCountEnv, t.RecordCount)
	}
	return count, nil
}

type DriverConfig struct {
	BasePath   string
	FileName   string
	ScratchDir string
}

// URL is the base path and the file name concatenated as given; the base path
// is expected to end with a slash.
func (d DriverConfig) URL() string {
	return d.BasePath + d.FileName
}

func (d DriverConfig) ScratchPath() string {
	return filepath.Join(d.ScratchDir, d.FileName)
}

// Load reads the configuration from the process environment.
func Load() *Config {
	v := viper.New()
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
	return New(v)
}

func New(v *viper.Viper) *Config {
	v.SetDefault("scratch_dir", DefaultScratchDir)
	v.SetDefault("sample_region", DefaultSampleRegion)
	v.SetDefault("log_level", DefaultLogLevel)

	return &Config{
		Aws: AwsConfig{
			Region:   v.GetString("aws_region"),
			Endpoint: v.GetString("aws_endpoint"),
		},
		Bucket: v.GetString("bucket"),
		Timestream: TimestreamConfig{
			DatabaseName: v.GetString("db_name"),
			TableName:    v.GetString("table_name"),
			RecordCount:  v.GetString("record_count"),
			SampleRegion: v.GetString("sample_region"),
		},
		Driver: DriverConfig{
			BasePath:   v.GetString("driver_path"),
			FileName:   v.GetString("driver_file_name"),
			ScratchDir: v.GetString("scratch_dir"),
		},
		SkipUpdateCallback: v.GetBool("skip_update_callback"),
		LogLevel:           v.GetString("log_level"),
	}
}

func (c *Config) RequireBucketEmpty() error {
	return requireAll(map[string]string{
		TargetBucketEnv: c.Bucket,
	})
}

func (c *Config) RequireTablePopulate() error {
	err := requireAll(map[string]string{
		DbNameEnv:      c.Timestream.DatabaseName,
		TableNameEnv:   c.Timestream.TableName,
		RecordCountEnv: c.Timestream.RecordCount,
	})
	if err != nil {
		return err
	}
	_, err = c.Timestream.Count()
	return err
}

func (c *Config) RequireDriverUpload() error {
	return requireAll(map[string]string{
		TargetBucketEnv:   c.Bucket,
		DriverPathEnv:     c.Driver.BasePath,
		DriverFileNameEnv: c.Driver.FileName,
		ScratchDirEnv:     c.Driver.ScratchDir,
	})
}

type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Keys, ", ")
}

func requireAll(values map[string]string) error {
	missing := make(map[string]struct{})
	for env, value := range values {
		if strings.TrimSpace(value) == "" {
			missing[env] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	keys := maps.Keys(missing)
	slices.Sort(keys)
	return &MissingKeysError{Keys: keys}
}

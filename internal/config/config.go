// Package config loads per-process configuration for the three
// duskline daemons (indexer, control plane, janitor) with
// github.com/spf13/viper, bound to explicit structs with enumerated
// defaults — mirroring the teacher's common.Config/SetValue pattern
// but replacing its bespoke key-value store with viper's layered
// file/env/flag resolution. Unknown keys are rejected at load time by
// unmarshalling with DecoderConfig.ErrorUnused = true, matching §1.2's
// "unknown keys are rejected at parse time" rule.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// StorageConfig selects and configures a splitstore.Backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "s3" or "fs"
	S3 S3Config `mapstructure:"s3"`
	FS FSConfig `mapstructure:"fs"`
}

// S3Config configures internal/splitstore/s3backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	AccessKeyID string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle bool `mapstructure:"use_path_style"`
}

// FSConfig configures internal/splitstore/fsbackend.
type FSConfig struct {
	Root string `mapstructure:"root"`
}

// MetastoreConfig selects and configures a metastore.Metastore.
type MetastoreConfig struct {
	Backend string `mapstructure:"backend"` // "postgres" or "file"
	PostgresDSN string `mapstructure:"postgres_dsn"`
	FileRoot string `mapstructure:"file_root"`
	// RetryMaxElapsed is not read by BuildMetastore: retrying.New
	// always gives up retrying ErrConnection after one minute, which is
	// also this field's default.
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
}

// SplitStoreConfig configures the local cache and upload concurrency
// bounds of internal/splitstore.
type SplitStoreConfig struct {
	CacheRoot string `mapstructure:"cache_root"`
	MaxNumSplits int `mapstructure:"max_num_splits"`
	MaxNumBytes int64 `mapstructure:"max_num_bytes"`
	MaxConcurrentUploads int `mapstructure:"max_concurrent_uploads"`
	IndexingUploadShare int `mapstructure:"indexing_upload_share"`
}

// IndexerConfig is the duskline-indexer daemon's configuration.
type IndexerConfig struct {
	NodeID string `mapstructure:"node_id"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	ControlPlaneAddr string `mapstructure:"control_plane_addr"`
	ScratchRoot string `mapstructure:"scratch_root"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaturityAfter time.Duration `mapstructure:"maturity_after"`
	LogLevel string `mapstructure:"log_level"`

	Storage StorageConfig `mapstructure:"storage"`
	Metastore MetastoreConfig `mapstructure:"metastore"`
	SplitStore SplitStoreConfig `mapstructure:"split_store"`
}

// ControlPlaneConfig is the duskline-controlplane daemon's configuration.
type ControlPlaneConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
	LogLevel string `mapstructure:"log_level"`

	Metastore MetastoreConfig `mapstructure:"metastore"`
}

// JanitorConfig is the duskline-janitor daemon's configuration.
type JanitorConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Interval time.Duration `mapstructure:"interval"`
	LogLevel string `mapstructure:"log_level"`

	Storage StorageConfig `mapstructure:"storage"`
	Metastore MetastoreConfig `mapstructure:"metastore"`
	SplitStore SplitStoreConfig `mapstructure:"split_store"`
}

// DefaultIndexerConfig returns an IndexerConfig with every enumerated
// default filled in.
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		GRPCAddr: ":7280",
		ControlPlaneAddr: ":7281",
		ScratchRoot: "/var/lib/duskline/scratch",
		TickInterval: time.Second,
		MaturityAfter: 2 * time.Hour,
		LogLevel: "Info",
		Storage: StorageConfig{Backend: "fs", FS: FSConfig{Root: "/var/lib/duskline/objects"}},
		Metastore: MetastoreConfig{Backend: "file", FileRoot: "/var/lib/duskline/metastore", RetryMaxElapsed: time.Minute},
		SplitStore: SplitStoreConfig{
			CacheRoot: "/var/lib/duskline/split-cache",
			MaxNumSplits: 100,
			MaxNumBytes: 10 << 30,
			MaxConcurrentUploads: 12,
			IndexingUploadShare: 8,
		},
	}
}

// DefaultControlPlaneConfig returns a ControlPlaneConfig with every
// enumerated default filled in.
func DefaultControlPlaneConfig() ControlPlaneConfig {
	return ControlPlaneConfig{
		GRPCAddr: ":7281",
		LogLevel: "Info",
		Metastore: MetastoreConfig{Backend: "file", FileRoot: "/var/lib/duskline/metastore", RetryMaxElapsed: time.Minute},
	}
}

// DefaultJanitorConfig returns a JanitorConfig with every enumerated
// default filled in.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		GracePeriod: 15 * time.Minute,
		Interval: time.Minute,
		LogLevel: "Info",
		Storage: StorageConfig{Backend: "fs", FS: FSConfig{Root: "/var/lib/duskline/objects"}},
		Metastore: MetastoreConfig{Backend: "file", FileRoot: "/var/lib/duskline/metastore", RetryMaxElapsed: time.Minute},
	}
}

// Load reads cfgFile (if non-empty) plus any DUSKLINE_-prefixed
// environment variables and flags already bound onto v, merges them
// over defaults (pre-populated on out by the caller), and unmarshals
// the result into out. Unknown keys anywhere in the merged
// configuration fail the load rather than being silently ignored.
func Load(v *viper.Viper, cfgFile string, flags *pflag.FlagSet, out interface{}) error {
	v.SetEnvPrefix("duskline")
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("config: binding flags: %w", err)
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	errorUnused := func(c *mapstructure.DecoderConfig) { c.ErrorUnused = true }
	if err := v.Unmarshal(out, decodeHook, errorUnused); err != nil {
		return fmt.Errorf("config: unmarshalling: %w", err)
	}
	return nil
}

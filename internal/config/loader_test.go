package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"PIPELINE_CONFIG", "PIPELINE_DOTENV", "GCP_PROJECT_ID", "GCS_BUCKET", "BQ_DATASET",
	"BQ_TABLE", "PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_SECRET", "PAYPAL_SANDBOX", "PAGE_SIZE",
	"PIPELINE_SOURCE", "PIPELINE_SINK", "ENVIRONMENT", "TEST_BUCKET_NAME",
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
	_ = os.Setenv("PIPELINE_DOTENV", filepath.Join(os.TempDir(), "does-not-exist.env"))
}

func writeTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then the defaults are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BQDataset, convey.ShouldEqual, "paypal_data")
				convey.So(cfg.BQTable, convey.ShouldEqual, "transactions")
				convey.So(cfg.PayPalSandbox, convey.ShouldBeTrue)
				convey.So(cfg.PageSize, convey.ShouldEqual, 100)
				convey.So(cfg.FallbackCount, convey.ShouldEqual, 25)
				convey.So(cfg.Source, convey.ShouldEqual, config.SourceAuto)
			})
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("GCP_PROJECT_ID", "acme-data")
			_ = os.Setenv("PAYPAL_SANDBOX", "false")
			_ = os.Setenv("PAGE_SIZE", "250")
			_ = os.Setenv("PIPELINE_SINK", "sqlite")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GCPProjectID, convey.ShouldEqual, "acme-data")
				convey.So(cfg.PayPalSandbox, convey.ShouldBeFalse)
				convey.So(cfg.PageSize, convey.ShouldEqual, 250)
				convey.So(cfg.Sink, convey.ShouldEqual, config.SinkSQLite)
				convey.So(cfg.BaseURL(), convey.ShouldEqual, "https://api-m.paypal.com")
			})
		})

		convey.Convey("When a YAML file uses placeholders", func() {
			path := writeTempFile(t, "pipeline.yaml", `
gcs_bucket: "${TEST_BUCKET_NAME:fallback-bucket}"
bq_dataset: "${MISSING_DATASET_VAR:paypal_raw}"
page_size: 50
`)
			_ = os.Setenv("PIPELINE_CONFIG", path)
			_ = os.Setenv("TEST_BUCKET_NAME", "paypal-artifacts")

			cfg, err := config.Load(ctx)

			convey.Convey("Then placeholders are expanded from env or defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GCSBucket, convey.ShouldEqual, "paypal-artifacts")
				convey.So(cfg.BQDataset, convey.ShouldEqual, "paypal_raw")
				convey.So(cfg.PageSize, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When both file and env set the same key", func() {
			path := writeTempFile(t, "pipeline.yaml", "bq_table: from_file\nenvironment: staging\n")
			_ = os.Setenv("PIPELINE_CONFIG", path)
			_ = os.Setenv("BQ_TABLE", "from_env")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BQTable, convey.ShouldEqual, "from_env")
				convey.So(cfg.Environment, convey.ShouldEqual, "staging")
			})
		})

		convey.Convey("When a .env file is present", func() {
			path := writeTempFile(t, "test.env", "GCS_BUCKET=dotenv-bucket\nENVIRONMENT=dotenv\n")
			_ = os.Setenv("PIPELINE_DOTENV", path)
			_ = os.Setenv("ENVIRONMENT", "real-env")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables without overriding real env", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GCSBucket, convey.ShouldEqual, "dotenv-bucket")
				convey.So(cfg.Environment, convey.ShouldEqual, "real-env")
			})
		})

		convey.Convey("When the page size exceeds the upstream ceiling", func() {
			_ = os.Setenv("PAGE_SIZE", "900")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it is capped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, config.MaxPageSize)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			path := writeTempFile(t, "broken.yaml", "invalid: yaml: content: [")
			_ = os.Setenv("PIPELINE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})
	})
}

package gcp

import (
	"errors"
	"testing"
)

func TestParseObjectStorageMode(t *testing.T) {
	cases := []struct {
		raw, host string
		want      ObjectStorageMode
	}{
		{"", "", ObjectStorageModeGCS},
		{"", "http://fake-gcs:4443", ObjectStorageModeGCSEmulator},
		{"GCS", "http://fake-gcs:4443", ObjectStorageModeGCS},
		{"gcs_emulator", "", ObjectStorageModeGCSEmulator},
	}
	for _, tc := range cases {
		got, err := ParseObjectStorageMode(tc.raw, tc.host)
		if err != nil {
			t.Fatalf("ParseObjectStorageMode(%q,%q): %v", tc.raw, tc.host, err)
		}
		if got != tc.want {
			t.Fatalf("ParseObjectStorageMode(%q,%q): want=%q got=%q", tc.raw, tc.host, tc.want, got)
		}
	}

	_, err := ParseObjectStorageMode("s3", "")
	var cfgErr *StorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != StorageConfigErrorInvalidMode {
		t.Fatalf("invalid mode: want code=%q got err=%v", StorageConfigErrorInvalidMode, err)
	}
}

func TestStorageConfigValidate(t *testing.T) {
	ok := StorageConfig{Mode: ObjectStorageModeGCS, PredictorBucket: "models"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cases := []struct {
		name string
		cfg  StorageConfig
		code StorageConfigErrorCode
	}{
		{"missing bucket", StorageConfig{Mode: ObjectStorageModeGCS}, StorageConfigErrorMissingBucket},
		{"missing host", StorageConfig{Mode: ObjectStorageModeGCSEmulator, PredictorBucket: "m"}, StorageConfigErrorMissingEmulatorHost},
		{"bad host", StorageConfig{Mode: ObjectStorageModeGCSEmulator, PredictorBucket: "m", EmulatorHost: "fake-gcs"}, StorageConfigErrorInvalidEmulatorHost},
		{"bad mode", StorageConfig{Mode: "ftp", PredictorBucket: "m"}, StorageConfigErrorInvalidMode},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		var cfgErr *StorageConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Code != tc.code {
			t.Fatalf("%s: want code=%q got err=%v", tc.name, tc.code, err)
		}
	}
}

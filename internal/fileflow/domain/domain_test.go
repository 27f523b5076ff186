package domain_test

import (
	"testing"
	"time"

	"fileflow/internal/fileflow/domain"
)

func TestMetadata_TypedGetters(t *testing.T) {
	m := domain.NewMetadata()
	m.Set("name", "value")
	m.Set("count", int64(7))
	m.Set("smallCount", 3)
	m.Set("ratio", 2.5)
	m.Set("flag", true)

	if v, ok := m.GetString("name"); !ok || v != "value" {
		t.Errorf("GetString = %q, %v", v, ok)
	}
	if v, ok := m.GetInt64("count"); !ok || v != 7 {
		t.Errorf("GetInt64 = %d, %v", v, ok)
	}
	if v, ok := m.GetInt64("smallCount"); !ok || v != 3 {
		t.Errorf("GetInt64 over int = %d, %v", v, ok)
	}
	if v, ok := m.GetFloat64("ratio"); !ok || v != 2.5 {
		t.Errorf("GetFloat64 = %v, %v", v, ok)
	}
	if v, ok := m.GetBool("flag"); !ok || !v {
		t.Errorf("GetBool = %v, %v", v, ok)
	}

	// wrong type reads fail instead of silently converting
	if _, ok := m.GetString("count"); ok {
		t.Error("expected GetString over int64 to fail")
	}
	if _, ok := m.GetInt64("missing"); ok {
		t.Error("expected GetInt64 over absent key to fail")
	}
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	m := domain.NewMetadata()
	m.Set("key", "original")

	clone := m.Clone()
	clone.Set("key", "changed")

	if v, _ := m.GetString("key"); v != "original" {
		t.Error("mutating a clone must not affect the original")
	}
}

func TestFileUploadContext_HasTag(t *testing.T) {
	upload := domain.FileUploadContext{Tags: []string{"compress", "encrypt"}}

	if !upload.HasTag("compress") {
		t.Error("expected tag to be found")
	}
	if upload.HasTag("skip-scan") {
		t.Error("expected absent tag to be reported missing")
	}
}

func TestProcessingContext_ContentClassification(t *testing.T) {
	images := []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
	for _, ct := range images {
		pctx := domain.NewProcessingContext("f", ct, 1, "", domain.ProcessingOptions{})
		if !pctx.IsImage() {
			t.Errorf("expected %s to be recognized as image", ct)
		}
	}

	pctx := domain.NewProcessingContext("f", "image/svg+xml", 1, "", domain.ProcessingOptions{})
	if pctx.IsImage() {
		t.Error("svg is not a raster image")
	}

	compressed := []string{"image/jpeg", "video/mp4", "application/zip", "application/gzip"}
	for _, ct := range compressed {
		pctx := domain.NewProcessingContext("f", ct, 1, "", domain.ProcessingOptions{})
		if !pctx.IsAlreadyCompressed() {
			t.Errorf("expected %s to count as already compressed", ct)
		}
	}

	pctx = domain.NewProcessingContext("f", "text/plain", 1, "", domain.ProcessingOptions{})
	if pctx.IsAlreadyCompressed() {
		t.Error("text/plain is not already compressed")
	}
}

func TestTemporaryFileReference_IsExpired(t *testing.T) {
	now := time.Now()
	ref := domain.TemporaryFileReference{ExpiresAt: now.Add(time.Minute)}

	if ref.IsExpired(now) {
		t.Error("reference expiring in the future must not be expired")
	}
	if !ref.IsExpired(now.Add(2 * time.Minute)) {
		t.Error("reference past its expiry must be expired")
	}
}

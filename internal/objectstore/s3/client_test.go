package s3

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMetaPrefixAndExtractMetadataRoundTrip(t *testing.T) {
	headers := map[string]string{
		"x-amz-meta-s3fs-mode": "33188",
		"x-amz-meta-s3fs-acl":  "private",
	}

	stripped := stripMetaPrefix(headers)
	assert.Equal(t, map[string]string{"s3fs-mode": "33188", "s3fs-acl": "private"}, stripped)

	meta := extractMetadata(stripped)
	assert.Equal(t, map[string]string{"s3fs-mode": "33188", "s3fs-acl": "private"}, meta)
}

func TestHeadersWithMetaAddsPrefix(t *testing.T) {
	got := headersWithMeta(map[string]string{"s3fs-mode": "33188"})
	assert.Equal(t, map[string]string{"x-amz-meta-s3fs-mode": "33188"}, got)
}

func TestStripThenHeadersWithMetaRoundTripsEnvelopeNamespace(t *testing.T) {
	sent := map[string]string{"x-amz-meta-s3fs-mode": "33188"}
	stored := extractMetadata(stripMetaPrefix(sent))
	got := headersWithMeta(stored)
	assert.Equal(t, sent, got)
}

func TestIsNoSuchKeyRejectsUnrelatedErrors(t *testing.T) {
	assert.False(t, isNoSuchKey(errors.New("boom")))
	assert.False(t, isNoSuchKey(nil))
}

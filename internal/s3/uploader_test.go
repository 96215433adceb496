package s3

import (
	"testing"

	"relief-dispatch-api-server/config"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	u := &Uploader{Bucket: "relief-proofs", Region: "ap-south-1"}
	assert.Equal(t, "https://relief-proofs.s3.ap-south-1.amazonaws.com/proofs/d1/p1.jpg", u.URL(ProofKey("d1", "p1", ".jpg")))

	u.CloudFrontDomain = "cdn.example.org"
	assert.Equal(t, "https://cdn.example.org/proofs/d1/p1.jpg", u.URL("proofs/d1/p1.jpg"))
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(config.S3Config{}))
	assert.False(t, Enabled(config.S3Config{Bucket: "b"}))
	assert.True(t, Enabled(config.S3Config{Bucket: "b", Region: "r"}))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateVersions(t *testing.T) {
	valid := []VersionSpec{
		{Name: "thumbnail", TargetWidth: 400},
		{Name: "medium", ScalePercent: 50},
	}
	require.NoError(t, ValidateVersions(valid))

	assert.Error(t, ValidateVersions(nil), "expected error for empty versions")
	assert.Error(t, ValidateVersions([]VersionSpec{{Name: "thumbnail"}}), "expected error for missing size")
	assert.Error(t, ValidateVersions([]VersionSpec{{Name: "both", TargetWidth: 10, ScalePercent: 10}}))
	assert.Error(t, ValidateVersions([]VersionSpec{{Name: "bad name", TargetWidth: 10}}))
	assert.Error(t, ValidateVersions([]VersionSpec{
		{Name: "thumbnail", TargetWidth: 400},
		{Name: "thumbnail", TargetWidth: 200},
	}), "expected duplicate name error")
}

func TestArtifactFilename(t *testing.T) {
	base, ext := SplitFilename("photo.JPG")
	assert.Equal(t, "photo", base)
	assert.Equal(t, ".JPG", ext)
	assert.Equal(t, "photo-portrait-thumbnail.JPG", ArtifactFilename(base, "portrait", "thumbnail", ext))

	base, ext = SplitFilename("archive.tar.png")
	assert.Equal(t, "archive.tar", base)
	assert.Equal(t, ".png", ext)

	base, ext = SplitFilename(".photo")
	assert.Equal(t, ".photo", base)
	assert.Empty(t, ext)
	assert.Equal(t, ".photo-portrait-thumbnail", ArtifactFilename(base, "portrait", "thumbnail", ext))

	base, ext = SplitFilename(".photo.jpg")
	assert.Equal(t, ".photo", base)
	assert.Equal(t, ".jpg", ext)
}

func TestSourceObjectRefValidate(t *testing.T) {
	require.NoError(t, SourceObjectRef{Bucket: "uploads", Key: "2024/photo.jpg"}.Validate())
	assert.Error(t, SourceObjectRef{Key: "photo.jpg"}.Validate())
	assert.Error(t, SourceObjectRef{Bucket: "uploads", Key: "folder/"}.Validate())
	assert.Error(t, SourceObjectRef{Bucket: "uploads", Key: "folder/.."}.Validate())
	assert.Equal(t, "photo.jpg", SourceObjectRef{Bucket: "uploads", Key: "2024/photo.jpg"}.Filename())
}

func TestParseBucketNotification(t *testing.T) {
	body := []byte(`{"Records":[
		{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"private-photos"},"object":{"key":"trips/my+photo%281%29.jpg","size":42}}},
		{"s3":{"bucket":{"name":"private-photos"},"object":{"key":"second.jpg"}}}
	]}`)

	n, err := ParseBucketNotification(body)
	require.NoError(t, err)

	refs, err := n.Refs()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, SourceObjectRef{Bucket: "private-photos", Key: "trips/my photo(1).jpg"}, refs[0])
	assert.Equal(t, "second.jpg", refs[1].Key)

	_, err = ParseBucketNotification([]byte(`{"Records":[]}`))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = ParseBucketNotification([]byte(`not json`))
	assert.Error(t, err)
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// BucketNotification is the storage-event document delivered by S3 and by
// MinIO webhook targets.
type BucketNotification struct {
	EventName string               `json:"EventName,omitempty"`
	Key       string               `json:"Key,omitempty"`
	Records   []NotificationRecord `json:"Records"`
}

type NotificationRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size,omitempty"`
		} `json:"object"`
	} `json:"s3"`
}

var ErrNoRecords = errors.New("notification has no records")

func ParseBucketNotification(body []byte) (BucketNotification, error) {
	var n BucketNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return BucketNotification{}, fmt.Errorf("decode bucket notification: %w", err)
	}
	if len(n.Records) == 0 {
		return BucketNotification{}, ErrNoRecords
	}
	return n, nil
}

// Ref decodes the record into a source reference. Object keys arrive
// URL-encoded (spaces as '+').
func (r NotificationRecord) Ref() (SourceObjectRef, error) {
	key, err := url.QueryUnescape(r.S3.Object.Key)
	if err != nil {
		return SourceObjectRef{}, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
	}
	ref := SourceObjectRef{Bucket: r.S3.Bucket.Name, Key: key}
	if err := ref.Validate(); err != nil {
		return SourceObjectRef{}, err
	}
	return ref, nil
}

// Refs returns every record's reference; the first invalid record fails the
// whole notification.
func (n BucketNotification) Refs() ([]SourceObjectRef, error) {
	refs := make([]SourceObjectRef, 0, len(n.Records))
	for i, rec := range n.Records {
		ref, err := rec.Ref()
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

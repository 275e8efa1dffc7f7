package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"xrpredict/internal/domain"
)

// Archiver implements domain.ResolutionArchiver by serialising the final
// resolution report to JSON and uploading it to object storage. The report
// is a permanent record of who was paid what; the database row can later be
// compacted without losing the full payout breakdown.
type Archiver struct {
	client *Client
}

// NewArchiver creates an Archiver that writes to the given client's bucket.
func NewArchiver(c *Client) *Archiver {
	return &Archiver{client: c}
}

// archivePath builds the object key for a resolution report.
//
//	resolutions/8b2f33a1-....json
func archivePath(resolutionID string) string {
	return fmt.Sprintf("resolutions/%s.json", resolutionID)
}

// ArchiveResolution uploads the resolution result as a pretty-printed JSON
// object at resolutions/{id}.json.
func (a *Archiver) ArchiveResolution(ctx context.Context, result domain.ResolutionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal resolution %s: %w", result.ResolutionID, err)
	}

	path := archivePath(result.ResolutionID)
	_, err = a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put resolution %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResolutionArchiver = (*Archiver)(nil)

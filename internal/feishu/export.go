package feishu

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ExportExtension maps an editable document type to the artifact format
// the export job produces.
func ExportExtension(fileType string) string {
	switch fileType {
	case FileTypeDoc, FileTypeDocx:
		return "docx"
	case FileTypeSheet, FileTypeBitable:
		return "xlsx"
	default:
		return "pdf"
	}
}

// CreateExportJob asks the server to render the document as a binary
// artifact and returns the job ticket to poll.
func (c *Client) CreateExportJob(ctx context.Context, token, fileType string) (string, error) {
	body := exportJobRequest{
		FileExtension: ExportExtension(fileType),
		Token:         token,
		FileType:      fileType,
	}
	created, err := postData[exportJobCreated](ctx, c, "/open-apis/drive/v1/export_tasks", body)
	if err != nil {
		return "", err
	}
	if created.Ticket == "" {
		return "", upstreamErr(-1, "export job response has no ticket")
	}
	return created.Ticket, nil
}

// PollExportJob checks an export job once. It returns the artifact's
// download token when the job has finished, or "" while it is still
// running.
func (c *Client) PollExportJob(ctx context.Context, ticket, originalToken string) (string, error) {
	q := url.Values{}
	q.Set("token", originalToken)
	path := fmt.Sprintf("/open-apis/drive/v1/export_tasks/%s", url.PathEscape(ticket))

	status, err := getData[exportJobStatus](ctx, c, path, q)
	if err != nil {
		return "", err
	}
	if status.Result == nil {
		return "", nil
	}
	if status.Result.JobStatus != 0 {
		// Still rendering (or transiently erroring); the poll loop decides
		// when to give up.
		c.logger.Debug("export job pending", "ticket", ticket, "job_status", status.Result.JobStatus, "job_error", status.Result.JobErrorMsg)
		return "", nil
	}
	return status.Result.FileToken, nil
}

// AwaitExport polls an export job at a fixed interval until it yields a
// download token, failing with ErrExportTimeout after maxPolls attempts.
func (c *Client) AwaitExport(ctx context.Context, ticket, originalToken string, maxPolls int) (string, error) {
	if maxPolls <= 0 {
		maxPolls = DefaultMaxExportPolls
	}
	for i := 0; i < maxPolls; i++ {
		downloadToken, err := c.PollExportJob(ctx, ticket, originalToken)
		if err != nil {
			return "", err
		}
		if downloadToken != "" {
			return downloadToken, nil
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", fmt.Errorf("%w: ticket %s after %d polls", ErrExportTimeout, ticket, maxPolls)
}

package feishu

import (
	"context"
	"net/url"
	"strconv"
)

// RootFolderName is the display label for the drive root; the meta
// endpoint returns the token only.
const RootFolderName = "Cloud Drive"

// RootFolderMeta returns the user's drive root folder with the fixed
// local display name filled in.
func (c *Client) RootFolderMeta(ctx context.Context) (*RootMeta, error) {
	meta, err := getData[RootMeta](ctx, c, "/open-apis/drive/explorer/v2/root_folder/meta", nil)
	if err != nil {
		return nil, err
	}
	meta.Name = RootFolderName
	return meta, nil
}

// ListFolder fetches one page of a drive folder. An empty folderToken
// lists the root.
func (c *Client) ListFolder(ctx context.Context, folderToken, pageToken string, pageSize int) (*FilePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if folderToken != "" {
		q.Set("folder_token", folderToken)
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	return getData[FilePage](ctx, c, "/open-apis/drive/v1/files", q)
}

// ListFolderAll drains every page of a drive folder listing.
func (c *Client) ListFolderAll(ctx context.Context, folderToken string) ([]File, error) {
	var all []File
	pageToken := ""
	for {
		page, err := c.ListFolder(ctx, folderToken, pageToken, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Files...)
		if !page.HasMore || page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

package feishu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// DownloadToPath streams a file body to destPath, creating parent
// directories as needed. exported selects the export-artifact endpoint,
// which takes the (percent-encoded) download token produced by an export
// job; otherwise the ordinary drive file endpoint is used.
func (c *Client) DownloadToPath(ctx context.Context, token, destPath string, exported bool) error {
	var path string
	if exported {
		path = fmt.Sprintf("/open-apis/drive/v1/export_tasks/file/%s/download", url.PathEscape(token))
	} else {
		path = fmt.Sprintf("/open-apis/drive/v1/files/%s/download", url.PathEscape(token))
	}

	resp, err := c.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("feishu: creating directory: %w", err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("feishu: creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("feishu: writing file: %w", writeErr)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("feishu: reading body: %w", readErr)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("feishu: flushing file: %w", err)
	}
	return nil
}

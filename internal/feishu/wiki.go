package feishu

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListWikiSpaces fetches one page of the user's wiki spaces.
func (c *Client) ListWikiSpaces(ctx context.Context, pageToken string, pageSize int) (*WikiSpacePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	return getData[WikiSpacePage](ctx, c, "/open-apis/wiki/v2/spaces", q)
}

// ListWikiSpacesAll drains every page of the wiki space listing.
func (c *Client) ListWikiSpacesAll(ctx context.Context) ([]WikiSpace, error) {
	var all []WikiSpace
	pageToken := ""
	for {
		page, err := c.ListWikiSpaces(ctx, pageToken, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			return all, nil
		}
		pageToken = page.PageToken
	}
}

// ListWikiSpaceNodes fetches one page of a wiki space's nodes. An empty
// parentNodeToken lists the space's top level.
func (c *Client) ListWikiSpaceNodes(ctx context.Context, spaceID, parentNodeToken, pageToken string, pageSize int) (*WikiNodePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if parentNodeToken != "" {
		q.Set("parent_node_token", parentNodeToken)
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	path := fmt.Sprintf("/open-apis/wiki/v2/spaces/%s/nodes", url.PathEscape(spaceID))
	return getData[WikiNodePage](ctx, c, path, q)
}

// ListWikiSpaceNodesAll drains every page of a wiki node listing.
func (c *Client) ListWikiSpaceNodesAll(ctx context.Context, spaceID, parentNodeToken string) ([]WikiNode, error) {
	var all []WikiNode
	pageToken := ""
	for {
		page, err := c.ListWikiSpaceNodes(ctx, spaceID, parentNodeToken, pageToken, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			return all, nil
		}
		pageToken = page.PageToken
	}
}

package app

import (
	"larkvault/internal/feishu"
)

// GetRootFolderMeta returns the user's drive root folder.
func (a *App) GetRootFolderMeta() (*feishu.RootMeta, error) {
	meta, err := a.client.RootFolderMeta(a.context())
	if err != nil {
		a.logger.Error("failed to fetch root folder meta", "error", err)
		return nil, apiErr(err)
	}
	return meta, nil
}

// GetFolderFiles returns the full listing of a drive folder. An empty
// folderToken lists the root.
func (a *App) GetFolderFiles(folderToken string) ([]feishu.File, error) {
	files, err := a.client.ListFolderAll(a.context(), folderToken)
	if err != nil {
		a.logger.Error("failed to list folder", "folder", folderToken, "error", err)
		return nil, apiErr(err)
	}
	if files == nil {
		files = []feishu.File{}
	}
	return files, nil
}

// GetWikiSpaces returns every wiki space visible to the user.
func (a *App) GetWikiSpaces() ([]feishu.WikiSpace, error) {
	spaces, err := a.client.ListWikiSpacesAll(a.context())
	if err != nil {
		a.logger.Error("failed to list wiki spaces", "error", err)
		return nil, apiErr(err)
	}
	if spaces == nil {
		spaces = []feishu.WikiSpace{}
	}
	return spaces, nil
}

// GetWikiSpaceNodes returns the children of a wiki node, or the space's
// top level when parentNodeToken is empty.
func (a *App) GetWikiSpaceNodes(spaceID, parentNodeToken string) ([]feishu.WikiNode, error) {
	nodes, err := a.client.ListWikiSpaceNodesAll(a.context(), spaceID, parentNodeToken)
	if err != nil {
		a.logger.Error("failed to list wiki nodes", "space", spaceID, "error", err)
		return nil, apiErr(err)
	}
	if nodes == nil {
		nodes = []feishu.WikiNode{}
	}
	return nodes, nil
}

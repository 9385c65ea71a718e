package engine

import (
	"context"
	"fmt"
	"path"

	"larkvault/internal/feishu"
	"larkvault/internal/storage"
)

// wikiLeafTypes are the wiki node object types emitted as downloadable
// leaves. Anything else is traversal-only.
var wikiLeafTypes = map[string]bool{
	feishu.FileTypeDoc:      true,
	feishu.FileTypeDocx:     true,
	feishu.FileTypeSheet:    true,
	feishu.FileTypeBitable:  true,
	feishu.FileTypeMindnote: true,
	feishu.FileTypeFile:     true,
	feishu.FileTypeSlides:   true,
}

// discover expands the task's selection tree into a deduplicated list of
// leaf file records, persists them, and moves the task to ready. Any
// listing error aborts the whole pass and leaves the task pending.
func (m *Manager) discover(ctx context.Context, task *storage.DownloadTask) error {
	tree, err := feishu.ParseTree(task.SelectedNodes)
	if err != nil {
		return err
	}

	var all []storage.DownloadFile
	for _, node := range tree {
		files, err := m.discoverNode(ctx, node.Path, node)
		if err != nil {
			return fmt.Errorf("engine: discovery: %w", err)
		}
		all = append(all, files...)
	}

	// Two selection entries can reach the same document; keep the first
	// occurrence of each (relative_path, name) pair.
	seen := make(map[[2]string]bool, len(all))
	unique := all[:0]
	for _, f := range all {
		key := [2]string{f.RelativePath, f.Name}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, f)
	}

	m.logger.Info("discovery finished", "task", task.ID, "found", len(all), "unique", len(unique))

	if err := m.store.BatchCreateFiles(task.ID, unique); err != nil {
		return fmt.Errorf("engine: saving file list: %w", err)
	}
	if err := m.store.UpdateTaskProgress(task.ID, 0, 0, 0, len(unique)); err != nil {
		return err
	}
	if err := m.store.UpdateTaskStatus(task.ID, storage.TaskStatusReady); err != nil {
		return err
	}

	task.Status = storage.TaskStatusReady
	task.TotalFiles = len(unique)
	return nil
}

// discoverNode recurses over one selection node. prefix is the logical
// directory chain accumulated so far; relative paths always use forward
// slashes and are mapped to the OS separator at download time.
func (m *Manager) discoverNode(ctx context.Context, prefix []string, node feishu.TreeNode) ([]storage.DownloadFile, error) {
	switch node.Kind {
	case feishu.NodeKindRootMeta:
		return m.discoverFolder(ctx, node.Root.Token, append(prefix, node.Root.Name))

	case feishu.NodeKindFolder:
		return m.discoverFolder(ctx, node.Folder.Token, append(prefix, node.Folder.Name))

	case feishu.NodeKindFile:
		return []storage.DownloadFile{driveFileRecord(*node.File, prefix)}, nil

	case feishu.NodeKindWikiRoot:
		spaces, err := m.api.ListWikiSpacesAll(ctx)
		if err != nil {
			return nil, err
		}
		var all []storage.DownloadFile
		childPrefix := append(prefix, node.WikiRoot.Name)
		for _, space := range spaces {
			files, err := m.discoverNode(ctx, childPrefix, feishu.TreeNode{
				Kind:      feishu.NodeKindWikiSpace,
				WikiSpace: &space,
			})
			if err != nil {
				return nil, err
			}
			all = append(all, files...)
		}
		return all, nil

	case feishu.NodeKindWikiSpace:
		nodes, err := m.api.ListWikiSpaceNodesAll(ctx, node.WikiSpace.SpaceID, "")
		if err != nil {
			return nil, err
		}
		return m.discoverWikiNodes(ctx, nodes, append(prefix, node.WikiSpace.Name))

	case feishu.NodeKindWikiNode:
		return m.discoverWikiNode(ctx, *node.WikiNode, prefix)

	default:
		return nil, fmt.Errorf("unknown selection node type %q", node.Kind)
	}
}

// discoverFolder lists a drive folder and recurses into subfolders.
func (m *Manager) discoverFolder(ctx context.Context, folderToken string, prefix []string) ([]storage.DownloadFile, error) {
	entries, err := m.api.ListFolderAll(ctx, folderToken)
	if err != nil {
		return nil, err
	}

	var all []storage.DownloadFile
	for _, entry := range entries {
		if entry.FileType == feishu.FileTypeFolder {
			files, err := m.discoverFolder(ctx, entry.Token, append(prefix, entry.Name))
			if err != nil {
				return nil, err
			}
			all = append(all, files...)
			continue
		}
		all = append(all, driveFileRecord(entry, prefix))
	}
	return all, nil
}

// discoverWikiNode emits the node's own document, if it carries one, and
// independently recurses into its children. A wiki node can be both: its
// title then names the file and the directory.
func (m *Manager) discoverWikiNode(ctx context.Context, node feishu.WikiNode, prefix []string) ([]storage.DownloadFile, error) {
	var all []storage.DownloadFile

	if wikiLeafTypes[node.ObjType] {
		all = append(all, storage.DownloadFile{
			Token:        node.ObjToken,
			Name:         node.Title,
			FileType:     node.ObjType,
			RelativePath: path.Join(prefix...),
			SpaceID:      node.SpaceID,
			Status:       storage.FileStatusPending,
		})
	}

	if node.HasChild {
		children, err := m.api.ListWikiSpaceNodesAll(ctx, node.SpaceID, node.NodeToken)
		if err != nil {
			return nil, err
		}
		files, err := m.discoverWikiNodes(ctx, children, append(prefix, node.Title))
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}

	return all, nil
}

func (m *Manager) discoverWikiNodes(ctx context.Context, nodes []feishu.WikiNode, prefix []string) ([]storage.DownloadFile, error) {
	var all []storage.DownloadFile
	for _, node := range nodes {
		files, err := m.discoverWikiNode(ctx, node, prefix)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}
	return all, nil
}

// driveFileRecord converts a drive listing entry into a file record,
// dereferencing shortcuts on the fly.
func driveFileRecord(entry feishu.File, prefix []string) storage.DownloadFile {
	record := storage.DownloadFile{
		Token:        entry.Token,
		Name:         entry.Name,
		FileType:     entry.FileType,
		RelativePath: path.Join(prefix...),
		Status:       storage.FileStatusPending,
	}
	if entry.FileType == feishu.FileTypeShortcut && entry.ShortcutInfo != nil {
		record.Token = entry.ShortcutInfo.TargetToken
		record.FileType = entry.ShortcutInfo.TargetType
	}
	return record
}

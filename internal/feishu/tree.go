package feishu

import (
	"encoding/json"
	"fmt"
)

// Selection node discriminators. The wire format is
// {"path": [...], "type": "<variant>", "fileItem": {...}} and has to
// survive a round trip through the selected_nodes column untouched.
const (
	NodeKindRootMeta  = "FeishuRootMeta"
	NodeKindFile      = "FeishuFile"
	NodeKindFolder    = "FeishuFolder"
	NodeKindWikiRoot  = "FeishuWikiRoot"
	NodeKindWikiSpace = "FeishuWikiSpace"
	NodeKindWikiNode  = "FeishuWikiNode"
)

// TreeNode is one user-selected node plus the logical path prefix the
// frontend recorded while the user browsed to it. Exactly one of the
// payload pointers is set, matching Kind.
type TreeNode struct {
	Path []string
	Kind string

	Root      *RootMeta
	File      *File
	Folder    *Folder
	WikiRoot  *WikiRoot
	WikiSpace *WikiSpace
	WikiNode  *WikiNode
}

// Tree is the ordered list of selection entries for a task.
type Tree []TreeNode

type treeNodeWire struct {
	Path []string        `json:"path"`
	Kind string          `json:"type"`
	Item json.RawMessage `json:"fileItem"`
}

func (n *TreeNode) UnmarshalJSON(data []byte) error {
	var wire treeNodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	n.Path = wire.Path
	n.Kind = wire.Kind

	var dst interface{}
	switch wire.Kind {
	case NodeKindRootMeta:
		n.Root = &RootMeta{}
		dst = n.Root
	case NodeKindFile:
		n.File = &File{}
		dst = n.File
	case NodeKindFolder:
		n.Folder = &Folder{}
		dst = n.Folder
	case NodeKindWikiRoot:
		n.WikiRoot = &WikiRoot{}
		dst = n.WikiRoot
	case NodeKindWikiSpace:
		n.WikiSpace = &WikiSpace{}
		dst = n.WikiSpace
	case NodeKindWikiNode:
		n.WikiNode = &WikiNode{}
		dst = n.WikiNode
	default:
		return fmt.Errorf("feishu: unknown selection node type %q", wire.Kind)
	}

	if len(wire.Item) == 0 {
		return fmt.Errorf("feishu: selection node %q has no fileItem", wire.Kind)
	}
	return json.Unmarshal(wire.Item, dst)
}

func (n TreeNode) MarshalJSON() ([]byte, error) {
	var item interface{}
	switch n.Kind {
	case NodeKindRootMeta:
		item = n.Root
	case NodeKindFile:
		item = n.File
	case NodeKindFolder:
		item = n.Folder
	case NodeKindWikiRoot:
		item = n.WikiRoot
	case NodeKindWikiSpace:
		item = n.WikiSpace
	case NodeKindWikiNode:
		item = n.WikiNode
	default:
		return nil, fmt.Errorf("feishu: unknown selection node type %q", n.Kind)
	}
	if item == nil {
		return nil, fmt.Errorf("feishu: selection node %q has no payload", n.Kind)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	path := n.Path
	if path == nil {
		path = []string{}
	}
	return json.Marshal(treeNodeWire{Path: path, Kind: n.Kind, Item: raw})
}

// ParseTree decodes the selected_nodes blob of a task.
func ParseTree(blob string) (Tree, error) {
	if blob == "" {
		return Tree{}, nil
	}
	var tree Tree
	if err := json.Unmarshal([]byte(blob), &tree); err != nil {
		return nil, fmt.Errorf("feishu: decoding selection tree: %w", err)
	}
	return tree, nil
}

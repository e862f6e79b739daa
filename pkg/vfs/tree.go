package vfs

import (
	"sort"
	"strings"

	"github.com/hemliga/valvet/pkg/container"
)

// TreeNode is one node of the presentation directory tree. Directory
// nodes have children; file nodes carry the entry. A node may hold both
// when a file shares its name with a directory.
type TreeNode struct {
	Name     string
	Path     string
	Entry    *container.FileEntry // nil for pure directories
	Children map[string]*TreeNode // nil for plain files
}

// IsDir reports whether the node is a pure directory.
func (n *TreeNode) IsDir() bool {
	return n.Entry == nil
}

// SortedChildren returns the children ordered directories-first, then by
// name. Used purely for stable presentation.
func (n *TreeNode) SortedChildren() []*TreeNode {
	children := make([]*TreeNode, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].IsDir() != children[j].IsDir() {
			return children[i].IsDir()
		}
		return children[i].Name < children[j].Name
	})
	return children
}

// DirectoryTree builds a nested tree from the slash-delimited virtual
// paths: intermediate segments become directory nodes, the final segment
// a node carrying the file's metadata. A name that is both a file and a
// directory prefix (/a next to /a/b) yields one node holding the entry
// and the children, regardless of map iteration order.
func (v *VFS) DirectoryTree() *TreeNode {
	root := &TreeNode{Name: "/", Path: "/", Children: make(map[string]*TreeNode)}
	if v.meta == nil {
		return root
	}

	for path, entry := range v.meta.Files {
		segments := strings.Split(strings.Trim(path, "/"), "/")
		node := root
		prefix := "/"
		for i, seg := range segments {
			child, ok := node.Children[seg]
			if !ok {
				child = &TreeNode{Name: seg}
				node.Children[seg] = child
			}
			if i == len(segments)-1 {
				child.Path = path
				child.Entry = entry
				break
			}
			if child.Children == nil {
				child.Children = make(map[string]*TreeNode)
			}
			prefix += seg + "/"
			if child.Entry == nil && child.Path == "" {
				child.Path = prefix
			}
			node = child
		}
	}
	return root
}

package vfs

import (
	"testing"
)

func TestDirectoryTree(t *testing.T) {
	v := newTestVFS(t, []byte("pw"))
	for _, path := range []string{
		"/readme.txt",
		"/docs/report.pdf",
		"/docs/img/logo.png",
		"/src/main.go",
	} {
		if err := v.AddBytes(path, []byte("x"), ""); err != nil {
			t.Fatalf("AddBytes(%s) failed: %v", path, err)
		}
	}

	root := v.DirectoryTree()
	if !root.IsDir() || root.Path != "/" {
		t.Fatalf("root is not a directory rooted at /: %+v", root)
	}
	if len(root.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(root.Children))
	}

	docs, ok := root.Children["docs"]
	if !ok || !docs.IsDir() {
		t.Fatal("missing docs directory node")
	}
	if docs.Path != "/docs/" {
		t.Errorf("docs.Path = %q, want /docs/", docs.Path)
	}

	img, ok := docs.Children["img"]
	if !ok || !img.IsDir() {
		t.Fatal("missing nested img directory node")
	}
	if img.Path != "/docs/img/" {
		t.Errorf("img.Path = %q, want /docs/img/", img.Path)
	}

	logo, ok := img.Children["logo.png"]
	if !ok || logo.IsDir() {
		t.Fatal("missing logo.png leaf")
	}
	if logo.Path != "/docs/img/logo.png" {
		t.Errorf("logo.Path = %q", logo.Path)
	}
	if logo.Entry == nil || logo.Entry.Size != 1 {
		t.Errorf("leaf entry not carried: %+v", logo.Entry)
	}

	readme, ok := root.Children["readme.txt"]
	if !ok || readme.IsDir() {
		t.Fatal("missing top-level readme.txt leaf")
	}
}

func TestSortedChildren(t *testing.T) {
	v := newTestVFS(t, []byte("pw"))
	for _, path := range []string{
		"/zebra.txt",
		"/alpha.txt",
		"/dir-b/x",
		"/dir-a/y",
	} {
		if err := v.AddBytes(path, []byte("x"), ""); err != nil {
			t.Fatalf("AddBytes(%s) failed: %v", path, err)
		}
	}

	children := v.DirectoryTree().SortedChildren()
	var names []string
	for _, c := range children {
		names = append(names, c.Name)
	}
	want := []string{"dir-a", "dir-b", "alpha.txt", "zebra.txt"}
	if len(names) != len(want) {
		t.Fatalf("got %d children, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("child %d = %q, want %q (directories first, then by name)", i, names[i], want[i])
		}
	}
}

func TestDirectoryTreeFileDirConflict(t *testing.T) {
	v := newTestVFS(t, []byte("pw"))
	for _, path := range []string{"/a", "/a/b", "/a/c/d"} {
		if err := v.AddBytes(path, []byte("x"), ""); err != nil {
			t.Fatalf("AddBytes(%s) failed: %v", path, err)
		}
	}

	// Map iteration order decides whether the file node or the directory
	// node is created first, so build the tree repeatedly to exercise
	// both orders.
	for i := 0; i < 16; i++ {
		root := v.DirectoryTree()

		a, ok := root.Children["a"]
		if !ok {
			t.Fatal("missing node a")
		}
		if a.Entry == nil || a.Entry.Size != 1 {
			t.Fatalf("file entry /a not carried on shared node: %+v", a.Entry)
		}
		if a.Path != "/a" {
			t.Errorf("a.Path = %q, want /a", a.Path)
		}

		b, ok := a.Children["b"]
		if !ok || b.Entry == nil {
			t.Fatal("file /a/b lost under shared node")
		}

		c, ok := a.Children["c"]
		if !ok || !c.IsDir() {
			t.Fatal("missing directory node c under shared node")
		}
		if c.Path != "/a/c/" {
			t.Errorf("c.Path = %q, want /a/c/", c.Path)
		}
		if d, ok := c.Children["d"]; !ok || d.Entry == nil {
			t.Fatal("file /a/c/d lost under shared node")
		}
	}
}

func TestDirectoryTreeEmpty(t *testing.T) {
	v := newTestVFS(t, []byte("pw"))
	root := v.DirectoryTree()
	if len(root.Children) != 0 {
		t.Errorf("empty vault tree has %d children", len(root.Children))
	}
}

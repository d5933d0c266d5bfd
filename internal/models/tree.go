package models

import "sort"

// Flatten turns a nested comment forest into the flat form used for
// storage. Replies get their ParentID set from the enclosing comment and
// lose their Replies slice.
func Flatten(forest []Comment) []Comment {
	var out []Comment
	var walk func(parentID string, nodes []Comment)
	walk = func(parentID string, nodes []Comment) {
		for _, c := range nodes {
			replies := c.Replies
			c.Replies = nil
			if c.ParentID == "" {
				c.ParentID = parentID
			}
			out = append(out, c)
			walk(c.ID, replies)
		}
	}
	walk("", forest)
	return out
}

// BuildTree assembles flat comments into a forest for rendering. Top-level
// comments come newest first and replies oldest first. A comment whose
// parent is missing is shown at the top level.
func BuildTree(flat []Comment) []Comment {
	byID := make(map[string]bool, len(flat))
	for _, c := range flat {
		if c.ID != "" {
			byID[c.ID] = true
		}
	}

	children := make(map[string][]Comment)
	var roots []Comment
	for _, c := range flat {
		c.Replies = nil
		if c.ParentID != "" && c.ParentID != c.ID && byID[c.ParentID] {
			children[c.ParentID] = append(children[c.ParentID], c)
			continue
		}
		roots = append(roots, c)
	}

	var attach func(c Comment, seen map[string]bool) Comment
	attach = func(c Comment, seen map[string]bool) Comment {
		if seen[c.ID] {
			return c
		}
		seen[c.ID] = true
		kids := children[c.ID]
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].Timestamp.Before(kids[j].Timestamp) })
		for _, k := range kids {
			c.Replies = append(c.Replies, attach(k, seen))
		}
		return c
	}

	sort.SliceStable(roots, func(i, j int) bool { return roots[i].Timestamp.After(roots[j].Timestamp) })
	seen := make(map[string]bool)
	out := make([]Comment, 0, len(roots))
	for _, r := range roots {
		out = append(out, attach(r, seen))
	}
	return out
}

// FindComment returns the index of the comment with the given ID in a flat list.
func FindComment(flat []Comment, id string) int {
	for i := range flat {
		if flat[i].ID == id {
			return i
		}
	}
	return -1
}

package feed

import (
	"github.com/it35lab/campusfeed/model"
)

// BuildCommentTree arranges flat comments into a forest. Siblings keep their
// relative input order. A comment whose parent is not in comments becomes a
// root. Parents may come after their replies in the input.
func BuildCommentTree(comments []model.Comment) []*model.CommentNode {
	nodes := make(map[string]*model.CommentNode, len(comments))
	for _, c := range comments {
		nodes[c.Id] = &model.CommentNode{Comment: c, Replies: []*model.CommentNode{}}
	}

	roots := []*model.CommentNode{}
	for _, c := range comments {
		node := nodes[c.Id]
		if c.ParentCommentID != nil && *c.ParentCommentID != c.Id {
			if parent, ok := nodes[*c.ParentCommentID]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

func cloneTree(nodes []*model.CommentNode) []*model.CommentNode {
	cloned := make([]*model.CommentNode, 0, len(nodes))
	for _, n := range nodes {
		cloned = append(cloned, &model.CommentNode{
			Comment: n.Comment,
			Replies: cloneTree(n.Replies),
		})
	}
	return cloned
}

package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"text/template/parse"
)

// ExtractVariables lists the fields a template reads from its top-level
// data, sorted. Fields read inside range or with blocks belong to the
// element and are not reported; {{range .Chapters}}{{.Number}}{{end}}
// yields ["Chapters"]. Nested fields are dotted: {{.Book.Title}} yields
// "Book.Title". Text that does not parse yields nil.
func ExtractVariables(text string) []string {
	tree := parse.New("prompt")
	tree.Mode = parse.SkipFuncCheck
	if _, err := tree.Parse(text, "", "", map[string]*parse.Tree{}); err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	walkNode(tree.Root, 0, seen)

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	if len(vars) == 0 {
		return nil
	}
	slices.Sort(vars)
	return vars
}

// walkNode collects fields; depth counts enclosing blocks that rebind dot.
func walkNode(node parse.Node, depth int, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walkNode(child, depth, seen)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, depth, seen)
	case *parse.TemplateNode:
		walkPipe(n.Pipe, depth, seen)
	case *parse.IfNode:
		walkPipe(n.Pipe, depth, seen)
		walkNode(n.List, depth, seen)
		walkNode(n.ElseList, depth, seen)
	case *parse.RangeNode:
		walkPipe(n.Pipe, depth, seen)
		walkNode(n.List, depth+1, seen)
		walkNode(n.ElseList, depth, seen)
	case *parse.WithNode:
		walkPipe(n.Pipe, depth, seen)
		walkNode(n.List, depth+1, seen)
		walkNode(n.ElseList, depth, seen)
	}
}

func walkPipe(pipe *parse.PipeNode, depth int, seen map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if depth == 0 {
					seen[strings.Join(a.Ident, ".")] = struct{}{}
				}
			case *parse.VariableNode:
				// $ always refers to the top-level data.
				if len(a.Ident) > 1 && a.Ident[0] == "$" {
					seen[strings.Join(a.Ident[1:], ".")] = struct{}{}
				}
			case *parse.PipeNode:
				walkPipe(a, depth, seen)
			case *parse.ChainNode:
				if p, ok := a.Node.(*parse.PipeNode); ok {
					walkPipe(p, depth, seen)
				}
			}
		}
	}
}

// HashText returns a SHA256 hash of the text for change detection.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

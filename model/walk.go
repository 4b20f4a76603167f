package model

import "fmt"

// Walk visits root and every node below it depth-first, in pre-order. For
// each node the node itself is visited first, then its history versions,
// then its children in stored order. Returning false from fn skips the
// node's history and children.
//
// A nil root visits nothing. The tree must be acyclic and must not share
// nodes between parents; Walk panics if it reaches a node twice.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}

	seen := make(map[*Node]struct{})
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}

		if _, dup := seen[n]; dup {
			panic(fmt.Sprintf("model: node %s reached twice, tree is not acyclic", n.ID))
		}
		seen[n] = struct{}{}

		if !fn(n) {
			continue
		}

		// Push in reverse so that history pops before children and both
		// keep their stored order.
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
		for i := len(n.History) - 1; i >= 0; i-- {
			stack = append(stack, n.History[i])
		}
	}
}

// AllNodes returns root and its descendants in Walk order.
func AllNodes(root *Node) []*Node {
	var nodes []*Node
	Walk(root, func(n *Node) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

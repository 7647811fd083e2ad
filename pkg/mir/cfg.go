// CFG traversal helpers.
package mir

// ReversePostOrder returns the function's blocks in reverse postorder
// starting from the entry block. Unreachable blocks are not visited.
func ReversePostOrder(fn *Function) []*Block {
	if fn.Entry == nil {
		return nil
	}
	visited := make(map[*Block]bool)
	var postorder []*Block

	var dfs func(b *Block)
	dfs = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, succ := range b.Succs() {
			dfs(succ)
		}
		postorder = append(postorder, b)
	}
	dfs(fn.Entry)

	// Reverse to get RPO
	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	return postorder
}

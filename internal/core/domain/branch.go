package domain

// BranchInfo describes one dynamic branch attached to the media graph.
type BranchInfo struct {
	PeerID PeerID
	Source Source
	Port   int
	Active bool
}

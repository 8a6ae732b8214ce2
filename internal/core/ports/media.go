package ports

// BranchHandle is an opaque reference to a dynamically attached branch inside
// the media graph. The branch controller that created a handle is its sole
// owner and the only component allowed to release it.
type BranchHandle interface {
	DistributionPoint() string
	Port() int
}

// ElementHandle references a named element inside the running graph.
type ElementHandle interface {
	Name() string
}

// ProbeInfo is delivered to probe callbacks for each buffer passing a pad.
type ProbeInfo struct {
	Element string
	Pad     string
	Bytes   int
}

type ProbeCallback func(ProbeInfo)

// MediaGraph is the capability contract of the shared media engine. The graph
// is already running when branches are attached; implementations must add and
// link elements without pausing existing branches, and must flush in-flight
// buffers (EOS-equivalent) before tearing a branch down.
type MediaGraph interface {
	Ready() bool
	AttachBranch(distributionPoint string, port int) (BranchHandle, error)
	DetachBranch(handle BranchHandle) error
	QueryElement(name string) (ElementHandle, bool)
	AddProbe(element, pad string, cb ProbeCallback) error
}

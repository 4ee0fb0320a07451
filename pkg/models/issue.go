package models

import (
	"fmt"
	"slices"
)

// Category groups issues by the analyzer module that produced them.
type Category string

const (
	CategoryCode     Category = "code"
	CategoryAssembly Category = "assembly"
	CategorySettings Category = "settings"
)

// String returns the string representation.
func (c Category) String() string { return string(c) }

// Area tags the part of the product an issue affects.
type Area string

const (
	AreaCPU         Area = "cpu"
	AreaGPU         Area = "gpu"
	AreaMemory      Area = "memory"
	AreaBuildSize   Area = "build-size"
	AreaBuildTime   Area = "build-time"
	AreaLoadTime    Area = "load-time"
	AreaQuality     Area = "quality"
	AreaRequirement Area = "requirement"
	AreaSupport     Area = "support"
)

// String returns the string representation.
func (a Area) String() string { return string(a) }

// Location points at a line in a source document.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// String formats the location as path:line.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d", l.Path, l.Line)
	}
	return l.Path
}

// CallNode is one frame of an inverted call hierarchy. The root is the
// method containing the flagged call site, children are its callers.
// Nodes own their children exclusively; a caller reached over two paths
// appears twice.
type CallNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type,omitempty"`
	Method   string      `json:"method,omitempty"`
	Module   string      `json:"module,omitempty"`
	Location *Location   `json:"location,omitempty"`
	Children []*CallNode `json:"children,omitempty"`
	// Truncated is set when callers exist beyond the depth limit.
	Truncated bool `json:"truncated,omitempty"`
}

// AddChild appends a caller frame.
func (n *CallNode) AddChild(child *CallNode) {
	n.Children = append(n.Children, child)
}

// HasChildren reports whether any callers were found.
func (n *CallNode) HasChildren() bool {
	return n != nil && len(n.Children) > 0
}

// Depth returns the number of levels below this node.
func (n *CallNode) Depth() int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		if d := c.Depth() + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Clone deep-copies the node and its subtree.
func (n *CallNode) Clone() *CallNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.Location != nil {
		loc := *n.Location
		c.Location = &loc
	}
	c.Children = make([]*CallNode, 0, len(n.Children))
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return &c
}

// Issue is a single diagnostic emitted by an analyzer module.
type Issue struct {
	Category     Category  `json:"category"`
	Severity     Severity  `json:"severity,omitempty"`
	Description  string    `json:"description"`
	DescriptorID string    `json:"descriptor_id,omitempty"`
	Dependencies *CallNode `json:"dependencies,omitempty"`
	Location     *Location `json:"location,omitempty"`
	Properties   []string  `json:"properties,omitempty"`
	Fixed        bool      `json:"fixed,omitempty"`
}

// IsIssue reports whether the item is backed by a descriptor. Items without
// one are informational.
func (i *Issue) IsIssue() bool {
	return i.DescriptorID != ""
}

// Context returns the string severity rule filters match against.
func (i *Issue) Context() string {
	if i.Dependencies != nil && i.Dependencies.Name != "" {
		return i.Dependencies.Name
	}
	if i.Location != nil {
		return i.Location.Path
	}
	return ""
}

// Property returns the custom property at index, or "" when absent.
func (i *Issue) Property(index int) string {
	if index < 0 || index >= len(i.Properties) {
		return ""
	}
	return i.Properties[index]
}

// Clone deep-copies the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Dependencies = i.Dependencies.Clone()
	if i.Location != nil {
		loc := *i.Location
		c.Location = &loc
	}
	c.Properties = slices.Clone(i.Properties)
	return &c
}

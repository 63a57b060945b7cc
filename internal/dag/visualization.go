package dag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Status names used when rendering execution state
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// NodeState is the execution state of one task as seen by the visualizer
type NodeState struct {
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
	Attempts  int
	Error     string
}

// Visualization renders a graph, optionally overlaid with execution state
type Visualization struct {
	graph  *Graph
	states map[string]NodeState
}

// NewVisualization creates a new visualization helper
func NewVisualization(g *Graph) *Visualization {
	return &Visualization{
		graph:  g,
		states: make(map[string]NodeState),
	}
}

// WithStates overlays execution state. Tasks without a state render as pending.
func (v *Visualization) WithStates(states map[string]NodeState) *Visualization {
	for name, st := range states {
		v.states[name] = st
	}
	return v
}

// NodeInfo contains information about a node for visualization
type NodeInfo struct {
	ID        string            `json:"id"`
	Run       string            `json:"run"`
	Setup     string            `json:"setup,omitempty"`
	Cloud     string            `json:"cloud,omitempty"`
	Level     int               `json:"level"`
	Status    string            `json:"status"`
	StartTime *time.Time        `json:"startTime,omitempty"`
	EndTime   *time.Time        `json:"endTime,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Attempts  int               `json:"attempts,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// GraphStats counts nodes by status
type GraphStats struct {
	TotalNodes     int        `json:"totalNodes"`
	DoneNodes      int        `json:"doneNodes"`
	FailedNodes    int        `json:"failedNodes"`
	SkippedNodes   int        `json:"skippedNodes"`
	CancelledNodes int        `json:"cancelledNodes"`
	RunningNodes   int        `json:"runningNodes"`
	PendingNodes   int        `json:"pendingNodes"`
	TotalDuration  string     `json:"totalDuration,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
}

// GraphInfo contains the full graph structure for visualization
type GraphInfo struct {
	Nodes  []NodeInfo `json:"nodes"`
	Edges  []Edge     `json:"edges"`
	Order  []string   `json:"order"`
	Roots  []string   `json:"roots"`
	Leaves []string   `json:"leaves"`
	Stats  GraphStats `json:"stats"`
}

// GenerateInfo builds the renderable representation of the graph.
// Nodes are listed in topological order.
func (v *Visualization) GenerateInfo() *GraphInfo {
	levelOf := make(map[string]int)
	for i, level := range v.graph.Levels() {
		for _, name := range level {
			levelOf[name] = i
		}
	}

	order := v.graph.TopologicalOrder()
	nodes := make([]NodeInfo, 0, len(order))
	stats := GraphStats{TotalNodes: len(order)}
	var earliestStart, latestEnd *time.Time

	for _, name := range order {
		t := v.graph.tasks[name]
		st, ok := v.states[name]
		if !ok || st.Status == "" {
			st.Status = StatusPending
		}

		duration := ""
		if st.StartTime != nil && st.EndTime != nil {
			duration = st.EndTime.Sub(*st.StartTime).String()
		} else if st.StartTime != nil {
			duration = time.Since(*st.StartTime).Round(time.Millisecond).String() + " (running)"
		}

		if st.StartTime != nil && (earliestStart == nil || st.StartTime.Before(*earliestStart)) {
			earliestStart = st.StartTime
		}
		if st.EndTime != nil && (latestEnd == nil || st.EndTime.After(*latestEnd)) {
			latestEnd = st.EndTime
		}

		nodes = append(nodes, NodeInfo{
			ID:        name,
			Run:       t.Run,
			Setup:     t.Setup,
			Cloud:     t.Resources.Cloud,
			Level:     levelOf[name],
			Status:    st.Status,
			StartTime: st.StartTime,
			EndTime:   st.EndTime,
			Duration:  duration,
			Attempts:  st.Attempts,
			Error:     st.Error,
			Extra:     t.Resources.Extra,
		})

		switch st.Status {
		case StatusDone:
			stats.DoneNodes++
		case StatusFailed:
			stats.FailedNodes++
		case StatusSkipped:
			stats.SkippedNodes++
		case StatusCancelled:
			stats.CancelledNodes++
		case StatusRunning:
			stats.RunningNodes++
		default:
			stats.PendingNodes++
		}
	}

	if earliestStart != nil {
		stats.StartTime = earliestStart
		if latestEnd != nil {
			stats.EndTime = latestEnd
			stats.TotalDuration = latestEnd.Sub(*earliestStart).String()
		}
	}

	edges := v.graph.Edges()
	if edges == nil {
		edges = []Edge{}
	}

	return &GraphInfo{
		Nodes:  nodes,
		Edges:  edges,
		Order:  order,
		Roots:  v.graph.Roots(),
		Leaves: v.graph.Leaves(),
		Stats:  stats,
	}
}

// WriteJSON writes the graph info as indented JSON
func (v *Visualization) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v.GenerateInfo())
}

// ExportToJSON exports the graph to a JSON file
func (v *Visualization) ExportToJSON(filename string) error {
	data, err := json.MarshalIndent(v.GenerateInfo(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

var statusColors = map[string]string{
	StatusPending:   "lightgrey",
	StatusRunning:   "lightblue",
	StatusDone:      "lightgreen",
	StatusFailed:    "salmon",
	StatusSkipped:   "khaki",
	StatusCancelled: "orange",
}

// GenerateDOT creates a DOT format graph for Graphviz
func (v *Visualization) GenerateDOT() string {
	info := v.GenerateInfo()

	var sb strings.Builder
	sb.WriteString("digraph Pipeline {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n\n")

	for _, node := range info.Nodes {
		label := node.ID
		if node.Cloud != "" {
			label += fmt.Sprintf("\\n(%s)", node.Cloud)
		}
		if node.Duration != "" {
			label += fmt.Sprintf("\\n%s", node.Duration)
		}
		if node.Error != "" {
			msg := node.Error
			if len(msg) > 50 {
				msg = msg[:47] + "..."
			}
			label += fmt.Sprintf("\\nError: %s", escapeDOT(msg))
		}
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=%q];\n", node.ID, label, statusColors[node.Status]))
	}

	if len(info.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, edge := range info.Edges {
		if len(edge.Artifacts) > 0 {
			sb.WriteString(fmt.Sprintf("  %q -> %q [label=\"%s\"];\n", edge.From, edge.To, escapeDOT(strings.Join(edge.Artifacts, "\\n"))))
		} else {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// ExportToDOT exports the graph to a DOT file
func (v *Visualization) ExportToDOT(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateDOT()), 0644)
}

// GenerateTextSummary creates a human-readable summary grouped by stage
func (v *Visualization) GenerateTextSummary() string {
	info := v.GenerateInfo()
	byID := make(map[string]NodeInfo, len(info.Nodes))
	for _, n := range info.Nodes {
		byID[n.ID] = n
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pipeline: %d tasks, %d edges\n", info.Stats.TotalNodes, len(info.Edges)))
	if len(info.Leaves) > 0 {
		sb.WriteString(fmt.Sprintf("Entry: %s  Final: %s\n", strings.Join(info.Roots, ", "), strings.Join(info.Leaves, ", ")))
	}

	for i, level := range v.graph.Levels() {
		sb.WriteString(fmt.Sprintf("\nStage %d:\n", i+1))
		for _, name := range level {
			node := byID[name]
			sb.WriteString(fmt.Sprintf("  - %s [%s]", name, node.Status))
			if node.Duration != "" {
				sb.WriteString(fmt.Sprintf(" %s", node.Duration))
			}
			sb.WriteString("\n")
			for _, dep := range v.graph.Dependencies(name) {
				if len(dep.Artifacts) > 0 {
					sb.WriteString(fmt.Sprintf("      after %s: %s\n", dep.From, strings.Join(dep.Artifacts, ", ")))
				} else {
					sb.WriteString(fmt.Sprintf("      after %s\n", dep.From))
				}
			}
			if node.Error != "" {
				sb.WriteString(fmt.Sprintf("      error: %s\n", node.Error))
			}
		}
	}

	if len(v.states) > 0 {
		sb.WriteString(fmt.Sprintf("\nDone: %d  Failed: %d  Skipped: %d  Cancelled: %d  Pending: %d\n",
			info.Stats.DoneNodes, info.Stats.FailedNodes, info.Stats.SkippedNodes,
			info.Stats.CancelledNodes, info.Stats.PendingNodes))
		if info.Stats.TotalDuration != "" {
			sb.WriteString(fmt.Sprintf("Total Duration: %s\n", info.Stats.TotalDuration))
		}
	}

	return sb.String()
}

// ExportToText exports the text summary to a file
func (v *Visualization) ExportToText(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateTextSummary()), 0644)
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

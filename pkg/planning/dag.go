// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package planning

import (
	"fmt"
	"sync"

	"github.com/kadirpekel/argus/pkg/research"
)

// TaskType classifies what a DAG node does when scheduled.
type TaskType int

const (
	TaskSearch TaskType = iota
	TaskAnalyze
	TaskSynthesize
)

func (t TaskType) String() string {
	switch t {
	case TaskSearch:
		return "search"
	case TaskAnalyze:
		return "analyze"
	case TaskSynthesize:
		return "synthesize"
	default:
		return "unknown"
	}
}

// NodeStatus tracks a node through its lifecycle.
type NodeStatus int

const (
	StatusPending NodeStatus = iota
	StatusRunning
	StatusComplete
	StatusFailed
)

func (s NodeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DAGNode is one schedulable task. ID, TaskType, Description, and
// Dependencies are fixed at AddNode time; Status, Result, and Err mutate
// through the owning DAG.
type DAGNode struct {
	ID           string
	TaskType     TaskType
	Description  string
	Dependencies []string
	Status       NodeStatus
	Result       any
	Err          error
}

// ResearchDAG is the live execution graph for one research plan. All access
// goes through its methods; node reads return copies so callers never race
// with status updates.
type ResearchDAG struct {
	mu    sync.RWMutex
	nodes map[string]*DAGNode
	order []string
}

// NewResearchDAG creates an empty graph.
func NewResearchDAG() *ResearchDAG {
	return &ResearchDAG{nodes: make(map[string]*DAGNode)}
}

// AddNode inserts a node in pending status. Node ids must be unique.
func (d *ResearchDAG) AddNode(node *DAGNode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node.ID == "" {
		return fmt.Errorf("node id is empty")
	}
	if _, exists := d.nodes[node.ID]; exists {
		return fmt.Errorf("duplicate node id %s", node.ID)
	}
	n := *node
	n.Status = StatusPending
	d.nodes[node.ID] = &n
	d.order = append(d.order, node.ID)
	return nil
}

// Node returns a copy of the node with the given id.
func (d *ResearchDAG) Node(id string) (DAGNode, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	if !ok {
		return DAGNode{}, false
	}
	return *n, true
}

// GetAllNodes returns copies of every node in insertion order.
func (d *ResearchDAG) GetAllNodes() []DAGNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := make([]DAGNode, 0, len(d.order))
	for _, id := range d.order {
		nodes = append(nodes, *d.nodes[id])
	}
	return nodes
}

// GetReadyTasks returns copies of the pending nodes whose dependencies have
// all completed, in insertion order. A failed dependency keeps its dependents
// blocked.
func (d *ResearchDAG) GetReadyTasks() []DAGNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ready []DAGNode
	for _, id := range d.order {
		node := d.nodes[id]
		if node.Status != StatusPending {
			continue
		}
		depsComplete := true
		for _, depID := range node.Dependencies {
			dep, ok := d.nodes[depID]
			if !ok || dep.Status != StatusComplete {
				depsComplete = false
				break
			}
		}
		if depsComplete {
			ready = append(ready, *node)
		}
	}
	return ready
}

// SetStatus moves a node to the given status. Unknown ids are ignored.
func (d *ResearchDAG) SetStatus(id string, status NodeStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.nodes[id]; ok {
		node.Status = status
	}
}

// SetResult marks a node complete and records its result.
func (d *ResearchDAG) SetResult(id string, result any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.nodes[id]; ok {
		node.Status = StatusComplete
		node.Result = result
	}
}

// SetError marks a node failed and records the error.
func (d *ResearchDAG) SetError(id string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if node, ok := d.nodes[id]; ok {
		node.Status = StatusFailed
		node.Err = err
	}
}

// AllComplete reports whether every node has finished. Failed nodes count
// as finished.
func (d *ResearchDAG) AllComplete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, node := range d.nodes {
		if node.Status != StatusComplete && node.Status != StatusFailed {
			return false
		}
	}
	return true
}

// Counts returns how many nodes are in each status.
func (d *ResearchDAG) Counts() (pending, running, complete, failed int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, node := range d.nodes {
		switch node.Status {
		case StatusPending:
			pending++
		case StatusRunning:
			running++
		case StatusComplete:
			complete++
		case StatusFailed:
			failed++
		}
	}
	return
}

// Validate checks that every dependency references a known node and that the
// graph is acyclic.
func (d *ResearchDAG) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		for _, depID := range d.nodes[id].Dependencies {
			if _, ok := d.nodes[depID]; !ok {
				return fmt.Errorf("node %s depends on unknown node %s", id, depID)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(d.nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through node %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, depID := range d.nodes[id].Dependencies {
			if err := visit(depID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, id := range d.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot converts the graph to its persisted event form.
func (d *ResearchDAG) Snapshot() research.DAGSnapshot {
	nodes := d.GetAllNodes()
	snapshot := research.DAGSnapshot{
		Nodes: make([]research.DAGNodeSnapshot, len(nodes)),
	}
	for i, n := range nodes {
		snapshot.Nodes[i] = research.DAGNodeSnapshot{
			ID:           n.ID,
			TaskType:     n.TaskType.String(),
			Description:  n.Description,
			Dependencies: n.Dependencies,
			Status:       n.Status.String(),
		}
	}
	return snapshot
}

// Package interpreter is the workflow execution engine: given a BPMN
// definition and optional prior serialized state, it advances every
// eligible automatic task, evaluates gateways, runs script tasks in the
// sandbox, and parks at waiting (user/service) tasks.
package interpreter

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// NodeKind is the BPMN element kind of a flow node, the sum-type tag
// that replaces class-name sniffing over a dynamically loaded engine.
type NodeKind string

const (
	NodeStartEvent       NodeKind = "StartEvent"
	NodeEndEvent         NodeKind = "EndEvent"
	NodeUserTask         NodeKind = "UserTask"
	NodeServiceTask      NodeKind = "ServiceTask"
	NodeScriptTask       NodeKind = "ScriptTask"
	NodeSendTask         NodeKind = "SendTask"
	NodeExclusiveGateway NodeKind = "ExclusiveGateway"
	NodeParallelGateway  NodeKind = "ParallelGateway"
	NodeSubProcess       NodeKind = "SubProcess"
)

// waitingKinds are the task specs the interpreter parks at rather than
// running through automatically (§4.2's waiting-task classification).
var waitingKinds = map[NodeKind]bool{
	NodeUserTask:    true,
	NodeServiceTask: true,
	NodeSendTask:    true,
}

// userFacingKinds are the subset of waitingKinds surfaced as
// waiting_user_tasks.
var userFacingKinds = map[NodeKind]bool{
	NodeUserTask: true,
}

// Node is one flow node in a process graph.
type Node struct {
	ID       string
	Name     string
	Kind     NodeKind
	Script   string
	Incoming []string
	Outgoing []string
}

// Flow is a sequenceFlow connecting two nodes, with an optional guard
// expression evaluated (via the script sandbox) when its source is an
// exclusive gateway.
type Flow struct {
	ID        string
	SourceRef string
	TargetRef string
	Condition string
}

// Definition is the static process graph parsed from one BPMN document.
type Definition struct {
	ProcessKey  string
	ProcessName string
	Nodes       map[string]*Node
	Flows       map[string]*Flow
	StartNodeID string
}

type defXML struct {
	XMLName xml.Name    `xml:"definitions"`
	Process processXML  `xml:"process"`
}

type processXML struct {
	ID                string           `xml:"id,attr"`
	Name              string           `xml:"name,attr"`
	StartEvents       []eventXML       `xml:"startEvent"`
	EndEvents         []eventXML       `xml:"endEvent"`
	UserTasks         []taskXML        `xml:"userTask"`
	ServiceTasks      []taskXML        `xml:"serviceTask"`
	ScriptTasks       []scriptTaskXML  `xml:"scriptTask"`
	SendTasks         []taskXML        `xml:"sendTask"`
	SubProcesses      []taskXML        `xml:"subProcess"`
	ExclusiveGateways []taskXML        `xml:"exclusiveGateway"`
	ParallelGateways  []taskXML        `xml:"parallelGateway"`
	SequenceFlows     []sequenceFlowXML `xml:"sequenceFlow"`
}

type eventXML struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type taskXML struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type scriptTaskXML struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"name,attr"`
	Script string `xml:"script"`
}

type sequenceFlowXML struct {
	ID                  string               `xml:"id,attr"`
	SourceRef           string               `xml:"sourceRef,attr"`
	TargetRef           string               `xml:"targetRef,attr"`
	ConditionExpression *conditionExprXML    `xml:"conditionExpression"`
}

type conditionExprXML struct {
	Content string `xml:",chardata"`
}

// ParseDefinition builds a Definition from BPMN XML already accepted by
// the validator. It assumes a single, non-nested process element:
// subProcess elements are parsed as opaque pass-through nodes (they
// complete immediately, without expanding their internal flow), which
// matches the orchestrator's supported-element subset of simple,
// non-looping, non-multi-instance processes.
func ParseDefinition(xmlText string) (*Definition, error) {
	var doc defXML
	if err := xml.Unmarshal([]byte(xmlText), &doc); err != nil {
		return nil, fmt.Errorf("parse bpmn: %w", err)
	}

	def := &Definition{
		ProcessKey:  doc.Process.ID,
		ProcessName: doc.Process.Name,
		Nodes:       map[string]*Node{},
		Flows:       map[string]*Flow{},
	}

	addNode := func(id, name string, kind NodeKind) {
		def.Nodes[id] = &Node{ID: id, Name: name, Kind: kind}
	}
	for _, e := range doc.Process.StartEvents {
		addNode(e.ID, e.Name, NodeStartEvent)
		if def.StartNodeID == "" {
			def.StartNodeID = e.ID
		}
	}
	for _, e := range doc.Process.EndEvents {
		addNode(e.ID, e.Name, NodeEndEvent)
	}
	for _, t := range doc.Process.UserTasks {
		addNode(t.ID, t.Name, NodeUserTask)
	}
	for _, t := range doc.Process.ServiceTasks {
		addNode(t.ID, t.Name, NodeServiceTask)
	}
	for _, t := range doc.Process.ScriptTasks {
		def.Nodes[t.ID] = &Node{ID: t.ID, Name: t.Name, Kind: NodeScriptTask, Script: strings.TrimSpace(t.Script)}
	}
	for _, t := range doc.Process.SendTasks {
		addNode(t.ID, t.Name, NodeSendTask)
	}
	for _, t := range doc.Process.SubProcesses {
		addNode(t.ID, t.Name, NodeSubProcess)
	}
	for _, g := range doc.Process.ExclusiveGateways {
		addNode(g.ID, g.Name, NodeExclusiveGateway)
	}
	for _, g := range doc.Process.ParallelGateways {
		addNode(g.ID, g.Name, NodeParallelGateway)
	}

	if def.StartNodeID == "" {
		return nil, fmt.Errorf("parse bpmn: no start event found")
	}

	for _, f := range doc.Process.SequenceFlows {
		flow := &Flow{ID: f.ID, SourceRef: f.SourceRef, TargetRef: f.TargetRef}
		if f.ConditionExpression != nil {
			flow.Condition = strings.TrimSpace(f.ConditionExpression.Content)
		}
		def.Flows[f.ID] = flow
		if src, ok := def.Nodes[f.SourceRef]; ok {
			src.Outgoing = append(src.Outgoing, f.ID)
		}
		if tgt, ok := def.Nodes[f.TargetRef]; ok {
			tgt.Incoming = append(tgt.Incoming, f.ID)
		}
	}

	for _, node := range def.Nodes {
		sort.Strings(node.Outgoing)
		sort.Strings(node.Incoming)
	}

	return def, nil
}

// requiredArrivals is the number of incoming sequence flows that must
// fire before a node becomes ready. Parallel gateways are AND-joins;
// everything else (including exclusive gateways, which are OR-joins)
// fires on the first arrival.
func requiredArrivals(node *Node) int {
	if node.Kind == NodeParallelGateway && len(node.Incoming) > 0 {
		return len(node.Incoming)
	}
	return 1
}

func isWaitingKind(kind NodeKind) bool {
	return waitingKinds[kind]
}

func isUserFacingKind(kind NodeKind) bool {
	return userFacingKinds[kind]
}

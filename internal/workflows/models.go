package workflows

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("workflows: not found")
	ErrInvalidArgument = errors.New("workflows: invalid argument")
	ErrNoStages        = errors.New("workflows: definition has no stages")
)

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceInProgress InstanceStatus = "IN_PROGRESS"
	InstanceCompleted  InstanceStatus = "COMPLETED"
	InstanceFailed     InstanceStatus = "FAILED"
	InstanceCancelled  InstanceStatus = "CANCELLED"
)

// WorkItemStatus is the lifecycle state of one assigned task.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "PENDING"
	WorkItemInProgress WorkItemStatus = "IN_PROGRESS"
	WorkItemCompleted  WorkItemStatus = "COMPLETED"
	WorkItemFailed     WorkItemStatus = "FAILED"
)

// Definition is a workflow blueprint: an ordered list of stages, each with
// the tasks to hand out when the stage is entered. Definitions are authored
// outside this module and read-only here.
type Definition struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

// Stage is one step of a definition. Order is strictly increasing within a
// definition but need not be contiguous.
type Stage struct {
	ID    string      `json:"id"`
	Order int         `json:"order"`
	Name  string      `json:"name"`
	Tasks []StageTask `json:"tasks"`
}

// StageTask is the template for a work item created on stage entry.
type StageTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Instance is one running (or finished) execution of a definition. Only the
// progression engine mutates CurrentStageOrder and Status; instances are
// never deleted.
type Instance struct {
	ID                string         `json:"id"`
	DefinitionID      string         `json:"workflowDefId"`
	InitiatorID       string         `json:"initiatorId"`
	CurrentStageOrder int            `json:"currentStageOrder"`
	Status            InstanceStatus `json:"status"`
	ContextData       map[string]any `json:"contextData,omitempty"`
	StartedAt         time.Time      `json:"startedAt"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
}

// WorkItem is one unit of assigned work. Items created by stage entry carry
// InstanceID and StageID; standalone items (task actions) leave both empty.
type WorkItem struct {
	ID          string         `json:"id"`
	InstanceID  string         `json:"workflowInstanceId,omitempty"`
	StageID     string         `json:"stageId,omitempty"`
	AssigneeID  string         `json:"assigneeId"`
	Title       string         `json:"title"`
	Status      WorkItemStatus `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// StageByOrder returns the stage with the given order.
func (d Definition) StageByOrder(order int) (Stage, bool) {
	for _, s := range d.Stages {
		if s.Order == order {
			return s, true
		}
	}
	return Stage{}, false
}

// NextStage returns the lowest-order stage after the given order.
func (d Definition) NextStage(after int) (Stage, bool) {
	var next Stage
	found := false
	for _, s := range d.Stages {
		if s.Order <= after {
			continue
		}
		if !found || s.Order < next.Order {
			next = s
			found = true
		}
	}
	return next, found
}

// FirstStage returns the lowest-order stage.
func (d Definition) FirstStage() (Stage, bool) {
	var first Stage
	found := false
	for _, s := range d.Stages {
		if !found || s.Order < first.Order {
			first = s
			found = true
		}
	}
	return first, found
}

package rules

import (
	"encoding/json"
	"fmt"
)

// NodeKind discriminates the two condition-tree node shapes. The tree is a
// tagged sum type: structural sniffing of node shapes is deliberately not
// supported.
type NodeKind string

const (
	NodeCondition NodeKind = "condition"
	NodeGroup     NodeKind = "group"
)

// GroupOp combines the results of a group's children.
type GroupOp string

const (
	GroupAnd GroupOp = "AND"
	GroupOr  GroupOp = "OR"
)

// Operator compares a payload field against a literal.
type Operator string

const (
	OpEq          Operator = "="
	OpNeq         Operator = "!="
	OpGt          Operator = ">"
	OpLt          Operator = "<"
	OpGte         Operator = ">="
	OpLte         Operator = "<="
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

// ConditionNode is one node of a rule's condition tree.
//
// Kind == NodeCondition uses Field/Operator/Value.
// Kind == NodeGroup uses Op/Children.
type ConditionNode struct {
	Kind NodeKind `json:"kind" yaml:"kind"`

	// Leaf condition. Field is a dot-separated path into the event payload.
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`

	// Group.
	Op       GroupOp          `json:"op,omitempty" yaml:"op,omitempty"`
	Children []*ConditionNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Validate checks the tree's shape without evaluating it. Depth bounds are
// enforced at evaluation time; Validate catches authoring mistakes early.
func (n *ConditionNode) Validate() error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case NodeCondition:
		if n.Field == "" {
			return fmt.Errorf("rules: condition missing field")
		}
		if !validOperator(n.Operator) {
			return fmt.Errorf("rules: unknown operator %q", n.Operator)
		}
		if len(n.Children) > 0 {
			return fmt.Errorf("rules: condition node must not have children")
		}
		return nil
	case NodeGroup:
		if n.Op != GroupAnd && n.Op != GroupOr {
			return fmt.Errorf("rules: unknown group op %q", n.Op)
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("rules: group has no children")
		}
		for _, child := range n.Children {
			if child == nil {
				return fmt.Errorf("rules: group has nil child")
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("rules: unknown node kind %q", n.Kind)
	}
}

func validOperator(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte,
		OpContains, OpNotContains, OpIn, OpNotIn, OpIsNull, OpIsNotNull:
		return true
	default:
		return false
	}
}

// ParseConditionTree decodes and validates a stored condition tree. A nil or
// empty document yields a nil tree (rule always matches).
func ParseConditionTree(raw []byte) (*ConditionNode, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var node ConditionNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("rules: decode condition tree: %w", err)
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return &node, nil
}
